package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Method selects where log records go.
type Method int

const (
	MethodSyslog Method = iota
	MethodStdio
	MethodFile
)

func (m Method) String() string {
	switch m {
	case MethodSyslog:
		return "syslog"
	case MethodStdio:
		return "stdio"
	case MethodFile:
		return "file"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseTarget interprets the value of the "log" setting. Anything that is not
// a known keyword is taken as a file path.
func ParseTarget(value string) (Method, string) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "syslog":
		return MethodSyslog, ""
	case "stdio", "stdout", "stderr":
		return MethodStdio, ""
	default:
		return MethodFile, value
	}
}

// CheckFileTarget verifies that path can be opened for appending: either it
// exists and is writable, or it does not exist and its directory is writable.
func CheckFileTarget(path string) error {
	if path == "" {
		return errors.New("log file path is empty")
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("log file %s is a directory", path)
		}
		if err := unix.Access(path, unix.W_OK); err != nil {
			return fmt.Errorf("log file %s is not writable: %w", path, err)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		dir := filepath.Dir(path)
		if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
			return fmt.Errorf("log file %s does not exist and directory %s is not writable: %w", path, dir, err)
		}
		return nil
	default:
		return fmt.Errorf("log file %s: %w", path, err)
	}
}
