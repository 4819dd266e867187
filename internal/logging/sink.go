package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// fileTimeFormat matches strftime "%Y-%m-%d %H:%M:%S %z".
const fileTimeFormat = "2006-01-02 15:04:05 -0700"

type sink interface {
	write(level Level, msg string, fields map[string]any)
	close() error
}

// hclogSink renders records with hclog onto a stream or file.
type hclogSink struct {
	logger hclog.Logger
	closer io.Closer
}

func newHCLogSink(name string, w io.Writer, timestamps bool, closer io.Closer, requestID string) *hclogSink {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       hclog.Trace,
		Output:      w,
		TimeFormat:  fileTimeFormat,
		DisableTime: !timestamps,
		Color:       hclog.ColorOff,
	})
	if requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	return &hclogSink{logger: logger, closer: closer}
}

func (s *hclogSink) write(level Level, msg string, fields map[string]any) {
	args := fieldArgs(fields)
	if !level.hclogNative() {
		args = append([]any{"severity", level.String()}, args...)
	}
	s.logger.Log(level.hclogLevel(), msg, args...)
}

func (s *hclogSink) close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// syslogSink writes to the local syslog daemon with facility AUTH.
type syslogSink struct {
	writer    *syslog.Writer
	requestID string
}

func newSyslogSink(open SyslogOpener, tag, requestID string) (*syslogSink, error) {
	if open == nil {
		open = syslog.New
	}
	w, err := open(syslog.LOG_AUTH|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}
	return &syslogSink{writer: w, requestID: requestID}, nil
}

func (s *syslogSink) write(level Level, msg string, fields map[string]any) {
	line := formatLine(msg, fields, s.requestID)

	switch level {
	case LevelEmergency:
		_ = s.writer.Emerg(line)
	case LevelAlert:
		_ = s.writer.Alert(line)
	case LevelCritical:
		_ = s.writer.Crit(line)
	case LevelError:
		_ = s.writer.Err(line)
	case LevelWarning:
		_ = s.writer.Warning(line)
	case LevelNotice:
		_ = s.writer.Notice(line)
	case LevelInformation:
		_ = s.writer.Info(line)
	default:
		_ = s.writer.Debug(line)
	}
}

func (s *syslogSink) close() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func fieldArgs(fields map[string]any) []any {
	args := make([]any, 0, 2*len(fields))
	for _, k := range sortedKeys(fields) {
		args = append(args, k, fields[k])
	}
	return args
}

// formatLine produces "msg: k=v k=v" for sinks that take a single string.
func formatLine(msg string, fields map[string]any, requestID string) string {
	if len(fields) == 0 && requestID == "" {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	b.WriteString(":")
	for _, k := range sortedKeys(fields) {
		writePair(&b, k, fields[k])
	}
	if requestID != "" {
		writePair(&b, "request_id", requestID)
	}
	return b.String()
}

func writePair(b *strings.Builder, key string, value any) {
	v := fmt.Sprint(value)
	if v == "" || strings.ContainsAny(v, " \t\"=") {
		v = strconv.Quote(v)
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(v)
}
