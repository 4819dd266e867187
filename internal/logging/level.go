package logging

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Level is a syslog-style severity. Lower values are more severe.
type Level int

const (
	LevelEmergency Level = iota
	LevelAlert
	LevelCritical
	LevelError
	LevelWarning
	LevelNotice
	LevelInformation
	LevelDebug
)

var levelNames = [...]string{
	LevelEmergency:   "Emergency",
	LevelAlert:       "Alert",
	LevelCritical:    "Critical",
	LevelError:       "Error",
	LevelWarning:     "Warning",
	LevelNotice:      "Notice",
	LevelInformation: "Information",
	LevelDebug:       "Debug",
}

func (l Level) String() string {
	if l < LevelEmergency || l > LevelDebug {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Label returns the prefix used for plain-text records, e.g. "[ Warning ] : ".
func (l Level) Label() string {
	return "[ " + l.String() + " ] : "
}

// ParseLevel accepts the level names, their short forms and the numeric
// severities 0 through 7, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency", "emerg", "0":
		return LevelEmergency, nil
	case "alert", "1":
		return LevelAlert, nil
	case "critical", "crit", "2":
		return LevelCritical, nil
	case "error", "err", "3":
		return LevelError, nil
	case "warning", "warn", "4":
		return LevelWarning, nil
	case "notice", "5":
		return LevelNotice, nil
	case "information", "info", "6":
		return LevelInformation, nil
	case "debug", "7":
		return LevelDebug, nil
	default:
		return LevelDebug, fmt.Errorf("invalid log level %q", s)
	}
}

// hclogLevel maps the eight severities onto hclog's five. Levels hclog
// cannot express are marked with a severity field by the sink.
func (l Level) hclogLevel() hclog.Level {
	switch {
	case l <= LevelError:
		return hclog.Error
	case l == LevelWarning:
		return hclog.Warn
	case l == LevelDebug:
		return hclog.Debug
	default:
		return hclog.Info
	}
}

func (l Level) hclogNative() bool {
	return l == LevelError || l == LevelWarning || l == LevelInformation || l == LevelDebug
}
