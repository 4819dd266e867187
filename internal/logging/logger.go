// Package logging provides the eight-level logger used by lsshkeys. Records
// go to syslog, standard error or a file; anything at Critical or above
// closes the logger and terminates the process.
package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"sync"
)

// SyslogOpener connects to the local syslog daemon.
type SyslogOpener func(priority syslog.Priority, tag string) (*syslog.Writer, error)

// Options configures a Logger.
type Options struct {
	Method Method
	Level  Level
	// Path is the log file for MethodFile.
	Path string
	// Tag names the program in syslog and in stream records.
	Tag       string
	RequestID string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
	// Exit defaults to os.Exit.
	Exit func(code int)
	// OpenSyslog defaults to syslog.New.
	OpenSyslog SyslogOpener
}

// Logger writes records at or above its configured severity. It is safe for
// concurrent use.
type Logger struct {
	mu     sync.Mutex
	level  Level
	method Method
	sinks  []sink
	// echo receives Warning and more severe records when the primary sink
	// is not already standard error.
	echo   sink
	closed bool
	exit   func(code int)
}

// New opens the sink selected by opts. When syslog cannot be reached the
// logger writes to standard error instead and says so once.
func New(opts Options) (*Logger, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}

	l := &Logger{level: opts.Level, method: opts.Method, exit: exit}

	switch opts.Method {
	case MethodSyslog:
		s, err := newSyslogSink(opts.OpenSyslog, opts.Tag, opts.RequestID)
		if err != nil {
			fallback := newHCLogSink(opts.Tag, stderr, false, nil, opts.RequestID)
			fallback.write(LevelWarning, "syslog is unavailable, logging to standard error", map[string]any{
				"error": err.Error(),
			})
			l.sinks = append(l.sinks, fallback)
			l.method = MethodStdio
			break
		}
		l.sinks = append(l.sinks, s)
		l.echo = newHCLogSink(opts.Tag, stderr, false, nil, opts.RequestID)
	case MethodStdio:
		l.sinks = append(l.sinks, newHCLogSink(opts.Tag, stderr, false, nil, opts.RequestID))
	case MethodFile:
		f, err := os.OpenFile(opts.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.sinks = append(l.sinks, newHCLogSink(opts.Tag, f, true, f, opts.RequestID))
		l.echo = newHCLogSink(opts.Tag, stderr, false, nil, opts.RequestID)
	default:
		return nil, fmt.Errorf("unknown log method %s", opts.Method)
	}

	return l, nil
}

// Level returns the configured minimum severity.
func (l *Logger) Level() Level {
	return l.level
}

// Method returns the destination in use, which is MethodStdio after a
// syslog fallback.
func (l *Logger) Method() Method {
	return l.method
}

// Enabled reports whether a record at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level <= l.level
}

// Log writes a record. A Critical, Alert or Emergency record closes the
// logger and exits with status 1 whether or not it was written.
func (l *Logger) Log(level Level, msg string, fields map[string]any) {
	l.mu.Lock()
	if !l.closed && l.Enabled(level) {
		for _, s := range l.sinks {
			s.write(level, msg, fields)
		}
		if l.echo != nil && level <= LevelWarning {
			l.echo.write(level, msg, fields)
		}
	}
	l.mu.Unlock()

	if level <= LevelCritical {
		_ = l.Close()
		l.exit(1)
	}
}

func (l *Logger) Emergency(msg string, fields map[string]any) { l.Log(LevelEmergency, msg, fields) }
func (l *Logger) Alert(msg string, fields map[string]any)     { l.Log(LevelAlert, msg, fields) }
func (l *Logger) Critical(msg string, fields map[string]any)  { l.Log(LevelCritical, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any)     { l.Log(LevelError, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)      { l.Log(LevelWarning, msg, fields) }
func (l *Logger) Notice(msg string, fields map[string]any)    { l.Log(LevelNotice, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)      { l.Log(LevelInformation, msg, fields) }
func (l *Logger) Debug(msg string, fields map[string]any)     { l.Log(LevelDebug, msg, fields) }

// Close releases every sink. It is safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var firstErr error
	for _, s := range l.sinks {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.echo != nil {
		if err := l.echo.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
