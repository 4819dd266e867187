package ldap

import (
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Logger interface for LDAP operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Notice(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any)  {}
func (NopLogger) Info(string, map[string]any)   {}
func (NopLogger) Notice(string, map[string]any) {}
func (NopLogger) Warn(string, map[string]any)   {}
func (NopLogger) Error(string, map[string]any)  {}

// LogOperation is a helper function to log an operation with timing.
// Failures are logged at debug level only; the caller decides how severe
// they are.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	entry := make(map[string]any, len(fields)+3)
	maps.Copy(entry, fields)
	entry["operation"] = operation

	logger.Debug("Starting operation", SanitizeFields(entry))

	err := fn()

	entry["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		entry["error"] = err.Error()
		logger.Debug("Operation failed", SanitizeFields(entry))
	} else {
		logger.Debug("Operation completed successfully", SanitizeFields(entry))
	}

	return err
}

// LDAPErrorFields extracts the protocol details of err for logging. The
// result is sanitized.
func LDAPErrorFields(operation string, err error, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+6)
	maps.Copy(out, fields)

	out["operation"] = operation
	out["error"] = err.Error()
	out["category"] = string(GetErrorCategory(err))

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		out["ldap_result_code"] = ldapErr.ResultCode
		out["ldap_result"] = resultCodeString(ldapErr.ResultCode)
		if ldapErr.MatchedDN != "" {
			out["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			out["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	return SanitizeFields(out)
}

// LogLDAPError logs LDAP-specific error information at error level.
func LogLDAPError(logger Logger, operation string, err error, fields map[string]any) {
	logger.Error("LDAP operation failed", LDAPErrorFields(operation, err, fields))
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"bindpw":      true,
	"secret":      true,
	"token":       true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// RedactMessage replaces msg when it carries a credential assignment.
func RedactMessage(msg string) string {
	if containsSensitivePattern(msg) {
		return "[REDACTED]"
	}
	return msg
}

// IsSensitiveKey reports whether values stored under a configuration key
// must not be logged.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"bindpw=",
		"secret=",
		"token=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
