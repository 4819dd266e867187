package ldap

import (
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
		wantNil   bool
	}{
		{
			name:      "nil error",
			operation: "search",
			err:       nil,
			wantNil:   true,
		},
		{
			name:      "ldap error",
			operation: "bind",
			err:       ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
			wantNil:   false,
		},
		{
			name:      "generic error",
			operation: "connect",
			err:       errors.New("connection refused"),
			wantNil:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError(tt.operation, tt.err)

			if tt.wantNil {
				assert.Nil(t, result)
				return
			}

			require.NotNil(t, result)
			assert.Equal(t, tt.operation, result.Operation)
			assert.Equal(t, tt.err, result.Cause)
		})
	}
}

func TestNewLDAPErrorExtractsResultDetails(t *testing.T) {
	cause := ldap.NewError(ldap.LDAPResultProtocolError, errors.New("unsupported extended operation"))

	err := NewLDAPError("start_tls", cause)

	require.NotNil(t, err)
	assert.Equal(t, uint16(ldap.LDAPResultProtocolError), err.LDAPCode)
	assert.Equal(t, ldap.LDAPResultCodeMap[ldap.LDAPResultProtocolError], err.Message)
	assert.Equal(t, "unsupported extended operation", err.ServerMsg)
	assert.Equal(t, ErrorCategoryConnection, err.Category)
	assert.Contains(t, err.Error(), "unsupported extended operation")
	assert.Contains(t, err.Error(), ldap.LDAPResultCodeMap[ldap.LDAPResultProtocolError])
	assert.ErrorIs(t, err, cause)
}

func TestNewLDAPErrorWithoutDiagnostic(t *testing.T) {
	err := NewLDAPError("bind", &ldap.Error{ResultCode: ldap.LDAPResultBusy})

	require.NotNil(t, err)
	assert.Empty(t, err.ServerMsg)
	assert.Equal(t, ErrorCategoryServer, err.Category)
}

func TestLDAPError_Error(t *testing.T) {
	tests := []struct {
		name    string
		ldapErr *LDAPError
		want    string
	}{
		{
			name: "basic error",
			ldapErr: &LDAPError{
				Operation: "search",
				Message:   "operation failed",
			},
			want: "LDAP search failed - operation failed",
		},
		{
			name: "error with code",
			ldapErr: &LDAPError{
				Operation: "bind",
				LDAPCode:  ldap.LDAPResultInvalidCredentials,
				Message:   "Invalid Credentials",
			},
			want: "LDAP bind failed (code 49) - Invalid Credentials",
		},
		{
			name: "error with server message",
			ldapErr: &LDAPError{
				Operation: "start_tls",
				Message:   "Protocol Error",
				ServerMsg: "TLS already started",
			},
			want: "LDAP start_tls failed - Protocol Error - server: TLS already started",
		},
		{
			name: "server message equal to message is not repeated",
			ldapErr: &LDAPError{
				Operation: "connect",
				Message:   "dial tcp: connection refused",
				ServerMsg: "dial tcp: connection refused",
			},
			want: "LDAP connect failed - dial tcp: connection refused",
		},
		{
			name: "error with DN",
			ldapErr: &LDAPError{
				Operation: "bind",
				Message:   "Invalid Credentials",
				DN:        "cn=reader,dc=example,dc=com",
			},
			want: "LDAP bind failed - Invalid Credentials - DN: cn=reader,dc=example,dc=com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ldapErr.Error())
		})
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		code uint16
		want ErrorCategory
	}{
		{name: "authentication error", code: ldap.LDAPResultInvalidCredentials, want: ErrorCategoryAuthentication},
		{name: "strong auth required", code: ldap.LDAPResultStrongAuthRequired, want: ErrorCategoryAuthentication},
		{name: "permission error", code: ldap.LDAPResultInsufficientAccessRights, want: ErrorCategoryPermission},
		{name: "not found error", code: ldap.LDAPResultNoSuchObject, want: ErrorCategoryNotFound},
		{name: "validation error", code: ldap.LDAPResultInvalidDNSyntax, want: ErrorCategoryValidation},
		{name: "filter error", code: ldap.LDAPResultFilterError, want: ErrorCategoryValidation},
		{name: "server error", code: ldap.LDAPResultBusy, want: ErrorCategoryServer},
		{name: "size limit", code: ldap.LDAPResultSizeLimitExceeded, want: ErrorCategoryServer},
		{name: "connection error", code: ldap.LDAPResultConnectError, want: ErrorCategoryConnection},
		{name: "network error", code: ldap.ErrorNetwork, want: ErrorCategoryConnection},
		{name: "unknown error", code: 9999, want: ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeError(tt.code))
		})
	}
}

func TestCategorizeGenericError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{name: "connection error", err: errors.New("connection refused"), want: ErrorCategoryConnection},
		{name: "timeout error", err: errors.New("operation timeout"), want: ErrorCategoryConnection},
		{name: "dns error", err: errors.New("lookup ldap.invalid: no such host"), want: ErrorCategoryConnection},
		{name: "authentication error", err: errors.New("invalid credentials"), want: ErrorCategoryAuthentication},
		{name: "kerberos error", err: errors.New("kerberos configuration file not found"), want: ErrorCategoryAuthentication},
		{name: "permission error", err: errors.New("access denied"), want: ErrorCategoryPermission},
		{name: "unknown error", err: errors.New("something went wrong"), want: ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeGenericError(tt.err))
		})
	}
}

func TestResultCodeString(t *testing.T) {
	assert.Equal(t, ldap.LDAPResultCodeMap[ldap.LDAPResultInvalidCredentials], resultCodeString(ldap.LDAPResultInvalidCredentials))
	assert.Equal(t, "Unknown LDAP result code 9999", resultCodeString(9999))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))
	assert.Equal(t, ErrorCategoryPermission, GetErrorCategory(&LDAPError{Category: ErrorCategoryPermission}))
	assert.Equal(t, ErrorCategoryAuthentication,
		GetErrorCategory(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("x"))))
	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(errors.New("network unreachable")))
}

func TestOptionError(t *testing.T) {
	cause := errors.New(`strconv.Atoi: parsing "abc": invalid syntax`)
	err := &OptionError{Key: "timelimit", Option: "TIMELIMIT", Kind: OptionParse, Err: cause}

	assert.Equal(t, `timelimit (TIMELIMIT): parse: strconv.Atoi: parsing "abc": invalid syntax`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "access", OptionAccess.String())
	assert.Equal(t, "rejected", OptionRejected.String())
}

func TestConfigError(t *testing.T) {
	assert.Equal(t, "base: parameter undefined", (&ConfigError{Key: "base", Message: "parameter undefined"}).Error())
	assert.Equal(t, "not enough configuration parameters", (&ConfigError{Message: "not enough configuration parameters"}).Error())
}
