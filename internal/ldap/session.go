package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const (
	// DefaultProtocolVersion is used when ldap_version is absent or invalid.
	DefaultProtocolVersion = 3

	// MaxResults bounds every search: one entry is the answer, a second one
	// proves the filter is ambiguous.
	MaxResults = 2
)

// Session owns a single directory connection for one lookup. The network
// connection is opened lazily by the first operation that needs it, so all
// tuning must happen before StartTLS or Bind.
type Session struct {
	logger  Logger
	dial    DialFunc
	servers []*ServerInfo
	server  *ServerInfo
	state   SessionState
	version int

	keepAlive      net.KeepAliveConfig
	connectTimeout time.Duration
	opTimeout      time.Duration
	timeLimit      time.Duration
	deref          DerefAliases
	tls            *tlsSettings

	conn      Conn
	closeConn func()
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithLogger sets the logger used by the session.
func WithLogger(logger Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDialer replaces the function used to open connections.
func WithDialer(dial DialFunc) SessionOption {
	return func(s *Session) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// Initialize parses uri and returns a session in the initialized state.
// No network traffic happens yet.
func Initialize(uri string, opts ...SessionOption) (*Session, error) {
	s := &Session{
		logger: NopLogger{},
		dial:   dialURL,
		state:  StateUnopened,
		tls:    newTLSSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}

	servers, err := ParseURIList(uri)
	if err != nil {
		return nil, &LDAPError{
			Operation: "initialize",
			Category:  ErrorCategoryValidation,
			Message:   err.Error(),
			Cause:     err,
		}
	}

	s.servers = servers
	s.state = StateInitialized

	urls := make([]string, 0, len(servers))
	for _, server := range servers {
		urls = append(urls, server.URL())
	}
	s.logger.Debug("Session initialized", map[string]any{"uri": strings.Join(urls, " ")})

	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	if s == nil {
		return StateClosed
	}
	return s.state
}

func (s *Session) requireState(operation string, allowed ...SessionState) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: session is %s", operation, ErrInvalidState, s.state)
}

// ResolveProtocolVersion reads ldap_version. Absent or invalid values fall
// back to version 3; version 2 is accepted with a notice.
func ResolveProtocolVersion(logger Logger, settings Settings) int {
	if !settings.Exists("ldap_version") {
		logger.Debug("Parameter 'ldap_version' not set, using default", map[string]any{
			"ldap_version": DefaultProtocolVersion,
		})
		return DefaultProtocolVersion
	}

	raw := settings.Get("ldap_version")
	version, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || version < 2 || version > 3 {
		logger.Warn("Invalid 'ldap_version', using default", map[string]any{
			"value":        raw,
			"ldap_version": DefaultProtocolVersion,
		})
		return DefaultProtocolVersion
	}

	if version == 2 {
		logger.Notice("LDAPv2 is historic, consider using LDAPv3", map[string]any{"ldap_version": version})
	}

	return version
}

// SetProtocolVersion records the protocol version for the session. The
// client always encodes LDAPv3 messages.
func (s *Session) SetProtocolVersion(version int) error {
	if err := s.requireState("set protocol version", StateInitialized); err != nil {
		return err
	}

	if version != 2 && version != 3 {
		return &LDAPError{
			Operation: "set protocol version",
			Category:  ErrorCategoryValidation,
			Message:   fmt.Sprintf("unsupported protocol version %d", version),
		}
	}

	s.version = version
	s.state = StateVersionSet
	s.logger.Info("Option applied", map[string]any{"option": "PROTOCOL_VERSION", "ldap_version": version})
	return nil
}

// ProtocolVersion returns the version recorded by SetProtocolVersion.
func (s *Session) ProtocolVersion() int {
	return s.version
}

// connect dials the configured servers in order until one answers.
func (s *Session) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	var lastErr error
	for _, server := range s.servers {
		if err := ctx.Err(); err != nil {
			return err
		}

		dialer := &net.Dialer{
			Timeout:         s.connectTimeout,
			KeepAliveConfig: s.keepAlive,
		}
		opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
		if server.UseTLS {
			opts = append(opts, ldap.DialWithTLSConfig(s.tls.config(server.Host)))
		}

		conn, closeConn, err := s.dial(server.URL(), opts...)
		if err != nil {
			lastErr = err
			s.logger.Debug("Connection attempt failed", map[string]any{
				"server": server.URL(),
				"error":  err.Error(),
			})
			continue
		}

		if s.opTimeout > 0 {
			conn.SetTimeout(s.opTimeout)
		}

		s.conn = conn
		s.closeConn = closeConn
		s.server = server
		s.logger.Info("Connected to directory server", map[string]any{"server": server.URL()})
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("no servers configured")
	}
	return NewLDAPError("connect", lastErr)
}

// IsTruthy reports whether a flag value enables a feature.
func IsTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "t", "yes", "y", "enable", "enabled", "on":
		return true
	default:
		return false
	}
}

// MaybeStartTLS upgrades the connection with STARTTLS when flag is truthy.
// A failed upgrade is returned as an *LDAPError carrying the server's
// diagnostic message.
func (s *Session) MaybeStartTLS(ctx context.Context, flag string) error {
	if err := s.requireState("start_tls", StateVersionSet); err != nil {
		return err
	}

	if !IsTruthy(flag) {
		s.logger.Debug("STARTTLS not requested", map[string]any{"start_tls": flag})
		return nil
	}

	if err := s.connect(ctx); err != nil {
		return err
	}

	err := LogOperation(s.logger, "start_tls", map[string]any{"server": s.server.URL()}, func() error {
		return s.conn.StartTLS(s.tls.config(s.server.Host))
	})
	if err != nil {
		return NewLDAPError("start_tls", err)
	}

	s.state = StateTLS
	s.logger.Info("STARTTLS negotiated", map[string]any{"server": s.server.URL()})
	return nil
}

// Bind authenticates the session. A bind DN without a password fails with
// invalid credentials rather than falling back to an anonymous bind. The
// password is zeroed before Bind returns.
func (s *Session) Bind(ctx context.Context, creds *Credentials) error {
	if err := s.requireState("bind", StateVersionSet, StateTLS); err != nil {
		return err
	}
	if creds == nil {
		creds = &Credentials{Method: AuthMethodAnonymous}
	}
	defer clear(creds.Password)

	if creds.Method == AuthMethodSimpleBind && (!creds.HasPassword || len(creds.Password) == 0) {
		err := NewLDAPError("bind", ldap.NewError(ldap.LDAPResultInvalidCredentials,
			errors.New("bind DN configured without a password")))
		err.DN = creds.BindDN
		return err
	}

	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := map[string]any{"method": creds.Method.String()}
	if creds.BindDN != "" {
		fields["bind_dn"] = creds.BindDN
	}

	err := LogOperation(s.logger, "bind", fields, func() error {
		switch creds.Method {
		case AuthMethodSimpleBind:
			return s.conn.Bind(creds.BindDN, string(creds.Password))
		case AuthMethodExternal:
			return s.conn.ExternalBind()
		case AuthMethodKerberos:
			return s.kerberosBind(creds.Kerberos)
		default:
			return s.conn.UnauthenticatedBind("")
		}
	})
	if err != nil {
		ldapErr := NewLDAPError("bind", err)
		if ldapErr.DN == "" {
			ldapErr.DN = creds.BindDN
		}
		return ldapErr
	}

	s.state = StateBound
	s.logger.Info("Bind succeeded", fields)
	return nil
}

// Search runs req once. A size-limit-exceeded reply that still carries
// entries is returned as a result so the caller can report the ambiguity.
func (s *Session) Search(ctx context.Context, req *SearchRequest) (*ldap.SearchResult, error) {
	if err := s.requireState("search", StateBound); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, errors.New("search request cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sizeLimit := req.SizeLimit
	if sizeLimit <= 0 {
		sizeLimit = MaxResults
	}

	searchReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(s.deref),
		sizeLimit,
		int(s.timeLimit/time.Second),
		false,
		wireFilter(req.Filter),
		req.Attributes,
		nil,
	)

	fields := map[string]any{
		"base_dn":    req.BaseDN,
		"scope":      req.Scope.String(),
		"filter":     searchReq.Filter,
		"attributes": req.Attributes,
		"size_limit": sizeLimit,
	}

	var result *ldap.SearchResult
	err := LogOperation(s.logger, "search", fields, func() error {
		var err error
		result, err = s.conn.Search(searchReq)
		return err
	})
	if err != nil {
		if !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) || result == nil || len(result.Entries) == 0 {
			ldapErr := NewLDAPError("search", err)
			if ldapErr.DN == "" {
				ldapErr.DN = req.BaseDN
			}
			return nil, ldapErr
		}
		s.logger.Debug("Search hit the size limit", map[string]any{"entries": len(result.Entries)})
	}

	s.state = StateSearched
	return result, nil
}

// wireFilter adds the outer parentheses that RFC 4515 requires and that
// configuration files commonly omit.
func wireFilter(filter string) string {
	filter = strings.TrimSpace(filter)
	if strings.HasPrefix(filter, "(") {
		return filter
	}
	return "(" + filter + ")"
}

// Close releases the connection. It may be called in any state, on a nil
// session and more than once.
func (s *Session) Close() {
	if s == nil || s.state == StateClosed {
		return
	}

	if s.closeConn != nil {
		s.closeConn()
		s.logger.Debug("Connection closed", map[string]any{"server": s.server.URL()})
	}

	s.conn = nil
	s.closeConn = nil
	s.state = StateClosed
}
