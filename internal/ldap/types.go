package ldap

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Settings is the read-only view of the configuration file that the session
// and search builder consume.
type Settings interface {
	Exists(key string) bool
	Get(key string) string
}

// Conn is the subset of *ldap.Conn used by a Session.
type Conn interface {
	StartTLS(config *tls.Config) error
	SetTimeout(timeout time.Duration)
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	ExternalBind() error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// DialFunc opens a connection to addr. The returned func closes it.
type DialFunc func(addr string, opts ...ldap.DialOpt) (Conn, func(), error)

func dialURL(addr string, opts ...ldap.DialOpt) (Conn, func(), error) {
	conn, err := ldap.DialURL(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}

// ServerInfo describes one directory endpoint taken from the uri setting.
type ServerInfo struct {
	Scheme string // ldap, ldaps or ldapi
	Host   string
	Port   int
	// Socket is the unix socket path for ldapi.
	Socket string
	UseTLS bool
}

// URL renders the endpoint in the form accepted by ldap.DialURL.
func (s *ServerInfo) URL() string {
	if s.Scheme == "ldapi" {
		return "ldapi://" + s.Socket
	}
	return s.Scheme + "://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "onelevel"
	case ScopeWholeSubtree:
		return "subtree"
	default:
		return fmt.Sprintf("SearchScope(%d)", int(s))
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodAnonymous  AuthMethod = iota // Unauthenticated simple bind
	AuthMethodSimpleBind                   // DN/password authentication
	AuthMethodExternal                     // SASL EXTERNAL (TLS client certificate)
	AuthMethodKerberos                     // SASL GSSAPI
)

func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAnonymous:
		return "anonymous"
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodExternal:
		return "external"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// Credentials carries what is needed to bind. Password is zeroed by Bind.
type Credentials struct {
	Method      AuthMethod
	BindDN      string
	Password    []byte
	HasPassword bool
	Kerberos    *KerberosConfig
}

// SessionState tracks where a Session is in its lifecycle.
type SessionState int

const (
	StateUnopened SessionState = iota
	StateInitialized
	StateVersionSet
	StateTLS
	StateBound
	StateSearched
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateInitialized:
		return "initialized"
	case StateVersionSet:
		return "version-set"
	case StateTLS:
		return "tls"
	case StateBound:
		return "bound"
	case StateSearched:
		return "searched"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SearchRequest is the fully resolved search for one user. The server time
// limit and alias policy come from the session's tuning.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
}
