package ldap

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultLDAPPort   = 389
	defaultLDAPSPort  = 636
	defaultLDAPIPath  = "/var/run/slapd/ldapi"
	defaultLDAPHost   = "localhost"
	uriListSeparators = " \t,"
)

// ParseURIList splits the uri setting into endpoints. Several URLs may be
// given, separated by whitespace or commas; they are tried in order.
func ParseURIList(value string) ([]*ServerInfo, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return strings.ContainsRune(uriListSeparators, r)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no LDAP URI given")
	}

	servers := make([]*ServerInfo, 0, len(fields))
	for _, field := range fields {
		server, err := ParseLDAPURL(field)
		if err != nil {
			return nil, fmt.Errorf("invalid LDAP URI %q: %w", field, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ParseLDAPURL parses an ldap://, ldaps:// or ldapi:// URL into ServerInfo.
// Any DN, attribute or filter parts of the URL are ignored.
func ParseLDAPURL(raw string) (*ServerInfo, error) {
	if raw == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("missing scheme, must be ldap://, ldaps:// or ldapi://")
	}

	switch strings.ToLower(scheme) {
	case "ldapi":
		return parseLDAPIURL(rest)
	case "ldap", "ldaps":
	default:
		return nil, fmt.Errorf("unsupported scheme %q, must be ldap://, ldaps:// or ldapi://", scheme)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	server := &ServerInfo{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
	}
	if server.Host == "" {
		server.Host = defaultLDAPHost
	}

	server.UseTLS = server.Scheme == "ldaps"
	if server.UseTLS {
		server.Port = defaultLDAPSPort
	} else {
		server.Port = defaultLDAPPort
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port number: %s", portStr)
		}
		server.Port = port
	}

	return server, nil
}

// parseLDAPIURL accepts both the percent-encoded host form
// (ldapi://%2Fvar%2Frun%2Fldapi) and the path form (ldapi:///var/run/ldapi).
func parseLDAPIURL(rest string) (*ServerInfo, error) {
	if i := strings.IndexAny(rest, "?"); i >= 0 {
		rest = rest[:i]
	}

	hostPart, pathPart, _ := strings.Cut(rest, "/")

	socket := defaultLDAPIPath
	switch {
	case hostPart != "":
		unescaped, err := url.PathUnescape(hostPart)
		if err != nil {
			return nil, fmt.Errorf("invalid socket path: %w", err)
		}
		socket = unescaped
	case pathPart != "":
		socket = "/" + pathPart
	}

	if !strings.HasPrefix(socket, "/") {
		return nil, fmt.Errorf("socket path %q must be absolute", socket)
	}

	return &ServerInfo{Scheme: "ldapi", Socket: socket}, nil
}
