package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *ServerInfo
		wantURL string
		wantErr bool
	}{
		{
			name:    "ldaps with port",
			url:     "ldaps://dc1.example.com:3269",
			want:    &ServerInfo{Scheme: "ldaps", Host: "dc1.example.com", Port: 3269, UseTLS: true},
			wantURL: "ldaps://dc1.example.com:3269",
		},
		{
			name:    "ldap without port",
			url:     "ldap://dc1.example.com",
			want:    &ServerInfo{Scheme: "ldap", Host: "dc1.example.com", Port: 389},
			wantURL: "ldap://dc1.example.com:389",
		},
		{
			name:    "ldaps without port",
			url:     "LDAPS://dc1.example.com",
			want:    &ServerInfo{Scheme: "ldaps", Host: "dc1.example.com", Port: 636, UseTLS: true},
			wantURL: "ldaps://dc1.example.com:636",
		},
		{
			name:    "no host",
			url:     "ldap:///",
			want:    &ServerInfo{Scheme: "ldap", Host: "localhost", Port: 389},
			wantURL: "ldap://localhost:389",
		},
		{
			name:    "dn part ignored",
			url:     "ldap://dc1.example.com/dc=example,dc=com?uid?sub",
			want:    &ServerInfo{Scheme: "ldap", Host: "dc1.example.com", Port: 389},
			wantURL: "ldap://dc1.example.com:389",
		},
		{
			name:    "ipv6",
			url:     "ldap://[2001:db8::1]:3389",
			want:    &ServerInfo{Scheme: "ldap", Host: "2001:db8::1", Port: 3389},
			wantURL: "ldap://[2001:db8::1]:3389",
		},
		{
			name:    "ldapi default socket",
			url:     "ldapi://",
			want:    &ServerInfo{Scheme: "ldapi", Socket: "/var/run/slapd/ldapi"},
			wantURL: "ldapi:///var/run/slapd/ldapi",
		},
		{
			name:    "ldapi encoded socket",
			url:     "ldapi://%2Frun%2Fopenldap%2Fldapi",
			want:    &ServerInfo{Scheme: "ldapi", Socket: "/run/openldap/ldapi"},
			wantURL: "ldapi:///run/openldap/ldapi",
		},
		{
			name:    "ldapi path form",
			url:     "ldapi:///run/openldap/ldapi",
			want:    &ServerInfo{Scheme: "ldapi", Socket: "/run/openldap/ldapi"},
			wantURL: "ldapi:///run/openldap/ldapi",
		},
		{name: "empty URL", url: "", wantErr: true},
		{name: "missing scheme", url: "dc1.example.com", wantErr: true},
		{name: "invalid scheme", url: "https://dc1.example.com", wantErr: true},
		{name: "invalid port", url: "ldap://dc1.example.com:abc", wantErr: true},
		{name: "port out of range", url: "ldap://dc1.example.com:70000", wantErr: true},
		{name: "relative socket", url: "ldapi://ldapi", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantURL, got.URL())
		})
	}
}

func TestParseURIList(t *testing.T) {
	servers, err := ParseURIList("ldaps://dc1.example.com, ldap://dc2.example.com:3389\tldapi://")
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, "ldaps://dc1.example.com:636", servers[0].URL())
	assert.Equal(t, "ldap://dc2.example.com:3389", servers[1].URL())
	assert.Equal(t, "ldapi:///var/run/slapd/ldapi", servers[2].URL())

	_, err = ParseURIList(" , ")
	assert.Error(t, err)

	_, err = ParseURIList("ldap://ok.example.com http://bad.example.com")
	assert.ErrorContains(t, err, "http://bad.example.com")
}
