package ldap

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKerberosConfigFromSettings(t *testing.T) {
	cfg := KerberosConfigFromSettings(settingsMap{
		"sasl_realm":   "EXAMPLE.COM",
		"sasl_authcid": "svc-sshkeys",
		"krb5_keytab":  "/etc/sshkeys.keytab",
		"krb5_ccache":  "FILE:/tmp/krb5cc_sshkeys",
		"krb5_conf":    "/etc/krb5.conf",
		"krb5_spn":     "ldap/dc1.example.com",
	})

	assert.Equal(t, &KerberosConfig{
		Realm:     "EXAMPLE.COM",
		Principal: "svc-sshkeys",
		Keytab:    "/etc/sshkeys.keytab",
		CCache:    "FILE:/tmp/krb5cc_sshkeys",
		Krb5Conf:  "/etc/krb5.conf",
		SPN:       "ldap/dc1.example.com",
	}, cfg)

	assert.Equal(t, &KerberosConfig{}, KerberosConfigFromSettings(settingsMap{}))
}

func TestSplitPrincipal(t *testing.T) {
	tests := []struct {
		name          string
		principal     string
		realm         string
		wantPrincipal string
		wantRealm     string
	}{
		{name: "plain principal", principal: "svc", realm: "EXAMPLE.COM", wantPrincipal: "svc", wantRealm: "EXAMPLE.COM"},
		{name: "realm taken from principal", principal: "svc@CORP.EXAMPLE.COM", wantPrincipal: "svc", wantRealm: "CORP.EXAMPLE.COM"},
		{name: "configured realm wins", principal: "svc@CORP.EXAMPLE.COM", realm: "EXAMPLE.COM", wantPrincipal: "svc", wantRealm: "EXAMPLE.COM"},
		{name: "empty", wantPrincipal: "", wantRealm: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, realm := splitPrincipal(tt.principal, tt.realm)
			assert.Equal(t, tt.wantPrincipal, principal)
			assert.Equal(t, tt.wantRealm, realm)
		})
	}
}

func TestBuildServicePrincipal(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *KerberosConfig
		server  *ServerInfo
		want    string
		wantErr bool
	}{
		{
			name:   "derived from host",
			cfg:    &KerberosConfig{},
			server: &ServerInfo{Host: "dc1.example.com", Port: 389},
			want:   "ldap/dc1.example.com",
		},
		{
			name:   "explicit spn",
			cfg:    &KerberosConfig{SPN: "ldap/ldap.example.com@EXAMPLE.COM"},
			server: &ServerInfo{Host: "10.0.0.5", Port: 389},
			want:   "ldap/ldap.example.com@EXAMPLE.COM",
		},
		{
			name:    "unix socket has no host",
			cfg:     &KerberosConfig{},
			server:  &ServerInfo{Scheme: "ldapi", Socket: "/var/run/slapd/ldapi"},
			wantErr: true,
		},
		{
			name:    "no server",
			cfg:     nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildServicePrincipal(tt.cfg, tt.server)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "krb5_spn")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultCredentialPaths(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		t.Setenv("KRB5CCNAME", "FILE:/run/user/1000/krb5cc")
		t.Setenv("KRB5_KTNAME", "FILE:/etc/sshkeys.keytab")

		assert.Equal(t, "/run/user/1000/krb5cc", getDefaultCCachePath())
		assert.Equal(t, "/etc/sshkeys.keytab", getDefaultKeytabPath())
	})

	t.Run("fallbacks", func(t *testing.T) {
		t.Setenv("KRB5CCNAME", "")
		t.Setenv("KRB5_KTNAME", "")

		assert.Equal(t, fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid()), getDefaultCCachePath())
		assert.Equal(t, "/etc/krb5.keytab", getDefaultKeytabPath())
	})
}

func TestCreateGSSAPIClientErrors(t *testing.T) {
	dir := t.TempDir()
	krb5conf := writeFile(t, dir, "krb5.conf", []byte("[libdefaults]\n default_realm = EXAMPLE.COM\n"))
	missing := filepath.Join(dir, "missing")

	// keep a real default credential cache out of the way
	t.Setenv("KRB5CCNAME", missing)
	t.Setenv("KRB5_KTNAME", missing)

	tests := []struct {
		name    string
		cfg     *KerberosConfig
		wantErr string
	}{
		{
			name:    "missing krb5.conf",
			cfg:     &KerberosConfig{Krb5Conf: missing},
			wantErr: "kerberos configuration file not found at " + missing,
		},
		{
			name:    "missing explicit ccache",
			cfg:     &KerberosConfig{Krb5Conf: krb5conf, CCache: "FILE:" + missing},
			wantErr: "credential cache " + missing + " is not readable",
		},
		{
			name:    "keytab without principal",
			cfg:     &KerberosConfig{Krb5Conf: krb5conf, Realm: "EXAMPLE.COM"},
			wantErr: "needs sasl_authcid and sasl_realm",
		},
		{
			name:    "keytab without realm",
			cfg:     &KerberosConfig{Krb5Conf: krb5conf, Principal: "svc"},
			wantErr: "needs sasl_authcid and sasl_realm",
		},
		{
			name:    "missing keytab",
			cfg:     &KerberosConfig{Krb5Conf: krb5conf, Principal: "svc@EXAMPLE.COM"},
			wantErr: "keytab " + missing + " is not readable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := createGSSAPIClient(tt.cfg)

			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKerberosBindFailsBeforeContactingServer(t *testing.T) {
	conn := &MockConn{}
	s, _, _ := newTestSession(t, conn)
	s.server = &ServerInfo{Scheme: "ldap", Host: "ldap.example.com", Port: 389}

	err := s.kerberosBind(&KerberosConfig{Krb5Conf: filepath.Join(t.TempDir(), "krb5.conf")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create GSSAPI client")
	conn.AssertNotCalled(t, "GSSAPIBind")

	assert.Error(t, s.kerberosBind(nil))
}
