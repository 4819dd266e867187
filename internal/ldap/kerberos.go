package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Conf = "/etc/krb5.conf"

// KerberosConfig holds what a GSSAPI bind needs.
type KerberosConfig struct {
	Realm     string // sasl_realm
	Principal string // sasl_authcid, may be user@REALM
	Keytab    string // krb5_keytab
	CCache    string // krb5_ccache
	Krb5Conf  string // krb5_conf
	SPN       string // krb5_spn, overrides ldap/<host>
}

// KerberosConfigFromSettings collects the Kerberos keys from settings.
func KerberosConfigFromSettings(settings Settings) *KerberosConfig {
	return &KerberosConfig{
		Realm:     settings.Get("sasl_realm"),
		Principal: settings.Get("sasl_authcid"),
		Keytab:    settings.Get("krb5_keytab"),
		CCache:    settings.Get("krb5_ccache"),
		Krb5Conf:  settings.Get("krb5_conf"),
		SPN:       settings.Get("krb5_spn"),
	}
}

// kerberosBind performs a SASL GSSAPI bind on the session's connection.
func (s *Session) kerberosBind(cfg *KerberosConfig) error {
	if cfg == nil {
		return fmt.Errorf("kerberos configuration is required for GSSAPI bind")
	}

	spn, err := buildServicePrincipal(cfg, s.server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	client, err := createGSSAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	s.logger.Debug("Performing GSSAPI bind", map[string]any{"spn": spn})

	if err := s.conn.GSSAPIBind(client, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}
	return nil
}

// createGSSAPIClient creates a GSSAPI client.
// Priority order: explicit ccache → default ccache → explicit keytab → default keytab.
func createGSSAPIClient(cfg *KerberosConfig) (ldap.GSSAPIClient, error) {
	krb5conf := cfg.Krb5Conf
	if krb5conf == "" {
		krb5conf = defaultKrb5Conf
	}
	if !fileExists(krb5conf) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s, set krb5_conf", krb5conf)
	}

	if cfg.CCache != "" {
		ccache := trimFilePrefix(cfg.CCache)
		if !fileExists(ccache) {
			return nil, fmt.Errorf("credential cache %s is not readable", ccache)
		}
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	if ccache := getDefaultCCachePath(); fileExists(ccache) && cfg.Keytab == "" {
		return gssapi.NewClientFromCCache(ccache, krb5conf, krb5client.DisablePAFXFAST(true))
	}

	principal, realm := splitPrincipal(cfg.Principal, cfg.Realm)
	if principal == "" || realm == "" {
		return nil, fmt.Errorf("no credential cache found and keytab authentication needs sasl_authcid and sasl_realm")
	}

	keytab := cfg.Keytab
	if keytab == "" {
		keytab = getDefaultKeytabPath()
	}
	keytab = trimFilePrefix(keytab)
	if !fileExists(keytab) {
		return nil, fmt.Errorf("keytab %s is not readable", keytab)
	}

	return gssapi.NewClientWithKeytab(principal, realm, keytab, krb5conf, krb5client.DisablePAFXFAST(true))
}

// splitPrincipal separates "user@REALM" when no realm is configured.
func splitPrincipal(principal, realm string) (string, string) {
	if user, r, ok := strings.Cut(principal, "@"); ok {
		if realm == "" {
			realm = r
		}
		principal = user
	}
	return principal, realm
}

// buildServicePrincipal constructs the LDAP service principal name from server info.
// If cfg.SPN is set, it overrides the automatic SPN construction.
func buildServicePrincipal(cfg *KerberosConfig, server *ServerInfo) (string, error) {
	if cfg != nil && cfg.SPN != "" {
		return cfg.SPN, nil
	}
	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal, set krb5_spn")
	}
	return "ldap/" + server.Host, nil
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return trimFilePrefix(ccache)
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// getDefaultKeytabPath returns the default keytab location.
func getDefaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return trimFilePrefix(keytab)
	}
	return "/etc/krb5.keytab"
}

func trimFilePrefix(path string) string {
	return strings.TrimPrefix(path, "FILE:")
}

func fileExists(path string) bool {
	return path != "" && checkReadableFile(path) == nil
}
