// Package lookup runs a single authorized-keys lookup: it validates the
// configuration, talks to the directory and writes the keys it finds.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/isometry/lsshkeys/internal/config"
	"github.com/isometry/lsshkeys/internal/ldap"
)

// minParameters is the smallest number of keys, not counting the logging
// keys, that can describe a directory and a search base.
const minParameters = 2

// Settings is the read-only configuration consulted during a lookup.
type Settings interface {
	ldap.Settings
	Size() int
	Entries() []config.Entry
	Overridden() []string
}

// Options configures Run.
type Options struct {
	Settings Settings
	Username string
	Logger   ldap.Logger
	Output   io.Writer

	// Dial replaces the network dialer, for tests.
	Dial ldap.DialFunc
}

// Run looks up the public keys of opts.Username and writes them to
// opts.Output, one per line. Finding no entry is not an error. Every error
// returned is fatal for the invocation.
func Run(ctx context.Context, opts Options) error {
	if opts.Settings == nil {
		return errors.New("no configuration loaded")
	}
	logger := opts.Logger
	if logger == nil {
		logger = ldap.NopLogger{}
	}

	dumpSettings(logger, opts.Settings)

	if countParameters(opts.Settings) < minParameters {
		return &ldap.ConfigError{Message: "not enough configuration parameters"}
	}

	builder, err := ldap.NewSearchRequestBuilder(logger)
	if err != nil {
		return err
	}
	req, err := builder.Build(opts.Settings, opts.Username)
	if err != nil {
		return err
	}

	creds, err := CredentialsFromSettings(opts.Settings)
	if err != nil {
		return err
	}
	defer clear(creds.Password)

	if !opts.Settings.Exists("uri") {
		return &ldap.ConfigError{Key: "uri", Message: "parameter undefined"}
	}

	sessionOpts := []ldap.SessionOption{ldap.WithLogger(logger)}
	if opts.Dial != nil {
		sessionOpts = append(sessionOpts, ldap.WithDialer(opts.Dial))
	}
	session, err := ldap.Initialize(opts.Settings.Get("uri"), sessionOpts...)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SetProtocolVersion(ldap.ResolveProtocolVersion(logger, opts.Settings)); err != nil {
		return err
	}

	if err := session.ApplyOptionalTuning(opts.Settings); err != nil {
		if errors.Is(err, ldap.ErrInvalidState) {
			return err
		}
		logger.Debug("Continuing with optional parameters skipped", map[string]any{"skipped": err.Error()})
	}

	if err := session.MaybeStartTLS(ctx, opts.Settings.Get("start_tls")); err != nil {
		ldap.LogLDAPError(logger, "start_tls", err, nil)
		return err
	}

	if err := session.Bind(ctx, creds); err != nil {
		ldap.LogLDAPError(logger, "bind", err, map[string]any{"method": creds.Method.String()})
		return err
	}

	result, err := session.Search(ctx, req)
	if err != nil {
		ldap.LogLDAPError(logger, "search", err, map[string]any{"base_dn": req.BaseDN})
		return err
	}

	entry, err := ldap.SingleEntry(result, opts.Username)
	if err != nil {
		return err
	}
	if entry == nil {
		logger.Info(fmt.Sprintf("no results for user '%s'", opts.Username), map[string]any{"user": opts.Username})
		return nil
	}

	values := ldap.ExtractAttributeValues(entry, req.Attributes[0])
	if err := ldap.WriteValues(opts.Output, values); err != nil {
		return fmt.Errorf("failed to write keys: %w", err)
	}

	logger.Info(fmt.Sprintf("success for user '%s'", opts.Username), map[string]any{
		"user":   opts.Username,
		"dn":     entry.DN,
		"values": len(values),
	})
	return nil
}

// CredentialsFromSettings picks the bind method. sasl_mech selects EXTERNAL
// or GSSAPI; otherwise binddn selects a simple bind and its absence an
// anonymous one.
func CredentialsFromSettings(settings ldap.Settings) (*ldap.Credentials, error) {
	if settings.Exists("sasl_mech") {
		switch mech := strings.ToUpper(strings.TrimSpace(settings.Get("sasl_mech"))); mech {
		case "EXTERNAL":
			return &ldap.Credentials{Method: ldap.AuthMethodExternal}, nil
		case "GSSAPI":
			return &ldap.Credentials{
				Method:   ldap.AuthMethodKerberos,
				Kerberos: ldap.KerberosConfigFromSettings(settings),
			}, nil
		default:
			return nil, &ldap.ConfigError{
				Key:     "sasl_mech",
				Message: fmt.Sprintf("unsupported mechanism %q, must be EXTERNAL or GSSAPI", mech),
			}
		}
	}

	if !settings.Exists("binddn") {
		return &ldap.Credentials{Method: ldap.AuthMethodAnonymous}, nil
	}

	creds := &ldap.Credentials{
		Method: ldap.AuthMethodSimpleBind,
		BindDN: settings.Get("binddn"),
	}
	if settings.Exists("bindpw") {
		creds.Password = []byte(settings.Get("bindpw"))
		creds.HasPassword = true
	}
	return creds, nil
}

func dumpSettings(logger ldap.Logger, settings Settings) {
	for _, entry := range settings.Entries() {
		value := entry.Value
		if ldap.IsSensitiveKey(entry.Key) {
			value = "[REDACTED]"
		}
		logger.Debug("Configuration parameter", map[string]any{"key": entry.Key, "value": value})
	}
	for _, key := range settings.Overridden() {
		logger.Notice("Parameter defined more than once, the last definition wins", map[string]any{"key": key})
	}
}

func countParameters(settings Settings) int {
	n := settings.Size()
	for _, key := range []string{"loglevel", "log"} {
		if settings.Exists(key) {
			n--
		}
	}
	return n
}
