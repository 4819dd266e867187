package ldap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// applyFunc parses, checks and applies one configuration value. The
// returned error carries only Kind and Err; the caller fills in the rest.
type applyFunc func(s *Session, value string) *OptionError

// optionSpec binds a configuration key to the option it tunes.
type optionSpec struct {
	key    string
	option string
	apply  applyFunc
}

// optionTable lists every optional setting. Each entry is independent of
// the others and a failure only skips that entry.
var optionTable = []optionSpec{
	{key: "tcp_keepalive_interval", option: "TCP_KEEPALIVE_INTERVAL", apply: secondsOption(func(s *Session, d time.Duration) {
		s.keepAlive.Enable = true
		s.keepAlive.Interval = d
	})},
	{key: "tcp_keepalive_idle", option: "TCP_KEEPALIVE_IDLE", apply: secondsOption(func(s *Session, d time.Duration) {
		s.keepAlive.Enable = true
		s.keepAlive.Idle = d
	})},
	{key: "tcp_keepalive_probes", option: "TCP_KEEPALIVE_PROBES", apply: countOption(func(s *Session, n int) {
		s.keepAlive.Enable = true
		s.keepAlive.Count = n
	})},
	{key: "bind_timelimit", option: "TIMEOUT", apply: secondsOption(func(s *Session, d time.Duration) {
		s.opTimeout = d
	})},
	{key: "idle_timelimit", option: "NETWORK_TIMEOUT", apply: secondsOption(func(s *Session, d time.Duration) {
		s.connectTimeout = d
	})},
	{key: "timelimit", option: "TIMELIMIT", apply: secondsOption(func(s *Session, d time.Duration) {
		s.timeLimit = d
	})},
	{key: "tls_cacertdir", option: "TLS_CACERTDIR", apply: dirOption(func(s *Session, path string) error {
		return s.tls.addCADir(path)
	})},
	{key: "tls_cacertfile", option: "TLS_CACERTFILE", apply: fileOption(func(s *Session, path string) error {
		return s.tls.addCAFile(path)
	})},
	{key: "tls_cert", option: "TLS_CERTFILE", apply: fileOption(func(s *Session, path string) error {
		s.tls.certFile = path
		return nil
	})},
	{key: "tls_key", option: "TLS_KEYFILE", apply: fileOption(func(s *Session, path string) error {
		s.tls.keyFile = path
		return nil
	})},
	{key: "tls_ciphers", option: "TLS_CIPHER_SUITE", apply: applyCipherSuites},
	{key: "tls_dhfile", option: "TLS_DHFILE", apply: fileOption(func(*Session, string) error {
		return errors.New("custom Diffie-Hellman parameters are not supported, ECDHE key exchange is negotiated instead")
	})},
	{key: "tls_randfile", option: "TLS_RANDOM_FILE", apply: fileOption(func(*Session, string) error {
		return errors.New("an entropy file is not supported, the system random source is always used")
	})},
	{key: "tls_reqcert", option: "TLS_REQUIRE_CERT", apply: keywordOption(
		[]string{ReqCertNever, ReqCertAllow, ReqCertTry, ReqCertDemand, ReqCertHard},
		func(s *Session, v string) { s.tls.reqCert = v },
	)},
	{key: "tls_crlcheck", option: "TLS_CRLCHECK", apply: keywordOption(
		[]string{CRLCheckNone, CRLCheckPeer, CRLCheckAll},
		func(s *Session, v string) { s.tls.crlCheck = v },
	)},
	{key: "tls_crlfile", option: "TLS_CRLFILE", apply: fileOption(func(s *Session, path string) error {
		return s.tls.addCRLFile(path)
	})},
	{key: "deref", option: "DEREF", apply: keywordOption(
		[]string{"never", "searching", "finding", "always"},
		func(s *Session, v string) { s.deref = derefByName[v] },
	)},
}

var derefByName = map[string]DerefAliases{
	"never":     NeverDerefAliases,
	"searching": DerefInSearching,
	"finding":   DerefFindingBaseObj,
	"always":    DerefAlways,
}

// OptionKeys returns the configuration keys handled by ApplyOptionalTuning.
func OptionKeys() []string {
	keys := make([]string, 0, len(optionTable))
	for _, spec := range optionTable {
		keys = append(keys, spec.key)
	}
	return keys
}

// ApplyOptionalTuning applies every optional setting present in settings.
// Settings that cannot be parsed, checked or applied are logged as warnings
// and skipped. The returned error lists them and is never fatal.
func (s *Session) ApplyOptionalTuning(settings Settings) error {
	if err := s.requireState("apply options", StateVersionSet); err != nil {
		return err
	}

	var skipped *multierror.Error

	for _, spec := range optionTable {
		if !settings.Exists(spec.key) {
			s.logger.Debug("Optional parameter not set", map[string]any{"key": spec.key})
			continue
		}

		value := settings.Get(spec.key)
		s.logger.Debug("Optional parameter found", map[string]any{"key": spec.key, "value": value})

		if oerr := spec.apply(s, value); oerr != nil {
			oerr.Key = spec.key
			oerr.Option = spec.option
			s.warnSkipped(oerr)
			skipped = multierror.Append(skipped, oerr)
			continue
		}

		s.logger.Info("Option applied", map[string]any{"key": spec.key, "option": spec.option})
	}

	for _, oerr := range s.tls.finish() {
		s.warnSkipped(oerr)
		skipped = multierror.Append(skipped, oerr)
	}

	return skipped.ErrorOrNil()
}

func (s *Session) warnSkipped(oerr *OptionError) {
	s.logger.Warn("Optional parameter skipped, attempting to continue", map[string]any{
		"key":    oerr.Key,
		"option": oerr.Option,
		"reason": oerr.Kind.String(),
		"error":  oerr.Err.Error(),
	})
}

// finish pairs the client certificate with its key and reports material
// that cannot take effect on its own.
func (t *tlsSettings) finish() []*OptionError {
	var errs []*OptionError

	switch {
	case t.certFile != "" && t.keyFile != "":
		if err := t.loadKeyPair(); err != nil {
			errs = append(errs, &OptionError{Key: "tls_cert", Option: "TLS_CERTFILE", Kind: OptionRejected, Err: err})
		}
	case t.certFile != "":
		errs = append(errs, &OptionError{Key: "tls_cert", Option: "TLS_CERTFILE", Kind: OptionRejected,
			Err: errors.New("client certificate given without tls_key")})
	case t.keyFile != "":
		errs = append(errs, &OptionError{Key: "tls_key", Option: "TLS_KEYFILE", Kind: OptionRejected,
			Err: errors.New("client key given without tls_cert")})
	}

	if t.crlCheck != CRLCheckNone && len(t.crls) == 0 {
		errs = append(errs, &OptionError{Key: "tls_crlcheck", Option: "TLS_CRLCHECK", Kind: OptionRejected,
			Err: errors.New("no CRL loaded from tls_crlfile, revocation is not checked")})
	}

	return errs
}

func parseNonNegative(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("value %d must not be negative", n)
	}
	return n, nil
}

func secondsOption(set func(*Session, time.Duration)) applyFunc {
	return func(s *Session, value string) *OptionError {
		n, err := parseNonNegative(value)
		if err != nil {
			return &OptionError{Kind: OptionParse, Err: err}
		}
		set(s, time.Duration(n)*time.Second)
		return nil
	}
}

func countOption(set func(*Session, int)) applyFunc {
	return func(s *Session, value string) *OptionError {
		n, err := parseNonNegative(value)
		if err != nil {
			return &OptionError{Kind: OptionParse, Err: err}
		}
		set(s, n)
		return nil
	}
}

func fileOption(use func(*Session, string) error) applyFunc {
	return func(s *Session, value string) *OptionError {
		if err := checkReadableFile(value); err != nil {
			return &OptionError{Kind: OptionAccess, Err: err}
		}
		if err := use(s, value); err != nil {
			return &OptionError{Kind: OptionRejected, Err: err}
		}
		return nil
	}
}

func dirOption(use func(*Session, string) error) applyFunc {
	return func(s *Session, value string) *OptionError {
		if err := checkSearchableDir(value); err != nil {
			return &OptionError{Kind: OptionAccess, Err: err}
		}
		if err := use(s, value); err != nil {
			return &OptionError{Kind: OptionRejected, Err: err}
		}
		return nil
	}
}

func keywordOption(allowed []string, set func(*Session, string)) applyFunc {
	return func(s *Session, value string) *OptionError {
		v := strings.ToLower(strings.TrimSpace(value))
		for _, a := range allowed {
			if v == a {
				set(s, v)
				return nil
			}
		}
		return &OptionError{Kind: OptionParse, Err: fmt.Errorf("%q is not one of %s", value, strings.Join(allowed, ", "))}
	}
}

func applyCipherSuites(s *Session, value string) *OptionError {
	ids, err := parseCipherSuites(value)
	if err != nil {
		return &OptionError{Kind: OptionRejected, Err: err}
	}
	s.tls.cipherSuites = ids
	return nil
}
