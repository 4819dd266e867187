package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
)

// FilterPlaceholder is replaced by the username in a configured filter.
const FilterPlaceholder = "%1"

var (
	usernamePattern = regexp.MustCompile(`^[a-z][-a-z0-9]*$`)

	// attr=value(,attr=value)*, optionally with spaces after the commas.
	baseDNPattern = regexp.MustCompile(
		`^\w+=[a-zA-Z0-9_\-!%*+/:;<>?$&#()\[\]{}.\s]+(,\s*\w+=[a-zA-Z0-9_\-!%*+/:;<>?$&#()\[\]{}.\s]+)*$`)
)

// searchDefaults are applied when a setting is absent.
type searchDefaults struct {
	Attribute string `default:"sshPublicKey"`
	// FilterAttribute is matched against the username when no filter is set.
	FilterAttribute string `default:"cn"`
	SizeLimit       int    `default:"2"`
}

// SearchRequestBuilder turns settings and a username into a SearchRequest.
type SearchRequestBuilder struct {
	logger   Logger
	defaults searchDefaults
}

// NewSearchRequestBuilder creates a builder with the standard defaults.
func NewSearchRequestBuilder(logger Logger) (*SearchRequestBuilder, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	b := &SearchRequestBuilder{logger: logger}
	if err := defaults.Set(&b.defaults); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	return b, nil
}

// ValidateUsername checks name against ^[a-z][-a-z0-9]*$.
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("invalid username %q: must start with a lowercase letter and contain only lowercase letters, digits and '-'", name)
	}
	return nil
}

// ResolveScope maps the scope setting. Unknown values fall back to one level
// with a warning.
func (b *SearchRequestBuilder) ResolveScope(settings Settings) SearchScope {
	if !settings.Exists("scope") {
		b.logger.Debug("Parameter 'scope' not set, using default", map[string]any{"scope": ScopeSingleLevel.String()})
		return ScopeSingleLevel
	}

	raw := settings.Get("scope")
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "one", "onelevel":
		return ScopeSingleLevel
	case "sub", "subtree":
		return ScopeWholeSubtree
	default:
		b.logger.Warn("Invalid 'scope', using default", map[string]any{
			"value": raw,
			"scope": ScopeSingleLevel.String(),
		})
		return ScopeSingleLevel
	}
}

// ResolveFilter substitutes username into the configured filter. Only the
// first placeholder is replaced.
func (b *SearchRequestBuilder) ResolveFilter(settings Settings, username string) (string, error) {
	if !settings.Exists("filter") {
		filter := b.defaults.FilterAttribute + "=" + username
		b.logger.Debug("Parameter 'filter' not set, using default", map[string]any{"filter": filter})
		return filter, nil
	}

	template := settings.Get("filter")
	if !strings.Contains(template, FilterPlaceholder) {
		return "", &ConfigError{
			Key:     "filter",
			Message: fmt.Sprintf("value %q does not contain the %s placeholder", template, FilterPlaceholder),
		}
	}

	return strings.Replace(template, FilterPlaceholder, username, 1), nil
}

// ResolveAttributeName returns the attribute to read, sshPublicKey by default.
func (b *SearchRequestBuilder) ResolveAttributeName(settings Settings) string {
	if name := strings.TrimSpace(settings.Get("attribute")); name != "" {
		return name
	}
	b.logger.Debug("Parameter 'attribute' not set, using default", map[string]any{"attribute": b.defaults.Attribute})
	return b.defaults.Attribute
}

// ResolveBaseDN returns the mandatory search base.
func (b *SearchRequestBuilder) ResolveBaseDN(settings Settings) (string, error) {
	if !settings.Exists("base") {
		return "", &ConfigError{Key: "base", Message: "parameter undefined"}
	}

	base := strings.TrimSpace(settings.Get("base"))
	if !baseDNPattern.MatchString(base) {
		return "", &ConfigError{Key: "base", Message: fmt.Sprintf("value %q is not a valid DN", base)}
	}
	return base, nil
}

// Build validates username and assembles the search for it.
func (b *SearchRequestBuilder) Build(settings Settings, username string) (*SearchRequest, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	base, err := b.ResolveBaseDN(settings)
	if err != nil {
		return nil, err
	}

	filter, err := b.ResolveFilter(settings, username)
	if err != nil {
		return nil, err
	}

	req := &SearchRequest{
		BaseDN:     base,
		Scope:      b.ResolveScope(settings),
		Filter:     filter,
		Attributes: []string{b.ResolveAttributeName(settings)},
		SizeLimit:  b.defaults.SizeLimit,
	}

	b.logger.Debug("Search request built", map[string]any{
		"base_dn":   req.BaseDN,
		"scope":     req.Scope.String(),
		"filter":    req.Filter,
		"attribute": req.Attributes[0],
	})

	return req, nil
}
