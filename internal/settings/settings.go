// Package settings provides per-locale OAuth provider settings and resolves
// the locale of a request.
package settings

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// LangParam is the query parameter that selects a locale explicitly.
const LangParam = "lang"

// ErrUnknownLocale is returned when no settings exist for a locale.
var ErrUnknownLocale = errors.New("unknown locale")

// Credentials identify the gateway to the OAuth provider of one locale.
type Credentials struct {
	ClientID     string `mapstructure:"api_user"`
	ClientSecret string `mapstructure:"api_secret"`
	Endpoint     string `mapstructure:"api_endpoint"`
}

// LocaleSettings are the settings configured for a single locale.
type LocaleSettings struct {
	Credentials  `mapstructure:",squash"`
	RequiredRole string `mapstructure:"required_role"`
}

// Provider exposes settings to the login flow.
type Provider interface {
	// Locales lists the configured locales in canonical BCP 47 form.
	Locales() []string
	// CurrentLocale picks the configured locale that best fits the request.
	CurrentLocale(r *http.Request) string
	// Credentials returns the provider credentials for locale.
	Credentials(locale string) (Credentials, error)
	// DefaultRequiredRole returns the role required when a resource names none.
	DefaultRequiredRole(locale string) string
}

// FileProvider serves settings loaded from a configuration file.
type FileProvider struct {
	locales       map[string]LocaleSettings
	tags          []language.Tag
	matcher       language.Matcher
	defaultLocale string
}

type fileSettings struct {
	DefaultLocale string                    `mapstructure:"default_locale"`
	Locales       map[string]LocaleSettings `mapstructure:"locales"`
}

// Load reads a settings file (YAML, JSON or TOML, by extension).
func Load(path string) (*FileProvider, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper builds a provider from an already populated viper instance.
func FromViper(v *viper.Viper) (*FileProvider, error) {
	var fs fileSettings
	if err := v.Unmarshal(&fs); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return New(fs.DefaultLocale, fs.Locales)
}

// New builds a provider from locale settings keyed by locale name
// ("da_DK", "sv-SE", ...). defaultLocale may be empty when only one locale exists.
func New(defaultLocale string, locales map[string]LocaleSettings) (*FileProvider, error) {
	if len(locales) == 0 {
		return nil, errors.New("at least one locale must be configured")
	}

	p := &FileProvider{locales: make(map[string]LocaleSettings, len(locales))}

	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ls := locales[name]
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", name, err)
		}
		if ls.ClientID == "" || ls.ClientSecret == "" || ls.Endpoint == "" {
			return nil, fmt.Errorf("locale %q: api_user, api_secret and api_endpoint are required", name)
		}
		ls.Endpoint = strings.TrimRight(ls.Endpoint, "/")
		key := tag.String()
		if _, dup := p.locales[key]; dup {
			return nil, fmt.Errorf("locale %q configured twice", key)
		}
		p.locales[key] = ls
		p.tags = append(p.tags, tag)
	}

	switch {
	case defaultLocale != "":
		key, err := canonical(defaultLocale)
		if err != nil {
			return nil, fmt.Errorf("invalid default locale: %w", err)
		}
		if _, ok := p.locales[key]; !ok {
			return nil, fmt.Errorf("default locale %q is not configured", defaultLocale)
		}
		p.defaultLocale = key
	case len(p.tags) == 1:
		p.defaultLocale = p.tags[0].String()
	default:
		return nil, errors.New("default_locale is required when several locales are configured")
	}

	// The default goes first so the matcher falls back to it.
	ordered := []language.Tag{language.MustParse(p.defaultLocale)}
	for _, tag := range p.tags {
		if tag.String() != p.defaultLocale {
			ordered = append(ordered, tag)
		}
	}
	p.tags = ordered
	p.matcher = language.NewMatcher(ordered)

	return p, nil
}

// Locales lists the configured locales, default first.
func (p *FileProvider) Locales() []string {
	out := make([]string, len(p.tags))
	for i, tag := range p.tags {
		out[i] = tag.String()
	}
	return out
}

// DefaultLocale returns the fallback locale.
func (p *FileProvider) DefaultLocale() string {
	return p.defaultLocale
}

// CurrentLocale resolves the locale from the lang query parameter, then the
// Accept-Language header, then the default.
func (p *FileProvider) CurrentLocale(r *http.Request) string {
	if r == nil {
		return p.defaultLocale
	}

	if lang := strings.TrimSpace(r.URL.Query().Get(LangParam)); lang != "" {
		if key, err := canonical(lang); err == nil {
			if _, ok := p.locales[key]; ok {
				return key
			}
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, index, confidence := p.matcher.Match(tags...)
			if confidence != language.No {
				return p.tags[index].String()
			}
		}
	}

	return p.defaultLocale
}

// Credentials returns the provider credentials for locale.
func (p *FileProvider) Credentials(locale string) (Credentials, error) {
	ls, err := p.lookup(locale)
	if err != nil {
		return Credentials{}, err
	}
	return ls.Credentials, nil
}

// DefaultRequiredRole returns the role required when a resource names none.
// An unknown locale falls back to the default locale's role.
func (p *FileProvider) DefaultRequiredRole(locale string) string {
	ls, err := p.lookup(locale)
	if err != nil {
		return p.locales[p.defaultLocale].RequiredRole
	}
	return ls.RequiredRole
}

func (p *FileProvider) lookup(locale string) (LocaleSettings, error) {
	key, err := canonical(locale)
	if err != nil {
		return LocaleSettings{}, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
	}
	ls, ok := p.locales[key]
	if !ok {
		return LocaleSettings{}, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
	}
	return ls, nil
}

func canonical(locale string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}
