// Package config provides the configuration of the token validator,
// loaded from a YAML or JSON file and AADAUTH_* environment variables.
package config

import (
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/effective-security/aadauth/jwt"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/aadauth", "config")

// AzureAlgorithms is the list of algorithms Azure AD signs access and ID tokens with
var AzureAlgorithms = []string{"RS256"}

// Config of the validator
type Config struct {
	// Authority is the Azure AD authority host, for national clouds
	Authority string `json:"authority,omitempty" yaml:"authority,omitempty" env:"AADAUTH_AUTHORITY" default:"https://login.microsoftonline.com" validate:"required,url"`
	// TenantID is the tenant ID or domain, or one of common, organizations and consumers
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty" env:"AADAUTH_TENANT_ID" default:"common" validate:"required"`
	// Audience is the expected aud claim, typically the application ID
	Audience string `json:"audience,omitempty" yaml:"audience,omitempty" env:"AADAUTH_AUDIENCE"`
	// Issuer is the expected iss claim,
	// derived from the authority and tenant if not set
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty" env:"AADAUTH_ISSUER" validate:"omitempty,url"`
	// DiscoveryURL overrides the OpenID configuration URL of the tenant
	DiscoveryURL string `json:"discovery_url,omitempty" yaml:"discovery_url,omitempty" env:"AADAUTH_DISCOVERY_URL" validate:"omitempty,url"`
	// JWKSURL is the direct JWKS URL, the discovery document is not used when set
	JWKSURL string `json:"jwks_url,omitempty" yaml:"jwks_url,omitempty" env:"AADAUTH_JWKS_URL" validate:"omitempty,url"`

	// HTTPTimeout bounds each request to the provider
	HTTPTimeout time.Duration `json:"http_timeout,omitempty" yaml:"http_timeout,omitempty" env:"AADAUTH_HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	// KeyMaxAge is the age after which the cached keys are refreshed
	KeyMaxAge time.Duration `json:"key_max_age,omitempty" yaml:"key_max_age,omitempty" env:"AADAUTH_KEY_MAX_AGE" default:"24h"`
	// MinRefreshInterval limits refreshes on unknown kid
	MinRefreshInterval time.Duration `json:"min_refresh_interval,omitempty" yaml:"min_refresh_interval,omitempty" env:"AADAUTH_MIN_REFRESH_INTERVAL" validate:"gte=0"`
	// Leeway allows for clock skew
	Leeway time.Duration `json:"leeway,omitempty" yaml:"leeway,omitempty" env:"AADAUTH_LEEWAY" validate:"gte=0"`
	// AllowedAlgorithms are the accepted signing algorithms, RS256 if not set
	AllowedAlgorithms []string `json:"allowed_algorithms,omitempty" yaml:"allowed_algorithms,omitempty" env:"AADAUTH_ALLOWED_ALGORITHMS" validate:"dive,oneof=RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512"`
}

// Load returns the configuration from the file, if provided,
// with environment overrides and defaults applied.
// The file is YAML, or JSON which is a subset of YAML.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.WithMessagef(err, "unable to unmarshal %q", file)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, errors.WithMessage(err, "unable to decode environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG, "file", file, "tenant", cfg.TenantID, "audience", cfg.Audience)
	return cfg, nil
}

// Validate applies defaults and validates the configuration
func (c *Config) Validate() error {
	if err := defaults.Set(c); err != nil {
		return errors.WithMessage(err, "unable to set defaults")
	}
	if len(c.AllowedAlgorithms) == 0 {
		c.AllowedAlgorithms = append([]string(nil), AzureAlgorithms...)
	}
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	return nil
}

// Merge overrides the configuration with non-empty values of the other
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}
	err := copier.CopyWithOption(c, other, copier.Option{IgnoreEmpty: true})
	if err != nil {
		return errors.WithMessage(err, "unable to merge configuration")
	}
	return nil
}

// DiscoveryEndpoint returns the OpenID configuration URL
func (c *Config) DiscoveryEndpoint() string {
	if c.DiscoveryURL != "" {
		return c.DiscoveryURL
	}
	return jwt.AzureDiscoveryURL(c.Authority, c.TenantID)
}

// ExpectedIssuer returns the expected iss claim
func (c *Config) ExpectedIssuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return jwt.AzureIssuer(c.Authority, c.TenantID)
}

// NewDiscoveryClient returns the discovery client for the configured tenant
func (c *Config) NewDiscoveryClient(client *http.Client) (*jwt.DiscoveryClient, error) {
	var hc jwt.HTTPClient
	if client != nil {
		hc = client
	}
	return jwt.NewDiscoveryClient(jwt.DiscoveryConfig{
		DiscoveryURL: c.DiscoveryEndpoint(),
		JWKSURL:      c.JWKSURL,
		Timeout:      c.HTTPTimeout,
	}, hc)
}

// NewKeyCache returns the key cache backed by the discovery client
func (c *Config) NewKeyCache(client *http.Client) (*jwt.KeyCache, error) {
	dc, err := c.NewDiscoveryClient(client)
	if err != nil {
		return nil, err
	}
	return jwt.NewKeyCache(dc, jwt.KeyCacheConfig{
		MaxAge:             c.KeyMaxAge,
		MinRefreshInterval: c.MinRefreshInterval,
	}), nil
}

// NewValidator returns the validator with a key cache
// for the configured tenant
func (c *Config) NewValidator(client *http.Client) (*jwt.Validator, error) {
	cache, err := c.NewKeyCache(client)
	if err != nil {
		return nil, err
	}
	return jwt.NewValidator(cache,
		jwt.WithAllowedAlgorithms(c.AllowedAlgorithms...),
		jwt.WithLeeway(c.Leeway),
	), nil
}
