package jwt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/effective-security/aadauth/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/aadauth", "jwt")

const (
	// AzureAuthority is the default Azure AD authority
	AzureAuthority = "https://login.microsoftonline.com"
	// DefaultTimeout is the default timeout of a single HTTP request
	DefaultTimeout = 10 * time.Second

	tenantPlaceholder = "{tenantid}"
	maxDocumentSize   = 1 << 20
)

// HTTPClient is the transport used to fetch provider documents.
// *http.Client satisfies the interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Metadata is the OpenID discovery document
type Metadata = oidc.ProviderConfig

// AzureDiscoveryURL returns the v2.0 OpenID configuration URL of the tenant.
// The tenant can be a tenant ID, a domain name, or one of
// common, organizations and consumers.
func AzureDiscoveryURL(authority, tenant string) string {
	return azureTenantURL(authority, tenant) + "/v2.0/.well-known/openid-configuration"
}

// AzureIssuer returns the v2.0 issuer of the tenant
func AzureIssuer(authority, tenant string) string {
	return azureTenantURL(authority, tenant) + "/v2.0"
}

func azureTenantURL(authority, tenant string) string {
	if authority == "" {
		authority = AzureAuthority
	}
	return strings.TrimSuffix(authority, "/") + "/" + tenant
}

// IssuerFor returns the issuer for the tenant,
// substituting the {tenantid} placeholder of the multi-tenant metadata.
func IssuerFor(md *Metadata, tenantID string) string {
	return strings.ReplaceAll(md.IssuerURL, tenantPlaceholder, tenantID)
}

// DiscoveryConfig provides the provider's endpoints
type DiscoveryConfig struct {
	// DiscoveryURL is the OpenID configuration URL,
	// used to find jwks_uri when JWKSURL is not set
	DiscoveryURL string
	// JWKSURL is the direct JWKS URL
	JWKSURL string
	// Timeout bounds each HTTP request, DefaultTimeout if not set
	Timeout time.Duration
}

// DiscoveryClient fetches the provider's signing keys.
// The client is stateless: each Fetch returns a new KeySet.
type DiscoveryClient struct {
	client       HTTPClient
	discoveryURL string
	jwksURL      string
	timeout      time.Duration
}

// NewDiscoveryClient returns DiscoveryClient.
// If client is nil, http.DefaultClient is used.
func NewDiscoveryClient(cfg DiscoveryConfig, client HTTPClient) (*DiscoveryClient, error) {
	if cfg.DiscoveryURL == "" && cfg.JWKSURL == "" {
		return nil, errors.New("either discovery or JWKS URL must be provided")
	}
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DiscoveryClient{
		client:       client,
		discoveryURL: cfg.DiscoveryURL,
		jwksURL:      cfg.JWKSURL,
		timeout:      timeout,
	}, nil
}

// Discover returns the OpenID discovery document
func (c *DiscoveryClient) Discover(ctx context.Context) (*Metadata, error) {
	if c.discoveryURL == "" {
		return nil, errors.New("discovery URL is not configured")
	}
	body, err := c.get(ctx, c.discoveryURL, "discovery")
	if err != nil {
		return nil, err
	}

	var md Metadata
	if err = json.Unmarshal(body, &md); err != nil {
		return nil, mark(ErrMalformedKeySet, err, "failed to decode discovery document")
	}
	if md.JWKSURL == "" {
		return nil, errors.Wrapf(ErrMalformedKeySet, "discovery document has no jwks_uri: %s", c.discoveryURL)
	}
	return &md, nil
}

// JWKSURL returns the JWKS URL: the configured one,
// or jwks_uri from the discovery document
func (c *DiscoveryClient) JWKSURL(ctx context.Context) (string, error) {
	if c.jwksURL != "" {
		return c.jwksURL, nil
	}
	md, err := c.Discover(ctx)
	if err != nil {
		return "", err
	}
	return md.JWKSURL, nil
}

// Fetch returns the current key set of the provider
func (c *DiscoveryClient) Fetch(ctx context.Context) (*KeySet, error) {
	jwksURL, err := c.JWKSURL(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, jwksURL, "jwks")
	if err != nil {
		return nil, err
	}
	ks, err := ParseKeySet(body)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid JWKS: %s", jwksURL)
	}
	logger.KV(xlog.DEBUG, "url", jwksURL, "keys", ks.Len())
	return ks, nil
}

func (c *DiscoveryClient) get(ctx context.Context, url, endpoint string) (body []byte, err error) {
	status := "error"
	defer func(started time.Time) {
		metricskey.PerfKeySetFetch.MeasureSince(started, endpoint, status)
	}(time.Now())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, mark(ErrNetwork, err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	logger.KV(xlog.TRACE, "get", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, mark(ErrNetwork, err, "failed to fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Mark(&StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}, ErrUnexpectedStatus)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, mark(ErrNetwork, err, "failed to read response body")
	}
	return body, nil
}
