package jwttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Endpoints of the mock provider
const (
	EndpointDiscovery = "discovery"
	EndpointJWKS      = "jwks"
)

// Provider is a mock Azure AD tenant,
// serving the v2.0 OpenID discovery document and the JWKS
type Provider struct {
	Tenant string

	srv *httptest.Server

	mu     sync.RWMutex
	jwks   []byte
	status map[string]int
	delay  time.Duration

	discoveryCount atomic.Int32
	jwksCount      atomic.Int32
}

// NewProvider starts a mock provider for the tenant, publishing jwks
func NewProvider(tenant string, jwks []byte) *Provider {
	p := &Provider{
		Tenant: tenant,
		jwks:   jwks,
		status: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+tenant+"/v2.0/.well-known/openid-configuration", p.serveDiscovery)
	mux.HandleFunc("/"+tenant+"/discovery/v2.0/keys", p.serveJWKS)
	p.srv = httptest.NewServer(mux)
	return p
}

// Close shuts down the server
func (p *Provider) Close() {
	p.srv.Close()
}

// Client returns HTTP client for the server
func (p *Provider) Client() *http.Client {
	return p.srv.Client()
}

// Authority returns the base URL, in place of https://login.microsoftonline.com
func (p *Provider) Authority() string {
	return p.srv.URL
}

// DiscoveryURL returns the OpenID configuration URL of the tenant
func (p *Provider) DiscoveryURL() string {
	return p.srv.URL + "/" + p.Tenant + "/v2.0/.well-known/openid-configuration"
}

// JWKSURL returns the JWKS URL of the tenant
func (p *Provider) JWKSURL() string {
	return p.srv.URL + "/" + p.Tenant + "/discovery/v2.0/keys"
}

// Issuer returns the issuer of the tenant
func (p *Provider) Issuer() string {
	return p.srv.URL + "/" + p.Tenant + "/v2.0"
}

// SetKeys replaces the published JWKS, simulating a key rotation
func (p *Provider) SetKeys(jwks []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jwks = jwks
}

// SetStatus makes the endpoint respond with the status code,
// zero restores normal responses
func (p *Provider) SetStatus(endpoint string, code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[endpoint] = code
}

// SetDelay delays every response
func (p *Provider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Requests returns the number of requests served by the endpoint
func (p *Provider) Requests(endpoint string) int {
	switch endpoint {
	case EndpointDiscovery:
		return int(p.discoveryCount.Load())
	case EndpointJWKS:
		return int(p.jwksCount.Load())
	}
	return 0
}

func (p *Provider) serveDiscovery(w http.ResponseWriter, r *http.Request) {
	p.discoveryCount.Add(1)
	if !p.prepare(w, r, EndpointDiscovery) {
		return
	}
	base := p.srv.URL + "/" + p.Tenant
	meta := map[string]any{
		"issuer":                                strings.ReplaceAll(p.Issuer(), "/"+p.Tenant+"/", "/{tenantid}/"),
		"jwks_uri":                              p.JWKSURL(),
		"authorization_endpoint":                base + "/oauth2/v2.0/authorize",
		"token_endpoint":                        base + "/oauth2/v2.0/token",
		"userinfo_endpoint":                     "https://graph.microsoft.com/oidc/userinfo",
		"response_types_supported":              []string{"code", "id_token", "code id_token", "id_token token"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"tenant_region_scope":                   "NA",
	}
	if p.Tenant != "common" && p.Tenant != "organizations" {
		meta["issuer"] = p.Issuer()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.jwksCount.Add(1)
	if !p.prepare(w, r, EndpointJWKS) {
		return
	}
	p.mu.RLock()
	jwks := p.jwks
	p.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jwks)
}

// prepare applies the configured delay and status,
// returns false if the response was already written
func (p *Provider) prepare(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	p.mu.RLock()
	delay := p.delay
	code := p.status[endpoint]
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return false
	}
	return true
}
