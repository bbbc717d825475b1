package jwt_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/jwt"
	"github.com/effective-security/aadauth/jwt/jwttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, tenant string, signers ...*jwttest.Signer) *jwttest.Provider {
	t.Helper()
	doc, err := jwttest.KeySetJSON(jwks(signers...)...)
	require.NoError(t, err)
	p := jwttest.NewProvider(tenant, doc)
	t.Cleanup(p.Close)
	return p
}

func TestAzureURLs(t *testing.T) {
	assert.Equal(t,
		"https://login.microsoftonline.com/tenant1/v2.0/.well-known/openid-configuration",
		jwt.AzureDiscoveryURL("", "tenant1"))
	assert.Equal(t,
		"https://login.microsoftonline.us/tenant1/v2.0/.well-known/openid-configuration",
		jwt.AzureDiscoveryURL("https://login.microsoftonline.us/", "tenant1"))
	assert.Equal(t, "https://login.microsoftonline.com/tenant1/v2.0", jwt.AzureIssuer(jwt.AzureAuthority, "tenant1"))

	md := &jwt.Metadata{IssuerURL: "https://login.microsoftonline.com/{tenantid}/v2.0"}
	assert.Equal(t, "https://login.microsoftonline.com/t2/v2.0", jwt.IssuerFor(md, "t2"))
	md.IssuerURL = "https://login.microsoftonline.com/t1/v2.0"
	assert.Equal(t, "https://login.microsoftonline.com/t1/v2.0", jwt.IssuerFor(md, "t2"))
}

func TestNewDiscoveryClient(t *testing.T) {
	_, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{}, nil)
	assert.EqualError(t, err, "either discovery or JWKS URL must be provided")

	c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: "https://localhost/keys"}, nil)
	require.NoError(t, err)
	_, err = c.Discover(context.Background())
	assert.EqualError(t, err, "discovery URL is not configured")

	u, err := c.JWKSURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://localhost/keys", u)
}

func TestDiscoveryClient_Discover(t *testing.T) {
	rs := mustRSASigner(t, "K1")
	p := newTestProvider(t, "tenant1", rs)

	c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: p.DiscoveryURL()}, p.Client())
	require.NoError(t, err)

	md, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.Issuer(), md.IssuerURL)
	assert.Equal(t, p.JWKSURL(), md.JWKSURL)
	assert.Equal(t, []string{"RS256"}, md.Algorithms)
	assert.Equal(t, p.Issuer(), jwt.IssuerFor(md, "tenant1"))

	common := newTestProvider(t, "common", rs)
	c, err = jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: common.DiscoveryURL()}, common.Client())
	require.NoError(t, err)
	md, err = c.Discover(context.Background())
	require.NoError(t, err)
	assert.Contains(t, md.IssuerURL, "{tenantid}")
	assert.Equal(t, common.Authority()+"/t2/v2.0", jwt.IssuerFor(md, "t2"))
}

func TestDiscoveryClient_Fetch(t *testing.T) {
	rs := mustRSASigner(t, "K1")
	ec := mustECSigner(t, "E1")
	p := newTestProvider(t, "tenant1", rs, ec)

	t.Run("discovery", func(t *testing.T) {
		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: p.DiscoveryURL()}, p.Client())
		require.NoError(t, err)

		d0, j0 := p.Requests(jwttest.EndpointDiscovery), p.Requests(jwttest.EndpointJWKS)
		ks, err := c.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, ks.Len())
		_, ok := ks.Find("K1")
		assert.True(t, ok)
		_, ok = ks.Find("E1")
		assert.True(t, ok)
		assert.Equal(t, d0+1, p.Requests(jwttest.EndpointDiscovery))
		assert.Equal(t, j0+1, p.Requests(jwttest.EndpointJWKS))
	})

	t.Run("jwks", func(t *testing.T) {
		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: p.JWKSURL()}, p.Client())
		require.NoError(t, err)

		d0 := p.Requests(jwttest.EndpointDiscovery)
		ks, err := c.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, ks.Len())
		assert.Equal(t, d0, p.Requests(jwttest.EndpointDiscovery), "discovery must not be requested")
	})

	t.Run("stateless", func(t *testing.T) {
		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: p.JWKSURL()}, p.Client())
		require.NoError(t, err)

		ks1, err := c.Fetch(context.Background())
		require.NoError(t, err)
		ks2, err := c.Fetch(context.Background())
		require.NoError(t, err)
		assert.NotSame(t, ks1, ks2)
	})
}

func TestDiscoveryClient_Errors(t *testing.T) {
	rs := mustRSASigner(t, "K1")

	t.Run("discovery status", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		p.SetStatus(jwttest.EndpointDiscovery, http.StatusNotFound)

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: p.DiscoveryURL()}, p.Client())
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, jwt.ErrUnexpectedStatus), "%+v", err)
		assert.Equal(t, "unexpected_status", jwt.ErrorKind(err))

		var serr *jwt.StatusError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, http.StatusNotFound, serr.StatusCode)
		assert.Equal(t, p.DiscoveryURL(), serr.URL)
		assert.Equal(t, 0, p.Requests(jwttest.EndpointJWKS))
	})

	t.Run("jwks status", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		p.SetStatus(jwttest.EndpointJWKS, http.StatusInternalServerError)

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: p.DiscoveryURL()}, p.Client())
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, jwt.ErrUnexpectedStatus), "%+v", err)
		assert.Contains(t, err.Error(), "500 Internal Server Error")

		p.SetStatus(jwttest.EndpointJWKS, 0)
		_, err = c.Fetch(context.Background())
		assert.NoError(t, err)
	})

	t.Run("malformed jwks", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		p.SetKeys([]byte(`{"keys":[{"kty":"RSA","kid":"K1"}]}`))

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: p.JWKSURL()}, p.Client())
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, jwt.ErrMalformedKeySet), "%+v", err)
		assert.Contains(t, err.Error(), "invalid JWKS: "+p.JWKSURL())
	})

	t.Run("jwks not json", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		p.SetKeys([]byte(`<html></html>`))

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: p.JWKSURL()}, p.Client())
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		assert.True(t, errors.Is(err, jwt.ErrMalformedKeySet), "%+v", err)
	})

	t.Run("timeout", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		p.SetDelay(time.Second)

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{
			JWKSURL: p.JWKSURL(),
			Timeout: 50 * time.Millisecond,
		}, p.Client())
		require.NoError(t, err)

		started := time.Now()
		_, err = c.Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, jwt.ErrNetwork), "%+v", err)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("canceled", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: p.JWKSURL()}, p.Client())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Fetch(ctx)
		assert.True(t, errors.Is(err, jwt.ErrNetwork), "%+v", err)
	})

	t.Run("unreachable", func(t *testing.T) {
		p := newTestProvider(t, "tenant1", rs)
		jwksURL := p.JWKSURL()
		p.Close()

		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: jwksURL}, http.DefaultClient)
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		assert.True(t, errors.Is(err, jwt.ErrNetwork), "%+v", err)
		assert.Equal(t, "network", jwt.ErrorKind(err))
	})

	t.Run("invalid url", func(t *testing.T) {
		c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{JWKSURL: "://bad"}, nil)
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		assert.True(t, errors.Is(err, jwt.ErrNetwork), "%+v", err)
	})
}

func TestDiscoveryClient_MalformedDocument(t *testing.T) {
	tcases := []struct {
		name string
		body string
		exp  string
	}{
		{"not json", `{"issuer":`, "failed to decode discovery document"},
		{"no jwks_uri", `{"issuer":"https://issuer"}`, "discovery document has no jwks_uri"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			client := &http.Client{Transport: staticTransport(tc.body)}
			c, err := jwt.NewDiscoveryClient(jwt.DiscoveryConfig{DiscoveryURL: "https://localhost/.well-known/openid-configuration"}, client)
			require.NoError(t, err)

			_, err = c.Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, jwt.ErrMalformedKeySet), "%+v", err)
			assert.Contains(t, err.Error(), tc.exp)
		})
	}
}
