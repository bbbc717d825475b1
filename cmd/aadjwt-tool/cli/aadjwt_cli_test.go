package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/effective-security/aadauth/jwt/jwttest"
	"github.com/effective-security/x/ctl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	var c Cli

	assert.NotNil(t, c.ErrWriter())
	assert.NotNil(t, c.Writer())
	assert.NotNil(t, c.Reader())
	assert.Nil(t, c.HTTPClient())

	c.WithErrWriter(os.Stderr)
	c.WithReader(os.Stdin)
	c.WithWriter(os.Stdout)

	assert.NotNil(t, c.Context())
	assert.NotNil(t, c.ErrWriter())
	assert.NotNil(t, c.Writer())
	assert.NotNil(t, c.Reader())

	out := bytes.NewBuffer([]byte{})
	c.WithWriter(out)
	c.WriteJSON(map[string]any{"kid": "K1", "use": "sig"})
	assert.JSONEq(t, `{"kid":"K1","use":"sig"}`, out.String())
	assert.Contains(t, out.String(), "\t\"kid\": \"K1\"")

	_, err := c.ReadFile("")
	assert.EqualError(t, err, "empty file name")

	c.WithReader(strings.NewReader("from stdin"))
	b, err := c.ReadFile("-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(b))
}

func TestParse(t *testing.T) {
	var cl struct {
		Cli

		Keys KeysCmd `kong:"cmd"`
	}

	p := mustNew(t, &cl)
	ctx, err := p.Parse([]string{"keys", "--certs=false", "--tenant=t1", "--timeout=5s", "-l", "debug"})
	require.NoError(t, err)
	require.Equal(t, "keys", ctx.Command())
	if assert.NotNil(t, cl.Keys.Certs) {
		assert.False(t, *cl.Keys.Certs)
	}
	assert.Equal(t, "t1", cl.Tenant)
	assert.Equal(t, 5*time.Second, cl.Timeout)
}

func mustNew(t *testing.T, cli any, options ...kong.Option) *kong.Kong {
	t.Helper()
	options = append([]kong.Option{
		kong.Name("test"),
		kong.Exit(func(int) {
			t.Helper()
			t.Fatalf("unexpected exit()")
		}),
		ctl.BoolPtrMapper,
	}, options...)
	parser, err := kong.New(cli, options...)
	require.NoError(t, err)

	return parser
}

func (s *testSuite) token(claims map[string]any) string {
	token, err := s.signer.Sign(claims)
	s.Require().NoError(err)
	return token
}

func (s *testSuite) claims(now time.Time) map[string]any {
	return map[string]any{
		"iss": s.provider.Issuer(),
		"aud": "app1",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"tid": "tenant1",
		"oid": "user1",
	}
}

func (s *testSuite) TestConfig() {
	cfg, err := s.ctl.Config()
	s.Require().NoError(err)
	s.Equal("tenant1", cfg.TenantID)
	s.Equal("app1", cfg.Audience)
	s.Equal(2*time.Second, cfg.HTTPTimeout)
	s.Equal(s.provider.Issuer(), cfg.ExpectedIssuer())

	// cached
	cfg2, err := s.ctl.Config()
	s.Require().NoError(err)
	s.Same(cfg, cfg2)
}

func (s *testSuite) TestConfigFlags() {
	s.ctl.Tenant = "tenant2"
	s.ctl.Audience = "app2"
	s.ctl.Timeout = time.Second
	s.ctl.JWKSURL = s.provider.JWKSURL()

	cfg, err := s.ctl.Config()
	s.Require().NoError(err)
	s.Equal("tenant2", cfg.TenantID)
	s.Equal("app2", cfg.Audience)
	s.Equal(time.Second, cfg.HTTPTimeout)
	s.Equal(s.provider.JWKSURL(), cfg.JWKSURL)
}

func (s *testSuite) TestConfigErrors() {
	s.ctl.Cfg = "testdata/missing.yaml"
	_, err := s.ctl.Config()
	s.Require().Error(err)
	s.Contains(err.Error(), "unable to load configuration")

	s.ctl.Cfg = ""
	s.ctl.JWKSURL = "not a url"
	_, err = s.ctl.Config()
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid configuration")
}

func (s *testSuite) TestValidate() {
	cmd := ValidateCmd{
		Token: s.token(s.claims(time.Now())),
	}
	err := cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"tid": "tenant1"`, `"oid": "user1"`, `"aud": "app1"`)
}

func (s *testSuite) TestValidateStdin() {
	s.ctl.WithReader(strings.NewReader("Bearer " + s.token(s.claims(time.Now())) + "\n"))

	cmd := ValidateCmd{
		Token: "-",
	}
	err := cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"tid": "tenant1"`)
}

func (s *testSuite) TestValidateInvalid() {
	now := time.Now()

	claims := s.claims(now)
	claims["aud"] = "app2"
	cmd := ValidateCmd{
		Token: s.token(claims),
	}
	err := cmd.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid token (audience_mismatch)")

	cmd = ValidateCmd{
		Token: s.token(s.claims(now)),
		At:    now.Add(2 * time.Hour).Format(time.RFC3339),
	}
	err = cmd.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid token (expired)")

	cmd = ValidateCmd{
		Token:  s.token(s.claims(now)),
		Issuer: "https://sts.windows.net/tenant1/",
	}
	err = cmd.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid token (issuer_mismatch)")

	cmd = ValidateCmd{
		Token: s.token(s.claims(now)),
		At:    "yesterday",
	}
	err = cmd.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "unable to parse --at")

	cmd = ValidateCmd{
		Token: "not.a.token",
	}
	err = cmd.Run(s.ctl)
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid token (malformed_token)")
	s.HasNoText(`"tid"`)
}

func (s *testSuite) TestKeys() {
	certs := true
	cmd := KeysCmd{Certs: &certs}
	err := cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"kid": "K1"`, `"kty": "RSA"`, `"alg": "RS256"`, `"use": "sig"`)
	s.HasNoText(`"subjects"`, `"x5t"`)
}

func (s *testSuite) TestKeysCertificates() {
	jwk, err := s.signer.JWKWithCertificate("aadauth test signer")
	s.Require().NoError(err)
	doc, err := jwttest.KeySetJSON(jwk)
	s.Require().NoError(err)
	s.provider.SetKeys(doc)
	defer s.provider.SetKeys(s.jwks)

	certs := true
	cmd := KeysCmd{Certs: &certs}
	err = cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"kid": "K1"`, `"x5t": "`, `"subjects"`, `"CN=aadauth test signer"`)

	s.Out.Reset()
	certs = false
	err = cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"kid": "K1"`, `"x5t": "`)
	s.HasNoText(`"subjects"`, "CN=aadauth test signer")
}

func (s *testSuite) TestDiscover() {
	cmd := DiscoverCmd{}
	err := cmd.Run(s.ctl)
	s.Require().NoError(err)
	s.HasText(`"jwks_uri": "`+s.provider.JWKSURL()+`"`, `"issuer": "`+s.provider.Issuer()+`"`)
}
