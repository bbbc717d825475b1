package cli

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/jwt"
)

// ValidateCmd validates a bearer token
type ValidateCmd struct {
	Token  string `short:"t" required:"" help:"token to validate, or - to read it from stdin"`
	Issuer string `help:"expected issuer, derived from the tenant if not set"`
	At     string `help:"optional, RFC3339 time to validate the token at, instead of now"`
}

// Run the command
func (a *ValidateCmd) Run(ctx *Cli) error {
	raw := a.Token
	if raw == "-" {
		b, err := ctx.ReadFile("-")
		if err != nil {
			return errors.WithMessage(err, "unable to read token")
		}
		raw = string(b)
	}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "Bearer ")

	now := time.Now()
	if a.At != "" {
		t, err := time.Parse(time.RFC3339, a.At)
		if err != nil {
			return errors.WithMessage(err, "unable to parse --at")
		}
		now = t
	}

	cfg, err := ctx.Config()
	if err != nil {
		return err
	}
	issuer := a.Issuer
	if issuer == "" {
		issuer = cfg.ExpectedIssuer()
	}

	v, err := cfg.NewValidator(ctx.HTTPClient())
	if err != nil {
		return err
	}

	claims, err := v.Validate(ctx.Context(), raw, issuer, cfg.Audience, now)
	if err != nil {
		return errors.WithMessagef(err, "invalid token (%s)", jwt.ErrorKind(err))
	}

	var res map[string]any
	if err = claims.To(&res); err != nil {
		return err
	}
	ctx.WriteJSON(res)
	return nil
}
