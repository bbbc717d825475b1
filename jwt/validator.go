package jwt

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/metricskey"
	"github.com/effective-security/xlog"
)

// Option configures Validator
type Option func(*Validator)

// WithAllowedAlgorithms restricts the accepted signing algorithms.
// Azure AD signs tokens with RS256.
func WithAllowedAlgorithms(algs ...string) Option {
	return func(v *Validator) {
		v.algorithms = append([]string(nil), algs...)
	}
}

// WithLeeway allows for clock skew when checking exp, nbf and iat
func WithLeeway(leeway time.Duration) Option {
	return func(v *Validator) {
		v.leeway = leeway
	}
}

// Validator validates bearer tokens.
// It is safe for concurrent use.
type Validator struct {
	keys       KeyResolver
	algorithms []string
	leeway     time.Duration
}

// NewValidator returns Validator that resolves keys with the resolver,
// typically a KeyCache
func NewValidator(keys KeyResolver, opts ...Option) *Validator {
	v := &Validator{
		keys:       keys,
		algorithms: DefaultAlgorithms,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate parses the token, verifies its signature with the key
// identified by the kid header, and validates the claims.
// The returned claims are trusted.
//
// Every failure aborts the validation, use errors.Is to find the kind of the error.
func (v *Validator) Validate(ctx context.Context, raw, expectedIssuer, expectedAudience string, now time.Time) (claims *Claims, err error) {
	defer func(started time.Time) {
		metricskey.PerfTokenValidation.MeasureSince(started, ErrorKind(err))
	}(time.Now())

	token, err := ParseUnverified(raw)
	if err != nil {
		return nil, err
	}

	logger.KV(xlog.TRACE, "alg", token.Header.Algorithm, "kid", token.KeyID())

	key, err := v.keys.Resolve(ctx, token.KeyID())
	if err != nil {
		return nil, err
	}

	if err = verifySignature(token, key, v.algorithms); err != nil {
		return nil, err
	}

	claims, err = decodeClaims(token.Payload)
	if err != nil {
		return nil, err
	}
	if err = claims.verifyTime(now, v.leeway); err != nil {
		return nil, err
	}
	if err = claims.verifyIdentity(expectedIssuer, expectedAudience); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateNow validates the token against the current time
func (v *Validator) ValidateNow(ctx context.Context, raw, expectedIssuer, expectedAudience string) (*Claims, error) {
	claims, err := v.Validate(ctx, raw, expectedIssuer, expectedAudience, time.Now())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return claims, nil
}
