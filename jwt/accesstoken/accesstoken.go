// Package accesstoken authenticates HTTP requests with bearer tokens
// carried in the Authorization header.
package accesstoken

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/jwt"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/aadauth", "accesstoken")

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	bearerPrefix          = "Bearer "
)

var (
	// ErrMissingToken is returned when the request has no Authorization header
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidRequest is returned when the Authorization header is not a bearer token
	ErrInvalidRequest = errors.New("malformed bearer authorization header")
)

// TokenValidator validates the token, *jwt.Validator implements the interface
type TokenValidator interface {
	Validate(ctx context.Context, raw, expectedIssuer, expectedAudience string, now time.Time) (*jwt.Claims, error)
}

// Option configures Authenticator
type Option func(*Authenticator)

// WithRealm sets the realm of the challenge
func WithRealm(realm string) Option {
	return func(a *Authenticator) {
		a.realm = strings.TrimSpace(realm)
	}
}

// WithTimeNowFn allows to override the clock
func WithTimeNowFn(fn func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = fn
	}
}

// Authenticator validates bearer tokens of the requests
// against the expected issuer and audience
type Authenticator struct {
	validator TokenValidator
	issuer    string
	audience  string
	realm     string
	now       func() time.Time
}

// New returns Authenticator
func New(validator TokenValidator, issuer, audience string, opts ...Option) *Authenticator {
	a := &Authenticator{
		validator: validator,
		issuer:    issuer,
		audience:  audience,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromRequest returns the bearer token from the Authorization header
func FromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		return "", ErrMissingToken
	}
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrInvalidRequest
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", errors.Wrap(ErrInvalidRequest, "empty bearer token")
	}
	return token, nil
}

// Authenticate returns the verified claims of the request's bearer token
func (a *Authenticator) Authenticate(r *http.Request) (*jwt.Claims, error) {
	token, err := FromRequest(r)
	if err != nil {
		return nil, err
	}
	return a.validator.Validate(r.Context(), token, a.issuer, a.audience, a.now())
}

// Handler returns a handler which serves the request by next,
// if the request is authenticated. The claims are available
// from the request context with ClaimsFromContext.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (a *Authenticator) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := jwt.ErrorKind(err)
	logger.KV(xlog.DEBUG, "path", r.URL.Path, "reason", kind, "err", err.Error())

	switch {
	case errors.Is(err, ErrMissingToken):
		// no error code when the request lacks any authentication information
		w.Header().Add(wwwAuthenticateHeader, challenge(a.realm, "", ""))
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidRequest):
		w.Header().Add(wwwAuthenticateHeader, challenge(a.realm, "invalid_request", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case IsTokenError(err):
		w.Header().Add(wwwAuthenticateHeader, challenge(a.realm, "invalid_token", kind))
		w.WriteHeader(http.StatusUnauthorized)
	default:
		// the keys could not be retrieved
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

// IsTokenError returns true if the error is caused by the token itself,
// and not by a failure to retrieve the keys
func IsTokenError(err error) bool {
	return errors.IsAny(err,
		jwt.ErrMalformedToken,
		jwt.ErrUnknownKeyID,
		jwt.ErrAlgorithmMismatch,
		jwt.ErrInvalidSignature,
		jwt.ErrTokenExpired,
		jwt.ErrTokenNotYetValid,
		jwt.ErrTokenIssuedInFuture,
		jwt.ErrIssuerMismatch,
		jwt.ErrAudienceMismatch,
	)
}

// challenge returns WWW-Authenticate value
func challenge(realm, code, description string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if code != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, code))
	}
	if description != "" {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(description)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

type contextKey int

const keyClaims contextKey = iota

// WithClaims returns a copy of the context with the claims
func WithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext returns the claims of the authenticated request,
// or nil
func ClaimsFromContext(ctx context.Context) *jwt.Claims {
	claims, _ := ctx.Value(keyClaims).(*jwt.Claims)
	return claims
}
