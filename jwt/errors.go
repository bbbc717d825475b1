package jwt

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds returned by the package.
// Use errors.Is to test for a kind, the message carries the details.
var (
	// ErrMalformedToken is returned when the token is not a well formed
	// compact serialized JWT.
	ErrMalformedToken = errors.New("malformed token")
	// ErrMalformedKeySet is returned when the published keys or discovery
	// document do not match the expected schema.
	ErrMalformedKeySet = errors.New("malformed key set")
	// ErrNetwork is returned on transport failures, including timeouts.
	ErrNetwork = errors.New("network error")
	// ErrUnexpectedStatus is returned when the provider responds with a non-success status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUnknownKeyID is returned when the token's kid is not found, even after a key refresh.
	ErrUnknownKeyID = errors.New("unknown key id")
	// ErrAlgorithmMismatch is returned when the token's alg is not allowed,
	// or does not belong to the resolved key's family.
	ErrAlgorithmMismatch = errors.New("algorithm mismatch")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrTokenExpired is returned when exp is at or before now.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotYetValid is returned when nbf is after now.
	ErrTokenNotYetValid = errors.New("token not valid yet")
	// ErrTokenIssuedInFuture is returned when iat is after now.
	ErrTokenIssuedInFuture = errors.New("token issued in the future")
	// ErrIssuerMismatch is returned when iss does not match the expected issuer.
	ErrIssuerMismatch = errors.New("issuer mismatch")
	// ErrAudienceMismatch is returned when aud does not contain the expected audience.
	ErrAudienceMismatch = errors.New("audience mismatch")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrMalformedToken, "malformed_token"},
	{ErrMalformedKeySet, "malformed_keyset"},
	{ErrNetwork, "network"},
	{ErrUnexpectedStatus, "unexpected_status"},
	{ErrUnknownKeyID, "unknown_kid"},
	{ErrAlgorithmMismatch, "alg_mismatch"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrTokenExpired, "expired"},
	{ErrTokenNotYetValid, "not_yet_valid"},
	{ErrTokenIssuedInFuture, "issued_in_future"},
	{ErrIssuerMismatch, "issuer_mismatch"},
	{ErrAudienceMismatch, "audience_mismatch"},
}

// ErrorKind returns a short name of the error kind, suitable for metrics and logs.
// It returns "ok" for nil, and "other" for errors not produced by this package.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

// StatusError describes a non-success HTTP response from the provider.
// It is always marked with ErrUnexpectedStatus.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// mark attaches the kind to the cause, keeping the cause in the chain
func mark(kind, cause error, format string, args ...any) error {
	return errors.Mark(errors.WithMessagef(cause, format, args...), kind)
}
