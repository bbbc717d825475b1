package jwt

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"slices"

	"github.com/cockroachdb/errors"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithms is the list of asymmetric algorithms accepted by default.
// Symmetric algorithms and `none` are never accepted.
var DefaultAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// verifySignature verifies the token signature with the key.
// The algorithm declared in the header must be allowed,
// and must belong to the key's family.
func verifySignature(token *Token, key *Key, allowed []string) error {
	alg := token.Header.Algorithm
	if !slices.Contains(allowed, alg) {
		return errors.Wrapf(ErrAlgorithmMismatch, "alg not allowed: %s", alg)
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return errors.Wrapf(ErrAlgorithmMismatch, "alg %s does not match key %q alg %s", alg, key.KeyID, key.Algorithm)
	}

	method := gojwt.GetSigningMethod(alg)
	switch m := method.(type) {
	case *gojwt.SigningMethodRSA, *gojwt.SigningMethodRSAPSS:
		if _, ok := key.Public.(*rsa.PublicKey); !ok {
			return errors.Wrapf(ErrAlgorithmMismatch, "alg %s requires RSA key, kid %q is %s", alg, key.KeyID, key.KeyType)
		}
	case *gojwt.SigningMethodECDSA:
		pub, ok := key.Public.(*ecdsa.PublicKey)
		if !ok {
			return errors.Wrapf(ErrAlgorithmMismatch, "alg %s requires EC key, kid %q is %s", alg, key.KeyID, key.KeyType)
		}
		if pub.Curve.Params().BitSize != m.CurveBits {
			return errors.Wrapf(ErrAlgorithmMismatch, "alg %s does not match curve %s, kid %q", alg, pub.Curve.Params().Name, key.KeyID)
		}
	default:
		return errors.Wrapf(ErrAlgorithmMismatch, "unsupported signing method: %s", alg)
	}

	if err := method.Verify(token.SigningInput, token.Signature, key.Public); err != nil {
		return mark(ErrInvalidSignature, err, "failed to verify token, kid %q", key.KeyID)
	}
	return nil
}
