package jwt

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseUnverified splits the compact serialized token into its segments
// and decodes the header. It doesn't validate the signature, and the
// returned token must not be used to make trust decisions: its only purpose
// is to extract kid and alg needed before verification.
//
// The payload is decoded from base64url, but its claims are deserialized
// only after the signature is verified.
func ParseUnverified(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.Wrapf(ErrMalformedToken, "expected 3 segments, got %d", len(parts))
	}

	headerBytes, err := DecodeSegment(parts[0])
	if err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to decode header")
	}
	token := &Token{
		Raw:          raw,
		SigningInput: parts[0] + "." + parts[1],
	}
	if err = json.Unmarshal(headerBytes, &token.Header); err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to unmarshal header")
	}
	if token.Header.Algorithm == "" {
		return nil, errors.Wrap(ErrMalformedToken, "invalid token: no alg specified")
	}

	if token.Payload, err = DecodeSegment(parts[1]); err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to decode payload")
	}
	if token.Signature, err = DecodeSegment(parts[2]); err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to decode signature")
	}

	return token, nil
}
