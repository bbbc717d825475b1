package jwt

import "encoding/base64"

// Header is the JOSE header of a token.
// It is not trusted until the signature is verified.
type Header struct {
	// Algorithm is the signing algorithm, such as RS256
	Algorithm string `json:"alg"`
	// KeyID routes the token to the key that signed it
	KeyID string `json:"kid,omitempty"`
	// Type is the token type, typically JWT
	Type string `json:"typ,omitempty"`
	// Thumbprint is the x5t of the signing certificate, set by Azure AD v1 tokens
	Thumbprint string `json:"x5t,omitempty"`
}

// Token for JWT
type Token struct {
	Raw          string // The raw token
	Header       Header // The first segment of the token
	Payload      []byte // The decoded second segment of the token, untrusted
	Signature    []byte // The decoded third segment of the token
	SigningInput string // header.payload, the signed part of the token
}

// KeyID returns the identifier of the signing key,
// falling back to x5t when kid is not present
func (t *Token) KeyID() string {
	if t.Header.KeyID != "" {
		return t.Header.KeyID
	}
	return t.Header.Thumbprint
}

// DecodeSegment JWT specific base64url encoding with padding stripped
func DecodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(seg)
}

// EncodeSegment returns JWT specific base64url encoding with padding stripped
func EncodeSegment(seg []byte) string {
	return base64.RawURLEncoding.EncodeToString(seg)
}
