package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"

	"github.com/cockroachdb/errors"
	jose "github.com/go-jose/go-jose/v3"
)

// Key types
const (
	KeyTypeRSA = "RSA"
	KeyTypeEC  = "EC"
)

// Key is a public verification key published by the identity provider.
type Key struct {
	// KeyID is the kid of the key, unique within a key set
	KeyID string
	// KeyType is RSA or EC
	KeyType string
	// Algorithm is the optional alg the key is intended for
	Algorithm string
	// Use is the optional intended use, `sig` for signing keys
	Use string
	// Thumbprint is base64url encoded SHA-1 thumbprint of the certificate (x5t)
	Thumbprint string
	// Public is *rsa.PublicKey or *ecdsa.PublicKey
	Public crypto.PublicKey
	// Certificates is the optional x5c chain
	Certificates []*x509.Certificate
}

// KeySet is an immutable set of keys, indexed by kid and x5t.
type KeySet struct {
	keys         []*Key
	byID         map[string]*Key
	byThumbprint map[string]*Key
}

// NewKeySet returns a key set from the keys.
// When keys share a kid, the first one wins.
func NewKeySet(keys ...*Key) *KeySet {
	s := &KeySet{
		keys:         make([]*Key, 0, len(keys)),
		byID:         make(map[string]*Key, len(keys)),
		byThumbprint: make(map[string]*Key, len(keys)),
	}
	for _, k := range keys {
		if k == nil {
			continue
		}
		s.keys = append(s.keys, k)
		if _, ok := s.byID[k.KeyID]; !ok && k.KeyID != "" {
			s.byID[k.KeyID] = k
		}
		if _, ok := s.byThumbprint[k.Thumbprint]; !ok && k.Thumbprint != "" {
			s.byThumbprint[k.Thumbprint] = k
		}
	}
	return s
}

// Find returns the key for kid.
// Azure AD sets the kid header to the x5t of the key,
// so the thumbprint is checked when no key has the kid.
func (s *KeySet) Find(kid string) (*Key, bool) {
	if s == nil || kid == "" {
		return nil, false
	}
	if k, ok := s.byID[kid]; ok {
		return k, true
	}
	k, ok := s.byThumbprint[kid]
	return k, ok
}

// Keys returns a copy of the keys, in the published order
func (s *KeySet) Keys() []*Key {
	if s == nil {
		return nil
	}
	return append([]*Key(nil), s.keys...)
}

// Len returns the number of keys
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// ParseKeySet parses a JWKS document.
// Every key must be a public RSA or EC key with kid or x5t,
// otherwise ErrMalformedKeySet is returned. Keys not intended for
// signatures are skipped.
func ParseKeySet(data []byte) (*KeySet, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, mark(ErrMalformedKeySet, err, "failed to decode JWKS")
	}
	if doc.Keys == nil {
		return nil, errors.Wrap(ErrMalformedKeySet, "JWKS has no keys")
	}

	keys := make([]*Key, 0, len(doc.Keys))
	for idx, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := json.Unmarshal(raw, &jwk); err != nil {
			return nil, mark(ErrMalformedKeySet, err, "failed to decode key [%d]", idx)
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		key, err := FromJSONWebKey(&jwk)
		if err != nil {
			return nil, errors.WithMessagef(err, "key [%d]", idx)
		}
		keys = append(keys, key)
	}
	return NewKeySet(keys...), nil
}

// FromJSONWebKey returns Key from a decoded JWK
func FromJSONWebKey(jwk *jose.JSONWebKey) (*Key, error) {
	if jwk == nil || jwk.Key == nil {
		return nil, errors.Wrap(ErrMalformedKeySet, "key material is missing")
	}
	key := &Key{
		KeyID:        jwk.KeyID,
		Algorithm:    jwk.Algorithm,
		Use:          jwk.Use,
		Public:       jwk.Key,
		Certificates: jwk.Certificates,
	}
	if len(jwk.CertificateThumbprintSHA1) > 0 {
		key.Thumbprint = base64.RawURLEncoding.EncodeToString(jwk.CertificateThumbprintSHA1)
	}

	switch jwk.Key.(type) {
	case *rsa.PublicKey:
		key.KeyType = KeyTypeRSA
	case *ecdsa.PublicKey:
		key.KeyType = KeyTypeEC
	default:
		return nil, errors.Wrapf(ErrMalformedKeySet, "unsupported key type %T, kid %q", jwk.Key, jwk.KeyID)
	}

	if key.KeyID == "" && key.Thumbprint == "" {
		return nil, errors.Wrap(ErrMalformedKeySet, "key has neither kid nor x5t")
	}
	return key, nil
}
