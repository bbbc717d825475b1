package jwttest

/*
MIT License.

Copyright 2022 Denis Issoupov

Permission is hereby granted, free of charge, to any person obtaining
a copy of this software and associated documentation files (the
"Software"), to deal in the Software without restriction, including
without limitation the rights to use, copy, modify, merge, publish,
distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to
the following conditions:

The above copyright notice and this permission notice shall be
included in all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/jwt"
	jose "github.com/go-jose/go-jose/v3"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

type hasher struct {
	hash crypto.Hash
}

func (h hasher) HashFunc() crypto.Hash {
	return h.hash
}

// Signer issues test tokens signed with an asymmetric key
type Signer struct {
	hasher  hasher
	keySize int
	algo    string
	kid     string
	signer  crypto.Signer
}

// NewSigner returns *Signer, the algorithm is derived from the key
func NewSigner(kid string, signer crypto.Signer) (*Signer, error) {
	si := &Signer{
		kid:    kid,
		signer: signer,
	}

	switch typ := signer.Public().(type) {
	case *rsa.PublicKey:
		si.keySize = typ.N.BitLen()
		switch {
		case si.keySize >= 4096:
			si.algo = "RS512"
			si.hasher.hash = crypto.SHA512
		case si.keySize >= 3072:
			si.algo = "RS384"
			si.hasher.hash = crypto.SHA384
		default:
			si.algo = "RS256"
			si.hasher.hash = crypto.SHA256
		}
	case *ecdsa.PublicKey:
		switch typ.Curve {
		case elliptic.P521():
			si.algo = "ES512"
			si.hasher.hash = crypto.SHA512
		case elliptic.P384():
			si.algo = "ES384"
			si.hasher.hash = crypto.SHA384
		default:
			si.algo = "ES256"
			si.hasher.hash = crypto.SHA256
		}
		si.keySize = typ.Curve.Params().BitSize
	default:
		return nil, errors.Errorf("public key not supported: %T", typ)
	}
	return si, nil
}

// NewRSASigner returns a signer with a new RSA 2048 key
func NewRSASigner(kid string) (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewSigner(kid, key)
}

// NewECSigner returns a signer with a new ECDSA key
func NewECSigner(kid string, curve elliptic.Curve) (*Signer, error) {
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewSigner(kid, key)
}

// KeyID returns kid of the signer
func (si *Signer) KeyID() string {
	return si.kid
}

// Algorithm returns alg of the signer
func (si *Signer) Algorithm() string {
	return si.algo
}

// Public returns the public key
func (si *Signer) Public() crypto.PublicKey {
	return si.signer.Public()
}

// JWK returns the public JWK of the signer
func (si *Signer) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       si.signer.Public(),
		KeyID:     si.kid,
		Algorithm: si.algo,
		Use:       "sig",
	}
}

// JWKWithCertificate returns the public JWK of the signer
// with x5c chain of a self-signed certificate and its x5t
func (si *Signer) JWKWithCertificate(subject string) (jose.JSONWebKey, error) {
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: subject},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, si.signer.Public(), si.signer)
	if err != nil {
		return jose.JSONWebKey{}, errors.WithStack(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return jose.JSONWebKey{}, errors.WithStack(err)
	}
	sum := sha1.Sum(der)

	jwk := si.JWK()
	jwk.Certificates = []*x509.Certificate{cert}
	jwk.CertificateThumbprintSHA1 = sum[:]
	return jwk, nil
}

// Sign returns a signed token with kid header
func (si *Signer) Sign(claims any) (string, error) {
	return si.SignWithHeader(claims, map[string]any{"kid": si.kid})
}

// SignWithHeader returns a signed token with the headers.
// alg and typ headers are set, unless provided.
func (si *Signer) SignWithHeader(claims any, headers map[string]any) (string, error) {
	header := map[string]any{
		"typ": "JWT",
		"alg": si.algo,
	}
	for k, v := range headers {
		header[k] = v
	}

	jsonHeader, err := json.Marshal(header)
	if err != nil {
		return "", errors.WithStack(err)
	}
	jsonClaims, err := json.Marshal(claims)
	if err != nil {
		return "", errors.WithStack(err)
	}

	sstr := jwt.EncodeSegment(jsonHeader) + "." + jwt.EncodeSegment(jsonClaims)
	sig, err := si.sign(sstr)
	if err != nil {
		return "", err
	}
	return sstr + "." + sig, nil
}

// sign returns signed segment
func (si *Signer) sign(signingString string) (string, error) {
	h := si.hasher.hash.New()
	h.Write([]byte(signingString))

	sig, err := si.signer.Sign(rand.Reader, h.Sum(nil), si.hasher)
	if err != nil {
		return "", errors.WithStack(err)
	}

	switch si.algo {
	case "ES256", "ES384", "ES512":
		// for ECDSA, signature is encoded ASN1{r,s}
		var (
			r, s  = &big.Int{}, &big.Int{}
			inner cryptobyte.String
		)
		input := cryptobyte.String(sig)
		if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
			!input.Empty() ||
			!inner.ReadASN1Integer(r) ||
			!inner.ReadASN1Integer(s) ||
			!inner.Empty() {
			return "", errors.Errorf("unable to decode ECDSA signature")
		}

		curveBits := si.keySize
		keyBytes := curveBits / 8
		if curveBits%8 > 0 {
			keyBytes++
		}

		// We serialize the outputs (r and s) into big-endian byte arrays
		// padded with zeros on the left to make sure the sizes work out.
		// Output must be 2*keyBytes long.
		out := make([]byte, 2*keyBytes)
		r.FillBytes(out[0:keyBytes]) // r is assigned to the first half of output.
		s.FillBytes(out[keyBytes:])  // s is assigned to the second half of output.

		return jwt.EncodeSegment(out), nil
	}
	return jwt.EncodeSegment(sig), nil
}

// KeySetJSON returns JWKS document with the keys
func KeySetJSON(keys ...jose.JSONWebKey) ([]byte, error) {
	set := jose.JSONWebKeySet{Keys: keys}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return raw, nil
}
