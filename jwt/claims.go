package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	gojwt "github.com/golang-jwt/jwt/v5"
)

var registeredClaimNames = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti"}

// Claims of a verified token.
// Claims are produced only by Validator, after the signature is verified.
type Claims struct {
	gojwt.RegisteredClaims

	// Extra contains provider specific claims, such as tid, oid or roles.
	// Numbers are decoded as json.Number.
	Extra map[string]any `json:"-"`

	raw []byte
}

// decodeClaims deserializes the payload
func decodeClaims(payload []byte) (*Claims, error) {
	c := &Claims{
		raw: payload,
	}
	if err := json.Unmarshal(payload, &c.RegisteredClaims); err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to decode claims")
	}

	var all map[string]any
	d := json.NewDecoder(bytes.NewReader(payload))
	d.UseNumber()
	if err := d.Decode(&all); err != nil {
		return nil, mark(ErrMalformedToken, err, "failed to decode claims")
	}
	if all == nil {
		return nil, errors.Wrap(ErrMalformedToken, "claims must be a JSON object")
	}

	// NumericDate of golang-jwt is truncated to seconds,
	// time claims are kept at full precision
	for name, dst := range map[string]**gojwt.NumericDate{
		"exp": &c.ExpiresAt,
		"nbf": &c.NotBefore,
		"iat": &c.IssuedAt,
	} {
		nd, err := numericDate(all, name)
		if err != nil {
			return nil, err
		}
		*dst = nd
	}

	for _, name := range registeredClaimNames {
		delete(all, name)
	}
	c.Extra = all
	return c, nil
}

// MarshalJSON returns the verified payload
func (c *Claims) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	return json.Marshal(c.RegisteredClaims)
}

// To converts the claims to the value pointed to by v,
// for providers claims not covered by Claims
func (c *Claims) To(v any) error {
	raw, err := c.MarshalJSON()
	if err != nil {
		return errors.WithStack(err)
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// String will return the named claim as a string,
// if the underlying type is not a string,
// it will try and co-oerce it to a string.
func (c *Claims) String(k string) string {
	v := c.Extra[k]
	if v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns the named claim as a list of strings,
// accepting both a single value and an array
func (c *Claims) Strings(k string) []string {
	switch tv := c.Extra[k].(type) {
	case string:
		return []string{tv}
	case []any:
		list := make([]string, 0, len(tv))
		for _, v := range tv {
			if s, ok := v.(string); ok {
				list = append(list, s)
			}
		}
		return list
	default:
		return nil
	}
}

// TenantID returns tid claim
func (c *Claims) TenantID() string { return c.String("tid") }

// ObjectID returns oid claim, the immutable identifier of the user or service principal
func (c *Claims) ObjectID() string { return c.String("oid") }

// AuthorizedParty returns azp claim, the application ID of the client
func (c *Claims) AuthorizedParty() string { return c.String("azp") }

// PreferredUsername returns preferred_username claim
func (c *Claims) PreferredUsername() string { return c.String("preferred_username") }

// Name returns name claim
func (c *Claims) Name() string { return c.String("name") }

// Version returns ver claim, 1.0 or 2.0
func (c *Claims) Version() string { return c.String("ver") }

// Roles returns roles claim
func (c *Claims) Roles() []string { return c.Strings("roles") }

// Scopes returns space separated scp claim as a list
func (c *Claims) Scopes() []string { return strings.Fields(c.String("scp")) }

// verifyTime validates exp, nbf and iat against now
func (c *Claims) verifyTime(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return errors.Wrap(ErrTokenExpired, "exp claim not found")
	}
	if exp := c.ExpiresAt.Time; !exp.After(now.Add(-leeway)) {
		return errors.Wrapf(ErrTokenExpired, "expired at %s", exp.UTC().Format(time.RFC3339))
	}
	if c.NotBefore != nil {
		if nbf := c.NotBefore.Time; nbf.After(now.Add(leeway)) {
			return errors.Wrapf(ErrTokenNotYetValid, "not before %s", nbf.UTC().Format(time.RFC3339))
		}
	}
	if c.IssuedAt != nil {
		if iat := c.IssuedAt.Time; iat.After(now.Add(leeway)) {
			return errors.Wrapf(ErrTokenIssuedInFuture, "issued at %s", iat.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

// verifyIdentity validates iss and aud
func (c *Claims) verifyIdentity(issuer, audience string) error {
	if issuer == "" || c.Issuer != issuer {
		return errors.Wrapf(ErrIssuerMismatch, "invalid issuer: %q, expected: %q", c.Issuer, issuer)
	}
	if audience == "" || !slices.Contains(c.Audience, audience) {
		return errors.Wrapf(ErrAudienceMismatch, "token missing audience: %q", audience)
	}
	return nil
}

// numericDate returns the named time claim, or nil if not present.
// RFC 7519 NumericDate is a JSON number of seconds, possibly fractional.
func numericDate(all map[string]any, name string) (*gojwt.NumericDate, error) {
	v := all[name]
	if v == nil {
		return nil, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedToken, "%s claim must be a number", name)
	}
	t, err := parseNumericDate(n)
	if err != nil {
		return nil, mark(ErrMalformedToken, err, "invalid %s claim", name)
	}
	return &gojwt.NumericDate{Time: t}, nil
}

func parseNumericDate(n json.Number) (time.Time, error) {
	if sec, err := n.Int64(); err == nil {
		return time.Unix(sec, 0), nil
	}

	s := n.String()
	if whole, frac, ok := strings.Cut(s, "."); ok && frac != "" && !strings.ContainsAny(frac, "eE") {
		sec, err := strconv.ParseInt(whole, 10, 64)
		if err == nil {
			if len(frac) > 9 {
				frac = frac[:9]
			}
			nsec, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
			if err == nil {
				if strings.HasPrefix(whole, "-") {
					nsec = -nsec
				}
				return time.Unix(sec, nsec), nil
			}
		}
	}

	f, err := n.Float64()
	if err != nil {
		return time.Time{}, errors.WithStack(err)
	}
	if math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return time.Time{}, errors.Errorf("out of range: %s", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}
