// Package jwt validates bearer tokens issued by Azure AD,
// or any OpenID Connect provider publishing its keys as JWKS.
//
// The package provides:
//   - JWK model: KeySet parsed from a JWKS document, indexed by kid and x5t
//   - DiscoveryClient: fetches the OpenID discovery document and the JWKS
//   - KeyCache: in-memory key set with a single refresh on unknown kid
//   - ParseUnverified: splits a compact token to route it to its key
//   - Validator: verifies the signature and the claims, and returns trusted Claims
//
// Errors are returned with one of the Err* kinds attached,
// use errors.Is to inspect them.
package jwt
