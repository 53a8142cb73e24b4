// Package jwt reads and mints JSON Web Tokens used as access tokens.
//
// # Client side
//
// [Inspect] and [ExpiresAt] decode the claims of an access token WITHOUT
// verifying its signature. The client never holds the verification key; it
// only needs the expiry to decide when to refresh proactively. Nothing read
// through Inspect may be used for authorization.
//
// # Issuing side
//
// [Manager] signs and verifies tokens (Ed25519 or HS256). It backs the
// in-process fake backend used by tests, the demo server and the refresh
// storm tool.
package jwt
