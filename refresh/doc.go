// Package refresh encodes opaque rotating refresh tokens.
//
// A token is the base64url (unpadded) encoding of a 16-byte session ID
// followed by a 32-byte secret. Servers keep only [Secret.Hash]; a token
// whose secret no longer matches the stored hash is a replay of a rotated
// token.
//
// The package does no I/O. Rotation and replay handling belong to the
// server that issues the tokens (see backend/backendtest).
package refresh
