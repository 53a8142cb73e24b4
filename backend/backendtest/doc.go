// Package backendtest runs an in-process authentication backend that speaks
// the REST contract consumed by package backend.
//
// The server issues Ed25519-signed access tokens (package jwt) and opaque
// rotating refresh tokens (package refresh), hashes passwords with Argon2id
// (package password) and can throttle logins and reset requests through
// Redis counters.
// A replayed refresh token revokes its session.
//
// Hooks let tests hold refresh requests open, fail them, or revoke every
// outstanding access token; counters report how many calls each endpoint
// received.
package backendtest
