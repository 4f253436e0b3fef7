// Package auth guards the admin API.
//
// There is one account, configured as a username and an Argon2id password
// hash. A successful login returns a short-lived HS256 access token whose
// claims carry the role; the API middleware verifies it by signature only.
// Tokens cannot be revoked before they expire.
package auth
