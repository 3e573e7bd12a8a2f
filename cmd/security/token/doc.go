// Package token derives session fingerprints from a playback request.
//
// A fingerprint identifies one (stream, client address, token) combination and
// is the primary key of an active session. Fields are length-prefixed before
// hashing so that values containing arbitrary bytes cannot shift field
// boundaries into one another.
//
// Modes:
//   - default: SHA-256 over the encoded fields.
//   - keyed: HMAC-SHA256 over the encoded fields when a key is configured
//     (FLUSSAUTH_FINGERPRINT_KEY).
//
// Output is always 64 lowercase hex characters.
package token
