// Package apikey verifies the management API key presented in X-API-Key.
//
// The configured secret may be:
//   - a plain key (compared in constant time),
//   - a bcrypt hash ($2a$, $2b$, $2y$),
//   - an Argon2id hash in PHC form ($argon2id$v=19$m=..,t=..,p=..$salt$hash).
//
// Hashed forms let operators keep the raw key out of the environment.
// HashArgon2id produces the Argon2id form (see `flussauthctl hash-key`).
package apikey
