// Package identity holds the token records that identify viewers.
//
// A Token is the credential a player presents on every playback check. It
// names the owning identity (UserID), its lifecycle status, its concurrency
// cap, a validity window and optional IP/stream allow-lists.
//
// The package defines the Store boundary consumed by the decision engine
// plus in-memory, SQLite and Postgres implementations. The engine only reads
// tokens and applies the lazy active->expired transition; issuing and editing
// tokens belongs to whatever owns the database.
package identity
