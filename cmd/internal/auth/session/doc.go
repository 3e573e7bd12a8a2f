// Package session tracks active playback sessions and their expiry.
//
// A session is keyed by its fingerprint (stream, client address, token) and
// occupies one slot of its identity's concurrency limit until it expires.
// Admission decisions run inside Store.Admit, which serializes all admissions
// for one identity so the limit cannot be overshot by concurrent requests.
//
// Sweeper removes expired rows periodically and on demand.
package session
