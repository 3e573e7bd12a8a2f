// Package decision answers playback authorization requests.
//
// Evaluate holds the pure part of the decision (status, validity window and
// allow-lists). Engine adds token lookup, concurrency admission through the
// session store, lazy expiry persistence, access logging and metrics.
package decision
