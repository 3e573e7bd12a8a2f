package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit). Clients only send small control envelopes.
	maxFrameBytes = 8 << 10 // 8 KiB

	// Max length of a single filter field.
	maxFilterFieldChars = 256
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (inbound events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
