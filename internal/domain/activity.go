package domain

import "time"

// ActivityEntry is presentation-only telemetry, never safety-critical.
type ActivityEntry struct {
	ConnID    ConnectionID   `json:"conn_id"`
	Kind      string         `json:"kind"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
