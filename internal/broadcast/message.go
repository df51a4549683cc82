// Package broadcast fans the live occupancy count out to WebSocket, SSE and
// MQTT subscribers.
package broadcast

import (
	"time"

	"github.com/JaimeStill/headcount/internal/occupancy"
)

// Message is the payload delivered to every subscriber.
type Message struct {
	Count     int    `json:"count"`
	Timestamp string `json:"timestamp"`
}

// NewMessage formats v with an RFC 3339 UTC timestamp at nanosecond precision.
func NewMessage(v occupancy.LiveCount) Message {
	return Message{
		Count:     v.Count,
		Timestamp: v.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
