package envelope

import "time"

// Frame is the wire JSON shape of every outbound message. Clients read
// Payload; the Data field never appears on the wire.
type Frame struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Type      Type   `json:"type"`
	Role      string `json:"role"`
	Payload   any    `json:"payload"`
}

// ToFrame converts an Event into its wire representation. Timestamp is
// formatted RFC 3339 with a literal trailing "Z" (UTC).
func ToFrame(e Event) Frame {
	return Frame{
		MessageID: e.MessageID(),
		SessionID: e.SessionID(),
		Timestamp: e.Timestamp().UTC().Format(time.RFC3339Nano),
		Type:      e.Type(),
		Role:      string(e.Role()),
		Payload:   e.Payload(),
	}
}
