package presence

import "time"

// Inbound message types accepted over the socket.
const (
	MsgSetAvailability = "set:availability"
	MsgLocationUpdate  = "location:update"
	MsgRequestNearby   = "request:nearby"
	MsgTrackEngagement = "engagement:track"
	MsgUntrack         = "engagement:untrack"
)

// Message is the frame exchanged over the socket, both directions.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Payload   interface{}            `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func outbound(event string, payload interface{}) Message {
	return Message{Type: event, Payload: payload, Timestamp: time.Now()}
}

func errorMessage(code, detail string) Message {
	return Message{
		Type:      "error",
		Data:      map[string]interface{}{"code": code, "error": detail},
		Timestamp: time.Now(),
	}
}
