package room

import (
	"encoding/json"

	"github.com/christopherjohns/fekoyaha/internal/chat"
)

// Envelope is the JSON structure exchanged over the WebSocket in both
// directions: a type tag plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types.
const (
	EventPing    = "ping"
	EventMessage = "message"
)

// Outbound event types.
const (
	EventPong       = "pong"
	EventHistory    = "history"
	EventUsers      = "users"
	EventRoomStatus = "room-status"
	EventError      = "error"
)

// PostPayload is the payload of an inbound "message" event.
type PostPayload struct {
	Kind    chat.Kind `json:"type"`
	Content string    `json:"content"`
}

// HistoryPayload carries the replayed log tail on connect, and the empty
// log after an administrative clear.
type HistoryPayload struct {
	Messages []chat.Message `json:"messages"`
}

// UsersPayload carries the current participant snapshot.
type UsersPayload struct {
	Users []chat.Sender `json:"users"`
	Count int           `json:"count"`
}

// RoomStatusPayload announces a lock state change.
type RoomStatusPayload struct {
	IsLocked bool `json:"isLocked"`
}

// ErrorPayload carries a client-facing error description.
type ErrorPayload struct {
	Message string `json:"message"`
}

// encodeEvent marshals a typed payload into an envelope's wire bytes.
func encodeEvent(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = data
	}
	return json.Marshal(env)
}
