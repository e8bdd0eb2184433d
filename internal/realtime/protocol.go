package realtime

import (
	"encoding/json"

	"github.com/chaweee/BEventique-sub000/internal/models"
)

// Client -> hub
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypePing  = "ping"
)

// Hub -> client
const (
	TypeNewMessage    = "new_message"
	TypeThreadUpdated = "thread_updated"
	TypeJoined        = "joined"
	TypeLeft          = "left"
	TypePong          = "pong"
	TypeError         = "error"
)

// Envelope is the single frame shape on the socket and on the relay channel.
type Envelope struct {
	Type     string          `json:"type"`
	ThreadID int64           `json:"thread_id,omitempty"`
	Message  *models.Message `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	// EventID is set on relayed events only.
	EventID string `json:"event_id,omitempty"`
}

func encode(envelope Envelope) ([]byte, error) {
	return json.Marshal(envelope)
}

func decode(payload []byte) (Envelope, error) {
	var envelope Envelope
	err := json.Unmarshal(payload, &envelope)
	return envelope, err
}

func newMessageEnvelope(threadID int64, message models.Message) Envelope {
	return Envelope{Type: TypeNewMessage, ThreadID: threadID, Message: &message}
}

func threadUpdatedEnvelope(threadID int64) Envelope {
	return Envelope{Type: TypeThreadUpdated, ThreadID: threadID}
}
