package relay

import (
	"encoding/json"

	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// UI websocket message types
const (
	TypeAuth     = "auth"
	TypeAuthAck  = "auth_ack"
	TypeCommand  = "command"
	TypeAck      = "ack"
	TypeUpdate   = "update"
	TypeSnapshot = "snapshot"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"
)

// BaseMessage is the envelope for all UI messages
type BaseMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthPayload
type AuthPayload struct {
	Token string `json:"token"`
}

// AckPayload answers a command (Server -> Client)
type AckPayload struct {
	Lifted *model.LiftedState `json:"lifted,omitempty"`
}

// SnapshotPayload lists every known instance (Server -> Client)
type SnapshotPayload struct {
	Instances []actionlog.Summary `json:"instances"`
	Connected []string            `json:"connected"`
	Selected  string              `json:"selected,omitempty"`
	Sync      bool                `json:"sync"`
}

// ErrorPayload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v) // Should not fail for internal types
	return b
}

func errorMessage(id, code, message string) BaseMessage {
	return BaseMessage{ID: id, Type: TypeError, Payload: mustMarshal(ErrorPayload{Code: code, Message: message})}
}
