package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Channel topics
const (
	TopicInit       = "init"
	TopicState      = "state"
	TopicDispatch   = "dispatch"
	TopicPing       = "ping"
	TopicPong       = "pong"
	TopicDisconnect = "disconnect"
)

// Dispatch message types
const (
	DispatchTypeDispatch = "DISPATCH"
	DispatchTypeAction   = "ACTION"
	DispatchTypeSync     = "SYNC"
)

// Dispatch command types carried in DispatchMessage.Action on the DISPATCH path
const (
	CommandReset          = "RESET"
	CommandCommit         = "COMMIT"
	CommandRollback       = "ROLLBACK"
	CommandJumpToState    = "JUMP_TO_STATE"
	CommandJumpToAction   = "JUMP_TO_ACTION"
	CommandPauseRecording = "PAUSE_RECORDING"
	CommandImportState    = "IMPORT_STATE"
)

// Reserved action types
const (
	ActionHydrate   = "@@HYDRATE"
	ActionRehydrate = "@@REHYDRATE"
	ActionSetState  = "__setState"

	DefaultAnonymousActionType = "anonymous"
	DefaultInstanceName        = "store"
)

// Envelope frames a topic and payload on transports that carry a single
// stream (websocket).
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitMessage announces an instance and its initial snapshot (origin -> observer).
type InitMessage struct {
	Name  string `json:"name,omitempty"`
	State any    `json:"state"`
}

// StateMessage reports one applied mutation (origin -> observer).
type StateMessage struct {
	Name   string  `json:"name,omitempty"`
	Type   string  `json:"type"`
	Action *Action `json:"action,omitempty"`
	State  any     `json:"state"`
}

// DescribedAction returns the full action descriptor, falling back to Type.
func (m StateMessage) DescribedAction() Action {
	if m.Action != nil && m.Action.Type != "" {
		return m.Action.Clone()
	}
	return Action{Type: m.Type}
}

// DispatchMessage carries observer commands down to origins, and relay emits
// back up to them.
type DispatchMessage struct {
	Type            string          `json:"type,omitempty"`
	Action          json.RawMessage `json:"action,omitempty"`
	State           string          `json:"state,omitempty"`
	NextLiftedState *LiftedState    `json:"nextLiftedState,omitempty"`
	InstanceID      InstanceID      `json:"instanceId,omitempty"`
}

// ParseAction decodes the action field. A JSON string is treated as action
// text (object JSON or a plain name), an object as the action itself.
func (m DispatchMessage) ParseAction() (Action, error) {
	raw := bytes.TrimSpace(m.Action)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Action{}, ErrMissingAction
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Action{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return ParseActionText(text)
	}
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return a, nil
}

// WithAction sets the action field from a descriptor.
func (m *DispatchMessage) WithAction(a Action) *DispatchMessage {
	m.Action, _ = json.Marshal(a)
	return m
}

// PingMessage is a connectivity probe; the receiver echoes it on TopicPong.
type PingMessage struct {
	From string `json:"from,omitempty"`
}

// DisconnectMessage signals that an instance left.
type DisconnectMessage struct {
	Name string `json:"name,omitempty"`
}

// InstanceID identifies an instance. It accepts JSON strings or numbers and
// always serializes as a string.
type InstanceID string

func (id *InstanceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = InstanceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("instance id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = InstanceID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = InstanceID(n.String())
	return nil
}

func (id InstanceID) String() string { return string(id) }

// Decode unmarshals a channel payload into v, tagging failures as malformed.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
