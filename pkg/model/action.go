package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Action is a normalized action descriptor: a type plus arbitrary payload fields.
// On the wire it is a flat object {"type": ..., ...fields}.
type Action struct {
	Type   string
	Fields map[string]any
}

// Named returns an action carrying only a type.
func Named(actionType string) *Action {
	return &Action{Type: actionType}
}

// NewAction returns an action with the given payload fields. A "type" key in
// fields is ignored.
func NewAction(actionType string, fields map[string]any) *Action {
	a := &Action{Type: actionType}
	if len(fields) > 0 {
		a.Fields = make(map[string]any, len(fields))
		for k, v := range fields {
			if k == "type" {
				continue
			}
			a.Fields[k] = v
		}
	}
	return a
}

// Get returns a payload field.
func (a Action) Get(key string) (any, bool) {
	v, ok := a.Fields[key]
	return v, ok
}

// Clone returns a copy with its own field map.
func (a Action) Clone() Action {
	return Action{Type: a.Type, Fields: maps.Clone(a.Fields)}
}

func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Fields)+1)
	for k, v := range a.Fields {
		out[k] = v
	}
	out["type"] = a.Type
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a bare string ("inc") or an object with a
// string "type" field.
func (a *Action) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*a = Action{Type: name}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, ok := raw["type"].(string)
	if !ok {
		return ErrInvalidAction
	}
	delete(raw, "type")
	if len(raw) == 0 {
		raw = nil
	}
	*a = Action{Type: t, Fields: raw}
	return nil
}

// ParseActionText parses action text as sent by observers: either JSON object
// text or a plain action name.
func ParseActionText(text string) (Action, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Action{}, ErrMissingAction
	}
	if trimmed[0] != '{' {
		return Action{Type: trimmed}, nil
	}
	var a Action
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return a, nil
}
