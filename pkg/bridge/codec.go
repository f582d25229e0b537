package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/syntrixbase/devbridge/pkg/model"
	"github.com/syntrixbase/devbridge/pkg/store"
)

// Codec transforms state crossing the channel.
type Codec interface {
	// Encode prepares outgoing state. The result is JSON-encoded by the channel.
	Encode(state store.State) (any, error)
	// Decode parses state text received from an observer.
	Decode(text string) (store.State, error)
}

// Transform is a per-value hook, called with each nested value and its key
// ("" for the root, the index for array elements). It returns the value to
// use in its place.
type Transform func(key string, value any) (any, error)

// JSONCodec is the default Codec: plain JSON, with optional Replacer applied
// top-down before sending and Reviver applied bottom-up after parsing.
type JSONCodec struct {
	Replacer Transform
	Reviver  Transform
}

var _ Codec = JSONCodec{}

func (c JSONCodec) Encode(state store.State) (any, error) {
	if c.Replacer == nil {
		return state, nil
	}
	return replaceValue("", map[string]any(state), c.Replacer)
}

func (c JSONCodec) Decode(text string) (store.State, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	if c.Reviver != nil {
		var err error
		if v, err = reviveValue("", v, c.Reviver); err != nil {
			return nil, err
		}
	}
	state, ok := asState(v)
	if !ok {
		return nil, fmt.Errorf("%w: state must be an object", model.ErrMalformedPayload)
	}
	return state, nil
}

func replaceValue(key string, v any, fn Transform) (any, error) {
	v, err := fn(key, v)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			r, err := replaceValue(k, child, fn)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			r, err := replaceValue(strconv.Itoa(i), child, fn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func reviveValue(key string, v any, fn Transform) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			r, err := reviveValue(k, child, fn)
			if err != nil {
				return nil, err
			}
			t[k] = r
		}
	case []any:
		for i, child := range t {
			r, err := reviveValue(strconv.Itoa(i), child, fn)
			if err != nil {
				return nil, err
			}
			t[i] = r
		}
	}
	return fn(key, v)
}

func asState(v any) (store.State, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}
