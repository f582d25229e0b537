package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/pkg/model"
)

func counter(set SetFunc, get GetFunc, api *API) State {
	return State{"count": 0, "label": "counter"}
}

func TestNew_InitialState(t *testing.T) {
	s := New(counter)
	assert.Equal(t, State{"count": 0, "label": "counter"}, s.GetState())
}

func TestSetState_Merge(t *testing.T) {
	s := New(counter)
	s.SetState(State{"count": 1}, false, nil)
	assert.Equal(t, State{"count": 1, "label": "counter"}, s.GetState())
}

func TestSetState_Replace(t *testing.T) {
	s := New(counter)
	s.SetState(State{"count": 5}, true, nil)
	assert.Equal(t, State{"count": 5}, s.GetState())
}

func TestSetState_NotifiesListeners(t *testing.T) {
	s := New(counter)

	var calls int
	var last, prev State
	unsubscribe := s.Subscribe(func(state, p State) {
		calls++
		last, prev = state, p
	})

	s.SetState(State{"count": 2}, false, nil)
	require.Equal(t, 1, calls)
	assert.Equal(t, 2, last["count"])
	assert.Equal(t, 0, prev["count"])

	unsubscribe()
	s.SetState(State{"count": 3}, false, nil)
	assert.Equal(t, 1, calls)
}

func TestGetState_ReturnsCopy(t *testing.T) {
	s := New(counter)
	got := s.GetState()
	got["count"] = 99
	assert.Equal(t, 0, s.GetState()["count"])
}

func TestSetState_GoesThroughDecoratedEntryPoint(t *testing.T) {
	var intercepted int
	s := New(func(set SetFunc, get GetFunc, api *API) State {
		original := api.SetState
		api.SetState = func(partial State, replace bool, action *model.Action) {
			intercepted++
			original(partial, replace, action)
		}
		return State{"count": 0}
	})

	s.SetState(State{"count": 1}, false, nil)
	assert.Equal(t, 1, intercepted)
	assert.Equal(t, 1, s.GetState()["count"])
}

func TestMerge(t *testing.T) {
	base := State{"a": 1, "b": 2}
	out := Merge(base, State{"b": 3, "c": 4})
	assert.Equal(t, State{"a": 1, "b": 3, "c": 4}, out)
	assert.Equal(t, State{"a": 1, "b": 2}, base)
}
