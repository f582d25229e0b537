// Package store provides the host-side store capability the devtools bridge
// decorates: a keyed state container with a single mutation entry point.
package store

import (
	"maps"
	"sync"

	"github.com/syntrixbase/devbridge/pkg/model"
)

// State is the keyed state held by a store.
type State = map[string]any

// SetFunc is the mutation entry point. Partial state is shallow-merged unless
// replace is true. action is an optional descriptor for observers; the store
// itself ignores it.
type SetFunc func(partial State, replace bool, action *model.Action)

// GetFunc returns the current state.
type GetFunc func() State

// Listener is called after every applied mutation.
type Listener func(state, prev State)

// Cleaner releases resources attached to a store by a middleware.
type Cleaner interface {
	Cleanup()
}

// API is the public surface of a store. Middlewares decorate it by replacing
// SetState before the initializer runs.
type API struct {
	SetState SetFunc
	GetState GetFunc

	// Subscribe registers a listener called after each mutation, outside
	// the store's lock. A listener may call SetState, but decorations such
	// as the devtools bridge serialize host mutations, so it must not do so
	// re-entrantly from a SetState made on the host path.
	Subscribe func(Listener) (unsubscribe func())

	// Dispatch is optional; reducer-style stores set it so observers can
	// dispatch actions into them.
	Dispatch func(model.Action)

	// Devtools is set by the devtools bridge when it wraps this store.
	Devtools Cleaner
}

// Initializer builds the initial state. set is the (possibly decorated)
// mutation entry point.
type Initializer func(set SetFunc, get GetFunc, api *API) State

// Store is an in-memory State container.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
	api       *API
}

// New creates a store and runs the initializer. The initializer's return
// value becomes the current state.
func New(init Initializer) *Store {
	s := &Store{listeners: make(map[int]Listener)}
	s.api = &API{
		SetState:  s.apply,
		GetState:  s.snapshot,
		Subscribe: s.subscribe,
	}

	initial := init(s.api.SetState, s.api.GetState, s.api)

	s.mu.Lock()
	s.state = maps.Clone(initial)
	if s.state == nil {
		s.state = State{}
	}
	s.mu.Unlock()
	return s
}

// API returns the store's public surface.
func (s *Store) API() *API {
	return s.api
}

// GetState returns a shallow copy of the current state.
func (s *Store) GetState() State {
	return s.api.GetState()
}

// SetState mutates through the public entry point, so decorations apply.
func (s *Store) SetState(partial State, replace bool, action *model.Action) {
	s.api.SetState(partial, replace, action)
}

// Subscribe registers a listener and returns its unsubscribe func.
func (s *Store) Subscribe(l Listener) func() {
	return s.api.Subscribe(l)
}

func (s *Store) apply(partial State, replace bool, _ *model.Action) {
	s.mu.Lock()
	prev := s.state
	var next State
	if replace {
		next = maps.Clone(partial)
		if next == nil {
			next = State{}
		}
	} else {
		next = Merge(prev, partial)
	}
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(maps.Clone(next), prev)
	}
}

func (s *Store) snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.state)
}

func (s *Store) subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Merge returns a shallow merge of partial over base. Neither input is modified.
func Merge(base, partial State) State {
	out := make(State, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}
