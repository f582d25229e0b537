// Package bridge connects a store to a remote time-travel debugger.
//
// Wrap decorates a store initializer: every mutation through the store's
// SetState is labeled with an action and reported to the observer over a
// shared channel, and observer commands (reset, commit, rollback, jumps,
// pause) are applied back onto the store.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/syntrixbase/devbridge/pkg/channel"
	"github.com/syntrixbase/devbridge/pkg/model"
	"github.com/syntrixbase/devbridge/pkg/store"
)

// maxQueued caps messages waiting for the observer. When full the oldest
// message is dropped.
const maxQueued = 1000

type outbound struct {
	topic   string
	payload any
}

// Session is the bridge attached to one store instance.
type Session struct {
	name   string
	opts   Options
	logger *slog.Logger

	set store.SetFunc
	get store.GetFunc
	api *store.API

	// serializes store applies with the order of the messages they produce
	mu           sync.Mutex
	recording    bool
	initializing bool
	suspended    int
	snapshot     store.State
	initSent     bool
	unavailable  bool
	sub          channel.Subscription
	closed       bool

	// drained by a single goroutine from connect until Cleanup
	out     chan outbound
	dropped atomic.Int64
	lost    atomic.Bool

	ready chan struct{}
}

var _ store.Cleaner = (*Session)(nil)

// Wrap returns an initializer that bridges the store it builds.
//
// Listeners and the store's own code must not call SetState re-entrantly
// from within a host SetState call on the same store. Listeners may call
// SetState or Cleanup while a state sent by the observer is being applied.
func Wrap(init store.Initializer, opts Options) store.Initializer {
	if opts.Disabled {
		return init
	}
	opts = opts.withDefaults()

	return func(set store.SetFunc, get store.GetFunc, api *store.API) store.State {
		s := &Session{
			name:         opts.Name,
			opts:         opts,
			logger:       opts.Logger.With("component", "devtools", "instance", opts.Name),
			set:          set,
			get:          get,
			api:          api,
			recording:    true,
			initializing: true,
			out:          make(chan outbound, maxQueued),
			ready:        make(chan struct{}),
		}
		api.SetState = s.setState
		api.Devtools = s

		initial := init(api.SetState, get, api)

		s.mu.Lock()
		s.initializing = false
		s.snapshot = maps.Clone(initial)
		s.mu.Unlock()

		go s.connect()
		return initial
	}
}

// SessionOf returns the bridge session attached to api, if any.
func SessionOf(api *store.API) (*Session, bool) {
	if api == nil {
		return nil, false
	}
	s, ok := api.Devtools.(*Session)
	return s, ok
}

// Name returns the instance name.
func (s *Session) Name() string {
	return s.name
}

// Recording reports whether mutations are being sent.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Ready is closed once the connect attempt has finished, whether or not it
// succeeded. On success init has been handed to the channel by then.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Connected reports whether the session has a channel and is reporting to it.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initSent && !s.unavailable
}

// setState replaces the store's public SetState.
func (s *Session) setState(partial store.State, replace bool, action *model.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(partial, replace, action)
	if !s.recording || s.suspended > 0 || s.closed {
		return
	}

	desc := InferAction(ActionInput{
		Explicit:     action,
		Initializing: s.initializing,
		Replace:      replace,
		Anonymous:    s.opts.AnonymousActionType,
	})
	msg := model.StateMessage{
		Name:  s.name,
		Type:  desc.Type,
		State: s.encode(s.get()),
	}
	if len(desc.Fields) > 0 {
		msg.Action = &desc
	}
	s.enqueue(model.TopicState, msg)
}

// enqueue hands a message to the delivery goroutine without blocking.
// Caller holds mu.
func (s *Session) enqueue(topic string, payload any) {
	if s.unavailable {
		return
	}
	m := outbound{topic: topic, payload: payload}
	for {
		select {
		case s.out <- m:
			return
		default:
		}
		select {
		case <-s.out:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Session) connect() {
	client, err := s.opts.Registry.Acquire(context.Background(), s.opts.Plugin)

	s.mu.Lock()
	if err != nil {
		// the registry already logged the connect failure
		s.logger.Debug("Devtools unavailable; running without observer", "error", err)
		s.unavailable = true
		s.mu.Unlock()
		close(s.ready)
		return
	}
	if s.closed {
		s.mu.Unlock()
		close(s.ready)
		return
	}
	s.initSent = true
	hello := outbound{
		topic:   model.TopicInit,
		payload: model.InitMessage{Name: s.name, State: s.encode(s.snapshot)},
	}
	sub, err := client.AddMessageListener(model.TopicDispatch, s.handleDispatch)
	if err != nil {
		s.logger.Warn("Failed to listen for devtools commands", "error", err)
	} else {
		s.sub = sub
	}
	s.mu.Unlock()

	s.deliver(client, hello)
	close(s.ready)

	for m := range s.out {
		s.deliver(client, m)
	}
}

// deliver is best effort: failures are logged, never returned to the host.
func (s *Session) deliver(client *channel.SharedClient, m outbound) {
	if s.lost.Load() {
		return
	}
	if n := s.dropped.Swap(0); n > 0 {
		s.logger.Warn("Dropped devtools messages; observer is not keeping up", "count", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
	defer cancel()
	err := client.SendMessage(ctx, m.topic, m.payload)
	switch {
	case err == nil:
	case errors.Is(err, channel.ErrChannelClosed):
		s.lost.Store(true)
		s.mu.Lock()
		s.unavailable = true
		s.mu.Unlock()
		s.logger.Warn("Devtools channel closed; no longer reporting", "topic", m.topic)
	default:
		s.logger.Warn("Failed to send devtools message", "topic", m.topic, "error", err)
	}
}

// encode runs the codec, falling back to the raw state if it fails or panics.
func (s *Session) encode(state store.State) (out any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Devtools serializer panicked; sending unserialized state", "panic", fmt.Sprint(r))
			out = state
		}
	}()
	encoded, err := s.opts.Codec.Encode(state)
	if err != nil {
		s.logger.Error("Devtools serializer failed; sending unserialized state", "error", err)
		return state
	}
	return encoded
}

// decode runs the codec on incoming state text, recovering panics.
func (s *Session) decode(text string) (state store.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: reviver panicked: %v", model.ErrMalformedPayload, r)
		}
	}()
	return s.opts.Codec.Decode(text)
}

// applyRemote writes state sent by the observer into the store without
// reporting it. Store listeners run without mu held.
func (s *Session) applyRemote(state store.State) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.suspended++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.suspended--
		s.mu.Unlock()
	}()
	s.set(state, false, nil)
}

// Cleanup stops listening for commands and tells the observer this instance
// is gone. It is idempotent and never panics.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.initSent {
		s.enqueue(model.TopicDisconnect, model.DisconnectMessage{Name: s.name})
	}
	close(s.out)
}
