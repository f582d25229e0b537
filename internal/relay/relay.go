// Package relay is the observer side of the devtools bridge. It reduces the
// init/state stream from origin stores into action-log histories, answers
// UI commands with the state to send back down, and keeps the selection and
// connection bookkeeping the UI works from.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/syntrixbase/devbridge/internal/actionlog"
	"github.com/syntrixbase/devbridge/internal/relay/filter"
	"github.com/syntrixbase/devbridge/pkg/channel"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// DefaultSendTimeout bounds each message the relay sends down the channel.
const DefaultSendTimeout = 5 * time.Second

// Lifted command types accepted by Lift.
const (
	CommandDispatch = "DISPATCH"
	CommandAction   = "ACTION"
	CommandExport   = "EXPORT"
	CommandImport   = "IMPORT"
	CommandRemove   = "REMOVE_INSTANCE"
	CommandSelect   = "SELECT"
	CommandSync     = "SYNC"
)

// CommandToggleAction marks an action skipped in the local history only.
const CommandToggleAction = "TOGGLE_ACTION"

var (
	// ErrNoInstance is returned when a command names no instance and none is selected.
	ErrNoInstance = errors.New("no instance selected")
	// ErrUnknownCommand is returned for lifted commands Lift does not handle.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidCommand is returned when a command misses a required field.
	ErrInvalidCommand = errors.New("invalid command")
)

// Options configures a Relay.
type Options struct {
	Channel channel.Channel
	Log     *actionlog.Store
	// Filter drops actions before they are recorded. Nil records everything.
	Filter *filter.Filter
	// Sync echoes the selected history back to origins after each update.
	Sync        bool
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Command is a lifted command from the UI.
type Command struct {
	Type       string             `json:"type"`
	InstanceID string             `json:"instanceId,omitempty"`
	Action     json.RawMessage    `json:"action,omitempty"`
	State      *model.LiftedState `json:"state,omitempty"`
	Enabled    bool               `json:"enabled,omitempty"`
}

// Update kinds reported to observers.
const (
	UpdateInit       = "init"
	UpdateState      = "state"
	UpdateDispatch   = "dispatch"
	UpdateImport     = "import"
	UpdateRemove     = "remove"
	UpdateSelect     = "select"
	UpdateDisconnect = "disconnect"
)

// Update describes a change to one instance.
type Update struct {
	Kind       string             `json:"kind"`
	InstanceID string             `json:"instanceId"`
	Lifted     *model.LiftedState `json:"lifted,omitempty"`
}

// Relay connects a channel to an action log.
type Relay struct {
	id          string
	ch          channel.Channel
	log         *actionlog.Store
	filter      *filter.Filter
	sendTimeout time.Duration
	logger      *slog.Logger

	mu        sync.RWMutex
	selected  string
	sync      bool
	connected mapset.Set[string]
	subs      []channel.Subscription

	obsMu     sync.RWMutex
	observers map[int]func(Update)
	nextObs   int
}

// New creates a Relay. Call Start to begin consuming the channel.
func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Log == nil {
		opts.Log = actionlog.New(actionlog.Options{Logger: logger})
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	id := uuid.NewString()
	return &Relay{
		id:          id,
		ch:          opts.Channel,
		log:         opts.Log,
		filter:      opts.Filter,
		sendTimeout: opts.SendTimeout,
		logger:      logger.With("component", "relay", "relay_id", id),
		sync:        opts.Sync,
		connected:   mapset.NewSet[string](),
		observers:   make(map[int]func(Update)),
	}
}

// ID identifies this relay in pong replies.
func (r *Relay) ID() string { return r.id }

// Log returns the action log the relay writes to.
func (r *Relay) Log() *actionlog.Store { return r.log }

// Start registers the relay's listeners on the channel.
func (r *Relay) Start() error {
	if r.ch == nil {
		return channel.ErrChannelUnavailable
	}
	topics := []string{model.TopicInit, model.TopicState, model.TopicPing, model.TopicDisconnect}
	subs := make([]channel.Subscription, 0, len(topics))
	for _, topic := range topics {
		sub, err := r.ch.AddMessageListener(topic, func(payload []byte) {
			if err := r.HandleMessage(topic, payload); err != nil {
				r.logger.Warn("Failed to handle channel message", "topic", topic, "error", err)
			}
		})
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return fmt.Errorf("listen on %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}

	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
	r.logger.Info("Relay started", "sync", r.SyncEnabled())
	return nil
}

// Stop removes the relay's listeners. The channel stays open.
func (r *Relay) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// HandleMessage applies one channel message.
func (r *Relay) HandleMessage(topic string, payload []byte) error {
	switch topic {
	case model.TopicInit:
		var msg model.InitMessage
		if err := model.Decode(payload, &msg); err != nil {
			return err
		}
		id := instanceName(msg.Name)
		r.log.ApplyInit(id, msg.State)
		r.markConnected(id)
		r.publish(UpdateInit, id)
		r.echo(id)

	case model.TopicState:
		var msg model.StateMessage
		if err := model.Decode(payload, &msg); err != nil {
			return err
		}
		id := instanceName(msg.Name)
		action := msg.DescribedAction()
		allowed, err := r.filter.Allows(id, action)
		if err != nil {
			r.logger.Warn("Action filter failed; recording action", "instance", id, "action", action.Type, "error", err)
		} else if !allowed {
			r.logger.Debug("Action filtered", "instance", id, "action", action.Type)
			return nil
		}
		r.log.ApplyAction(id, action, msg.State)
		r.markConnected(id)
		r.publish(UpdateState, id)
		r.echo(id)

	case model.TopicPing:
		var msg model.PingMessage
		if len(payload) > 0 {
			if err := model.Decode(payload, &msg); err != nil {
				return err
			}
		}
		r.logger.Debug("Ping received", "from", msg.From)
		return r.send(model.TopicPong, model.PingMessage{From: r.id})

	case model.TopicDisconnect:
		var msg model.DisconnectMessage
		if err := model.Decode(payload, &msg); err != nil {
			return err
		}
		id := instanceName(msg.Name)
		r.mu.Lock()
		r.connected.Remove(id)
		if r.selected == id {
			r.selected = ""
		}
		r.mu.Unlock()
		r.logger.Info("Instance disconnected", "instance", id)
		r.notify(Update{Kind: UpdateDisconnect, InstanceID: id})

	default:
		return fmt.Errorf("%w: %s", model.ErrUnknownTopic, topic)
	}
	return nil
}

// Lift runs a UI command and returns the resulting history of its instance,
// or nil when the command leaves none.
func (r *Relay) Lift(ctx context.Context, cmd Command) (*model.LiftedState, error) {
	switch cmd.Type {
	case CommandSync:
		r.mu.Lock()
		r.sync = cmd.Enabled
		selected := r.selected
		r.mu.Unlock()
		r.logger.Info("Sync mode changed", "enabled", cmd.Enabled)
		if selected != "" {
			r.echoCtx(ctx, selected)
		}
		return nil, nil

	case CommandSelect:
		if cmd.InstanceID == "" {
			return nil, fmt.Errorf("%w: select needs an instanceId", ErrInvalidCommand)
		}
		r.mu.Lock()
		r.selected = cmd.InstanceID
		r.mu.Unlock()
		r.notify(Update{Kind: UpdateSelect, InstanceID: cmd.InstanceID})
		r.echoCtx(ctx, cmd.InstanceID)
		return r.exported(cmd.InstanceID)
	}

	id := cmd.InstanceID
	if id == "" {
		id = r.Selected()
	}
	if id == "" {
		return nil, ErrNoInstance
	}

	switch cmd.Type {
	case CommandDispatch:
		return r.liftDispatch(ctx, id, cmd)

	case CommandAction:
		if _, err := (model.DispatchMessage{Action: cmd.Action}).ParseAction(); err != nil {
			return nil, err
		}
		msg := model.DispatchMessage{Type: model.DispatchTypeAction, Action: cmd.Action, InstanceID: model.InstanceID(id)}
		if err := r.sendCtx(ctx, model.TopicDispatch, msg); err != nil {
			return nil, err
		}
		return r.exported(id)

	case CommandExport:
		return r.log.Export(id)

	case CommandImport:
		if err := r.log.Import(id, cmd.State); err != nil {
			return nil, err
		}
		msg := model.DispatchMessage{
			Type:            model.DispatchTypeDispatch,
			NextLiftedState: cmd.State,
			InstanceID:      model.InstanceID(id),
		}
		msg.WithAction(model.Action{Type: model.CommandImportState})
		if err := r.sendCtx(ctx, model.TopicDispatch, msg); err != nil {
			return nil, err
		}
		r.publish(UpdateImport, id)
		return r.exported(id)

	case CommandRemove:
		removed := r.log.Remove(id)
		r.mu.Lock()
		r.connected.Remove(id)
		if r.selected == id {
			r.selected = ""
		}
		r.mu.Unlock()
		if !removed {
			return nil, fmt.Errorf("%w: %s", actionlog.ErrInstanceNotFound, id)
		}
		r.notify(Update{Kind: UpdateRemove, InstanceID: id})
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

// liftDispatch repositions the history when the command asks for it, then
// sends the state it resolves to down to the origin.
func (r *Relay) liftDispatch(ctx context.Context, id string, cmd Command) (*model.LiftedState, error) {
	action, err := (model.DispatchMessage{Action: cmd.Action}).ParseAction()
	if err != nil {
		return nil, err
	}

	query := actionlog.Current()
	switch action.Type {
	case model.CommandJumpToState:
		index, err := intField(action, "index")
		if err != nil {
			return nil, err
		}
		if err := r.log.Jump(id, index); err != nil {
			return nil, err
		}
	case model.CommandJumpToAction:
		actionID, err := intField(action, "actionId")
		if err != nil {
			return nil, err
		}
		if err := r.log.JumpToAction(id, actionID); err != nil {
			return nil, err
		}
	case CommandToggleAction:
		actionID, err := intField(action, "id")
		if err != nil {
			return nil, err
		}
		if err := r.log.ToggleAction(id, actionID); err != nil {
			return nil, err
		}
		r.publish(UpdateDispatch, id)
		return r.exported(id)
	case model.CommandRollback:
		query = actionlog.Rollback()
	}

	state, err := r.log.StateOr(id, query, nil)
	if errors.Is(err, actionlog.ErrIndexOutOfRange) {
		r.logger.Warn("History query out of range; using current state", "instance", id, "mode", query.Mode, "error", err)
		state, err = r.log.StateOr(id, actionlog.Current(), nil)
	}
	if err != nil {
		return nil, err
	}

	msg := model.DispatchMessage{Type: model.DispatchTypeDispatch, InstanceID: model.InstanceID(id)}
	msg.WithAction(action)
	if state != nil {
		encoded, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("encode state: %w", err)
		}
		msg.State = string(encoded)
	}
	if err := r.sendCtx(ctx, model.TopicDispatch, msg); err != nil {
		return nil, err
	}

	if action.Type == model.CommandCommit {
		if err := r.log.Commit(id); err != nil && !errors.Is(err, actionlog.ErrInstanceNotFound) {
			return nil, err
		}
	}
	r.publish(UpdateDispatch, id)
	return r.exported(id)
}

// Selected returns the selected instance id, or "" when none is.
func (r *Relay) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// SyncEnabled reports whether sync mode is on.
func (r *Relay) SyncEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sync
}

// Connected returns the instance ids currently connected, in no order.
func (r *Relay) Connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected.ToSlice()
}

// IsConnected reports whether id has sent init or state since its last
// disconnect.
func (r *Relay) IsConnected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected.Contains(id)
}

// OnUpdate registers fn for every history change. The returned function
// removes it. fn runs on the goroutine that made the change.
func (r *Relay) OnUpdate(fn func(Update)) func() {
	r.obsMu.Lock()
	key := r.nextObs
	r.nextObs++
	r.observers[key] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, key)
		r.obsMu.Unlock()
	}
}

// markConnected records id as connected and selects it if nothing is.
func (r *Relay) markConnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected.Add(id) {
		r.logger.Info("Instance connected", "instance", id)
	}
	if r.selected == "" {
		r.selected = id
	}
}

func (r *Relay) publish(kind, id string) {
	lifted, err := r.log.Export(id)
	if err != nil {
		r.logger.Debug("Skipping update for missing history", "instance", id, "error", err)
		return
	}
	r.notify(Update{Kind: kind, InstanceID: id, Lifted: lifted})
}

func (r *Relay) notify(u Update) {
	r.obsMu.RLock()
	fns := make([]func(Update), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.obsMu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (r *Relay) exported(id string) (*model.LiftedState, error) {
	lifted, err := r.log.Export(id)
	if errors.Is(err, actionlog.ErrInstanceNotFound) {
		return nil, nil
	}
	return lifted, err
}

func (r *Relay) echo(id string) {
	r.echoCtx(context.Background(), id)
}

// echoCtx sends the history of id to every origin when sync mode is on and
// id is selected.
func (r *Relay) echoCtx(ctx context.Context, id string) {
	r.mu.RLock()
	on := r.sync && r.selected == id
	r.mu.RUnlock()
	if !on {
		return
	}

	lifted, err := r.log.Export(id)
	if err != nil {
		return
	}
	encoded, err := json.Marshal(lifted)
	if err != nil {
		r.logger.Warn("Failed to encode history for sync", "instance", id, "error", err)
		return
	}
	msg := model.DispatchMessage{Type: model.DispatchTypeSync, State: string(encoded), InstanceID: model.InstanceID(id)}
	if err := r.sendCtx(ctx, model.TopicDispatch, msg); err != nil {
		r.logger.Warn("Failed to send sync", "instance", id, "error", err)
	}
}

func (r *Relay) send(topic string, payload any) error {
	return r.sendCtx(context.Background(), topic, payload)
}

func (r *Relay) sendCtx(ctx context.Context, topic string, payload any) error {
	if r.ch == nil {
		return channel.ErrChannelUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	return r.ch.SendMessage(ctx, topic, payload)
}

func instanceName(name string) string {
	if name == "" {
		return model.DefaultInstanceName
	}
	return name
}

// intField reads an integer payload field. JSON numbers decode as float64.
func intField(a model.Action, key string) (int, error) {
	v, ok := a.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s needs %q", ErrInvalidCommand, a.Type, key)
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidCommand, key)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidCommand, key, err)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("%w: %q must be a number, got %T", ErrInvalidCommand, key, v)
}
