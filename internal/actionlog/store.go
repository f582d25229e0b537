// Package actionlog keeps the observer-side action history of every bridged
// store instance: a bounded list of computed states with a movable current
// index, used to answer time-travel queries.
package actionlog

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// DefaultMaxAge is the number of entries kept per instance.
const DefaultMaxAge = 50

// InitActionType labels the first entry of every history.
const InitActionType = "@@INIT"

var (
	// ErrInstanceNotFound is returned for unknown instance ids.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrIndexOutOfRange is returned when a query addresses an evicted or
	// future entry.
	ErrIndexOutOfRange = errors.New("history index out of range")
	// ErrActionNotFound is returned for unknown or evicted action ids.
	ErrActionNotFound = errors.New("action not found")
	// ErrInvalidHistory is returned when importing an inconsistent history.
	ErrInvalidHistory = errors.New("invalid history")
)

// Options configures a Store.
type Options struct {
	// MaxAge bounds entries per instance. Defaults to DefaultMaxAge.
	MaxAge  int
	Metrics *Metrics
	Logger  *slog.Logger
	// Now is the clock for action timestamps.
	Now func() time.Time
}

// Store holds one history per instance id.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*history
	maxAge    int
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// history is a ring of computed states. computed[i] is the state after the
// action stagedIDs[i].
type history struct {
	actionsByID map[int]model.LiftedAction
	stagedIDs   []int
	skippedIDs  mapset.Set[int]
	computed    []model.ComputedState
	current     int
	nextID      int
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		instances: make(map[string]*history),
		maxAge:    opts.MaxAge,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "actionlog"),
		now:       opts.Now,
	}
}

// ApplyInit replaces the instance history with a single entry holding state.
func (s *Store) ApplyInit(id string, state any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[id] = s.newHistory(state)
	s.metrics.notifications.WithLabelValues("init").Inc()
	s.metrics.instances.Set(float64(len(s.instances)))
}

// ApplyAction appends state as the result of action and moves the current
// index to it. An instance seen for the first time starts a new history.
func (s *Store) ApplyAction(id string, action model.Action, state any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instances[id]
	if !ok {
		s.logger.Debug("State before init; starting history", "instance", id, "action", action.Type)
		h = s.newHistory(nil)
		h.computed[0].State = state
		s.instances[id] = h
		s.metrics.instances.Set(float64(len(s.instances)))
	}

	actionID := h.nextID
	h.nextID++
	h.actionsByID[actionID] = s.lift(action)
	h.stagedIDs = append(h.stagedIDs, actionID)
	h.computed = append(h.computed, model.ComputedState{State: state})

	for len(h.stagedIDs) > s.maxAge {
		evicted := h.stagedIDs[0]
		delete(h.actionsByID, evicted)
		h.skippedIDs.Remove(evicted)
		h.stagedIDs = h.stagedIDs[1:]
		h.computed = h.computed[1:]
		s.metrics.evictions.Inc()
	}
	h.current = len(h.computed) - 1
	s.metrics.notifications.WithLabelValues("action").Inc()
}

func (s *Store) newHistory(state any) *history {
	return &history{
		actionsByID: map[int]model.LiftedAction{0: s.lift(model.Action{Type: InitActionType})},
		stagedIDs:   []int{0},
		skippedIDs:  mapset.NewThreadUnsafeSet[int](),
		computed:    []model.ComputedState{{State: state}},
		nextID:      1,
	}
}

func (s *Store) lift(action model.Action) model.LiftedAction {
	return model.LiftedAction{
		Type:      model.LiftedActionType,
		Action:    action,
		Timestamp: s.now().UnixMilli(),
	}
}

// StateAt resolves q for instance id, unwrapping nested {state: ...}
// envelopes.
func (s *Store) StateAt(id string, q Query) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.instances[id]
	if !ok {
		s.metrics.queryMisses.WithLabelValues("instance").Inc()
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}

	var idx int
	switch q.Mode {
	case ModeCurrent:
		idx = h.current
	case ModeRollback:
		idx = 0
	case ModeIndex:
		idx = q.Index
	default:
		return nil, fmt.Errorf("unknown query mode %v", q.Mode)
	}
	if idx < 0 || idx >= len(h.computed) {
		s.metrics.queryMisses.WithLabelValues("range").Inc()
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(h.computed))
	}
	return unwrap(h.computed[idx].State), nil
}

// StateOr resolves q, returning fallback when the instance is unknown.
// Out-of-range queries still fail.
func (s *Store) StateOr(id string, q Query, fallback any) (any, error) {
	state, err := s.StateAt(id, q)
	if errors.Is(err, ErrInstanceNotFound) {
		return fallback, nil
	}
	return state, err
}

func unwrap(state any) any {
	if m, ok := state.(map[string]any); ok {
		if nested, ok := m["state"]; ok {
			return nested
		}
	}
	return state
}

// Jump moves the current index of id to index.
func (s *Store) Jump(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if index < 0 || index >= len(h.computed) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(h.computed))
	}
	h.current = index
	return nil
}

// JumpToAction moves the current index of id to the entry of actionID.
func (s *Store) JumpToAction(id string, actionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	idx := slices.Index(h.stagedIDs, actionID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrActionNotFound, actionID)
	}
	h.current = idx
	return nil
}

// ToggleAction flips whether actionID is marked skipped. The initial action
// cannot be skipped.
func (s *Store) ToggleAction(id string, actionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if _, ok := h.actionsByID[actionID]; !ok || actionID == h.stagedIDs[0] {
		return fmt.Errorf("%w: %d", ErrActionNotFound, actionID)
	}
	if h.skippedIDs.Contains(actionID) {
		h.skippedIDs.Remove(actionID)
	} else {
		h.skippedIDs.Add(actionID)
	}
	return nil
}

// Commit collapses the history of id to its current state. Action ids keep
// increasing afterwards.
func (s *Store) Commit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	nextID := h.nextID
	committed := s.newHistory(h.computed[h.current].State)
	committed.nextID = nextID
	s.instances[id] = committed
	return nil
}

// Remove forgets the history of id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.instances[id]
	delete(s.instances, id)
	s.metrics.instances.Set(float64(len(s.instances)))
	return ok
}

// Export returns the serialized history of id.
func (s *Store) Export(id string) (*model.LiftedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}

	skipped := h.skippedIDs.ToSlice()
	sort.Ints(skipped)
	actions := make(map[int]model.LiftedAction, len(h.actionsByID))
	for k, v := range h.actionsByID {
		v.Action = v.Action.Clone()
		actions[k] = v
	}
	return &model.LiftedState{
		ActionsByID:       actions,
		ComputedStates:    slices.Clone(h.computed),
		CurrentStateIndex: h.current,
		NextActionID:      h.nextID,
		SkippedActionIDs:  skipped,
		StagedActionIDs:   slices.Clone(h.stagedIDs),
	}, nil
}

// Import replaces the history of id with lifted, trimmed to the max age.
func (s *Store) Import(id string, lifted *model.LiftedState) error {
	if err := validate(lifted); err != nil {
		return err
	}

	h := &history{
		actionsByID: make(map[int]model.LiftedAction, len(lifted.ActionsByID)),
		stagedIDs:   slices.Clone(lifted.StagedActionIDs),
		skippedIDs:  mapset.NewThreadUnsafeSet(lifted.SkippedActionIDs...),
		computed:    slices.Clone(lifted.ComputedStates),
		current:     lifted.CurrentStateIndex,
		nextID:      lifted.NextActionID,
	}
	for _, actionID := range h.stagedIDs {
		h.actionsByID[actionID] = lifted.ActionsByID[actionID]
	}
	if excess := len(h.stagedIDs) - s.maxAge; excess > 0 {
		for _, evicted := range h.stagedIDs[:excess] {
			delete(h.actionsByID, evicted)
			h.skippedIDs.Remove(evicted)
		}
		h.stagedIDs = h.stagedIDs[excess:]
		h.computed = h.computed[excess:]
		h.current = max(h.current-excess, 0)
	}
	for _, staged := range h.stagedIDs {
		if staged >= h.nextID {
			h.nextID = staged + 1
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[id] = h
	s.metrics.notifications.WithLabelValues("import").Inc()
	s.metrics.instances.Set(float64(len(s.instances)))
	return nil
}

func validate(lifted *model.LiftedState) error {
	switch {
	case lifted == nil:
		return fmt.Errorf("%w: empty", ErrInvalidHistory)
	case len(lifted.ComputedStates) == 0:
		return fmt.Errorf("%w: no computed states", ErrInvalidHistory)
	case len(lifted.StagedActionIDs) != len(lifted.ComputedStates):
		return fmt.Errorf("%w: %d staged actions for %d computed states",
			ErrInvalidHistory, len(lifted.StagedActionIDs), len(lifted.ComputedStates))
	case lifted.CurrentStateIndex < 0 || lifted.CurrentStateIndex >= len(lifted.ComputedStates):
		return fmt.Errorf("%w: current index %d", ErrInvalidHistory, lifted.CurrentStateIndex)
	}
	return nil
}

// Summary describes one instance history.
type Summary struct {
	ID                string `json:"id"`
	Entries           int    `json:"entries"`
	CurrentStateIndex int    `json:"currentStateIndex"`
	NextActionID      int    `json:"nextActionId"`
	LastAction        string `json:"lastAction"`
}

// Instances summarizes every history, sorted by id.
func (s *Store) Instances() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.instances))
	for id, h := range s.instances {
		last := h.actionsByID[h.stagedIDs[len(h.stagedIDs)-1]]
		out = append(out, Summary{
			ID:                id,
			Entries:           len(h.computed),
			CurrentStateIndex: h.current,
			NextActionID:      h.nextID,
			LastAction:        last.Action.Type,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Has reports whether id has a history.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.instances[id]
	return ok
}
