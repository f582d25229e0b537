package bridge

import (
	"fmt"

	"github.com/syntrixbase/devbridge/pkg/model"
	"github.com/syntrixbase/devbridge/pkg/store"
)

// handleDispatch applies one observer command. Failures are logged and the
// command dropped.
func (s *Session) handleDispatch(payload []byte) {
	var msg model.DispatchMessage
	if err := model.Decode(payload, &msg); err != nil {
		s.logger.Warn("Ignoring undecodable devtools dispatch", "error", err)
		return
	}
	if msg.Type != "" && msg.InstanceID.String() != s.name {
		return
	}

	switch msg.Type {
	case model.DispatchTypeAction:
		s.handleAction(msg)
	case model.DispatchTypeDispatch:
		s.handleCommand(msg)
	}
}

// handleAction runs an action sent from the observer. __setState overwrites
// state directly; anything else goes to the store's Dispatch, if it has one.
func (s *Session) handleAction(msg model.DispatchMessage) {
	action, err := msg.ParseAction()
	if err != nil {
		s.logger.Warn("Ignoring malformed devtools action", "error", err)
		return
	}

	if action.Type == model.ActionSetState {
		raw, _ := action.Get("state")
		state, ok := asState(raw)
		if !ok {
			s.logger.Warn("Ignoring __setState without object state", "error", model.ErrMalformedPayload)
			return
		}
		s.applyRemote(state)
		return
	}

	if s.api.Dispatch == nil {
		s.logger.Debug("Store has no Dispatch; ignoring devtools action", "action", action.Type)
		return
	}
	// Dispatch re-enters SetState, so it runs unlocked and is recorded
	s.api.Dispatch(action)
}

func (s *Session) handleCommand(msg model.DispatchMessage) {
	cmd, err := msg.ParseAction()
	if err != nil {
		s.logger.Warn("Ignoring malformed devtools command", "error", err)
		return
	}

	s.mu.Lock()
	closed, snapshot := s.closed, s.snapshot
	s.mu.Unlock()
	if closed {
		return
	}

	switch cmd.Type {
	case model.CommandReset:
		s.applyRemote(snapshot)
		s.sendInit(s.get())

	case model.CommandCommit:
		if msg.State == "" {
			s.sendInit(s.get())
			return
		}
		state, err := s.decode(msg.State)
		if err != nil {
			s.warnMalformed(cmd.Type, err)
			return
		}
		s.sendInit(state)

	case model.CommandRollback:
		state, err := s.decode(msg.State)
		if err != nil {
			s.warnMalformed(cmd.Type, err)
			return
		}
		s.applyRemote(state)
		s.sendInit(s.get())

	case model.CommandJumpToState, model.CommandJumpToAction:
		state, err := s.decode(msg.State)
		if err != nil {
			s.warnMalformed(cmd.Type, err)
			return
		}
		s.applyRemote(state)

	case model.CommandImportState:
		// the observer already holds the imported history; init would reset it
		last, ok := msg.NextLiftedState.LastState()
		state, isState := asState(last)
		if !ok || !isState {
			s.warnMalformed(cmd.Type, fmt.Errorf("%w: lifted state has no computed states", model.ErrMalformedPayload))
			return
		}
		s.applyRemote(state)

	case model.CommandPauseRecording:
		s.mu.Lock()
		s.recording = !s.recording
		recording := s.recording
		s.mu.Unlock()
		s.logger.Debug("Devtools recording toggled", "recording", recording)

	default:
		s.logger.Debug("Ignoring unknown devtools command", "command", cmd.Type)
	}
}

// sendInit announces state as the observer's new base.
func (s *Session) sendInit(state store.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.enqueue(model.TopicInit, model.InitMessage{Name: s.name, State: s.encode(state)})
}

func (s *Session) warnMalformed(command string, err error) {
	s.logger.Warn("Ignoring devtools command with malformed state", "command", command, "error", err)
}
