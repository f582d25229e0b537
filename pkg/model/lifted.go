package model

// LiftedActionType is the wrapper type for recorded actions.
const LiftedActionType = "PERFORM_ACTION"

// LiftedAction is a recorded action with its receive time (unix millis).
type LiftedAction struct {
	Type      string `json:"type"`
	Action    Action `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// ComputedState is one entry of an instance history.
type ComputedState struct {
	State any    `json:"state"`
	Error string `json:"error,omitempty"`
}

// LiftedState is the serialized form of an instance history, as exported to
// observers and accepted on import.
type LiftedState struct {
	ActionsByID       map[int]LiftedAction `json:"actionsById"`
	ComputedStates    []ComputedState      `json:"computedStates"`
	CurrentStateIndex int                  `json:"currentStateIndex"`
	NextActionID      int                  `json:"nextActionId"`
	SkippedActionIDs  []int                `json:"skippedActionIds"`
	StagedActionIDs   []int                `json:"stagedActionIds"`
}

// LastState returns the last computed state, if any.
func (l *LiftedState) LastState() (any, bool) {
	if l == nil || len(l.ComputedStates) == 0 {
		return nil, false
	}
	return l.ComputedStates[len(l.ComputedStates)-1].State, true
}
