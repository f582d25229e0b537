package actionlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/pkg/model"
)

func newTestStore(maxAge int) *Store {
	clock := time.UnixMilli(1_700_000_000_000)
	return New(Options{
		MaxAge: maxAge,
		Now:    func() time.Time { return clock },
	})
}

func count(n int) map[string]any {
	return map[string]any{"count": n}
}

func TestApplyInit(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))

	state, err := s.StateAt("a", Current())
	require.NoError(t, err)
	assert.Equal(t, count(0), state)

	lifted, err := s.Export("a")
	require.NoError(t, err)
	assert.Equal(t, 0, lifted.CurrentStateIndex)
	assert.Equal(t, 1, lifted.NextActionID)
	assert.Equal(t, []int{0}, lifted.StagedActionIDs)
	assert.Equal(t, InitActionType, lifted.ActionsByID[0].Action.Type)
	assert.Equal(t, int64(1_700_000_000_000), lifted.ActionsByID[0].Timestamp)
}

func TestApplyInitReplacesHistory(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(1))
	s.ApplyInit("a", count(5))

	lifted, err := s.Export("a")
	require.NoError(t, err)
	assert.Len(t, lifted.ComputedStates, 1)
	assert.Equal(t, 0, lifted.CurrentStateIndex)
}

func TestApplyAction_RoundTrip(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))

	for i := 1; i <= 5; i++ {
		s.ApplyAction("a", model.Action{Type: "inc"}, count(i))
		state, err := s.StateAt("a", At(i))
		require.NoError(t, err)
		assert.Equal(t, count(i), state)

		current, err := s.StateAt("a", Current())
		require.NoError(t, err)
		assert.Equal(t, count(i), current)
	}

	rollback, err := s.StateAt("a", Rollback())
	require.NoError(t, err)
	assert.Equal(t, count(0), rollback)
}

func TestApplyAction_Eviction(t *testing.T) {
	s := newTestStore(3)
	s.ApplyInit("a", count(0))
	for i := 1; i <= 5; i++ {
		s.ApplyAction("a", model.Action{Type: fmt.Sprintf("a%d", i)}, count(i))
	}

	lifted, err := s.Export("a")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, lifted.StagedActionIDs)
	assert.Equal(t, 6, lifted.NextActionID)
	assert.Equal(t, 2, lifted.CurrentStateIndex)
	assert.Len(t, lifted.ActionsByID, 3)

	// rollback is the oldest retained entry, not the original init
	rollback, err := s.StateAt("a", Rollback())
	require.NoError(t, err)
	assert.Equal(t, count(3), rollback)

	_, err = s.StateAt("a", At(3))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = s.StateAt("a", At(-1))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	s.ApplyAction("a", model.Action{Type: "a6"}, count(6))
	lifted, err = s.Export("a")
	require.NoError(t, err)
	assert.Equal(t, 7, lifted.NextActionID)
}

func TestApplyAction_WithoutInit(t *testing.T) {
	s := newTestStore(0)
	s.ApplyAction("late", model.Action{Type: "inc"}, count(1))

	assert.True(t, s.Has("late"))
	lifted, err := s.Export("late")
	require.NoError(t, err)
	assert.Len(t, lifted.ComputedStates, 2)
	assert.Equal(t, 1, lifted.CurrentStateIndex)
}

func TestStateAt_UnwrapsNestedState(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", map[string]any{"state": count(1)})
	s.ApplyAction("a", model.Action{Type: "x"}, "plain")

	state, err := s.StateAt("a", Rollback())
	require.NoError(t, err)
	assert.Equal(t, count(1), state)

	state, err = s.StateAt("a", Current())
	require.NoError(t, err)
	assert.Equal(t, "plain", state)
}

func TestStateAt_MissingInstance(t *testing.T) {
	s := newTestStore(0)

	_, err := s.StateAt("nope", Current())
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	fallback := count(42)
	state, err := s.StateOr("nope", Rollback(), fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, state)

	s.ApplyInit("a", count(0))
	_, err = s.StateOr("a", At(9), fallback)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = s.StateAt("a", Query{Mode: Mode(9)})
	assert.Error(t, err)
}

func TestJump(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(1))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(2))

	require.NoError(t, s.Jump("a", 1))
	state, err := s.StateAt("a", Current())
	require.NoError(t, err)
	assert.Equal(t, count(1), state)

	require.NoError(t, s.JumpToAction("a", 0))
	state, err = s.StateAt("a", Current())
	require.NoError(t, err)
	assert.Equal(t, count(0), state)

	assert.ErrorIs(t, s.Jump("a", 3), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Jump("b", 0), ErrInstanceNotFound)
	assert.ErrorIs(t, s.JumpToAction("a", 17), ErrActionNotFound)
	assert.ErrorIs(t, s.JumpToAction("b", 0), ErrInstanceNotFound)

	// a new action moves the pointer to the end again
	s.ApplyAction("a", model.Action{Type: "inc"}, count(3))
	state, err = s.StateAt("a", Current())
	require.NoError(t, err)
	assert.Equal(t, count(3), state)
}

func TestToggleAction(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(1))

	require.NoError(t, s.ToggleAction("a", 1))
	lifted, _ := s.Export("a")
	assert.Equal(t, []int{1}, lifted.SkippedActionIDs)

	require.NoError(t, s.ToggleAction("a", 1))
	lifted, _ = s.Export("a")
	assert.Empty(t, lifted.SkippedActionIDs)

	assert.ErrorIs(t, s.ToggleAction("a", 0), ErrActionNotFound)
	assert.ErrorIs(t, s.ToggleAction("a", 5), ErrActionNotFound)
	assert.ErrorIs(t, s.ToggleAction("b", 1), ErrInstanceNotFound)
}

func TestCommit(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("a", count(0))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(1))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(2))
	require.NoError(t, s.Jump("a", 1))

	require.NoError(t, s.Commit("a"))
	lifted, err := s.Export("a")
	require.NoError(t, err)
	assert.Equal(t, []model.ComputedState{{State: count(1)}}, lifted.ComputedStates)
	assert.Equal(t, 3, lifted.NextActionID)

	assert.ErrorIs(t, s.Commit("b"), ErrInstanceNotFound)
}

func TestExportImport(t *testing.T) {
	src := newTestStore(0)
	src.ApplyInit("a", count(0))
	src.ApplyAction("a", model.Action{Type: "inc"}, count(1))
	src.ApplyAction("a", *model.NewAction("add", map[string]any{"by": 2}), count(3))
	require.NoError(t, src.ToggleAction("a", 1))
	require.NoError(t, src.Jump("a", 1))

	lifted, err := src.Export("a")
	require.NoError(t, err)

	dst := newTestStore(0)
	require.NoError(t, dst.Import("b", lifted))
	got, err := dst.Export("b")
	require.NoError(t, err)
	assert.Equal(t, lifted, got)

	state, err := dst.StateAt("b", Current())
	require.NoError(t, err)
	assert.Equal(t, count(1), state)
}

func TestImport_TrimsToMaxAge(t *testing.T) {
	src := newTestStore(0)
	src.ApplyInit("a", count(0))
	for i := 1; i <= 4; i++ {
		src.ApplyAction("a", model.Action{Type: "inc"}, count(i))
	}
	require.NoError(t, src.Jump("a", 0))
	lifted, _ := src.Export("a")

	dst := newTestStore(2)
	require.NoError(t, dst.Import("a", lifted))
	got, _ := dst.Export("a")
	assert.Equal(t, []int{3, 4}, got.StagedActionIDs)
	assert.Equal(t, 0, got.CurrentStateIndex)
	assert.Equal(t, 5, got.NextActionID)
}

func TestImport_Invalid(t *testing.T) {
	s := newTestStore(0)
	tests := []*model.LiftedState{
		nil,
		{},
		{ComputedStates: []model.ComputedState{{}}, StagedActionIDs: []int{0, 1}},
		{ComputedStates: []model.ComputedState{{}}, StagedActionIDs: []int{0}, CurrentStateIndex: 1},
	}
	for i, lifted := range tests {
		assert.ErrorIs(t, s.Import("a", lifted), ErrInvalidHistory, "case %d", i)
	}
	assert.False(t, s.Has("a"))
}

func TestRemoveAndInstances(t *testing.T) {
	s := newTestStore(0)
	s.ApplyInit("b", count(0))
	s.ApplyInit("a", count(0))
	s.ApplyAction("a", model.Action{Type: "inc"}, count(1))

	summaries := s.Instances()
	require.Len(t, summaries, 2)
	assert.Equal(t, Summary{ID: "a", Entries: 2, CurrentStateIndex: 1, NextActionID: 2, LastAction: "inc"}, summaries[0])
	assert.Equal(t, InitActionType, summaries[1].LastAction)

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.False(t, s.Has("a"))
	assert.Len(t, s.Instances(), 1)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := New(Options{MaxAge: 2, Metrics: m})

	s.ApplyInit("a", count(0))
	s.ApplyInit("b", count(0))
	for i := 0; i < 3; i++ {
		s.ApplyAction("a", model.Action{Type: "inc"}, count(i))
	}
	_, _ = s.StateAt("zzz", Current())
	_, _ = s.StateAt("a", At(10))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.notifications.WithLabelValues("init")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.notifications.WithLabelValues("action")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.instances))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.evictions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.queryMisses.WithLabelValues("instance")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.queryMisses.WithLabelValues("range")))

	s.Remove("b")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.instances))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeCurrent, "current": ModeCurrent, "rollback": ModeRollback, "index": ModeIndex} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("sideways")
	assert.Error(t, err)
	assert.Equal(t, "rollback", ModeRollback.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
