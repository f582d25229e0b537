package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/pkg/model"
)

func TestFilter_Allows(t *testing.T) {
	tests := []struct {
		name     string
		allow    string
		deny     string
		instance string
		action   model.Action
		want     bool
	}{
		{"no expressions", "", "", "a", model.Action{Type: "inc"}, true},
		{"allow match", `action.type == "inc"`, "", "a", model.Action{Type: "inc"}, true},
		{"allow miss", `action.type == "inc"`, "", "a", model.Action{Type: "dec"}, false},
		{"deny match", "", `action.type.startsWith("@@")`, "a", model.Action{Type: "@@HYDRATE"}, false},
		{"deny miss", "", `action.type.startsWith("@@")`, "a", model.Action{Type: "inc"}, true},
		{"instance", "", `instance == "noisy"`, "noisy", model.Action{Type: "inc"}, false},
		{"payload field", `has(action.by) && action.by > 1.0`, "", "a", *model.NewAction("add", map[string]any{"by": 2.0}), true},
		{"both", `action.type != "tick"`, `instance == "b"`, "a", model.Action{Type: "inc"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.allow, tt.deny)
			require.NoError(t, err)
			got, err := f.Allows(tt.instance, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_Invalid(t *testing.T) {
	_, err := New("action.type ==", "")
	assert.ErrorContains(t, err, "invalid allow expression")

	_, err = New("", `"not bool"`)
	assert.ErrorContains(t, err, "invalid deny expression")
}

func TestFilter_EvalError(t *testing.T) {
	f, err := New(`action.missing == "x"`, "")
	require.NoError(t, err)
	ok, err := f.Allows("a", model.Action{Type: "inc"})
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestFilter_Nil(t *testing.T) {
	var f *Filter
	ok, err := f.Allows("a", model.Action{Type: "inc"})
	require.NoError(t, err)
	assert.True(t, ok)
}
