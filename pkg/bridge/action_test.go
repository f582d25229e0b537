package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/syntrixbase/devbridge/pkg/model"
)

func TestInferAction(t *testing.T) {
	withFields := model.NewAction("add", map[string]any{"id": 1})

	tests := []struct {
		name string
		in   ActionInput
		want model.Action
	}{
		{"explicit name", ActionInput{Explicit: model.Named("inc")}, model.Action{Type: "inc"}},
		{"explicit wins over initializing", ActionInput{Explicit: model.Named("inc"), Initializing: true}, model.Action{Type: "inc"}},
		{"explicit wins over replace", ActionInput{Explicit: model.Named("load"), Replace: true}, model.Action{Type: "load"}},
		{"explicit object", ActionInput{Explicit: withFields}, *withFields},
		{"empty explicit type is unlabeled", ActionInput{Explicit: &model.Action{}}, model.Action{Type: "anonymous"}},
		{"initializing", ActionInput{Initializing: true}, model.Action{Type: model.ActionHydrate}},
		{"replace while initializing", ActionInput{Initializing: true, Replace: true}, model.Action{Type: model.ActionRehydrate}},
		{"replace after init", ActionInput{Replace: true}, model.Action{Type: model.ActionRehydrate}},
		{"anonymous default", ActionInput{}, model.Action{Type: "anonymous"}},
		{"anonymous custom", ActionInput{Anonymous: "setState"}, model.Action{Type: "setState"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferAction(tt.in))
		})
	}
}

func TestInferAction_ClonesExplicit(t *testing.T) {
	explicit := model.NewAction("add", map[string]any{"id": 1})
	got := InferAction(ActionInput{Explicit: explicit})
	got.Fields["id"] = 2
	assert.Equal(t, 1, explicit.Fields["id"])
}
