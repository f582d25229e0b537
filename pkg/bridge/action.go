package bridge

import "github.com/syntrixbase/devbridge/pkg/model"

// ActionInput is everything action inference looks at for one mutation.
type ActionInput struct {
	// Explicit is the caller-supplied descriptor, if any.
	Explicit *model.Action
	// Initializing is true until the store initializer has returned.
	Initializing bool
	// Replace is true for full-overwrite mutations.
	Replace bool
	// Anonymous labels everything else. Defaults to "anonymous".
	Anonymous string
}

// InferAction names a mutation. In priority order: an explicit descriptor is
// used verbatim; a replace without one is a rehydration (persistence restore);
// an unlabeled mutation during initialization is a hydration; anything else
// is anonymous.
func InferAction(in ActionInput) model.Action {
	switch {
	case in.Explicit != nil && in.Explicit.Type != "":
		return in.Explicit.Clone()
	case in.Replace:
		return model.Action{Type: model.ActionRehydrate}
	case in.Initializing:
		return model.Action{Type: model.ActionHydrate}
	case in.Anonymous != "":
		return model.Action{Type: in.Anonymous}
	default:
		return model.Action{Type: model.DefaultAnonymousActionType}
	}
}
