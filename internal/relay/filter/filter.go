// Package filter decides which actions the relay records, using CEL
// expressions over the action and its instance name.
//
// Expressions see two variables: action, a map holding "type" and the
// action's payload fields, and instance, the instance name. For example:
//
//	allow: action.type != "tick"
//	deny:  instance == "debug" || action.type.startsWith("@@")
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/syntrixbase/devbridge/pkg/model"
)

// Filter evaluates allow and deny expressions. An action is recorded when
// allow (if set) is true and deny (if set) is false. The zero value and a nil
// Filter record everything.
type Filter struct {
	allow cel.Program
	deny  cel.Program
}

// New compiles the expressions. Empty expressions are skipped.
func New(allow, deny string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("instance", cel.StringType),
	)
	if err != nil {
		return nil, err
	}

	f := &Filter{}
	if f.allow, err = compile(env, allow); err != nil {
		return nil, fmt.Errorf("invalid allow expression: %w", err)
	}
	if f.deny, err = compile(env, deny); err != nil {
		return nil, fmt.Errorf("invalid deny expression: %w", err)
	}
	return f, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	if expr == "" {
		return nil, nil
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %v", out)
	}
	return env.Program(ast)
}

// Allows reports whether action on instance should be recorded.
func (f *Filter) Allows(instance string, action model.Action) (bool, error) {
	if f == nil || (f.allow == nil && f.deny == nil) {
		return true, nil
	}

	vars := map[string]any{
		"action":   actionMap(action),
		"instance": instance,
	}
	if f.allow != nil {
		ok, err := eval(f.allow, vars)
		if err != nil || !ok {
			return false, err
		}
	}
	if f.deny != nil {
		denied, err := eval(f.deny, vars)
		if err != nil {
			return false, err
		}
		return !denied, nil
	}
	return true, nil
}

func eval(prg cel.Program, vars map[string]any) (bool, error) {
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression must return boolean, got %T", out.Value())
	}
	return b, nil
}

func actionMap(a model.Action) map[string]any {
	m := make(map[string]any, len(a.Fields)+1)
	for k, v := range a.Fields {
		m[k] = v
	}
	m["type"] = a.Type
	return m
}
