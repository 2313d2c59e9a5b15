package callbacks

import (
	"context"
	"fmt"
	"reflect"
)

// Feed is the input mapping fed into a single training step
type Feed map[string]any

// Callback is a hook invoked at the lifecycle points of a training run.
//
// BeforeTrain is called exactly once before the first step. TriggerStep is
// called after every optimization step and sits on the hot path of the
// training loop. TriggerEpoch is called after every full pass over the
// dataset and may perform I/O.
//
// Embed Base to get no-op implementations for the methods a hook does not
// care about. Errors are never swallowed by the dispatcher.
type Callback interface {
	BeforeTrain(ctx context.Context, tc *TrainContext) error
	TriggerStep(ctx context.Context, inputs Feed, outputs []any, cost float64) error
	TriggerEpoch(ctx context.Context) error
}

// Base provides empty implementations for all callback methods
type Base struct{}

func (Base) BeforeTrain(context.Context, *TrainContext) error { return nil }

func (Base) TriggerStep(context.Context, Feed, []any, float64) error { return nil }

func (Base) TriggerEpoch(context.Context) error { return nil }

// Role marks a hook that plays a special part in dispatch
type Role int

const (
	RoleNone Role = iota
	// RoleSummarySink owns the summary channel. It always runs first so the
	// channel is registered before any other hook's BeforeTrain.
	RoleSummarySink
)

func (r Role) String() string {
	switch r {
	case RoleSummarySink:
		return "summary_sink"
	default:
		return "none"
	}
}

// RoleTagged is implemented by hooks that carry a role of their own
type RoleTagged interface {
	Role() Role
}

// Namer is implemented by hooks that want a custom name in diagnostics
type Namer interface {
	Name() string
}

type roleTagged struct {
	Callback
	role Role
}

func (r *roleTagged) Role() Role { return r.role }

func (r *roleTagged) Name() string { return hookName(r.Callback) }

// WithRole tags a hook with a role at registration time
func WithRole(cb Callback, role Role) Callback {
	return &roleTagged{Callback: cb, role: role}
}

func roleOf(cb Callback) Role {
	if rt, ok := cb.(RoleTagged); ok {
		return rt.Role()
	}
	return RoleNone
}

// hookName returns the diagnostic name of a hook: Name() if the hook has
// one, otherwise its concrete type name.
func hookName(cb Callback) string {
	if n, ok := cb.(Namer); ok {
		return n.Name()
	}
	t := reflect.TypeOf(cb)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return fmt.Sprintf("%T", cb)
	}
	return t.Name()
}
