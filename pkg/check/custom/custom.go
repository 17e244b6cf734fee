// Package custom adapts plain functions to check.Check, for callers that
// compose checks in code rather than from configuration.
package custom

import (
	"context"
	"fmt"

	"github.com/kylerisse/aemawait/pkg/check"
)

// TypeName is the type reported by checks without an explicit name.
const TypeName = "custom"

// Func is the body of a custom check. It reports failures on the round and
// returns an error only to abort the whole run.
type Func func(ctx context.Context, r *check.Round) error

// Check implements check.Check by calling a Func.
type Check struct {
	name string
	fn   Func
}

// New wraps fn as a check named name. An empty name falls back to TypeName.
func New(name string, fn Func) (*Check, error) {
	if fn == nil {
		return nil, fmt.Errorf("custom: func must not be nil")
	}
	if name == "" {
		name = TypeName
	}
	return &Check{name: name, fn: fn}, nil
}

// Must is like New but panics on error.
func Must(name string, fn Func) *Check {
	c, err := New(name, fn)
	if err != nil {
		panic(err)
	}
	return c
}

// Type returns the check name.
func (c *Check) Type() string {
	return c.name
}

// Run calls the wrapped function.
func (c *Check) Run(ctx context.Context, r *check.Round) error {
	return c.fn(ctx, r)
}
