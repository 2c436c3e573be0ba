// Package control exposes the bridge's vehicle actions to outside callers.
// Actions are collected in a Registry and served as MCP tools.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownAction is returned by Registry.Call for unregistered names.
var ErrUnknownAction = errors.New("control: unknown action")

// Handler runs an action with its JSON arguments and returns a short text
// result for the caller.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Action is one callable entry of the control surface.
type Action struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Registry holds actions by name. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds actions, replacing any with the same name.
func (r *Registry) Register(actions ...Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range actions {
		r.actions[a.Name] = a
	}
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	return a, ok
}

// Actions returns every registered action sorted by name.
func (r *Registry) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Action) int { return strings.Compare(a.Name, b.Name) })

	return out
}

// Call runs the named action.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	a, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	return a.Handler(ctx, args)
}
