// Package store holds values shared between nodes under a scope: the
// whole process (global), one flow, or one node.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("store: key not found")

// Scope partitions keys. Use Global, Flow or Node to build one.
type Scope string

// Global is shared by every flow.
const Global Scope = "global"

// Flow returns the scope shared by the nodes of one flow.
func Flow(id string) Scope {
	return Scope("flow:" + id)
}

// Node returns the private scope of one node.
func Node(id string) Scope {
	return Scope("node:" + id)
}

// Store is a scoped key/value store. Values must be JSON-compatible;
// backends that persist may return them in their decoded JSON form
// (numbers as float64, objects as map[string]any).
type Store interface {
	Get(ctx context.Context, scope Scope, key string) (any, error)
	Set(ctx context.Context, scope Scope, key string, value any) error
	Delete(ctx context.Context, scope Scope, key string) error
	Keys(ctx context.Context, scope Scope) ([]string, error)
}

// GetString returns the value as a string, or "" when it is missing or
// not a string.
func GetString(ctx context.Context, s Store, scope Scope, key string) (string, bool) {
	v, err := s.Get(ctx, scope, key)
	if err != nil {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}
