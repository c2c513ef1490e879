// Package rules holds managed policy routines: compliance checks that are
// implemented in code rather than as a catalog query.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// DefaultClassName is the routine name assumed when a catalog record names
// only a code_ref.
const DefaultClassName = "RuleExecutor"

// PolicyRoutine runs one managed compliance check.
type PolicyRoutine interface {
	Execute(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error)
}

// RoutineFunc adapts a function to PolicyRoutine.
type RoutineFunc func(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error)

// Execute calls f.
func (f RoutineFunc) Execute(ctx context.Context, execArgs *models.ExecutionArgs, connArgs models.ConnectionArgs) (*models.Result, error) {
	return f(ctx, execArgs, connArgs)
}

// Registry maps catalog code references to routines. Keys are either a bare
// code_ref or "code_ref.ClassName".
type Registry struct {
	mu       sync.RWMutex
	routines map[string]PolicyRoutine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routines: make(map[string]PolicyRoutine)}
}

// Register adds routine under key, replacing any previous registration.
func (r *Registry) Register(key string, routine PolicyRoutine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routines[key] = routine
}

// Lookup finds the routine for a catalog record. "code_ref.class_name" is
// tried first; a record without a class name, or using DefaultClassName,
// also matches a bare code_ref registration.
func (r *Registry) Lookup(codeRef, className string) (PolicyRoutine, error) {
	if className == "" {
		className = DefaultClassName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if routine, ok := r.routines[codeRef+"."+className]; ok {
		return routine, nil
	}
	if className == DefaultClassName {
		if routine, ok := r.routines[codeRef]; ok {
			return routine, nil
		}
	}
	return nil, fmt.Errorf("unknown code_ref %q (class %q)", codeRef, className)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.routines))
	for k := range r.routines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
