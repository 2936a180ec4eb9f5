// Package registry provides the named-function catalog consumed by the
// expression and condition evaluators. It holds the builtin math, statistics
// and business helpers and accepts custom registrations.
//
// Registration is a setup-time operation: register everything before the
// first evaluation. Call is safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownFunction is returned by Call for a name that has not been
// registered.
var ErrUnknownFunction = errors.New("unknown function")

// Func is a callable registered in the registry. Arguments are the
// positionally evaluated expression arguments.
type Func func(args []any) (any, error)

// Meta describes a registered function.
type Meta struct {
	Category    string
	Description string

	// Arity is the required argument count; -1 means variadic.
	Arity int
}

type entry struct {
	fn   Func
	meta Meta
}

// Registry is a named-callable dictionary. The zero value is not usable;
// call New.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]entry
}

// New returns a registry preloaded with the builtin catalog.
func New() *Registry {
	r := &Registry{funcs: map[string]entry{}}
	registerBuiltins(r)
	return r
}

// Register adds or replaces a function under the name.
func (r *Registry) Register(name string, fn Func, meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = entry{fn: fn, meta: meta}
}

// Call dispatches to the named function. It returns ErrUnknownFunction for
// unregistered names and an arity error before invoking the function.
func (r *Registry) Call(name string, args []any) (any, error) {
	r.mu.RLock()
	e, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if e.meta.Arity >= 0 && len(args) != e.meta.Arity {
		return nil, fmt.Errorf("function %s expects %d arguments, got %d", name, e.meta.Arity, len(args))
	}
	return e.fn(args)
}

// Describe returns the metadata for a registered function.
func (r *Registry) Describe(name string) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.funcs[name]
	return e.meta, ok
}

// Categories returns category -> sorted function names for every
// registered function. The result is deterministic.
func (r *Registry) Categories() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{}
	for name, e := range r.funcs {
		out[e.meta.Category] = append(out[e.meta.Category], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
