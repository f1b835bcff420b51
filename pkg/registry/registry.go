// Package registry maps node type tags to the constructors that build
// them, the same lookup-by-type shape the teacher's executor registry
// uses for its node-type strategies, adapted here to hold node
// constructors instead of execution strategies.
package registry

import (
	"sync"

	"github.com/kestrelflow/dagflow/pkg/node"
)

// Registry is a thread-safe map from node type tag to the Constructor that
// builds it.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]node.Constructor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{constructors: make(map[string]node.Constructor)}
}

// Register associates typeTag with ctor. Registering the same type tag
// twice simply replaces the prior constructor, matching a host's ability to
// override a built-in node type with a custom implementation.
func (r *Registry) Register(typeTag string, ctor node.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[typeTag] = ctor
}

// MustRegister panics if ctor is nil; useful for registering built-in node
// types at package init time where a nil constructor is a programming
// error, not a runtime condition.
func (r *Registry) MustRegister(typeTag string, ctor node.Constructor) {
	if ctor == nil {
		panic("registry: nil constructor for type " + typeTag)
	}
	r.Register(typeTag, ctor)
}

// Lookup returns the constructor registered for typeTag, or nil if none is
// registered.
func (r *Registry) Lookup(typeTag string) node.Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.constructors[typeTag]
}

// ListTypes returns the sorted set of registered type tags.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sortStrings(types)
	return types
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
