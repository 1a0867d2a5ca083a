package tool

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps tool names to tools. Lookups are case-insensitive because
// models do not reliably preserve the declared casing of tool names.
//
// A Registry is safe for concurrent use. It is passed to the session
// coordinator at construction; sessions never mutate it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a name twice (case-insensitively) is an
// error.
func (r *Registry) Register(t Tool) error {
	key := strings.ToLower(t.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[key]; ok {
		return fmt.Errorf("tool: %q already registered", t.Name())
	}
	r.tools[key] = t
	return nil
}

// Lookup finds a tool by name, ignoring case.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.ToLower(name)]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name())
	}
	sort.Strings(names)
	return names
}

// Declarations returns the wire-facing descriptions of all registered tools,
// sorted by name, for the session-start advertisement.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		decls = append(decls, Declaration{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}
