package tool

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/statemesh/core"
)

// Registry is an explicit catalog of tools, constructed once at startup and
// passed to the agents that resolve tools from it. Lookups accept the tool
// name, a registered alias, or either of them in a different case.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	aliases map[string]string
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		aliases: make(map[string]string),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool of the same name.
func (r *Registry) Register(t Tool, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[t.Name()] = t
	for _, a := range aliases {
		r.aliases[a] = t.Name()
	}
}

// Lookup resolves an identifier to a tool.
func (r *Registry) Lookup(id string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tools[id]; ok {
		return t, nil
	}
	if name, ok := r.aliases[id]; ok {
		if t, ok := r.tools[name]; ok {
			return t, nil
		}
	}
	for name, t := range r.tools {
		if strings.EqualFold(name, id) {
			return t, nil
		}
	}
	for alias, name := range r.aliases {
		if strings.EqualFold(alias, id) {
			if t, ok := r.tools[name]; ok {
				return t, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, id)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
