package langregistry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a process-wide, concurrency-safe table of language plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// New returns an empty registry. Most callers want Default, which ships the
// four built-in plugins already registered.
func New() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds or replaces the plugin for its own Name().
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("langregistry: unknown language %q", name)
	}
	return p, nil
}

// Names returns the registered language names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, initializing it with the four
// built-in plugins on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
		defaultReg.Register(newECMAScriptPlain())
		defaultReg.Register(newECMAScriptTyped())
		defaultReg.Register(newPython())
		defaultReg.Register(newShell())
	})
	return defaultReg
}
