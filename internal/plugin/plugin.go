// Package plugin defines the provider interface for Tether.
package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/yairfalse/tether/pkg/resource"
)

// Plugin is the interface a cloud provider must implement.
type Plugin interface {
	// Name returns the plugin identifier (e.g., "aws").
	Name() string

	// ListInstances returns every compute instance the provider can see.
	ListInstances(ctx context.Context) ([]resource.Instance, error)

	// Correlate returns the resources attached to one instance. Per-category
	// failures are recorded in the result, not returned.
	Correlate(ctx context.Context, instanceID string) (*resource.Attachments, error)
}

// Registry holds registered plugins.
var (
	registry = make(map[string]Plugin)
	mu       sync.RWMutex
)

// Register adds a plugin to the registry.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name()] = p
}

// Get returns a plugin by name.
func Get(name string) (Plugin, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Names returns all registered plugin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all plugins from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Plugin)
}
