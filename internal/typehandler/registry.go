package typehandler

import (
	"fmt"
	"log/slog"
	"sync"
)

// Factory creates a fresh handler instance. Registries hand out new
// instances so per-field properties never leak between fields.
type Factory func() Handler

type regKey struct {
	typeName string
	format   string
	name     string
}

// Registry resolves (target type, stream format, handler name) to a handler
// factory. Registration happens once during module init and stream
// construction; after that the registry is read-only and safe for
// concurrent lookups.
type Registry struct {
	mu        sync.RWMutex
	factories map[regKey]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[regKey]Factory)}
}

// NewDefaultRegistry creates a registry populated with the built-in scalar
// handlers for every stream format.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register binds a factory for the given target type name. Format and name
// may be empty for format-agnostic and anonymous handlers. Registering the
// same key twice is a programmer error.
func (r *Registry) Register(typeName, format, name string, f Factory) {
	key := regKey{typeName: typeName, format: format, name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		panic(fmt.Sprintf("type handler already registered for type %q format %q name %q", typeName, format, name))
	}
	slog.Debug("Registering type handler.", "type", typeName, "format", format, "name", name)
	r.factories[key] = f
}

// Lookup resolves a handler for typeName under format, preferring an
// explicitly named handler. Resolution tries, most specific first:
// (type, format, name), (type, format), (type, name), (type). The resolved
// factory is invoked and props applied to the fresh instance.
func (r *Registry) Lookup(typeName, format, name string, props map[string]string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := []regKey{
		{typeName: typeName, format: format, name: name},
		{typeName: typeName, format: format},
		{typeName: typeName, name: name},
		{typeName: typeName},
	}
	for _, key := range keys {
		if f, ok := r.factories[key]; ok {
			return configure(f(), props)
		}
	}
	if name != "" {
		// Named handlers may be registered under the name alone, with the
		// target type recorded by the handler itself.
		for key, f := range r.factories {
			if key.name == name {
				return configure(f(), props)
			}
		}
		return nil, fmt.Errorf("no type handler named %q for type %q", name, typeName)
	}
	return nil, fmt.Errorf("no type handler for type %q in format %q", typeName, format)
}
