package wasmffi

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry tracks the loaded libraries by name, so a host can address
// several Wasm libraries through one handle.
type Registry struct {
	sync.RWMutex
	libraries map[string]*Runtime
	order     []string
	logger    *zap.Logger
}

// NewRegistry creates an empty library registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		libraries: make(map[string]*Runtime),
		logger:    logger.With(zap.String("component", "library-registry")),
	}
}

// Load opens a library from its manifest and registers it under the
// manifest's library name.
func (r *Registry) Load(ctx context.Context, cfg *Config, logger *zap.Logger) (*Runtime, error) {
	rt, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := r.Register(rt); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

// Register adds an already-open runtime to the registry.
func (r *Registry) Register(rt *Runtime) error {
	r.Lock()
	defer r.Unlock()

	name := rt.manifest.Library
	if _, exists := r.libraries[name]; exists {
		return &LibraryAlreadyLoadedError{Library: name}
	}

	r.libraries[name] = rt
	r.order = append(r.order, name)

	r.logger.Info("Library registered",
		zap.String("library", name),
		zap.Int("functions", len(rt.manifest.Functions)),
	)
	return nil
}

// Get retrieves a loaded library by name.
func (r *Registry) Get(name string) (*Runtime, bool) {
	r.RLock()
	defer r.RUnlock()

	rt, ok := r.libraries[name]
	return rt, ok
}

// Names returns the loaded library names in registration order.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Unregister removes a library from the registry without closing it.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.libraries[name]; !ok {
		return
	}
	delete(r.libraries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Library unregistered", zap.String("library", name))
}

// Count returns the number of loaded libraries.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.libraries)
}

// CloseAll shuts every loaded library down and empties the registry.
// The first close failure is reported; the rest still run.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.libraries[name].Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.libraries = make(map[string]*Runtime)
	r.order = nil
	return firstErr
}
