// Package bind implements the call-marshaling and aggregate-binding
// policy over an abstract foreign-function runtime: argument-direction
// classification, pointer allocation and splicing, type coercion, error
// signaling, and live proxying of native structs and unions.
package bind

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Context is the top-level binding registry. It owns the runtime, the
// type-descriptor and plan caches, and the context-wide default error
// signal. Caches are mutex-guarded; a Context is safe for concurrent
// use provided the underlying native library is.
type Context struct {
	rt     ffi.Runtime
	logger *zap.Logger

	mu    sync.RWMutex
	types map[string]*ctypes.TypeDescriptor
	plans map[string]*Plan

	signalMu sync.RWMutex
	signal   ErrorSignal
}

// NewContext creates a binding context over a runtime.
func NewContext(rt ffi.Runtime, logger *zap.Logger) *Context {
	return &Context{
		rt:     rt,
		logger: logger.With(zap.String("component", "bind-context")),
		types:  make(map[string]*ctypes.TypeDescriptor),
		plans:  make(map[string]*Plan),
	}
}

// Runtime returns the underlying foreign-function runtime.
func (c *Context) Runtime() ffi.Runtime {
	return c.rt
}

// SetDefaultSignal installs the context-wide default error signal used
// by capabilities that carry none of their own.
func (c *Context) SetDefaultSignal(signal ErrorSignal) {
	c.signalMu.Lock()
	c.signal = signal
	c.signalMu.Unlock()
}

// Reset drops the cached descriptors and plans, forcing re-resolution
// against the runtime.
func (c *Context) Reset() {
	c.mu.Lock()
	c.types = make(map[string]*ctypes.TypeDescriptor)
	c.plans = make(map[string]*Plan)
	c.mu.Unlock()
}

// ResolveType resolves and caches a type descriptor by symbol name.
func (c *Context) ResolveType(name string) (*ctypes.TypeDescriptor, error) {
	c.mu.RLock()
	desc, ok := c.types[name]
	c.mu.RUnlock()
	if ok {
		return desc, nil
	}

	desc, err := c.rt.ResolveType(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.types[name] = desc
	c.mu.Unlock()
	return desc, nil
}

// DescribeFunction resolves a symbol and verifies it names a function.
func (c *Context) DescribeFunction(symbol string) (*ctypes.TypeDescriptor, error) {
	desc, err := c.ResolveType(symbol)
	if err != nil {
		return nil, err
	}
	if desc.Kind != ctypes.Function {
		return nil, &NotAFunctionError{Symbol: symbol, Kind: desc.Kind.String()}
	}
	return desc, nil
}

// BindConfig carries the per-symbol binding configuration: the three
// direction lists and an optional capability-default error signal.
type BindConfig struct {
	Out    []int
	InOut  []int
	Arrays []int
	Signal ErrorSignal
}

// Bind wraps a native function handle as a capability. The symbol's
// descriptor is resolved through the context cache and its argument
// plan is cached per symbol and configuration.
func (c *Context) Bind(symbol string, handle ffi.Value, cfg BindConfig) (*Capability, error) {
	desc := handle.Type()
	if desc == nil || desc.Kind != ctypes.Function {
		resolved, err := c.DescribeFunction(symbol)
		if err != nil {
			return nil, err
		}
		desc = resolved
	}

	plan, err := c.planFor(symbol, desc, cfg)
	if err != nil {
		return nil, err
	}

	fn := NewFunction(c.rt, symbol, desc, handle, plan, c.logger)
	capability := NewCapability(fn)
	capability.ctx = c
	if cfg.Signal != nil {
		return capability.WithSignal(cfg.Signal), nil
	}
	return capability, nil
}

func (c *Context) defaultSignal() ErrorSignal {
	c.signalMu.RLock()
	defer c.signalMu.RUnlock()
	return c.signal
}

// planFor returns the cached plan for a symbol and direction
// configuration, building it on first use.
func (c *Context) planFor(symbol string, desc *ctypes.TypeDescriptor, cfg BindConfig) (*Plan, error) {
	key := fmt.Sprintf("%s|o%v|x%v|a%v", symbol, cfg.Out, cfg.InOut, cfg.Arrays)

	c.mu.RLock()
	plan, ok := c.plans[key]
	c.mu.RUnlock()
	if ok {
		return plan, nil
	}

	plan, err := NewPlan(desc, cfg.Out, cfg.InOut, cfg.Arrays)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.plans[key] = plan
	c.mu.Unlock()
	return plan, nil
}

// NewFactory resolves a struct/union name to an aggregate factory.
func (c *Context) NewFactory(typeName string) (*Factory, error) {
	desc, err := c.ResolveType(typeName)
	if err != nil {
		return nil, err
	}
	return NewAggregateFactory(c.rt, desc, c.logger)
}

// NewProxy wraps an aggregate instance returned from a call.
func (c *Context) NewProxy(inst ffi.Value) (*Proxy, error) {
	return NewProxy(c.rt, inst, c.logger)
}

// NewArray allocates a native array of the given element spelling. An
// integer allocates that many zeroed elements; a slice allocates and
// populates element by element.
func (c *Context) NewArray(elemSpelling string, itemsOrSize any) (ffi.Value, error) {
	spelling := elemSpelling + "[]"

	if n, ok := asInt64(itemsOrSize); ok {
		return c.rt.Allocate(spelling, int(n))
	}

	rv := reflect.ValueOf(itemsOrSize)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot build a '%s' array from %T", elemSpelling, itemsOrSize)
	}
	arr, err := c.rt.Allocate(spelling, rv.Len())
	if err != nil {
		return nil, err
	}
	store, ok := arr.(ffi.Array)
	if !ok {
		return nil, fmt.Errorf("runtime returned non-indexable array storage for '%s'", spelling)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := store.SetIndex(i, rv.Index(i).Interface()); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

// WrapAll wraps every symbol a namespace exposes: functions become
// capabilities (default plan, no directions), aggregate instances
// become proxies, other values pass through; declared struct and union
// types become factories, enums contribute their descriptors. Symbols
// whose type cannot be resolved are skipped with a warning, never
// aborting the batch.
func (c *Context) WrapAll(ns ffi.Namespace) map[string]any {
	wrapped := make(map[string]any)

	for _, name := range ns.Symbols() {
		handle, err := ns.Lookup(name)
		if err != nil {
			c.logger.Warn("Skipping unresolvable symbol",
				zap.String("symbol", name),
				zap.Error(err),
			)
			continue
		}

		desc := handle.Type()
		switch {
		case desc != nil && desc.Kind == ctypes.Function:
			capability, err := c.Bind(name, handle, BindConfig{})
			if err != nil {
				c.logger.Warn("Skipping unbindable function",
					zap.String("symbol", name),
					zap.Error(err),
				)
				continue
			}
			wrapped[name] = capability

		case desc != nil && desc.IsAggregate():
			proxy, err := c.NewProxy(handle)
			if err != nil {
				c.logger.Warn("Skipping unwrappable aggregate",
					zap.String("symbol", name),
					zap.Error(err),
				)
				continue
			}
			wrapped[name] = proxy

		default:
			wrapped[name] = handle
		}
	}

	for _, name := range ns.TypeNames() {
		desc, err := c.ResolveType(name)
		if err != nil {
			c.logger.Warn("Skipping unresolvable type",
				zap.String("type", name),
				zap.Error(err),
			)
			continue
		}

		switch desc.Deref().Kind {
		case ctypes.Struct, ctypes.Union:
			factory, err := NewAggregateFactory(c.rt, desc, c.logger)
			if err != nil {
				c.logger.Warn("Skipping type without factory",
					zap.String("type", name),
					zap.Error(err),
				)
				continue
			}
			wrapped[name] = factory
		case ctypes.Enum:
			wrapped[name] = desc
		}
	}

	c.logger.Info("Namespace wrapped", zap.Int("symbols", len(wrapped)))
	return wrapped
}
