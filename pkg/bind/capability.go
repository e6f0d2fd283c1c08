package bind

import (
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Capability is a bound native function, optionally attached to an
// owning value whose handle becomes the implicit first argument. The
// implicit argument is resolved once at bind time, not inspected per
// call.
type Capability struct {
	fn            *Function
	implicitFirst ffi.HandleSource
	signal        ErrorSignal

	// ctx, when the capability was produced through Context.Bind,
	// supplies the context-wide default signal. Read at call time so
	// SetDefaultSignal reaches capabilities bound earlier.
	ctx *Context
}

// NewCapability binds a marshaling function as a free-standing
// capability.
func NewCapability(fn *Function) *Capability {
	return &Capability{fn: fn}
}

// Function returns the underlying marshaling function.
func (c *Capability) Function() *Function {
	return c.fn
}

// WithSignal returns a copy of the capability carrying its own default
// error signal.
func (c *Capability) WithSignal(signal ErrorSignal) *Capability {
	dup := *c
	dup.signal = signal
	return &dup
}

// BindTo returns a copy of the capability whose invocations insert the
// source's native handle as the implicit first argument, so the call
// reads like a method on that value.
func (c *Capability) BindTo(src ffi.HandleSource) *Capability {
	dup := *c
	dup.implicitFirst = src
	return &dup
}

// Call invokes the capability with its resolved default signal.
func (c *Capability) Call(args ...any) (any, error) {
	return c.CallChecked(nil, args...)
}

// CallChecked invokes the capability with an explicit signal override.
// Signal resolution order: the call-site override, the capability's own
// signal, the owning value's default signal, then the binding context's
// default. A fully unresolved signal falls back to NullCheck inside
// Function.Call.
func (c *Capability) CallChecked(signal ErrorSignal, args ...any) (any, error) {
	if c.implicitFirst != nil {
		bound := make([]any, 0, len(args)+1)
		bound = append(bound, any(c.implicitFirst))
		bound = append(bound, args...)
		args = bound
	}
	return c.fn.Call(c.resolveSignal(signal), args...)
}

func (c *Capability) resolveSignal(override ErrorSignal) ErrorSignal {
	if override != nil {
		return override
	}
	if c.signal != nil {
		return c.signal
	}
	if src, ok := c.implicitFirst.(SignalSource); ok {
		if s := src.DefaultSignal(); s != nil {
			return s
		}
	}
	if c.ctx != nil {
		return c.ctx.defaultSignal()
	}
	return nil
}
