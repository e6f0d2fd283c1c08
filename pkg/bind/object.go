package bind

import (
	"sync"
)

// ObjectClass describes a family of native values that share a
// capability table: the common C pattern of many functions taking the
// same struct pointer or handle as their first argument. Compose the
// table with Merge to layer override tables over a base class.
type ObjectClass struct {
	// Table holds the class's capabilities. Invocations bind the
	// object's handle as the implicit first argument.
	Table *Table

	// Constructor, when set, produces the native handle for New.
	Constructor *Capability

	// Destructor, when set, is the caller-registered teardown hook run
	// by Release with the object's handle.
	Destructor *Capability

	// Signal is the class-default error signal for objects lacking
	// their own.
	Signal ErrorSignal
}

// New constructs an object by running the class constructor and
// adopting the returned handle.
func (c *ObjectClass) New(args ...any) (*Object, error) {
	if c.Constructor == nil {
		return nil, &CapabilityNotFoundError{Name: "constructor"}
	}
	handle, err := c.Constructor.Call(args...)
	if err != nil {
		return nil, err
	}
	return c.Adopt(handle), nil
}

// Adopt wraps an existing native handle in an object of this class. The
// handle is borrowed; Release still runs the destructor if one is set.
func (c *ObjectClass) Adopt(handle any) *Object {
	return &Object{class: c, handle: handle}
}

// Object is a native handle paired with its class's capability table,
// so invocation reads like a method call on the value.
type Object struct {
	class  *ObjectClass
	handle any

	mu    sync.Mutex
	bound map[string]*Capability // capabilities already bound to this object
}

// NativeHandle returns the owned native handle. Objects may therefore
// be passed directly as arguments to other native calls.
func (o *Object) NativeHandle() any {
	return o.handle
}

// DefaultSignal returns the class-default error signal.
func (o *Object) DefaultSignal() ErrorSignal {
	if o.class == nil {
		return nil
	}
	return o.class.Signal
}

// Capability resolves a named capability bound to this object. Bound
// capabilities are cached per object.
func (o *Object) Capability(name string) (*Capability, bool) {
	if o.class == nil || o.class.Table == nil {
		return nil, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.bound[name]; ok {
		return c, true
	}
	c, ok := o.class.Table.Get(name)
	if !ok {
		return nil, false
	}
	bound := c.BindTo(o)
	if o.bound == nil {
		o.bound = make(map[string]*Capability)
	}
	o.bound[name] = bound
	return bound, true
}

// Invoke calls a named capability with this object's handle as the
// implicit first argument.
func (o *Object) Invoke(name string, args ...any) (any, error) {
	c, ok := o.Capability(name)
	if !ok {
		return nil, &CapabilityNotFoundError{Name: name}
	}
	return c.Call(args...)
}

// Release runs the class destructor, if any, on the handle. It is the
// caller's teardown hook; the binding layer requires no destructor of
// its own.
func (o *Object) Release() error {
	if o.class == nil || o.class.Destructor == nil {
		return nil
	}
	_, err := o.class.Destructor.Call(o)
	return err
}
