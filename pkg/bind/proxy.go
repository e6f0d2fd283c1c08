package bind

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Proxy is a live view over a native struct or union instance. Field
// access is resolved against the type descriptor's field table; nested
// aggregates, pointers and function fields are wrapped recursively, with
// a per-instance cache so repeated reads of the same un-mutated field
// return the identical wrapper.
type Proxy struct {
	rt     ffi.Runtime
	desc   *ctypes.TypeDescriptor
	inst   ffi.Aggregate
	logger *zap.Logger

	mu sync.Mutex

	// cache maps field name to the previously wrapped value. It also
	// keeps buffer-derived wrappers alive as long as the instance is
	// referenced.
	cache map[string]any

	// decoders maps byte-pointer field names to the conversion applied
	// when reading back a field that was written as text or bytes.
	decoders map[string]func(raw any) (any, error)
}

// NewProxy wraps a native aggregate instance. The value's type may be
// the aggregate itself or a pointer to it; either way the instance must
// support named-field access.
func NewProxy(rt ffi.Runtime, inst ffi.Value, logger *zap.Logger) (*Proxy, error) {
	desc := inst.Type().Deref()
	if desc.Kind != ctypes.Struct && desc.Kind != ctypes.Union {
		return nil, fmt.Errorf("cannot proxy %s value '%s'", desc.Kind, desc.CanonicalName)
	}
	agg, ok := inst.(ffi.Aggregate)
	if !ok {
		return nil, fmt.Errorf("'%s' storage does not support field access", desc.CanonicalName)
	}
	return &Proxy{
		rt:       rt,
		desc:     desc,
		inst:     agg,
		logger:   logger,
		cache:    make(map[string]any),
		decoders: make(map[string]func(any) (any, error)),
	}, nil
}

// Descriptor returns the aggregate's type descriptor.
func (p *Proxy) Descriptor() *ctypes.TypeDescriptor {
	return p.desc
}

// NativeHandle returns the underlying instance, so proxies can be passed
// directly as arguments to native calls.
func (p *Proxy) NativeHandle() any {
	return p.inst
}

// Get reads a declared field. Cached wrappers are returned as-is; on a
// cache miss the raw field value is read and, when it is itself a native
// handle, wrapped recursively (struct/union to Proxy, function to
// Capability) and cached. Scalar reads bypass wrapping entirely.
// Unknown field names fail with *FieldNotFoundError.
func (p *Proxy) Get(name string) (any, error) {
	fld, ok := p.desc.FieldNamed(name)
	if !ok {
		return nil, &FieldNotFoundError{Type: p.desc.CanonicalName, Field: name}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Text written into a byte-pointer field reads back through the
	// cached conversion.
	if decode, ok := p.decoders[name]; ok {
		raw, err := p.inst.Field(name)
		if err != nil {
			return nil, err
		}
		return decode(raw)
	}

	if cached, ok := p.cache[name]; ok {
		return cached, nil
	}

	raw, err := p.inst.Field(name)
	if err != nil {
		return nil, err
	}

	handle, ok := raw.(ffi.Value)
	if !ok {
		// Plain scalar.
		return raw, nil
	}

	wrapped, err := p.wrapField(fld, handle)
	if err != nil {
		return nil, err
	}
	if wrapped == nil {
		return handle, nil
	}
	p.cache[name] = wrapped
	return wrapped, nil
}

// wrapField wraps a native field value by kind. A nil result means the
// value needs no wrapping and is returned (and not cached) as-is.
func (p *Proxy) wrapField(fld ctypes.Field, handle ffi.Value) (any, error) {
	switch handle.Type().Deref().Kind {
	case ctypes.Struct, ctypes.Union:
		return NewProxy(p.rt, handle, p.logger)

	case ctypes.Function:
		desc := handle.Type().Deref()
		plan, err := NewPlan(desc, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		name := p.desc.CanonicalName + "." + fld.Name
		return NewCapability(NewFunction(p.rt, name, desc, handle, plan, p.logger)), nil
	}
	return nil, nil
}

// Set writes a declared field. Byte-pointer fields accept an external
// buffer (bound zero-copy and kept in the cache) or text/bytes (a fresh
// NUL-terminated buffer is allocated and a read-back conversion cached).
// Any other value carrying a native handle contributes that handle;
// otherwise the raw value is written, relying on the runtime's own
// scalar coercion. Writing invalidates the field's cached wrapper.
// Unknown field names fail with *FieldNotFoundError.
func (p *Proxy) Set(name string, value any) error {
	fld, ok := p.desc.FieldNamed(name)
	if !ok {
		return &FieldNotFoundError{Type: p.desc.CanonicalName, Field: name}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if fld.Type != nil && fld.Type.IsBytePointer() {
		switch v := value.(type) {
		case ffi.ExternalBuffer:
			ptr, err := p.rt.CastToPointer(v.BufferAddress())
			if err != nil {
				return err
			}
			delete(p.decoders, name)
			p.cache[name] = v
			return p.inst.SetField(name, ptr)

		case string:
			buf, err := p.rt.Allocate("char[]", v)
			if err != nil {
				return err
			}
			delete(p.cache, name)
			p.decoders[name] = p.stringDecoder(name, false)
			return p.inst.SetField(name, buf)

		case []byte:
			buf, err := p.rt.Allocate("char[]", v)
			if err != nil {
				return err
			}
			delete(p.cache, name)
			p.decoders[name] = p.stringDecoder(name, true)
			return p.inst.SetField(name, buf)
		}
	}

	if src, ok := value.(ffi.HandleSource); ok {
		if h := src.NativeHandle(); h != nil {
			value = h
		}
	}

	delete(p.cache, name)
	delete(p.decoders, name)
	return p.inst.SetField(name, value)
}

// stringDecoder builds the read-back conversion for a byte-pointer field
// written as text. asBytes selects []byte over string for the decoded
// value.
func (p *Proxy) stringDecoder(name string, asBytes bool) func(any) (any, error) {
	return func(raw any) (any, error) {
		reader, ok := p.rt.(ffi.StringReader)
		if !ok {
			return nil, fmt.Errorf("runtime cannot decode character buffers")
		}
		handle, ok := raw.(ffi.Value)
		if !ok {
			return nil, fmt.Errorf("field '%s' did not read back as a native handle", name)
		}
		s, err := reader.ReadCString(handle)
		if err != nil {
			return nil, err
		}
		if asBytes {
			return []byte(s), nil
		}
		return s, nil
	}
}
