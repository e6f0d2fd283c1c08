package bind

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Factory constructs instances and arrays of one struct or union type.
type Factory struct {
	rt     ffi.Runtime
	desc   *ctypes.TypeDescriptor
	logger *zap.Logger
}

// NewAggregateFactory creates a factory for a struct/union descriptor.
// Pointer descriptors are peeled to their target type.
func NewAggregateFactory(rt ffi.Runtime, desc *ctypes.TypeDescriptor, logger *zap.Logger) (*Factory, error) {
	desc = desc.Deref()
	if desc.Kind != ctypes.Struct && desc.Kind != ctypes.Union {
		return nil, fmt.Errorf("'%s' is a %s, not a struct or union", desc.CanonicalName, desc.Kind)
	}
	return &Factory{
		rt:     rt,
		desc:   desc,
		logger: logger.With(zap.String("component", "factory"), zap.String("type", desc.CanonicalName)),
	}, nil
}

// Descriptor returns the aggregate's type descriptor.
func (f *Factory) Descriptor() *ctypes.TypeDescriptor {
	return f.desc
}

// New allocates a zeroed instance and assigns fields: positional values
// in declaration order first, then named values.
//
// Opaque aggregates reject any arguments with *OpaqueConstructionError.
// More positional values than fields fails with *FieldCountError; a
// field appearing both positionally and by name fails with
// *DuplicateFieldError.
func (f *Factory) New(positional []any, named map[string]any) (*Proxy, error) {
	if f.desc.Opaque() {
		if len(positional) > 0 || len(named) > 0 {
			return nil, &OpaqueConstructionError{Type: f.desc.CanonicalName}
		}
		return f.newZeroed()
	}

	if len(positional) > len(f.desc.Fields) {
		return nil, &FieldCountError{
			Type:   f.desc.CanonicalName,
			Fields: len(f.desc.Fields),
			Got:    len(positional),
		}
	}
	for i := range positional {
		if _, dup := named[f.desc.Fields[i].Name]; dup {
			return nil, &DuplicateFieldError{
				Type:  f.desc.CanonicalName,
				Field: f.desc.Fields[i].Name,
			}
		}
	}

	proxy, err := f.newZeroed()
	if err != nil {
		return nil, err
	}
	for i, val := range positional {
		if err := proxy.Set(f.desc.Fields[i].Name, val); err != nil {
			return nil, err
		}
	}
	for name, val := range named {
		if err := proxy.Set(name, val); err != nil {
			return nil, err
		}
	}
	return proxy, nil
}

func (f *Factory) newZeroed() (*Proxy, error) {
	storage, err := f.rt.Allocate(f.desc.PointerSpelling(), nil)
	if err != nil {
		return nil, err
	}
	return NewProxy(f.rt, storage, f.logger)
}

// Array allocates a zero-filled native array of the aggregate type. One
// length gives a 1-D array; several give one dimension each. No
// per-element construction runs; the runtime's zero-fill is the only
// initialization.
func (f *Factory) Array(shape ...int) (ffi.Value, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("array of '%s' needs at least one dimension", f.desc.CanonicalName)
	}
	spelling := f.desc.CanonicalName
	for _, dim := range shape {
		spelling += fmt.Sprintf("[%d]", dim)
	}
	return f.rt.Allocate(spelling, nil)
}
