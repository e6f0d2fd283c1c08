package wasmffi

import (
	"fmt"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// guestValue is a handle to storage in guest linear memory. The
// descriptor is the storage's own spelling: a pointer value's addr is
// the pointee's address, an array value's addr is its base.
type guestValue struct {
	rt     *Runtime
	desc   *ctypes.TypeDescriptor
	addr   uint32
	length int // element count for array values
}

func (v *guestValue) Type() *ctypes.TypeDescriptor {
	return v.desc
}

func (v *guestValue) Address() uint32 {
	return v.addr
}

// Deref reads the stored value out of pointer storage.
func (v *guestValue) Deref() (any, error) {
	if v.desc.Kind != ctypes.Pointer || v.desc.Elem == nil {
		return nil, fmt.Errorf("cannot dereference non-pointer '%s'", v.desc.CanonicalName)
	}
	elem := v.desc.Elem

	switch elem.Kind {
	case ctypes.Pointer, ctypes.Function:
		raw, err := v.rt.mem.ReadScalar(v.addr, elem)
		if err != nil {
			return nil, err
		}
		return &guestValue{rt: v.rt, desc: elem, addr: raw.(uint32)}, nil

	case ctypes.Struct, ctypes.Union:
		// The pointer already is the aggregate view.
		return v, nil

	default:
		return v.rt.mem.ReadScalar(v.addr, elem)
	}
}

// Store writes a value into pointer storage.
func (v *guestValue) Store(val any) error {
	if v.desc.Kind != ctypes.Pointer || v.desc.Elem == nil {
		return fmt.Errorf("cannot store through non-pointer '%s'", v.desc.CanonicalName)
	}
	return v.rt.writeTyped(v.addr, v.desc.Elem, val)
}

// Len returns the element count of array storage.
func (v *guestValue) Len() int {
	return v.length
}

// Index reads one element of array storage.
func (v *guestValue) Index(i int) (any, error) {
	elem, stride, err := v.elemStride()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= v.length {
		return nil, fmt.Errorf("index %d out of range for '%s' of length %d",
			i, v.desc.CanonicalName, v.length)
	}
	return v.rt.readTyped(v.addr+uint32(i)*stride, elem)
}

// SetIndex writes one element of array storage.
func (v *guestValue) SetIndex(i int, val any) error {
	elem, stride, err := v.elemStride()
	if err != nil {
		return err
	}
	if i < 0 || i >= v.length {
		return fmt.Errorf("index %d out of range for '%s' of length %d",
			i, v.desc.CanonicalName, v.length)
	}
	return v.rt.writeTyped(v.addr+uint32(i)*stride, elem, val)
}

func (v *guestValue) elemStride() (*ctypes.TypeDescriptor, uint32, error) {
	if v.desc.Kind != ctypes.Array || v.desc.Elem == nil {
		return nil, 0, fmt.Errorf("'%s' is not array storage", v.desc.CanonicalName)
	}
	stride, err := v.rt.sizeOf(v.desc.Elem)
	if err != nil {
		return nil, 0, err
	}
	return v.desc.Elem, stride, nil
}

// aggregateType returns the struct/union descriptor behind the value.
func (v *guestValue) aggregateType() (*ctypes.TypeDescriptor, error) {
	desc := v.desc.Deref()
	if desc.Kind != ctypes.Struct && desc.Kind != ctypes.Union {
		return nil, fmt.Errorf("'%s' is not an aggregate", v.desc.CanonicalName)
	}
	return desc, nil
}

// Field reads a named member out of aggregate storage.
func (v *guestValue) Field(name string) (any, error) {
	desc, err := v.aggregateType()
	if err != nil {
		return nil, err
	}
	fld, ok := desc.FieldNamed(name)
	if !ok {
		return nil, fmt.Errorf("'%s' has no field '%s'", desc.CanonicalName, name)
	}
	offset, ok := v.rt.fieldOffset(desc.CanonicalName, name)
	if !ok {
		return nil, fmt.Errorf("'%s': no layout for field '%s'", desc.CanonicalName, name)
	}
	return v.rt.readTyped(v.addr+offset, fld.Type)
}

// SetField writes a named member of aggregate storage.
func (v *guestValue) SetField(name string, val any) error {
	desc, err := v.aggregateType()
	if err != nil {
		return err
	}
	fld, ok := desc.FieldNamed(name)
	if !ok {
		return fmt.Errorf("'%s' has no field '%s'", desc.CanonicalName, name)
	}
	offset, ok := v.rt.fieldOffset(desc.CanonicalName, name)
	if !ok {
		return fmt.Errorf("'%s': no layout for field '%s'", desc.CanonicalName, name)
	}
	return v.rt.writeTyped(v.addr+offset, fld.Type, val)
}

// guestFunction is a handle to an exported guest function.
type guestFunction struct {
	rt   *Runtime
	name string
	desc *ctypes.TypeDescriptor
}

func (f *guestFunction) Type() *ctypes.TypeDescriptor {
	return f.desc
}

// Buffer is a caller-owned region of guest memory usable for zero-copy
// array binding. The binding layer borrows it and never frees it;
// mutations made by native calls are visible through At afterward.
type Buffer struct {
	rt     *Runtime
	elem   *ctypes.TypeDescriptor
	addr   uint32
	length int
}

// BufferAddress returns the raw guest address of the first element.
func (b *Buffer) BufferAddress() uintptr {
	return uintptr(b.addr)
}

// Len returns the element count.
func (b *Buffer) Len() int {
	return b.length
}

// At reads one element.
func (b *Buffer) At(i int) (any, error) {
	stride, err := b.rt.sizeOf(b.elem)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= b.length {
		return nil, fmt.Errorf("buffer index %d out of range (%d elements)", i, b.length)
	}
	return b.rt.readTyped(b.addr+uint32(i)*stride, b.elem)
}

// Set writes one element.
func (b *Buffer) Set(i int, v any) error {
	stride, err := b.rt.sizeOf(b.elem)
	if err != nil {
		return err
	}
	if i < 0 || i >= b.length {
		return fmt.Errorf("buffer index %d out of range (%d elements)", i, b.length)
	}
	return b.rt.writeTyped(b.addr+uint32(i)*stride, b.elem, v)
}

var (
	_ ffi.Pointer        = (*guestValue)(nil)
	_ ffi.Array          = (*guestValue)(nil)
	_ ffi.Aggregate      = (*guestValue)(nil)
	_ ffi.Value          = (*guestFunction)(nil)
	_ ffi.ExternalBuffer = (*Buffer)(nil)
)
