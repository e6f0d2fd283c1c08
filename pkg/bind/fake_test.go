package bind

import (
	"fmt"
	"strings"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// The fakes below stand in for a foreign-function runtime: values are
// plain Go storage, functions are closures, and allocation parses the
// same spellings the binding layer emits.

func scalarDesc(name string) *ctypes.TypeDescriptor {
	return &ctypes.TypeDescriptor{CanonicalName: name, Kind: ctypes.Scalar}
}

func ptrDesc(elem *ctypes.TypeDescriptor) *ctypes.TypeDescriptor {
	return &ctypes.TypeDescriptor{
		CanonicalName: elem.CanonicalName + " *",
		Kind:          ctypes.Pointer,
		Elem:          elem,
	}
}

func funcDesc(name string, result *ctypes.TypeDescriptor, params ...*ctypes.TypeDescriptor) *ctypes.TypeDescriptor {
	return &ctypes.TypeDescriptor{
		CanonicalName: name,
		Kind:          ctypes.Function,
		Params:        params,
		Result:        result,
	}
}

// fakeCell is single-value pointer storage.
type fakeCell struct {
	desc *ctypes.TypeDescriptor // the pointer type
	val  any
}

func (c *fakeCell) Type() *ctypes.TypeDescriptor { return c.desc }
func (c *fakeCell) Deref() (any, error)          { return c.val, nil }
func (c *fakeCell) Store(v any) error            { c.val = v; return nil }

// fakeArray is indexable array storage.
type fakeArray struct {
	desc  *ctypes.TypeDescriptor
	items []any
}

func (a *fakeArray) Type() *ctypes.TypeDescriptor { return a.desc }
func (a *fakeArray) Len() int                     { return len(a.items) }

func (a *fakeArray) Index(i int) (any, error) {
	if i < 0 || i >= len(a.items) {
		return nil, fmt.Errorf("index %d out of range", i)
	}
	return a.items[i], nil
}

func (a *fakeArray) SetIndex(i int, v any) error {
	if i < 0 || i >= len(a.items) {
		return fmt.Errorf("index %d out of range", i)
	}
	a.items[i] = v
	return nil
}

// fakeStruct is aggregate storage with named fields. Its type is the
// pointer to the aggregate, matching what allocation returns.
type fakeStruct struct {
	desc   *ctypes.TypeDescriptor
	fields map[string]any
}

func newFakeStruct(aggregate *ctypes.TypeDescriptor) *fakeStruct {
	return &fakeStruct{desc: ptrDesc(aggregate), fields: make(map[string]any)}
}

func (s *fakeStruct) Type() *ctypes.TypeDescriptor { return s.desc }

func (s *fakeStruct) Field(name string) (any, error) {
	v, ok := s.fields[name]
	if !ok {
		return int64(0), nil // zeroed storage
	}
	return v, nil
}

func (s *fakeStruct) SetField(name string, v any) error {
	s.fields[name] = v
	return nil
}

// fakeString is character-buffer storage allocated from text.
type fakeString struct {
	desc *ctypes.TypeDescriptor
	s    string
}

func (f *fakeString) Type() *ctypes.TypeDescriptor { return f.desc }

// fakeFunc is a native function whose behavior is a Go closure over the
// marshaled argument list.
type fakeFunc struct {
	desc *ctypes.TypeDescriptor
	impl func(args []any) any
}

func (f *fakeFunc) Type() *ctypes.TypeDescriptor { return f.desc }

// fakeBuffer is an externally owned buffer bound zero-copy by address.
type fakeBuffer struct {
	addr uintptr
	data []int64
}

func (b *fakeBuffer) BufferAddress() uintptr { return b.addr }
func (b *fakeBuffer) Len() int               { return len(b.data) }

// fakeCast is the pointer produced by casting a raw buffer address. It
// carries the resolved buffer so closures can mutate it in place.
type fakeCast struct {
	desc *ctypes.TypeDescriptor
	addr uintptr
	buf  *fakeBuffer
}

func (c *fakeCast) Type() *ctypes.TypeDescriptor { return c.desc }

// fakeNull is the runtime's null sentinel.
type fakeNull struct{}

func (fakeNull) Type() *ctypes.TypeDescriptor {
	return ptrDesc(scalarDesc("void"))
}

// fakeRuntime implements ffi.Runtime over the fakes. Named types come
// from the descs table; scalar spellings resolve on the fly.
type fakeRuntime struct {
	descs   map[string]*ctypes.TypeDescriptor
	buffers map[uintptr]*fakeBuffer

	resolveCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		descs:   make(map[string]*ctypes.TypeDescriptor),
		buffers: make(map[uintptr]*fakeBuffer),
	}
}

func (r *fakeRuntime) register(desc *ctypes.TypeDescriptor) {
	r.descs[desc.CanonicalName] = desc
}

func (r *fakeRuntime) registerBuffer(b *fakeBuffer) {
	r.buffers[b.addr] = b
}

func (r *fakeRuntime) elemDesc(name string) *ctypes.TypeDescriptor {
	if d, ok := r.descs[name]; ok {
		return d
	}
	return scalarDesc(name)
}

func (r *fakeRuntime) ResolveType(name string) (*ctypes.TypeDescriptor, error) {
	r.resolveCalls++
	if d, ok := r.descs[name]; ok {
		return d, nil
	}
	return nil, &ffi.UnknownTypeError{Name: name}
}

func (r *fakeRuntime) Allocate(spelling string, init any) (ffi.Value, error) {
	s := strings.TrimSpace(spelling)

	if strings.HasSuffix(s, "*") {
		elem := r.elemDesc(strings.TrimSpace(strings.TrimSuffix(s, "*")))
		if elem.Kind == ctypes.Struct || elem.Kind == ctypes.Union {
			return newFakeStruct(elem), nil
		}
		cell := &fakeCell{desc: ptrDesc(elem), val: int64(0)}
		if init != nil {
			cell.val = init
		}
		return cell, nil
	}

	if open := strings.Index(s, "["); open >= 0 {
		elem := r.elemDesc(strings.TrimSpace(s[:open]))
		arrDesc := &ctypes.TypeDescriptor{
			CanonicalName: s,
			Kind:          ctypes.Array,
			Elem:          elem,
		}
		switch v := init.(type) {
		case string:
			return &fakeString{desc: arrDesc, s: v}, nil
		case []byte:
			return &fakeString{desc: arrDesc, s: string(v)}, nil
		case int:
			return &fakeArray{desc: arrDesc, items: make([]any, v)}, nil
		case nil:
			// Fixed-length spelling like "struct point[2]".
			n := 0
			fmt.Sscanf(s[open:], "[%d]", &n)
			return &fakeArray{desc: arrDesc, items: make([]any, n)}, nil
		}
		return nil, fmt.Errorf("cannot initialize '%s' from %T", s, init)
	}

	return nil, fmt.Errorf("cannot allocate spelling '%s'", s)
}

func (r *fakeRuntime) CastToPointer(addr uintptr) (ffi.Value, error) {
	return &fakeCast{
		desc: ptrDesc(scalarDesc("unsigned char")),
		addr: addr,
		buf:  r.buffers[addr],
	}, nil
}

func (r *fakeRuntime) Invoke(fn ffi.Value, args []any) (any, error) {
	ff, ok := fn.(*fakeFunc)
	if !ok {
		return nil, fmt.Errorf("cannot invoke %T", fn)
	}
	return ff.impl(args), nil
}

func (r *fakeRuntime) Null() any {
	return fakeNull{}
}

func (r *fakeRuntime) IsNull(v any) bool {
	_, ok := v.(fakeNull)
	return ok
}

func (r *fakeRuntime) ReadCString(p ffi.Value) (string, error) {
	fs, ok := p.(*fakeString)
	if !ok {
		return "", fmt.Errorf("cannot read a string from %T", p)
	}
	return fs.s, nil
}

var (
	_ ffi.Runtime      = (*fakeRuntime)(nil)
	_ ffi.StringReader = (*fakeRuntime)(nil)

	_ ffi.Pointer        = (*fakeCell)(nil)
	_ ffi.Array          = (*fakeArray)(nil)
	_ ffi.Aggregate      = (*fakeStruct)(nil)
	_ ffi.ExternalBuffer = (*fakeBuffer)(nil)
)

// fakeNamespace enumerates a canned symbol set for batch wrapping.
type fakeNamespace struct {
	symbols   map[string]ffi.Value
	order     []string
	typeNames []string
}

func (n *fakeNamespace) Symbols() []string { return n.order }

func (n *fakeNamespace) Lookup(name string) (ffi.Value, error) {
	v, ok := n.symbols[name]
	if !ok {
		return nil, &ffi.UnknownTypeError{Name: name}
	}
	return v, nil
}

func (n *fakeNamespace) TypeNames() []string { return n.typeNames }
