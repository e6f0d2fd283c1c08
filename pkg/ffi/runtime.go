// Package ffi defines the boundary between the binding layer and the
// underlying foreign-function runtime. The binding layer (pkg/bind) is
// written entirely against these interfaces; a concrete runtime such as
// internal/wasmffi supplies the storage, dispatch and introspection
// behind them.
package ffi

import (
	"github.com/nativebind/nativebind/pkg/ctypes"
)

// Value is an opaque handle to a value living in native memory or a
// native scalar. Concrete runtimes return richer interfaces (Pointer,
// Array, Aggregate) for storage that supports access.
type Value interface {
	Type() *ctypes.TypeDescriptor
}

// Pointer is storage holding a single value of the pointed-to type.
type Pointer interface {
	Value

	// Deref reads the stored value out of the storage.
	Deref() (any, error)

	// Store writes a value into the storage, applying the runtime's own
	// scalar coercion.
	Store(v any) error
}

// Array is fixed-length native array storage.
type Array interface {
	Value

	Len() int
	Index(i int) (any, error)
	SetIndex(i int, v any) error
}

// Aggregate is struct or union storage with named-field access.
type Aggregate interface {
	Value

	Field(name string) (any, error)
	SetField(name string, v any) error
}

// Runtime is the foreign-function runtime the binding layer is built on.
//
// The runtime owns type introspection, allocation and call dispatch.
// Allocate zero-fills unless an initializer is given; spellings follow
// the native convention: "int *" allocates an int cell and returns a
// pointer to it, "int[]" with an integer initializer allocates an array
// of that length, "char[]" with a string initializer allocates a
// NUL-terminated character buffer.
type Runtime interface {
	// ResolveType describes a native symbol: a function, struct tag,
	// union tag, enum tag or scalar typename. Unknown symbols fail with
	// *UnknownTypeError.
	ResolveType(name string) (*ctypes.TypeDescriptor, error)

	// Allocate creates native storage for the given type spelling.
	Allocate(spelling string, init any) (Value, error)

	// CastToPointer turns a raw address into a pointer value, used for
	// zero-copy binding of external buffers.
	CastToPointer(addr uintptr) (Value, error)

	// Invoke calls a native function with a fully marshaled argument
	// list and returns the raw result.
	Invoke(fn Value, args []any) (any, error)

	// Null returns the runtime's null sentinel.
	Null() any

	// IsNull reports whether a raw result is the null sentinel.
	IsNull(v any) bool
}

// StringReader is implemented by runtimes that can decode a
// NUL-terminated character buffer back to text. The aggregate proxy
// uses it to read back text written into byte-pointer fields.
type StringReader interface {
	ReadCString(p Value) (string, error)
}

// HandleSource is implemented by capability-bound values. Any argument
// implementing it is replaced by its native handle before marshaling,
// which lets wrapped objects be passed directly to further native calls.
type HandleSource interface {
	NativeHandle() any
}

// ExternalBuffer is an externally owned, contiguous buffer whose backing
// memory can be handed to a native call without copying. The binding
// layer never frees such buffers; mutations made by the native call are
// visible to the owner afterward.
type ExternalBuffer interface {
	// BufferAddress returns the raw address of the first element.
	BufferAddress() uintptr

	// Len returns the element count.
	Len() int
}

// Namespace enumerates the symbols and named types a loaded library
// exposes. Batch wrapping iterates it, skipping entries whose type
// cannot be resolved.
type Namespace interface {
	// Symbols lists the value symbols (functions, constants).
	Symbols() []string

	// Lookup resolves a value symbol to its handle.
	Lookup(name string) (Value, error)

	// TypeNames lists declared type names (struct/union/enum tags and
	// typedefs).
	TypeNames() []string
}
