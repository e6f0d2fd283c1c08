package ctypes

import (
	"strings"
)

// Kind classifies the shape of a native type.
type Kind int

const (
	Scalar Kind = iota
	Pointer
	Array
	Struct
	Union
	Enum
	Function
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Pointer:
		return "pointer"
	case Array:
		return "array"
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Enum:
		return "enum"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// Field is one named member of a struct or union type.
type Field struct {
	Name string
	Type *TypeDescriptor
}

// TypeDescriptor is an immutable description of a native type's shape.
//
// Descriptors are compared by canonical name, not by identity: two requests
// for the same native type may return distinct but structurally
// interchangeable descriptors. Callers must not assume pointer identity.
type TypeDescriptor struct {
	// CanonicalName is the native spelling of the type, e.g. "int",
	// "unsigned char *", "struct point".
	CanonicalName string

	Kind Kind

	// Elem is the element type for Pointer and Array kinds.
	Elem *TypeDescriptor

	// Length is the fixed length for Array kinds (0 when unsized).
	Length int

	// Fields lists the struct/union members in declaration order.
	// A nil slice marks an opaque aggregate whose layout is unknown.
	Fields []Field

	// Labels maps enumerator values to their names for Enum kinds.
	Labels map[int64]string

	// Params and Result describe Function kinds.
	Params []*TypeDescriptor
	Result *TypeDescriptor
}

// Equal reports whether two descriptors name the same native type.
func (t *TypeDescriptor) Equal(o *TypeDescriptor) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.CanonicalName == o.CanonicalName
}

// Opaque reports whether the aggregate's field layout is unknown.
func (t *TypeDescriptor) Opaque() bool {
	return (t.Kind == Struct || t.Kind == Union) && t.Fields == nil
}

// FieldNamed looks up a struct/union member by name.
func (t *TypeDescriptor) FieldNamed(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PointerSpelling returns the spelling of a pointer to this type.
func (t *TypeDescriptor) PointerSpelling() string {
	return t.CanonicalName + " *"
}

// Deref peels one level of pointer indirection. Non-pointer descriptors
// are returned unchanged, so it is safe to call on either a "struct p"
// or a "struct p *" descriptor.
func (t *TypeDescriptor) Deref() *TypeDescriptor {
	if t.Kind == Pointer && t.Elem != nil {
		return t.Elem
	}
	return t
}

// IsAggregate reports whether the descriptor (after peeling one pointer
// level) names a struct or union.
func (t *TypeDescriptor) IsAggregate() bool {
	k := t.Deref().Kind
	return k == Struct || k == Union
}

// IsWideCharLike reports whether the spelling refers to wide-character
// storage. The substring test matches "wchar_t", "wchar_t *" and typedef
// spellings that embed them.
func (t *TypeDescriptor) IsWideCharLike() bool {
	return strings.Contains(t.CanonicalName, "wchar")
}

// IsCharLike reports whether the spelling refers to narrow character
// storage ("char", "char *", "const char *", ...).
func (t *TypeDescriptor) IsCharLike() bool {
	return strings.Contains(t.CanonicalName, "char")
}

// IsBytePointer reports whether the type is a raw-byte pointer
// ("unsigned char *"), the shape used for caller-managed buffers.
func (t *TypeDescriptor) IsBytePointer() bool {
	if t.Kind != Pointer {
		return t.CanonicalName == "unsigned char *"
	}
	return t.Elem != nil && t.Elem.CanonicalName == "unsigned char"
}
