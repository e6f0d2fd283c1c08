package wasmffi

import (
	"strconv"
	"strings"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// scalarInfo describes one fixed-width scalar's wasm32 representation.
type scalarInfo struct {
	size   uint32
	signed bool
	float  bool
}

// Scalar spellings and their wasm32 (ILP32) layout. C spellings map to
// their fixed-width equivalents so manifests can use either.
var scalarTypes = map[string]scalarInfo{
	"void": {size: 0},

	"int8":  {size: 1, signed: true},
	"int16": {size: 2, signed: true},
	"int32": {size: 4, signed: true},
	"int64": {size: 8, signed: true},

	"uint8":  {size: 1},
	"uint16": {size: 2},
	"uint32": {size: 4},
	"uint64": {size: 8},

	"float32": {size: 4, float: true},
	"float64": {size: 8, float: true},

	"char":          {size: 1, signed: true},
	"signed char":   {size: 1, signed: true},
	"unsigned char": {size: 1},
	"wchar_t":       {size: 4},

	"short":          {size: 2, signed: true},
	"unsigned short": {size: 2},
	"int":            {size: 4, signed: true},
	"unsigned int":   {size: 4},
	"long":           {size: 4, signed: true},
	"unsigned long":  {size: 4},
	"long long":      {size: 8, signed: true},
	"size_t":         {size: 4},
	"float":          {size: 4, float: true},
	"double":         {size: 8, float: true},
}

// pointerSize is the wasm32 pointer width.
const pointerSize = 4

// enumSize is the storage width of enum values.
const enumSize = 4

// parseSpelling resolves a type spelling into a descriptor: a scalar or
// manifest-declared name, optionally wrapped in trailing "*" pointer and
// "[n]"/"[]" array modifiers. The first bracket is the outermost array
// dimension, matching the native declaration order.
func (r *Runtime) parseSpelling(spelling string) (*ctypes.TypeDescriptor, error) {
	s := strings.TrimSpace(spelling)

	// Trailing pointer modifier binds last: "struct p *" is a pointer
	// to the whole remainder.
	if strings.HasSuffix(s, "*") {
		elem, err := r.parseSpelling(strings.TrimSuffix(s, "*"))
		if err != nil {
			return nil, err
		}
		return pointerTo(elem), nil
	}

	// Array modifiers.
	if open := strings.Index(s, "["); open >= 0 {
		base, err := r.parseSpelling(s[:open])
		if err != nil {
			return nil, err
		}
		dims, err := parseDims(spelling, s[open:])
		if err != nil {
			return nil, err
		}
		// Build innermost-first so the outer descriptor carries the
		// first declared dimension. Each level's canonical name keeps
		// the declared bracket order.
		desc := base
		suffix := ""
		for i := len(dims) - 1; i >= 0; i-- {
			suffix = "[" + dimSpelling(dims[i]) + "]" + suffix
			desc = &ctypes.TypeDescriptor{
				CanonicalName: base.CanonicalName + suffix,
				Kind:          ctypes.Array,
				Elem:          desc,
				Length:        dims[i],
			}
		}
		return desc, nil
	}

	if _, ok := scalarTypes[s]; ok {
		return &ctypes.TypeDescriptor{CanonicalName: s, Kind: ctypes.Scalar}, nil
	}

	return r.resolveNamed(s)
}

// parseDims splits the bracket suffix into dimension lengths. A bare
// "[]" is an unsized open array (length 0), legal only as the sole
// dimension.
func parseDims(full, suffix string) ([]int, error) {
	var dims []int
	rest := suffix
	for rest != "" {
		if !strings.HasPrefix(rest, "[") {
			return nil, &ffi.UnknownTypeError{Name: full}
		}
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, &ffi.UnknownTypeError{Name: full}
		}
		inner := strings.TrimSpace(rest[1:end])
		if inner == "" {
			dims = append(dims, 0)
		} else {
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return nil, &ffi.UnknownTypeError{Name: full}
			}
			dims = append(dims, n)
		}
		rest = rest[end+1:]
	}
	if len(dims) > 1 {
		for _, d := range dims {
			if d == 0 {
				return nil, &ffi.UnknownTypeError{Name: full}
			}
		}
	}
	return dims, nil
}

func dimSpelling(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func pointerTo(elem *ctypes.TypeDescriptor) *ctypes.TypeDescriptor {
	return &ctypes.TypeDescriptor{
		CanonicalName: elem.CanonicalName + " *",
		Kind:          ctypes.Pointer,
		Elem:          elem,
	}
}

// sizeOf computes the byte size of a descriptor's storage.
func (r *Runtime) sizeOf(desc *ctypes.TypeDescriptor) (uint32, error) {
	switch desc.Kind {
	case ctypes.Scalar:
		if info, ok := scalarTypes[desc.CanonicalName]; ok {
			return info.size, nil
		}
		return 0, &ffi.UnknownTypeError{Name: desc.CanonicalName}
	case ctypes.Pointer, ctypes.Function:
		return pointerSize, nil
	case ctypes.Enum:
		return enumSize, nil
	case ctypes.Array:
		elemSize, err := r.sizeOf(desc.Elem)
		if err != nil {
			return 0, err
		}
		return elemSize * uint32(desc.Length), nil
	case ctypes.Struct, ctypes.Union:
		r.mu.RLock()
		size, ok := r.sizes[desc.CanonicalName]
		r.mu.RUnlock()
		if !ok {
			return 0, &ffi.UnknownTypeError{Name: desc.CanonicalName}
		}
		return size, nil
	}
	return 0, &ffi.UnknownTypeError{Name: desc.CanonicalName}
}
