package ctypes

import "strconv"

// EnumValue is an integer tagged with the enum type it came from.
// It behaves as its underlying integer for arithmetic and equality but
// renders using the enum's label table.
type EnumValue struct {
	Value int64
	Type  *TypeDescriptor
}

// WrapEnum tags a raw integer result with its enum descriptor.
func WrapEnum(raw int64, desc *TypeDescriptor) EnumValue {
	return EnumValue{Value: raw, Type: desc}
}

// Int64 returns the underlying integer value.
func (e EnumValue) Int64() int64 {
	return e.Value
}

// Equal reports whether the enum equals the given integer.
func (e EnumValue) Equal(v int64) bool {
	return e.Value == v
}

// String renders the enumerator label, falling back to the decimal value
// when the label table has no entry.
func (e EnumValue) String() string {
	if e.Type != nil {
		if name, ok := e.Type.Labels[e.Value]; ok {
			return name
		}
	}
	return strconv.FormatInt(e.Value, 10)
}
