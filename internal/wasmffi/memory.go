package wasmffi

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/nativebind/nativebind/pkg/ctypes"
)

// cstringLimit bounds NUL-terminator scans so a missing terminator
// cannot walk the whole guest memory.
const cstringLimit = 1 << 20

// Memory provides bounds-checked, layout-aware access to a guest
// module's linear memory. The guest's memory is isolated from Go's;
// every read and write goes through wazero's api.Memory with explicit
// little-endian scalar encoding.
type Memory struct {
	mem api.Memory
}

// NewMemory wraps a module's exported memory.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// ReadBytes reads raw bytes from guest memory.
func (m *Memory) ReadBytes(addr, length uint32) ([]byte, error) {
	buf, ok := m.mem.Read(addr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: addr, Length: length}
	}
	return buf, nil
}

// WriteBytes writes raw bytes into guest memory.
func (m *Memory) WriteBytes(addr uint32, data []byte) error {
	if !m.mem.Write(addr, data) {
		return &MemoryAccessError{Operation: "write", Address: addr, Length: uint32(len(data))}
	}
	return nil
}

// Zero fills a region with zero bytes.
func (m *Memory) Zero(addr, length uint32) error {
	if length == 0 {
		return nil
	}
	return m.WriteBytes(addr, make([]byte, length))
}

// Copy moves bytes between guest regions.
func (m *Memory) Copy(dst, src, length uint32) error {
	buf, err := m.ReadBytes(src, length)
	if err != nil {
		return err
	}
	return m.WriteBytes(dst, buf)
}

// ReadCString reads a NUL-terminated narrow string.
func (m *Memory) ReadCString(addr uint32) (string, error) {
	var out []byte
	for off := uint32(0); off < cstringLimit; off++ {
		b, ok := m.mem.ReadByte(addr + off)
		if !ok {
			return "", &MemoryAccessError{Operation: "read", Address: addr + off, Length: 1}
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
	return "", fmt.Errorf("unterminated string at address %d", addr)
}

// WriteCString writes text followed by a NUL terminator.
func (m *Memory) WriteCString(addr uint32, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return m.WriteBytes(addr, buf)
}

// WriteWideString writes text as 4-byte code points followed by a NUL
// code point, the wasm32 wchar_t convention.
func (m *Memory) WriteWideString(addr uint32, s string) error {
	buf := make([]byte, 0, (utf8.RuneCountInString(s)+1)*4)
	for _, r := range s {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r))
	}
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	return m.WriteBytes(addr, buf)
}

// ReadScalar decodes one scalar of the descriptor's type from guest
// memory. Signed integers return int64, unsigned return uint64, floats
// return float32/float64. Pointer storage reads as its uint32 address.
func (m *Memory) ReadScalar(addr uint32, desc *ctypes.TypeDescriptor) (any, error) {
	if desc.Kind == ctypes.Pointer || desc.Kind == ctypes.Function {
		raw, err := m.ReadBytes(addr, pointerSize)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint32(raw), nil
	}
	if desc.Kind == ctypes.Enum {
		raw, err := m.ReadBytes(addr, enumSize)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	}

	info, ok := scalarTypes[desc.CanonicalName]
	if !ok {
		return nil, fmt.Errorf("cannot read '%s' as a scalar", desc.CanonicalName)
	}
	raw, err := m.ReadBytes(addr, info.size)
	if err != nil {
		return nil, err
	}

	switch {
	case info.float && info.size == 4:
		return math.Float32frombits(binary.LittleEndian.Uint32(raw)), nil
	case info.float:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case info.signed:
		switch info.size {
		case 1:
			return int64(int8(raw[0])), nil
		case 2:
			return int64(int16(binary.LittleEndian.Uint16(raw))), nil
		case 4:
			return int64(int32(binary.LittleEndian.Uint32(raw))), nil
		default:
			return int64(binary.LittleEndian.Uint64(raw)), nil
		}
	default:
		switch info.size {
		case 1:
			return uint64(raw[0]), nil
		case 2:
			return uint64(binary.LittleEndian.Uint16(raw)), nil
		case 4:
			return uint64(binary.LittleEndian.Uint32(raw)), nil
		default:
			return binary.LittleEndian.Uint64(raw), nil
		}
	}
}

// WriteScalar encodes one scalar of the descriptor's type into guest
// memory, coercing Go numeric kinds to the declared width.
func (m *Memory) WriteScalar(addr uint32, desc *ctypes.TypeDescriptor, v any) error {
	if desc.Kind == ctypes.Pointer || desc.Kind == ctypes.Function {
		n, ok := coerceInt(v)
		if !ok {
			return fmt.Errorf("cannot store %T into pointer storage", v)
		}
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint32(nil, uint32(n)))
	}
	if desc.Kind == ctypes.Enum {
		n, ok := coerceInt(v)
		if !ok {
			return fmt.Errorf("cannot store %T into enum storage", v)
		}
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint32(nil, uint32(int32(n))))
	}

	info, ok := scalarTypes[desc.CanonicalName]
	if !ok {
		return fmt.Errorf("cannot write '%s' as a scalar", desc.CanonicalName)
	}

	if info.float {
		f, ok := coerceFloat(v)
		if !ok {
			return fmt.Errorf("cannot store %T into '%s'", v, desc.CanonicalName)
		}
		if info.size == 4 {
			return m.WriteBytes(addr, binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))))
		}
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)))
	}

	n, ok := coerceInt(v)
	if !ok {
		return fmt.Errorf("cannot store %T into '%s'", v, desc.CanonicalName)
	}
	switch info.size {
	case 1:
		return m.WriteBytes(addr, []byte{byte(n)})
	case 2:
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint16(nil, uint16(n)))
	case 4:
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint32(nil, uint32(n)))
	default:
		return m.WriteBytes(addr, binary.LittleEndian.AppendUint64(nil, uint64(n)))
	}
}

// coerceInt accepts the Go integer kinds host callers hand to the
// binding layer, plus tagged enum values.
func coerceInt(v any) (int64, bool) {
	switch n := v.(type) {
	case ctypes.EnumValue:
		return n.Int64(), true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uintptr:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func coerceFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	if n, ok := coerceInt(v); ok {
		return float64(n), true
	}
	return 0, false
}
