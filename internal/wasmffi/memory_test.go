package wasmffi

import (
	"encoding/binary"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/nativebind/nativebind/pkg/ctypes"
)

// fakeMem backs api.Memory with a plain byte slice. Only the methods
// the Memory wrapper touches are implemented; the rest panic.
type fakeMem struct {
	api.Memory
	data []byte
}

func (m *fakeMem) Read(addr, count uint32) ([]byte, bool) {
	if uint64(addr)+uint64(count) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[addr : addr+count], true
}

func (m *fakeMem) Write(addr uint32, v []byte) bool {
	if uint64(addr)+uint64(len(v)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[addr:], v)
	return true
}

func (m *fakeMem) ReadByte(addr uint32) (byte, bool) {
	if uint64(addr) >= uint64(len(m.data)) {
		return 0, false
	}
	return m.data[addr], true
}

func newTestMemory(size int) (*Memory, *fakeMem) {
	fm := &fakeMem{data: make([]byte, size)}
	return &Memory{mem: fm}, fm
}

func TestScalarRoundTrips(t *testing.T) {
	mem, _ := newTestMemory(64)

	cases := []struct {
		spelling string
		in       any
		want     any
	}{
		{"int", -5, int64(-5)},
		{"int", int64(123456), int64(123456)},
		{"char", int8(-1), int64(-1)},
		{"unsigned char", 200, uint64(200)},
		{"short", -30000, int64(-30000)},
		{"uint32", uint32(0xdeadbeef), uint64(0xdeadbeef)},
		{"long long", int64(-1 << 40), int64(-1 << 40)},
		{"float", float32(1.5), float32(1.5)},
		{"double", 2.25, 2.25},
	}

	for _, tc := range cases {
		desc := &ctypes.TypeDescriptor{CanonicalName: tc.spelling, Kind: ctypes.Scalar}
		if err := mem.WriteScalar(8, desc, tc.in); err != nil {
			t.Errorf("%s: write failed: %v", tc.spelling, err)
			continue
		}
		got, err := mem.ReadScalar(8, desc)
		if err != nil {
			t.Errorf("%s: read failed: %v", tc.spelling, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s round trip mismatch: got %v (%T), want %v (%T)",
				tc.spelling, got, got, tc.want, tc.want)
		}
	}
}

func TestPointerStorage(t *testing.T) {
	mem, fm := newTestMemory(64)
	desc := &ctypes.TypeDescriptor{
		CanonicalName: "int *",
		Kind:          ctypes.Pointer,
		Elem:          &ctypes.TypeDescriptor{CanonicalName: "int", Kind: ctypes.Scalar},
	}

	if err := mem.WriteScalar(0, desc, 0x1234); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if binary.LittleEndian.Uint32(fm.data[0:4]) != 0x1234 {
		t.Errorf("Pointer storage should be a 4-byte little-endian address")
	}

	got, err := mem.ReadScalar(0, desc)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != uint32(0x1234) {
		t.Errorf("Pointer read mismatch: got %v (%T)", got, got)
	}
}

func TestEnumStorage(t *testing.T) {
	mem, _ := newTestMemory(64)
	desc := &ctypes.TypeDescriptor{CanonicalName: "enum color", Kind: ctypes.Enum}

	if err := mem.WriteScalar(4, desc, ctypes.WrapEnum(2, desc)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := mem.ReadScalar(4, desc)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != int64(2) {
		t.Errorf("Enum read mismatch: got %v", got)
	}
}

func TestCStringRoundTrip(t *testing.T) {
	mem, _ := newTestMemory(64)

	if err := mem.WriteCString(10, "hello"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := mem.ReadCString(10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("String mismatch: got %q", got)
	}

	if err := mem.WriteCString(10, ""); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got, _ := mem.ReadCString(10); got != "" {
		t.Errorf("Empty string mismatch: got %q", got)
	}
}

func TestWideStringEncoding(t *testing.T) {
	mem, fm := newTestMemory(64)

	if err := mem.WriteWideString(0, "aé"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if binary.LittleEndian.Uint32(fm.data[0:4]) != 'a' {
		t.Errorf("First code point mismatch")
	}
	if binary.LittleEndian.Uint32(fm.data[4:8]) != 'é' {
		t.Errorf("Second code point should be the rune value, not UTF-8 bytes")
	}
	if binary.LittleEndian.Uint32(fm.data[8:12]) != 0 {
		t.Errorf("Wide strings must be NUL-terminated")
	}
}

func TestMemoryBounds(t *testing.T) {
	mem, fm := newTestMemory(16)

	if _, err := mem.ReadBytes(12, 8); err == nil {
		t.Error("Out-of-bounds read should fail")
	} else if _, ok := err.(*MemoryAccessError); !ok {
		t.Errorf("Expected *MemoryAccessError, got %T", err)
	}

	if err := mem.WriteBytes(15, []byte{1, 2}); err == nil {
		t.Error("Out-of-bounds write should fail")
	}

	// A string running off the end of memory never terminates.
	for i := range fm.data {
		fm.data[i] = 'x'
	}
	if _, err := mem.ReadCString(0); err == nil {
		t.Error("Unterminated string should fail")
	}
}

func TestZeroAndCopy(t *testing.T) {
	mem, fm := newTestMemory(32)

	copy(fm.data[0:4], []byte{1, 2, 3, 4})
	if err := mem.Copy(8, 0, 4); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if fm.data[8] != 1 || fm.data[11] != 4 {
		t.Errorf("Copy mismatch: %v", fm.data[8:12])
	}

	if err := mem.Zero(0, 4); err != nil {
		t.Fatalf("Zero failed: %v", err)
	}
	if fm.data[0] != 0 || fm.data[3] != 0 {
		t.Errorf("Zero should clear the region")
	}
}
