// Package wasmffi implements the foreign-function runtime over a
// WebAssembly guest module. Native functions are guest exports, native
// memory is the guest's linear memory, and type introspection comes
// from a YAML interface manifest shipped next to the module binary.
package wasmffi

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Config holds runtime configuration.
type Config struct {
	// ManifestPath locates the interface manifest; the module binary
	// path comes from the manifest itself.
	ManifestPath string

	// MemoryPages caps the guest's memory (64KB pages, 0 = default).
	MemoryPages uint32
}

// Runtime is the wazero-backed foreign-function runtime. It satisfies
// ffi.Runtime, ffi.StringReader and ffi.Namespace for the binding
// layer.
//
// The descriptor cache and layout tables are mutex-guarded; call
// dispatch itself is only as thread-safe as the guest library.
type Runtime struct {
	logger   *zap.Logger
	manifest *Manifest

	wr     wazero.Runtime
	module api.Module
	mem    *Memory
	alloc  api.Function
	free   api.Function

	mu      sync.RWMutex
	types   map[string]*ctypes.TypeDescriptor
	sizes   map[string]uint32            // aggregate name -> byte size
	layouts map[string]map[string]uint32 // aggregate name -> field -> offset

	closeOnce sync.Once
}

// Open loads a Wasm library and its interface manifest.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*Runtime, error) {
	manifest, err := ParseManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(manifest.WasmPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read Wasm library '%s': %w", manifest.WasmPath(), err)
	}

	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryPages)
	}
	wr := wazero.NewRuntimeWithConfig(ctx, rc)

	// C toolchains targeting wasi need the preview1 host module.
	wasi_snapshot_preview1.MustInstantiate(ctx, wr)

	compiled, err := wr.CompileModule(ctx, data)
	if err != nil {
		wr.Close(ctx)
		return nil, &CompilationError{Library: manifest.Library, Err: err}
	}

	// Libraries follow the reactor model: no _start, but _initialize
	// runs once if exported.
	module, err := wr.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(manifest.Library).WithStartFunctions())
	if err != nil {
		wr.Close(ctx)
		return nil, &InstantiationError{Library: manifest.Library, Err: err}
	}
	if init := module.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			wr.Close(ctx)
			return nil, &InstantiationError{Library: manifest.Library, Err: err}
		}
	}

	alloc := module.ExportedFunction(manifest.AllocExport)
	if alloc == nil {
		wr.Close(ctx)
		return nil, &ExportNotFoundError{Library: manifest.Library, Export: manifest.AllocExport}
	}

	rt := &Runtime{
		logger:   logger.With(zap.String("component", "wasm-ffi"), zap.String("library", manifest.Library)),
		manifest: manifest,
		wr:       wr,
		module:   module,
		mem:      NewMemory(module),
		alloc:    alloc,
		free:     module.ExportedFunction(manifest.FreeExport),
		types:    make(map[string]*ctypes.TypeDescriptor),
		sizes:    make(map[string]uint32),
		layouts:  make(map[string]map[string]uint32),
	}

	logger.Info("Wasm library loaded",
		zap.String("library", manifest.Library),
		zap.Int("functions", len(manifest.Functions)),
		zap.Int("types", len(manifest.Types)),
		zap.Int("size_bytes", len(data)),
	)

	return rt, nil
}

// Close shuts down the runtime. Safe to call multiple times.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		if r.wr == nil {
			return
		}
		r.logger.Info("Closing Wasm library")
		err = r.wr.Close(ctx)
	})
	return err
}

// Memory returns the guest memory helper.
func (r *Runtime) Memory() *Memory {
	return r.mem
}

// Library returns the loaded library's name.
func (r *Runtime) Library() string {
	return r.manifest.Library
}

// ResolveType describes a native symbol: a declared function, a
// manifest type, a scalar, or a derived pointer/array spelling.
func (r *Runtime) ResolveType(name string) (*ctypes.TypeDescriptor, error) {
	if decl, ok := r.manifest.FunctionNamed(name); ok {
		return r.functionDescriptor(decl)
	}
	return r.parseSpelling(name)
}

func (r *Runtime) functionDescriptor(decl FunctionDecl) (*ctypes.TypeDescriptor, error) {
	r.mu.RLock()
	cached, ok := r.types[decl.Name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	params := make([]*ctypes.TypeDescriptor, 0, len(decl.Params))
	for _, spelling := range decl.Params {
		pt, err := r.parseSpelling(spelling)
		if err != nil {
			return nil, &ffi.UnknownTypeError{Name: decl.Name, Err: err}
		}
		params = append(params, pt)
	}

	var result *ctypes.TypeDescriptor
	if decl.Result != "" && decl.Result != "void" {
		rt, err := r.parseSpelling(decl.Result)
		if err != nil {
			return nil, &ffi.UnknownTypeError{Name: decl.Name, Err: err}
		}
		result = rt
	}

	desc := &ctypes.TypeDescriptor{
		CanonicalName: decl.Name,
		Kind:          ctypes.Function,
		Params:        params,
		Result:        result,
	}

	r.mu.Lock()
	r.types[decl.Name] = desc
	r.mu.Unlock()
	return desc, nil
}

// resolveNamed resolves a manifest-declared type name.
func (r *Runtime) resolveNamed(name string) (*ctypes.TypeDescriptor, error) {
	r.mu.RLock()
	cached, ok := r.types[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	decl, ok := r.manifest.TypeNamed(name)
	if !ok {
		return nil, &ffi.UnknownTypeError{Name: name}
	}

	switch decl.Kind {
	case "alias":
		desc, err := r.parseSpelling(decl.Target)
		if err != nil {
			return nil, &ffi.UnknownTypeError{Name: name, Err: err}
		}
		r.mu.Lock()
		r.types[name] = desc
		r.mu.Unlock()
		return desc, nil

	case "enum":
		labels := make(map[int64]string, len(decl.Labels))
		for k, v := range decl.Labels {
			labels[k] = v
		}
		desc := &ctypes.TypeDescriptor{
			CanonicalName: name,
			Kind:          ctypes.Enum,
			Labels:        labels,
		}
		r.mu.Lock()
		r.types[name] = desc
		r.mu.Unlock()
		return desc, nil

	default: // struct | union, validated at parse time
		kind := ctypes.Struct
		if decl.Kind == "union" {
			kind = ctypes.Union
		}
		desc := &ctypes.TypeDescriptor{CanonicalName: name, Kind: kind}

		// Cache before resolving fields so self-referential types
		// (e.g. a node holding a pointer to its own struct) terminate.
		r.mu.Lock()
		r.types[name] = desc
		r.sizes[name] = decl.Size
		if r.layouts[name] == nil {
			r.layouts[name] = make(map[string]uint32)
		}
		r.mu.Unlock()

		if decl.Opaque {
			return desc, nil
		}

		// Fields whose type cannot currently be resolved are skipped,
		// not fatal to the whole descriptor.
		fields := make([]ctypes.Field, 0, len(decl.Fields))
		for _, f := range decl.Fields {
			ft, err := r.parseSpelling(f.Type)
			if err != nil {
				r.logger.Warn("Skipping unresolvable field",
					zap.String("type", name),
					zap.String("field", f.Name),
					zap.String("spelling", f.Type),
					zap.Error(err),
				)
				continue
			}
			fields = append(fields, ctypes.Field{Name: f.Name, Type: ft})
			r.mu.Lock()
			r.layouts[name][f.Name] = f.Offset
			r.mu.Unlock()
		}
		desc.Fields = fields
		return desc, nil
	}
}

func (r *Runtime) fieldOffset(typeName, field string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	layout, ok := r.layouts[typeName]
	if !ok {
		return 0, false
	}
	off, ok := layout[field]
	return off, ok
}

// malloc allocates guest memory through the library's allocator export.
func (r *Runtime) malloc(spelling string, size uint32) (uint32, error) {
	if size == 0 {
		return 0, &AllocationError{Spelling: spelling, Size: size,
			Err: fmt.Errorf("zero-sized allocation")}
	}
	results, err := r.alloc.Call(context.Background(), uint64(size))
	if err != nil {
		return 0, &AllocationError{Spelling: spelling, Size: size, Err: err}
	}
	addr := uint32(results[0])
	if addr == 0 {
		return 0, &AllocationError{Spelling: spelling, Size: size,
			Err: fmt.Errorf("guest allocator returned null")}
	}
	if err := r.mem.Zero(addr, size); err != nil {
		return 0, err
	}
	return addr, nil
}

// Allocate creates guest storage for a type spelling. "T *" allocates a
// T cell and returns a pointer to it; "T[]" takes an integer length or
// string/byte initializer; fixed "T[n]" needs none.
func (r *Runtime) Allocate(spelling string, init any) (ffi.Value, error) {
	desc, err := r.parseSpelling(spelling)
	if err != nil {
		return nil, err
	}

	switch desc.Kind {
	case ctypes.Array:
		return r.allocateArray(desc, init)

	case ctypes.Pointer:
		size, err := r.sizeOf(desc.Elem)
		if err != nil {
			return nil, err
		}
		addr, err := r.malloc(spelling, size)
		if err != nil {
			return nil, err
		}
		val := &guestValue{rt: r, desc: desc, addr: addr}
		if init != nil {
			if err := r.writeTyped(addr, desc.Elem, init); err != nil {
				return nil, err
			}
		}
		return val, nil

	default:
		// A bare cell spelling behaves like its pointer form.
		size, err := r.sizeOf(desc)
		if err != nil {
			return nil, err
		}
		addr, err := r.malloc(spelling, size)
		if err != nil {
			return nil, err
		}
		val := &guestValue{rt: r, desc: pointerTo(desc), addr: addr}
		if init != nil {
			if err := r.writeTyped(addr, desc, init); err != nil {
				return nil, err
			}
		}
		return val, nil
	}
}

func (r *Runtime) allocateArray(desc *ctypes.TypeDescriptor, init any) (ffi.Value, error) {
	stride, err := r.sizeOf(desc.Elem)
	if err != nil {
		return nil, err
	}

	length := desc.Length
	var text string
	var isText bool

	switch v := init.(type) {
	case nil:
	case string:
		text, isText = v, true
	case []byte:
		text, isText = string(v), true
	default:
		if n, ok := coerceInt(v); ok {
			if length == 0 {
				length = int(n)
			}
		} else {
			return nil, fmt.Errorf("cannot initialize '%s' from %T", desc.CanonicalName, init)
		}
	}

	if isText {
		if stride == 4 {
			// Wide storage: one code point per element.
			length = len([]rune(text)) + 1
		} else {
			length = len(text) + 1
		}
	}
	if length == 0 {
		return nil, fmt.Errorf("unsized array '%s' needs a length or initializer", desc.CanonicalName)
	}

	addr, err := r.malloc(desc.CanonicalName, stride*uint32(length))
	if err != nil {
		return nil, err
	}

	if isText {
		if stride == 4 {
			if err := r.mem.WriteWideString(addr, text); err != nil {
				return nil, err
			}
		} else {
			if err := r.mem.WriteCString(addr, text); err != nil {
				return nil, err
			}
		}
	}

	return &guestValue{rt: r, desc: desc, addr: addr, length: length}, nil
}

// CastToPointer wraps a raw guest address as a byte pointer, the
// zero-copy path for external buffers.
func (r *Runtime) CastToPointer(addr uintptr) (ffi.Value, error) {
	byteDesc := &ctypes.TypeDescriptor{CanonicalName: "unsigned char", Kind: ctypes.Scalar}
	return &guestValue{rt: r, desc: pointerTo(byteDesc), addr: uint32(addr)}, nil
}

// NewBuffer allocates a caller-owned guest buffer for zero-copy array
// binding. The binding layer never frees it; Release returns it to the
// guest allocator.
func (r *Runtime) NewBuffer(elemSpelling string, length int) (*Buffer, error) {
	elem, err := r.parseSpelling(elemSpelling)
	if err != nil {
		return nil, err
	}
	stride, err := r.sizeOf(elem)
	if err != nil {
		return nil, err
	}
	addr, err := r.malloc(elemSpelling+"[]", stride*uint32(length))
	if err != nil {
		return nil, err
	}
	return &Buffer{rt: r, elem: elem, addr: addr, length: length}, nil
}

// Release returns a buffer to the guest allocator.
func (r *Runtime) Release(b *Buffer) error {
	if r.free == nil {
		return &ExportNotFoundError{Library: r.manifest.Library, Export: r.manifest.FreeExport}
	}
	_, err := r.free.Call(context.Background(), uint64(b.addr))
	return err
}

// Invoke calls a guest export with a marshaled argument list.
func (r *Runtime) Invoke(fn ffi.Value, args []any) (any, error) {
	gf, ok := fn.(*guestFunction)
	if !ok {
		return nil, fmt.Errorf("cannot invoke %T as a guest function", fn)
	}
	export := r.module.ExportedFunction(gf.name)
	if export == nil {
		return nil, &ExportNotFoundError{Library: r.manifest.Library, Export: gf.name}
	}

	params := make([]uint64, len(args))
	for i, arg := range args {
		var pt *ctypes.TypeDescriptor
		if i < len(gf.desc.Params) {
			pt = gf.desc.Params[i]
		}
		enc, err := encodeParam(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("function '%s': argument %d: %w", gf.name, i, err)
		}
		params[i] = enc
	}

	results, err := export.Call(context.Background(), params...)
	if err != nil {
		return nil, fmt.Errorf("native call '%s' failed: %w", gf.name, err)
	}

	return r.decodeResult(gf.desc.Result, results)
}

func encodeParam(arg any, pt *ctypes.TypeDescriptor) (uint64, error) {
	switch v := arg.(type) {
	case nil:
		return 0, nil
	case *guestValue:
		return uint64(v.addr), nil
	case *Buffer:
		return uint64(v.addr), nil
	case float32:
		return uint64(math.Float32bits(v)), nil
	case float64:
		if pt != nil {
			if info, ok := scalarTypes[pt.CanonicalName]; ok && info.float && info.size == 4 {
				return uint64(math.Float32bits(float32(v))), nil
			}
		}
		return math.Float64bits(v), nil
	}
	if n, ok := coerceInt(arg); ok {
		if pt != nil {
			if info, ok := scalarTypes[pt.CanonicalName]; ok {
				if info.float && info.size == 4 {
					return uint64(math.Float32bits(float32(n))), nil
				}
				if info.float {
					return math.Float64bits(float64(n)), nil
				}
				if info.size <= 4 {
					return uint64(uint32(int32(n))), nil
				}
			}
		}
		return uint64(n), nil
	}
	return 0, fmt.Errorf("cannot marshal %T for the wasm stack", arg)
}

func (r *Runtime) decodeResult(result *ctypes.TypeDescriptor, results []uint64) (any, error) {
	if result == nil || len(results) == 0 {
		return nil, nil
	}
	raw := results[0]

	switch result.Kind {
	case ctypes.Pointer, ctypes.Function:
		return &guestValue{rt: r, desc: result, addr: uint32(raw)}, nil
	case ctypes.Enum:
		return int64(int32(uint32(raw))), nil
	}

	info, ok := scalarTypes[result.CanonicalName]
	if !ok {
		return raw, nil
	}
	switch {
	case info.float && info.size == 4:
		return math.Float32frombits(uint32(raw)), nil
	case info.float:
		return math.Float64frombits(raw), nil
	case info.signed && info.size <= 4:
		return int64(int32(uint32(raw))), nil
	case info.signed:
		return int64(raw), nil
	case info.size <= 4:
		return uint64(uint32(raw)), nil
	default:
		return raw, nil
	}
}

// Null returns the guest null pointer.
func (r *Runtime) Null() any {
	voidDesc := &ctypes.TypeDescriptor{CanonicalName: "void", Kind: ctypes.Scalar}
	return &guestValue{rt: r, desc: pointerTo(voidDesc), addr: 0}
}

// IsNull reports whether a raw result is the guest null pointer. A nil
// result (void function) is not null.
func (r *Runtime) IsNull(v any) bool {
	if gv, ok := v.(*guestValue); ok {
		return gv.addr == 0
	}
	return false
}

// ReadCString decodes a NUL-terminated character buffer.
func (r *Runtime) ReadCString(p ffi.Value) (string, error) {
	gv, ok := p.(*guestValue)
	if !ok {
		return "", fmt.Errorf("cannot read a string from %T", p)
	}
	return r.mem.ReadCString(gv.addr)
}

// Symbols lists the declared function names.
func (r *Runtime) Symbols() []string {
	names := make([]string, 0, len(r.manifest.Functions))
	for _, fn := range r.manifest.Functions {
		names = append(names, fn.Name)
	}
	return names
}

// Lookup resolves a declared function to its handle.
func (r *Runtime) Lookup(name string) (ffi.Value, error) {
	decl, ok := r.manifest.FunctionNamed(name)
	if !ok {
		return nil, &ffi.UnknownTypeError{Name: name}
	}
	if r.module.ExportedFunction(decl.ExportName()) == nil {
		return nil, &ExportNotFoundError{Library: r.manifest.Library, Export: decl.ExportName()}
	}
	desc, err := r.functionDescriptor(decl)
	if err != nil {
		return nil, err
	}
	return &guestFunction{rt: r, name: decl.ExportName(), desc: desc}, nil
}

// TypeNames lists the declared type names.
func (r *Runtime) TypeNames() []string {
	names := make([]string, 0, len(r.manifest.Types))
	for _, t := range r.manifest.Types {
		names = append(names, t.Name)
	}
	return names
}

// readTyped reads a value of the descriptor's type from guest memory,
// wrapping non-scalar results as guest handles.
func (r *Runtime) readTyped(addr uint32, desc *ctypes.TypeDescriptor) (any, error) {
	switch desc.Kind {
	case ctypes.Pointer, ctypes.Function:
		raw, err := r.mem.ReadScalar(addr, desc)
		if err != nil {
			return nil, err
		}
		return &guestValue{rt: r, desc: desc, addr: raw.(uint32)}, nil

	case ctypes.Struct, ctypes.Union:
		return &guestValue{rt: r, desc: pointerTo(desc), addr: addr}, nil

	case ctypes.Array:
		return &guestValue{rt: r, desc: desc, addr: addr, length: desc.Length}, nil

	default:
		return r.mem.ReadScalar(addr, desc)
	}
}

// writeTyped writes a value of the descriptor's type into guest memory.
func (r *Runtime) writeTyped(addr uint32, desc *ctypes.TypeDescriptor, val any) error {
	switch desc.Kind {
	case ctypes.Pointer, ctypes.Function:
		switch v := val.(type) {
		case nil:
			return r.mem.WriteScalar(addr, desc, 0)
		case *guestValue:
			return r.mem.WriteScalar(addr, desc, v.addr)
		case *Buffer:
			return r.mem.WriteScalar(addr, desc, v.addr)
		default:
			return r.mem.WriteScalar(addr, desc, val)
		}

	case ctypes.Struct, ctypes.Union:
		src, ok := val.(*guestValue)
		if !ok {
			return fmt.Errorf("cannot store %T into '%s'", val, desc.CanonicalName)
		}
		size, err := r.sizeOf(desc)
		if err != nil {
			return err
		}
		return r.mem.Copy(addr, src.addr, size)

	case ctypes.Array:
		src, ok := val.(*guestValue)
		if !ok {
			return fmt.Errorf("cannot store %T into '%s'", val, desc.CanonicalName)
		}
		size, err := r.sizeOf(desc)
		if err != nil {
			return err
		}
		return r.mem.Copy(addr, src.addr, size)

	default:
		return r.mem.WriteScalar(addr, desc, val)
	}
}

var (
	_ ffi.Runtime      = (*Runtime)(nil)
	_ ffi.StringReader = (*Runtime)(nil)
	_ ffi.Namespace    = (*Runtime)(nil)
)
