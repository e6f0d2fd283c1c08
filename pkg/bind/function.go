package bind

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/nativebind/nativebind/pkg/ctypes"
	"github.com/nativebind/nativebind/pkg/ffi"
)

// Function executes native calls through a precomputed argument plan.
// It coerces inputs, allocates output storage, invokes the native
// function and unpacks direction-expanded results.
type Function struct {
	rt     ffi.Runtime
	name   string
	desc   *ctypes.TypeDescriptor
	handle ffi.Value
	plan   *Plan
	logger *zap.Logger
}

// NewFunction wraps a native function handle with its plan. The
// descriptor must be Function-kinded and is the authority for parameter
// and result types during marshaling.
func NewFunction(rt ffi.Runtime, name string, desc *ctypes.TypeDescriptor,
	handle ffi.Value, plan *Plan, logger *zap.Logger) *Function {
	return &Function{
		rt:     rt,
		name:   name,
		desc:   desc,
		handle: handle,
		plan:   plan,
		logger: logger.With(zap.String("component", "marshaler"), zap.String("symbol", name)),
	}
}

// Name returns the symbol's canonical name.
func (f *Function) Name() string {
	return f.name
}

// Descriptor returns the function's type descriptor.
func (f *Function) Descriptor() *ctypes.TypeDescriptor {
	return f.desc
}

// Plan returns the function's argument plan.
func (f *Function) Plan() *Plan {
	return f.plan
}

// expansion records one direction-expanded position for output assembly.
type expansion struct {
	dir Direction

	// storage is the spliced native storage (dereferenced for Out and
	// InOut positions during output assembly).
	storage any

	// tupleVal is the value contributed to the result tuple for
	// ArrayArg positions: the caller's external buffer, or the native
	// array itself.
	tupleVal any
}

// Call marshals the explicit arguments, invokes the native function and
// unpacks the result.
//
// With no direction-expanded positions the (post-signal) raw result is
// returned as-is. With k expanded positions the result is a []any of
// length k+1: the raw result first, then one element per expanded
// position in ascending position order.
//
// A nil signal selects NullCheck.
func (f *Function) Call(signal ErrorSignal, args ...any) (any, error) {
	if len(args) != f.plan.ExplicitParams() {
		return nil, &ArityError{
			Symbol: f.name,
			Want:   f.plan.ExplicitParams(),
			Got:    len(args),
		}
	}

	work := make([]any, len(args))
	copy(work, args)

	// Input coercion runs against declared positions, which for each
	// explicit argument means skipping the Out positions.
	declared := f.plan.explicitPositions()
	for i, arg := range work {
		coerced, err := f.coerceInput(arg, f.paramType(declared[i]))
		if err != nil {
			return nil, &MarshalError{Symbol: f.name, Position: declared[i], Err: err}
		}
		work[i] = coerced
	}

	// Direction expansion, ascending position order.
	expansions := make([]expansion, 0, f.plan.Expanded())
	for _, entry := range f.plan.Entries() {
		pt := f.paramType(entry.Position)
		exp := expansion{dir: entry.Direction}

		switch entry.Direction {
		case Out:
			storage, err := f.rt.Allocate(pt.CanonicalName, nil)
			if err != nil {
				return nil, &MarshalError{Symbol: f.name, Position: entry.Position, Err: err}
			}
			exp.storage = storage
			// Splice without consuming an explicit argument.
			work = append(work, nil)
			copy(work[entry.Position+1:], work[entry.Position:])
			work[entry.Position] = storage

		case InOut:
			cur := work[entry.Position]
			storage, err := f.inoutStorage(cur, pt)
			if err != nil {
				return nil, &MarshalError{Symbol: f.name, Position: entry.Position, Err: err}
			}
			exp.storage = storage
			work[entry.Position] = storage

		case ArrayArg:
			ptr, tupleVal, err := f.resolveArray(work[entry.Position], pt)
			if err != nil {
				return nil, &MarshalError{Symbol: f.name, Position: entry.Position, Err: err}
			}
			exp.storage = ptr
			exp.tupleVal = tupleVal
			work[entry.Position] = ptr
		}

		expansions = append(expansions, exp)
	}

	raw, err := f.rt.Invoke(f.handle, work)
	if err != nil {
		return nil, err
	}

	// Enum results carry their label table before error checking.
	if f.desc.Result != nil && f.desc.Result.Kind == ctypes.Enum {
		if n, ok := asInt64(raw); ok {
			raw = ctypes.WrapEnum(n, f.desc.Result)
		}
	}

	if signal == nil {
		signal = NullCheck
	}
	replacement, err := signal(f, work, raw)
	if err != nil {
		return nil, err
	}
	if replacement != nil {
		raw = replacement
	}

	if len(expansions) == 0 {
		return raw, nil
	}

	result := make([]any, 0, len(expansions)+1)
	result = append(result, raw)
	for _, exp := range expansions {
		if exp.dir == ArrayArg {
			result = append(result, exp.tupleVal)
			continue
		}
		ptr, ok := exp.storage.(ffi.Pointer)
		if !ok {
			return nil, fmt.Errorf("function '%s': %s storage is not dereferenceable",
				f.name, exp.dir)
		}
		val, err := ptr.Deref()
		if err != nil {
			return nil, err
		}
		result = append(result, val)
	}
	return result, nil
}

// paramType returns the declared type of a parameter position, or nil
// when the descriptor carries no parameter list.
func (f *Function) paramType(pos int) *ctypes.TypeDescriptor {
	if pos < len(f.desc.Params) {
		return f.desc.Params[pos]
	}
	return nil
}

// coerceInput applies self-unwrapping and textual coercion to one
// explicit argument.
func (f *Function) coerceInput(arg any, pt *ctypes.TypeDescriptor) (any, error) {
	// Capability-bound objects contribute their native handle.
	if src, ok := arg.(ffi.HandleSource); ok {
		if h := src.NativeHandle(); h != nil {
			return h, nil
		}
	}

	switch v := arg.(type) {
	case nil:
		return f.rt.Null(), nil

	case string:
		if pt == nil {
			return arg, nil
		}
		if pt.IsWideCharLike() {
			return f.rt.Allocate("wchar_t[]", v)
		}
		if pt.IsCharLike() {
			return f.rt.Allocate("char[]", v)
		}

	case []byte:
		if pt == nil {
			return arg, nil
		}
		if pt.IsWideCharLike() {
			return f.rt.Allocate("wchar_t[]", v)
		}
		if pt.IsCharLike() {
			return f.rt.Allocate("char[]", v)
		}
	}

	return arg, nil
}

// inoutStorage wraps a caller value in native storage of the declared
// pointer type, reusing the value when it already has exactly that type.
func (f *Function) inoutStorage(cur any, pt *ctypes.TypeDescriptor) (any, error) {
	if v, ok := cur.(ffi.Value); ok && v.Type().Equal(pt) {
		return v, nil
	}
	if pt == nil {
		return nil, fmt.Errorf("inout parameter has no declared type")
	}
	return f.rt.Allocate(pt.CanonicalName, cur)
}

// resolveArray resolves an argument bound to an Array position. The
// returned pointer is passed to the native call; the returned tuple
// value is what output assembly contributes for the position.
//
// Resolution order: external buffers bind their raw address with no
// copy; already-native values pass through; an integer allocates a
// fresh zeroed array of that length; any other sized sequence allocates
// a fresh array populated element by element.
func (f *Function) resolveArray(arg any, pt *ctypes.TypeDescriptor) (any, any, error) {
	if buf, ok := arg.(ffi.ExternalBuffer); ok {
		ptr, err := f.rt.CastToPointer(buf.BufferAddress())
		if err != nil {
			return nil, nil, err
		}
		return ptr, buf, nil
	}

	if v, ok := arg.(ffi.Value); ok {
		return v, v, nil
	}

	if pt == nil || pt.Elem == nil {
		return nil, nil, fmt.Errorf("array parameter has no element type")
	}
	spelling := pt.Elem.CanonicalName + "[]"

	if n, ok := asInt64(arg); ok {
		arr, err := f.rt.Allocate(spelling, int(n))
		if err != nil {
			return nil, nil, err
		}
		return arr, arr, nil
	}

	rv := reflect.ValueOf(arg)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		arr, err := f.rt.Allocate(spelling, rv.Len())
		if err != nil {
			return nil, nil, err
		}
		store, ok := arr.(ffi.Array)
		if !ok {
			return nil, nil, fmt.Errorf("runtime returned non-indexable array storage for '%s'", spelling)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := store.SetIndex(i, rv.Index(i).Interface()); err != nil {
				return nil, nil, err
			}
		}
		return arr, arr, nil
	}

	return nil, nil, fmt.Errorf("cannot resolve %T as an array argument", arg)
}

// asInt64 converts integer-kinded values (including EnumValue) to int64.
func asInt64(v any) (int64, bool) {
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
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	}
	return 0, false
}
