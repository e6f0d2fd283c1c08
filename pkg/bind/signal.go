package bind

// ErrorSignal inspects a raw native result to decide success or failure.
// It receives the function, the fully-coerced argument list actually
// passed to the native call, and the raw result. Returning an error
// fails the call; returning a non-nil value replaces the result;
// returning (nil, nil) leaves the original result standing.
//
// Signals are swappable per call, per capability, per object, or per
// binding context.
type ErrorSignal func(fn *Function, args []any, result any) (any, error)

// SignalSource is implemented by owning values that declare their own
// default error signal, used whenever the call site does not override
// it explicitly.
type SignalSource interface {
	DefaultSignal() ErrorSignal
}

// NullCheck is the default error signal: a result equal to the runtime's
// null sentinel fails with *NullError; anything else passes through.
func NullCheck(fn *Function, args []any, result any) (any, error) {
	if fn.rt.IsNull(result) {
		return nil, &NullError{Symbol: fn.name, Args: args}
	}
	return nil, nil
}
