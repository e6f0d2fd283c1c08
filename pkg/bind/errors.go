package bind

import (
	"fmt"
)

// ArityError occurs when a call supplies the wrong number of explicit
// arguments for a bound function.
type ArityError struct {
	Symbol string
	Want   int
	Got    int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("function '%s' requires exactly %d arguments (%d given)",
		e.Symbol, e.Want, e.Got)
}

// ConflictingDirectionError occurs when a parameter position is listed in
// more than one direction list at bind time.
type ConflictingDirectionError struct {
	Symbol   string
	Position int
}

func (e *ConflictingDirectionError) Error() string {
	return fmt.Sprintf("function '%s': parameter %d assigned more than one direction",
		e.Symbol, e.Position)
}

// InvalidPositionError occurs when a direction list names a position
// outside the function's declared parameter range.
type InvalidPositionError struct {
	Symbol   string
	Position int
	Params   int
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("function '%s': position %d out of range (%d parameters declared)",
		e.Symbol, e.Position, e.Params)
}

// NotAFunctionError occurs when a non-function descriptor is bound as a
// callable.
type NotAFunctionError struct {
	Symbol string
	Kind   string
}

func (e *NotAFunctionError) Error() string {
	return fmt.Sprintf("symbol '%s' is a %s, not a function", e.Symbol, e.Kind)
}

// NullError is raised by the default error signal when a native call
// returns the null sentinel. It carries the post-coercion argument list
// actually passed to the call.
type NullError struct {
	Symbol string
	Args   []any
}

func (e *NullError) Error() string {
	return fmt.Sprintf("NULL returned by '%s' with args %v", e.Symbol, e.Args)
}

// SignalError wraps a failure detected by a custom error signal.
type SignalError struct {
	Symbol string
	Args   []any
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("error signal fired for '%s' with args %v: %v",
		e.Symbol, e.Args, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// MarshalError occurs when an argument cannot be coerced to its declared
// parameter type.
type MarshalError struct {
	Symbol   string
	Position int
	Err      error
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("function '%s': cannot marshal argument %d: %v",
		e.Symbol, e.Position, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

// OpaqueConstructionError occurs when an opaque aggregate is constructed
// with field arguments.
type OpaqueConstructionError struct {
	Type string
}

func (e *OpaqueConstructionError) Error() string {
	return fmt.Sprintf("construction with arguments on opaque type '%s'", e.Type)
}

// FieldCountError occurs when construction supplies more positional
// values than the aggregate has fields.
type FieldCountError struct {
	Type   string
	Fields int
	Got    int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("type '%s' got more arguments than it has fields (%d > %d)",
		e.Type, e.Got, e.Fields)
}

// DuplicateFieldError occurs when a field receives both a positional and
// a named value during construction.
type DuplicateFieldError struct {
	Type  string
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("type '%s' got multiple values for field '%s'", e.Type, e.Field)
}

// FieldNotFoundError occurs when a proxy access names a field the
// aggregate does not declare.
type FieldNotFoundError struct {
	Type  string
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("type '%s' has no field '%s'", e.Type, e.Field)
}

// CapabilityNotFoundError occurs when an object invocation names a
// capability its table does not hold.
type CapabilityNotFoundError struct {
	Name string
}

func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("no capability named '%s'", e.Name)
}
