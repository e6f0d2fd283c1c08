package ffi

import "fmt"

// UnknownTypeError occurs when a symbol names no known native type.
// It is fatal to the single symbol but must not abort a batch wrap.
type UnknownTypeError struct {
	Name string
	Err  error
}

func (e *UnknownTypeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown native type '%s': %v", e.Name, e.Err)
	}
	return fmt.Sprintf("unknown native type '%s'", e.Name)
}

func (e *UnknownTypeError) Unwrap() error {
	return e.Err
}
