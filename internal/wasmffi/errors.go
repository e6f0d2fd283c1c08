package wasmffi

import (
	"fmt"
)

// ManifestNotFoundError occurs when the interface manifest is missing.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when the manifest is not valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when the manifest fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// LibraryAlreadyLoadedError occurs when a library name is registered
// twice.
type LibraryAlreadyLoadedError struct {
	Library string
}

func (e *LibraryAlreadyLoadedError) Error() string {
	return fmt.Sprintf("library '%s' is already loaded", e.Library)
}

// CompilationError occurs when Wasm module compilation fails.
type CompilationError struct {
	Library string
	Err     error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm library '%s': %v", e.Library, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails.
type InstantiationError struct {
	Library string
	Err     error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate library '%s': %v", e.Library, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ExportNotFoundError occurs when an export the manifest or runtime
// relies on is missing from the module.
type ExportNotFoundError struct {
	Library string
	Export  string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("export '%s' not found in library '%s'", e.Export, e.Library)
}

// MemoryAccessError occurs when a guest memory operation fails.
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("guest memory access failed (op=%s, addr=%d, len=%d)",
		e.Operation, e.Address, e.Length)
}

// AllocationError occurs when the guest allocator fails or returns null.
type AllocationError struct {
	Spelling string
	Size     uint32
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate %d bytes for '%s': %v", e.Size, e.Spelling, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
