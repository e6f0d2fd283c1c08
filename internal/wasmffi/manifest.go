package wasmffi

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes the native interface a Wasm library exports: its
// functions and its struct/union/enum layouts. It is the runtime's
// type-introspection source, read from a YAML file shipped next to the
// module.
type Manifest struct {
	Library     string         `yaml:"library"`
	Wasm        WasmFile       `yaml:"wasm"`
	AllocExport string         `yaml:"alloc_export"`
	FreeExport  string         `yaml:"free_export"`
	Functions   []FunctionDecl `yaml:"functions"`
	Types       []TypeDecl     `yaml:"types"`

	// Internal fields
	dir string // directory containing the manifest
}

// WasmFile locates the module binary relative to the manifest.
type WasmFile struct {
	File string `yaml:"file"`
}

// FunctionDecl declares one exported function's native signature.
type FunctionDecl struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Result string   `yaml:"result"`

	// Export overrides the Wasm export name when it differs from the
	// native symbol name.
	Export string `yaml:"export"`
}

// ExportName returns the Wasm export backing the declaration.
func (f *FunctionDecl) ExportName() string {
	if f.Export != "" {
		return f.Export
	}
	return f.Name
}

// TypeDecl declares one named native type: a struct or union with its
// field layout, or an enum with its label table.
type TypeDecl struct {
	Name   string           `yaml:"name"`
	Kind   string           `yaml:"kind"` // struct | union | enum | alias
	Size   uint32           `yaml:"size"`
	Fields []FieldDecl      `yaml:"fields"`
	Labels map[int64]string `yaml:"labels"`

	// Target names the aliased type for alias declarations.
	Target string `yaml:"target"`

	// Opaque marks an aggregate whose layout is deliberately hidden.
	Opaque bool `yaml:"opaque"`
}

// FieldDecl declares one aggregate member with its byte offset.
type FieldDecl struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Offset uint32 `yaml:"offset"`
}

// ParseManifest reads and validates an interface manifest file.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestNotFoundError{Path: path, Err: err}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{Path: path, Err: err}
	}

	m.dir = filepath.Dir(path)

	// Alloc/free exports follow the wasi-libc convention unless the
	// manifest overrides them.
	if m.AllocExport == "" {
		m.AllocExport = "malloc"
	}
	if m.FreeExport == "" {
		m.FreeExport = "free"
	}

	if err := m.Validate(path); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate(path string) error {
	if m.Library == "" {
		return &ManifestValidationError{
			Path:    path,
			Field:   "library",
			Message: "library is required",
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    path,
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	seenFuncs := make(map[string]bool, len(m.Functions))
	for _, fn := range m.Functions {
		if fn.Name == "" {
			return &ManifestValidationError{
				Path:    path,
				Field:   "functions",
				Message: "function name is required",
			}
		}
		if seenFuncs[fn.Name] {
			return &ManifestValidationError{
				Path:    path,
				Field:   "functions",
				Message: fmt.Sprintf("duplicate function '%s'", fn.Name),
			}
		}
		seenFuncs[fn.Name] = true
	}

	validKinds := map[string]bool{
		"struct": true,
		"union":  true,
		"enum":   true,
		"alias":  true,
	}
	seenTypes := make(map[string]bool, len(m.Types))
	for _, t := range m.Types {
		if t.Name == "" {
			return &ManifestValidationError{
				Path:    path,
				Field:   "types",
				Message: "type name is required",
			}
		}
		if seenTypes[t.Name] {
			return &ManifestValidationError{
				Path:    path,
				Field:   "types",
				Message: fmt.Sprintf("duplicate type '%s'", t.Name),
			}
		}
		seenTypes[t.Name] = true

		if !validKinds[t.Kind] {
			return &ManifestValidationError{
				Path:    path,
				Field:   "types",
				Message: fmt.Sprintf("type '%s': unknown kind '%s' (must be one of: struct, union, enum, alias)", t.Name, t.Kind),
			}
		}
		if t.Kind == "alias" && t.Target == "" {
			return &ManifestValidationError{
				Path:    path,
				Field:   "types",
				Message: fmt.Sprintf("alias '%s' needs a target", t.Name),
			}
		}
		if (t.Kind == "struct" || t.Kind == "union") && !t.Opaque && t.Size == 0 {
			return &ManifestValidationError{
				Path:    path,
				Field:   "types",
				Message: fmt.Sprintf("type '%s' needs a size (or opaque: true)", t.Name),
			}
		}
	}

	// Alias chains must terminate in a non-alias type.
	aliases := make(map[string]string)
	for _, t := range m.Types {
		if t.Kind == "alias" {
			aliases[t.Name] = t.Target
		}
	}
	for name := range aliases {
		seen := map[string]bool{name: true}
		for target, ok := aliases[name]; ok; target, ok = aliases[target] {
			if seen[target] {
				return &ManifestValidationError{
					Path:    path,
					Field:   "types",
					Message: fmt.Sprintf("alias '%s' forms a cycle", name),
				}
			}
			seen[target] = true
		}
	}

	return nil
}

// WasmPath returns the absolute path to the module binary.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// FunctionNamed looks up a function declaration by native name.
func (m *Manifest) FunctionNamed(name string) (FunctionDecl, bool) {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionDecl{}, false
}

// TypeNamed looks up a type declaration by name.
func (m *Manifest) TypeNamed(name string) (TypeDecl, bool) {
	for _, t := range m.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeDecl{}, false
}
