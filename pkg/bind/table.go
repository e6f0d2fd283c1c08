package bind

// Table is an ordered name-to-capability mapping. Tables are composed
// with explicit Merge calls at registration time rather than through
// dynamic type hooks: override entries win on key collision, once,
// when the merged table is built.
type Table struct {
	names   []string
	entries map[string]*Capability
}

// NewTable creates an empty capability table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Capability)}
}

// Add inserts or replaces an entry. Replacing keeps the name's original
// position in the order.
func (t *Table) Add(name string, c *Capability) {
	if _, exists := t.entries[name]; !exists {
		t.names = append(t.names, name)
	}
	t.entries[name] = c
}

// Get looks up a capability by name.
func (t *Table) Get(name string) (*Capability, bool) {
	c, ok := t.entries[name]
	return c, ok
}

// Names returns the entry names in insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.names)
}

// Merge composes a capability table from a base table and an override
// table. Base entries come first in their original order; override
// entries replace colliding names in place and append new names after.
// Either argument may be nil.
func Merge(base, override *Table) *Table {
	merged := NewTable()
	if base != nil {
		for _, name := range base.names {
			merged.Add(name, base.entries[name])
		}
	}
	if override != nil {
		for _, name := range override.names {
			merged.Add(name, override.entries[name])
		}
	}
	return merged
}
