package bind

import (
	"sort"

	"github.com/nativebind/nativebind/pkg/ctypes"
)

// Direction classifies how a parameter position's storage is produced
// and harvested around a native call.
type Direction int

const (
	// In parameters are caller-supplied values passed through coercion.
	In Direction = iota

	// Out parameters are omitted from the explicit argument list; fresh
	// zeroed storage is spliced in and its value returned.
	Out

	// InOut parameters wrap the caller's value in native storage on the
	// way in and return the stored value on the way out.
	InOut

	// ArrayArg parameters resolve to an array pointer and return the
	// array object itself.
	ArrayArg
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	case InOut:
		return "inout"
	case ArrayArg:
		return "array"
	default:
		return "unknown"
	}
}

// PlanEntry is one direction-expanded parameter position.
type PlanEntry struct {
	Position  int
	Direction Direction
}

// Plan is the precomputed per-function classification of parameter
// positions. It is built once at bind time and shared by every call.
// Positions not listed are implicitly In.
type Plan struct {
	total    int
	explicit int
	entries  []PlanEntry // sorted by ascending position
}

// NewPlan classifies a function's parameter positions from the three
// caller-supplied direction lists. A position appearing in more than one
// list fails with *ConflictingDirectionError; a position outside the
// declared range fails with *InvalidPositionError.
func NewPlan(fn *ctypes.TypeDescriptor, out, inout, arrays []int) (*Plan, error) {
	if fn.Kind != ctypes.Function {
		return nil, &NotAFunctionError{Symbol: fn.CanonicalName, Kind: fn.Kind.String()}
	}

	total := len(fn.Params)
	seen := make(map[int]Direction, len(out)+len(inout)+len(arrays))
	entries := make([]PlanEntry, 0, len(out)+len(inout)+len(arrays))

	add := func(positions []int, dir Direction) error {
		for _, pos := range positions {
			if pos < 0 || pos >= total {
				return &InvalidPositionError{
					Symbol:   fn.CanonicalName,
					Position: pos,
					Params:   total,
				}
			}
			if _, dup := seen[pos]; dup {
				return &ConflictingDirectionError{
					Symbol:   fn.CanonicalName,
					Position: pos,
				}
			}
			seen[pos] = dir
			entries = append(entries, PlanEntry{Position: pos, Direction: dir})
		}
		return nil
	}

	if err := add(out, Out); err != nil {
		return nil, err
	}
	if err := add(inout, InOut); err != nil {
		return nil, err
	}
	if err := add(arrays, ArrayArg); err != nil {
		return nil, err
	}

	// Expansion walks positions in ascending order so earlier splices do
	// not disturb not-yet-processed positions.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})

	return &Plan{
		total:    total,
		explicit: total - len(out),
		entries:  entries,
	}, nil
}

// TotalParams returns the function's declared parameter count.
func (p *Plan) TotalParams() int {
	return p.total
}

// ExplicitParams returns the number of arguments a caller must supply:
// the declared count minus the Out positions.
func (p *Plan) ExplicitParams() int {
	return p.explicit
}

// Expanded returns the number of direction-expanded positions.
func (p *Plan) Expanded() int {
	return len(p.entries)
}

// Entries returns the direction-expanded positions in ascending order.
func (p *Plan) Entries() []PlanEntry {
	out := make([]PlanEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// explicitPositions maps each explicit argument index to its declared
// parameter position, skipping Out positions.
func (p *Plan) explicitPositions() []int {
	isOut := make(map[int]bool, len(p.entries))
	for _, e := range p.entries {
		if e.Direction == Out {
			isOut[e.Position] = true
		}
	}
	positions := make([]int, 0, p.explicit)
	for pos := 0; pos < p.total; pos++ {
		if !isOut[pos] {
			positions = append(positions, pos)
		}
	}
	return positions
}
