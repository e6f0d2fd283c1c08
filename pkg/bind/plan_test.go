package bind

import (
	"testing"

	"github.com/nativebind/nativebind/pkg/ctypes"
)

func TestNewPlanClassifiesPositions(t *testing.T) {
	intT := scalarDesc("int")
	fn := funcDesc("f", intT, intT, ptrDesc(intT), intT, ptrDesc(intT))

	plan, err := NewPlan(fn, []int{3}, []int{1}, nil)
	if err != nil {
		t.Fatalf("Failed to build plan: %v", err)
	}

	if plan.TotalParams() != 4 {
		t.Errorf("Total params mismatch: got %d, want 4", plan.TotalParams())
	}
	if plan.ExplicitParams() != 3 {
		t.Errorf("Explicit params mismatch: got %d, want 3", plan.ExplicitParams())
	}

	entries := plan.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expanded count mismatch: got %d, want 2", len(entries))
	}
	if entries[0].Position != 1 || entries[0].Direction != InOut {
		t.Errorf("First entry should be position 1 inout, got %d %s",
			entries[0].Position, entries[0].Direction)
	}
	if entries[1].Position != 3 || entries[1].Direction != Out {
		t.Errorf("Second entry should be position 3 out, got %d %s",
			entries[1].Position, entries[1].Direction)
	}
}

func TestNewPlanRejectsConflictingDirections(t *testing.T) {
	intT := scalarDesc("int")
	fn := funcDesc("f", intT, ptrDesc(intT), intT)

	_, err := NewPlan(fn, []int{0}, []int{0}, nil)
	if err == nil {
		t.Fatal("Expected conflicting-direction error")
	}
	conflict, ok := err.(*ConflictingDirectionError)
	if !ok {
		t.Fatalf("Expected *ConflictingDirectionError, got %T", err)
	}
	if conflict.Position != 0 {
		t.Errorf("Conflict position mismatch: got %d", conflict.Position)
	}
}

func TestNewPlanRejectsOutOfRangePositions(t *testing.T) {
	intT := scalarDesc("int")
	fn := funcDesc("f", intT, intT)

	for _, pos := range []int{-1, 1, 7} {
		_, err := NewPlan(fn, []int{pos}, nil, nil)
		if err == nil {
			t.Errorf("Position %d should be rejected", pos)
			continue
		}
		if _, ok := err.(*InvalidPositionError); !ok {
			t.Errorf("Position %d: expected *InvalidPositionError, got %T", pos, err)
		}
	}
}

func TestNewPlanRejectsNonFunctions(t *testing.T) {
	desc := &ctypes.TypeDescriptor{CanonicalName: "struct point", Kind: ctypes.Struct}
	_, err := NewPlan(desc, nil, nil, nil)
	if err == nil {
		t.Fatal("Expected not-a-function error")
	}
	if _, ok := err.(*NotAFunctionError); !ok {
		t.Fatalf("Expected *NotAFunctionError, got %T", err)
	}
}

func TestExplicitPositionsSkipOut(t *testing.T) {
	intT := scalarDesc("int")
	fn := funcDesc("f", intT, intT, ptrDesc(intT), intT)

	plan, err := NewPlan(fn, []int{1}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to build plan: %v", err)
	}

	positions := plan.explicitPositions()
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 2 {
		t.Errorf("Explicit positions mismatch: got %v, want [0 2]", positions)
	}
}
