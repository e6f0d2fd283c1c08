package bind

import (
	"testing"
)

// newClassFixture builds a class over a native counter-like value: a
// struct handle with get/incr capabilities taking the handle first.
func newClassFixture(t *testing.T) (*fakeRuntime, *ObjectClass) {
	t.Helper()
	rt := newFakeRuntime()
	point := pointDesc()
	rt.register(point)

	intT := scalarDesc("int")
	handleT := ptrDesc(point)

	newFn := newTestFunction(t, rt, funcDesc("point_new", handleT),
		func(args []any) any {
			inst := newFakeStruct(point)
			inst.fields["x"] = int64(1)
			return inst
		}, nil, nil, nil)

	getFn := newTestFunction(t, rt, funcDesc("point_get_x", intT, handleT),
		func(args []any) any {
			inst := args[0].(*fakeStruct)
			return inst.fields["x"]
		}, nil, nil, nil)

	incrFn := newTestFunction(t, rt, funcDesc("point_incr", intT, handleT, intT),
		func(args []any) any {
			inst := args[0].(*fakeStruct)
			inst.fields["x"] = inst.fields["x"].(int64) + int64(args[1].(int))
			return int64(0)
		}, nil, nil, nil)

	delFn := newTestFunction(t, rt, funcDesc("point_del", intT, handleT),
		func(args []any) any { return int64(0) }, nil, nil, nil)

	table := NewTable()
	table.Add("get_x", NewCapability(getFn))
	table.Add("incr", NewCapability(incrFn))

	return rt, &ObjectClass{
		Table:       table,
		Constructor: NewCapability(newFn),
		Destructor:  NewCapability(delFn),
	}
}

func TestObjectMethodCallsBindHandleFirst(t *testing.T) {
	_, class := newClassFixture(t)

	obj, err := class.New()
	if err != nil {
		t.Fatalf("Construction failed: %v", err)
	}

	got, err := obj.Invoke("get_x")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != int64(1) {
		t.Errorf("Initial value mismatch: got %v, want 1", got)
	}

	if _, err := obj.Invoke("incr", 4); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	got, _ = obj.Invoke("get_x")
	if got != int64(5) {
		t.Errorf("Value after increment mismatch: got %v, want 5", got)
	}
}

func TestObjectCapabilityCachedPerObject(t *testing.T) {
	_, class := newClassFixture(t)
	obj := class.Adopt(newFakeStruct(pointDesc()))

	first, ok := obj.Capability("get_x")
	if !ok {
		t.Fatal("Capability lookup failed")
	}
	second, _ := obj.Capability("get_x")
	if first != second {
		t.Error("Bound capabilities should be cached per object")
	}

	if _, ok := obj.Capability("missing"); ok {
		t.Error("Unknown capability lookup should miss")
	}
}

func TestObjectInvokeUnknownCapability(t *testing.T) {
	_, class := newClassFixture(t)
	obj := class.Adopt(newFakeStruct(pointDesc()))

	_, err := obj.Invoke("missing")
	if err == nil {
		t.Fatal("Expected capability-not-found error")
	}
	if _, ok := err.(*CapabilityNotFoundError); !ok {
		t.Errorf("Expected *CapabilityNotFoundError, got %T", err)
	}
}

func TestObjectReleaseRunsDestructor(t *testing.T) {
	rt := newFakeRuntime()
	point := pointDesc()
	rt.register(point)

	var releasedWith any
	delFn := newTestFunction(t, rt, funcDesc("point_del", scalarDesc("int"), ptrDesc(point)),
		func(args []any) any {
			releasedWith = args[0]
			return int64(0)
		}, nil, nil, nil)

	class := &ObjectClass{Destructor: NewCapability(delFn)}
	handle := newFakeStruct(point)
	obj := class.Adopt(handle)

	if err := obj.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if releasedWith != any(handle) {
		t.Errorf("Destructor should receive the object's handle, got %T", releasedWith)
	}
}

func TestObjectWithoutDestructorReleasesCleanly(t *testing.T) {
	class := &ObjectClass{}
	obj := class.Adopt(newFakeStruct(pointDesc()))
	if err := obj.Release(); err != nil {
		t.Errorf("Release without a destructor should be a no-op: %v", err)
	}
}

func TestSignalResolutionOrder(t *testing.T) {
	rt := newFakeRuntime()
	point := pointDesc()
	rt.register(point)
	intT := scalarDesc("int")

	methodFn := newTestFunction(t, rt, funcDesc("status", intT, ptrDesc(point)),
		func(args []any) any { return int64(-1) }, nil, nil, nil)
	freeFn := newTestFunction(t, rt, funcDesc("status0", intT),
		func(args []any) any { return int64(-1) }, nil, nil, nil)

	tag := func(name string) ErrorSignal {
		return func(f *Function, args []any, result any) (any, error) {
			return name, nil
		}
	}

	// Class default applies when nothing overrides it.
	class := &ObjectClass{Table: NewTable(), Signal: tag("class")}
	class.Table.Add("status", NewCapability(methodFn))
	obj := class.Adopt(newFakeStruct(point))

	got, err := obj.Invoke("status")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "class" {
		t.Errorf("Class-default signal should apply: got %v", got)
	}

	// Capability signal overrides the class default.
	withOwn, _ := obj.Capability("status")
	withOwn = withOwn.WithSignal(tag("capability"))
	got, err = withOwn.Call()
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "capability" {
		t.Errorf("Capability signal should beat the class default: got %v", got)
	}

	// Call-site override beats everything.
	got, err = withOwn.CallChecked(tag("site"))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "site" {
		t.Errorf("Call-site signal should win: got %v", got)
	}

	// An unattached capability with no signal falls back to the default
	// null check, which passes a non-null result through.
	got, err = NewCapability(freeFn).Call()
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != int64(-1) {
		t.Errorf("Unresolved signal should fall back to the null check: got %v", got)
	}
}

func TestTableMergeOverrideWins(t *testing.T) {
	rt := newFakeRuntime()
	intT := scalarDesc("int")
	mk := func(v int64) *Capability {
		return NewCapability(newTestFunction(t, rt, funcDesc("f", intT),
			func(args []any) any { return v }, nil, nil, nil))
	}

	base := NewTable()
	base.Add("a", mk(1))
	base.Add("b", mk(2))

	override := NewTable()
	override.Add("b", mk(20))
	override.Add("c", mk(3))

	merged := Merge(base, override)
	if merged.Len() != 3 {
		t.Fatalf("Merged table size mismatch: got %d, want 3", merged.Len())
	}

	b, _ := merged.Get("b")
	if got, _ := b.Call(); got != int64(20) {
		t.Errorf("Override entry should win: got %v", got)
	}

	names := merged.Names()
	if names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("Merged order should keep base order first: got %v", names)
	}
}
