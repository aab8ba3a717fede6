package vm

import (
	"testing"

	"luavm/internal/chunk"
)

func TestTablePutGetIdentity(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Put(Str("x"), Int(10)); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Get(Str("x")); !valuesEqual(got, Int(10)) {
		t.Errorf("Get(x) = %+v, want 10", got)
	}
	if err := tbl.Put(Str("x"), Nil); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Get(Str("x")); !got.IsNil() {
		t.Errorf("Get(x) after delete = %+v, want nil", got)
	}
}

func TestTableNilAndNaNKeysFatal(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Put(Nil, Int(1)); err == nil {
		t.Error("nil key must be rejected")
	}
	nan := Float(nanValue())
	if err := tbl.Put(nan, Int(1)); err == nil {
		t.Error("NaN key must be rejected")
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestTableArrayExpandAndShrink(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 3; i++ {
		if err := tbl.Put(Int(i), Str("v")); err != nil {
			t.Fatal(err)
		}
	}
	if got := tbl.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	// Insert key 5 into the map part first (out of array range), then key 4
	// should absorb both 4 and 5 into the array (expand).
	if err := tbl.Put(Int(5), Str("five")); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Put(Int(4), Str("four")); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Len(); got != 5 {
		t.Fatalf("Len() after expand = %d, want 5", got)
	}
	if got := tbl.Get(Int(5)); !valuesEqual(got, Str("five")) {
		t.Errorf("Get(5) = %+v, want five", got)
	}

	// Clearing the last array slot shrinks the array part.
	if err := tbl.Put(Int(5), Nil); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Len(); got != 4 {
		t.Fatalf("Len() after shrink = %d, want 4", got)
	}
}

func TestTableFloatIntegerKeyCoercion(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Put(Float(2.0), Str("two")); err != nil {
		t.Fatal(err)
	}
	if got := tbl.Get(Int(2)); !valuesEqual(got, Str("two")) {
		t.Errorf("Get(Int(2)) = %+v, want two (float key 2.0 should coerce)", got)
	}
}

func TestTableFunctionKeyIdentity(t *testing.T) {
	tbl := NewTable()
	c1 := NewBytecodeClosure(&chunk.Prototype{})
	c2 := NewBytecodeClosure(&chunk.Prototype{})
	_ = tbl.Put(FuncVal(c1), Int(1))
	if got := tbl.Get(FuncVal(c2)); !got.IsNil() {
		t.Error("a distinct closure must not collide as a table key")
	}
	if got := tbl.Get(FuncVal(c1)); !valuesEqual(got, Int(1)) {
		t.Error("the same closure must retrieve its stored value")
	}
}
