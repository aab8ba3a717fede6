package vm

import (
	"testing"

	"luavm/internal/chunk"
)

func TestToBoolean(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil, false},
		{Bool(false), false},
		{Bool(true), true},
		{Int(0), true},
		{Float(0.0), true},
		{Str(""), true},
	}
	for _, c := range cases {
		if got := toBoolean(c.v); got != c.want {
			t.Errorf("toBoolean(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestNumericEquality(t *testing.T) {
	if !valuesEqual(Int(2), Float(2.0)) {
		t.Error("Int(2) should equal Float(2.0)")
	}
	if valuesEqual(Int(2), Float(2.5)) {
		t.Error("Int(2) should not equal Float(2.5)")
	}
	// A float that doesn't round-trip to the same int64 must not compare
	// equal, even though it's the nearest float64 to a huge integer.
	huge := int64(1)<<62 + 1
	if valuesEqual(Int(huge), Float(float64(huge))) {
		t.Error("a lossily-rounded float must not equal the original integer")
	}
}

func TestToNumberBothArmsReachable(t *testing.T) {
	f, ok := toNumber(Int(3))
	if !ok || f != 3.0 {
		t.Errorf("toNumber(Int(3)) = %v,%v want 3.0,true", f, ok)
	}
	f, ok = toNumber(Float(3.5))
	if !ok || f != 3.5 {
		t.Errorf("toNumber(Float(3.5)) = %v,%v want 3.5,true", f, ok)
	}
	if _, ok := toNumber(Bool(true)); ok {
		t.Error("toNumber(Bool) should fail")
	}
}

func TestToStringCanonical(t *testing.T) {
	if s, ok := toStr(Int(42)); !ok || s != "42" {
		t.Errorf("toStr(Int(42)) = %q,%v", s, ok)
	}
	if _, ok := toStr(Bool(true)); ok {
		t.Error("toStr(Bool) should fail")
	}
}

func TestFunctionEqualityByIdentity(t *testing.T) {
	c1 := NewBytecodeClosure(&chunk.Prototype{})
	c2 := NewBytecodeClosure(&chunk.Prototype{})
	f1, f2 := FuncVal(c1), FuncVal(c2)
	if valuesEqual(f1, f2) {
		t.Error("distinct closures must not be equal")
	}
	if !valuesEqual(f1, f1) {
		t.Error("a closure must equal itself")
	}
}

func TestLtLeOnlyNumbersAndStrings(t *testing.T) {
	if !valuesLess(Int(1), Int(2)) {
		t.Error("1 < 2 should be true")
	}
	if valuesLess(Str("a"), Int(1)) {
		t.Error("string < number must be false, not an error")
	}
	if !valuesLess(Str("a"), Str("b")) {
		t.Error(`"a" < "b" should be true`)
	}
	if !valuesLessEqual(Int(2), Int(2)) {
		t.Error("2 <= 2 should be true")
	}
}
