package vm

import "testing"

// Stack manipulation starting empty.
func TestScenarioStackManipulation(t *testing.T) {
	s := NewState()
	s.PushBoolean(true)
	s.PushInteger(10)
	s.PushNil()
	s.PushString("hello")
	s.PushValue(-4) // duplicate the boolean (now at depth 4 from top)
	if err := s.Replace(3); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTop(6); err != nil {
		t.Fatal(err)
	}
	s.Remove(-3)
	if err := s.SetTop(-5); err != nil {
		t.Fatal(err)
	}
	if got := s.GetTop(); got != 1 {
		t.Fatalf("GetTop() = %d, want 1", got)
	}
	if !s.IsBoolean(1) || !s.ToBoolean(1) {
		t.Errorf("final stack = %+v, want single true", s.frame().slots)
	}
}

// Arith and concat.
func TestScenarioArithAndConcat(t *testing.T) {
	s := NewState()
	s.PushInteger(1)
	s.PushString("2.0")
	s.PushString("3.0")
	s.PushNumber(4.0)
	if err := s.Arith(OpAdd); err != nil { // "3.0" + 4.0 -> 7.0
		t.Fatal(err)
	}
	if err := s.Arith(OpBNot); err != nil { // ~7 (coerced via 7.0 -> int 7) -> -8
		t.Fatal(err)
	}
	if err := s.Len(2); err != nil { // length of stack[2] ("2.0") pushed
		t.Fatal(err)
	}
	if err := s.Concat(3); err != nil {
		t.Fatal(err)
	}
	if got := s.GetTop(); got != 2 {
		t.Fatalf("GetTop() = %d, want 2", got)
	}
	if !s.IsInteger(1) || s.ToInteger(1) != 1 {
		t.Errorf("stack[1] = %+v, want Integer(1)", s.frame().get(1))
	}
	want := "2.0-83"
	if got := s.ToString(2); got != want {
		t.Errorf("stack[2] = %q, want %q", got, want)
	}
}

// Global round-trip.
func TestScenarioGlobalRoundTrip(t *testing.T) {
	s := NewState()
	s.PushInteger(42)
	s.SetGlobal("x")
	tag := s.GetGlobal("x")
	if tag != TypeNumber {
		t.Fatalf("GetGlobal(x) tag = %v, want NUMBER", tag)
	}
	if !s.IsInteger(-1) || s.ToInteger(-1) != 42 {
		t.Errorf("GetGlobal(x) pushed %+v, want Integer(42)", s.frame().get(-1))
	}
}

func TestCompareInvalidIndexIsFalseNotError(t *testing.T) {
	s := NewState()
	s.PushInteger(1)
	if s.Compare(1, 5, CmpEQ) {
		t.Error("compare against an invalid index must return false")
	}
}

func TestConcatEdgeCases(t *testing.T) {
	s := NewState()
	if err := s.Concat(0); err != nil {
		t.Fatal(err)
	}
	if got := s.ToString(-1); got != "" {
		t.Errorf("concat(0) = %q, want empty string", got)
	}
	s.Pop(1)
	s.PushString("solo")
	if err := s.Concat(1); err != nil {
		t.Fatal(err)
	}
	if got := s.ToString(-1); got != "solo" {
		t.Errorf("concat(1) should be a no-op, got %q", got)
	}
}
