package vm

import "testing"

func pushInts(f *Frame, vs ...int64) {
	for _, v := range vs {
		f.push(Int(v))
	}
}

func intsOf(f *Frame) []int64 {
	out := make([]int64, f.top())
	for i := range out {
		out[i] = f.get(i + 1).AsInt()
	}
	return out
}

func TestFrameRotate(t *testing.T) {
	f := &Frame{openuvs: map[int]*UpvalueCell{}}
	pushInts(f, 1, 2, 3, 4, 5)
	f.rotate(1, 2) // rotate whole segment toward top by 2: [4,5,1,2,3]
	want := []int64{4, 5, 1, 2, 3}
	got := intsOf(f)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotate(1,2) = %v, want %v", got, want)
		}
	}
}

func TestFrameRotateNegative(t *testing.T) {
	f := &Frame{openuvs: map[int]*UpvalueCell{}}
	pushInts(f, 1, 2, 3, 4, 5)
	f.rotate(1, -2) // [3,4,5,1,2]
	want := []int64{3, 4, 5, 1, 2}
	got := intsOf(f)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotate(1,-2) = %v, want %v", got, want)
		}
	}
}

func TestFrameStackAddressing(t *testing.T) {
	f := &Frame{openuvs: map[int]*UpvalueCell{}}
	pushInts(f, 10, 20, 30)
	if got := f.get(-1).AsInt(); got != 30 {
		t.Errorf("get(-1) = %d, want 30 (top)", got)
	}
	if got := f.get(1).AsInt(); got != 10 {
		t.Errorf("get(1) = %d, want 10 (bottom)", got)
	}
	abs := f.absIndex(-1)
	if abs != f.top() {
		t.Errorf("absIndex(-1) = %d, want %d", abs, f.top())
	}
	if !f.isValid(abs) {
		t.Error("absIndex(-1) should be valid")
	}
}

func TestFrameSetTopTruncatesAndPads(t *testing.T) {
	f := &Frame{openuvs: map[int]*UpvalueCell{}}
	pushInts(f, 1, 2, 3)
	if err := f.setTop(1); err != nil {
		t.Fatal(err)
	}
	if f.top() != 1 {
		t.Fatalf("top() = %d after setTop(1), want 1", f.top())
	}
	if err := f.setTop(3); err != nil {
		t.Fatal(err)
	}
	if f.top() != 3 {
		t.Fatalf("top() = %d after setTop(3), want 3", f.top())
	}
	if !f.get(3).IsNil() {
		t.Error("setTop growth should pad with Nil")
	}
}

func TestUpvalueAliasingAndClose(t *testing.T) {
	f := &Frame{openuvs: map[int]*UpvalueCell{}}
	pushInts(f, 100)
	cell := f.openUpvalue(0)
	if got := cell.Get().AsInt(); got != 100 {
		t.Fatalf("new open upvalue should capture current register value, got %d", got)
	}
	f.setReg(0, Int(200))
	if got := cell.Get().AsInt(); got != 200 {
		t.Errorf("write through register should be observed by the open upvalue, got %d", got)
	}
	cell.Set(Int(300))
	if got := f.getReg(0).AsInt(); got != 300 {
		t.Errorf("write through the upvalue should be observed by the register read, got %d", got)
	}
	f.closeUpvaluesFrom(0)
	if _, stillOpen := f.openuvs[0]; stillOpen {
		t.Error("closeUpvaluesFrom should remove the cell from openuvs")
	}
	f.setReg(0, Int(999))
	if got := cell.Get().AsInt(); got != 300 {
		t.Errorf("after close, register writes must not affect the detached cell, got %d", got)
	}
}
