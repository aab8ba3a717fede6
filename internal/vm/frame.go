package vm

// Frame is a single register window, Lua 5.3's CallInfo plus its slice of
// the stack (lstate.h): the "indexed stack" of one call, addressed 1-based
// from the host API and 0-based from the instruction dispatcher (vm.go
// indexes slots directly through getReg/setReg).
type Frame struct {
	slots    []Value
	closure  *Closure
	varargs  []Value
	pc       int
	openuvs  map[int]*UpvalueCell
	registry *Table
}

func newFrame(closure *Closure, capacity int, registry *Table) *Frame {
	return &Frame{
		slots:    make([]Value, 0, capacity),
		closure:  closure,
		openuvs:  make(map[int]*UpvalueCell),
		registry: registry,
	}
}

// top returns the current number of live slots, lua_gettop's top of stack.
func (f *Frame) top() int { return len(f.slots) }

// absIndex mirrors lua_absindex's addressing rules: idx > 0 is absolute
// 1-based, idx < 0 is relative to the top, and the registry pseudo-index
// is handled by the caller (State), never reaching here.
func (f *Frame) absIndex(idx int) int {
	if idx >= 0 {
		return idx
	}
	return f.top() + idx + 1
}

// isValid reports whether abs is a live 1-based slot index.
func (f *Frame) isValid(abs int) bool {
	return abs >= 1 && abs <= f.top()
}

// check grows capacity so at least n more slots can be pushed without
// reallocation on the next push; it never changes top().
func (f *Frame) check(n int) {
	if cap(f.slots)-len(f.slots) >= n {
		return
	}
	grown := make([]Value, len(f.slots), len(f.slots)+n)
	copy(grown, f.slots)
	f.slots = grown
}

// setTop mirrors lua_settop(idx): pop or push Nils to reach the given
// absolute height. A negative absolute index is a StackError.
func (f *Frame) setTop(idx int) error {
	abs := f.absIndex(idx)
	if abs < 0 {
		return newStackError("set_top to negative absolute index")
	}
	switch {
	case abs < f.top():
		f.slots = f.slots[:abs]
	case abs > f.top():
		f.check(abs - f.top())
		for f.top() < abs {
			f.slots = append(f.slots, Nil)
		}
	}
	return nil
}

func (f *Frame) push(v Value) {
	f.check(1)
	f.slots = append(f.slots, v)
}

func (f *Frame) pop() Value {
	if f.top() == 0 {
		return Nil
	}
	v := f.slots[f.top()-1]
	f.slots = f.slots[:f.top()-1]
	return v
}

// pushN pushes exactly want values from vs, padding with Nil or dropping
// the values past the first want — the adjust behavior luaD_poscall uses
// to fit a call's results to its expected count, and the same one
// placeResults applies for the CALL opcode.
func (f *Frame) pushN(vs []Value, want int) {
	if want < 0 {
		for _, v := range vs {
			f.push(v)
		}
		return
	}
	if len(vs) >= want {
		for _, v := range vs[:want] {
			f.push(v)
		}
		return
	}
	for _, v := range vs {
		f.push(v)
	}
	for i := len(vs); i < want; i++ {
		f.push(Nil)
	}
}

// popN pops exactly n values, returning them in their original (bottom to
// top) order.
func (f *Frame) popN(n int) []Value {
	if n <= 0 {
		return nil
	}
	if n > f.top() {
		n = f.top()
	}
	start := f.top() - n
	out := make([]Value, n)
	copy(out, f.slots[start:])
	f.slots = f.slots[:start]
	return out
}

func (f *Frame) get(idx int) Value {
	abs := f.absIndex(idx)
	if !f.isValid(abs) {
		return Nil
	}
	return f.slots[abs-1]
}

func (f *Frame) set(idx int, v Value) error {
	abs := f.absIndex(idx)
	if !f.isValid(abs) {
		return newStackError("set at invalid index")
	}
	f.slots[abs-1] = v
	return nil
}

// reverse reverses the slots in the inclusive absolute range [from, to],
// the single primitive rotate is built from.
func (f *Frame) reverse(from, to int) {
	for from < to {
		f.slots[from], f.slots[to] = f.slots[to], f.slots[from]
		from++
		to--
	}
}

// rotate rotates the segment starting at idx (to the current top) by n
// positions, positive meaning "toward the top", as three contiguous
// reverses — the textbook block-swap construction for lua_rotate, and the
// same p/m/t bookkeeping as rslua's lua_stack.rs::reverse /
// api_stack.rs::rotate, which sidesteps the off-by-one edge cases a
// single-pass cyclic-permutation implementation is prone to at n==0 or
// p==t.
func (f *Frame) rotate(idx, n int) {
	t := f.top() - 1
	p := f.absIndex(idx) - 1
	var m int
	if n >= 0 {
		m = t - n
	} else {
		m = p - n - 1
	}
	f.reverse(p, m)
	f.reverse(m+1, t)
	f.reverse(p, t)
}

// closeUpvaluesFrom closes every open upvalue whose register index is >=
// from, copying the live register value into the cell's own storage and
// detaching it from openuvs, matching Lua 5.3's luaF_close (lfunc.c).
func (f *Frame) closeUpvaluesFrom(from int) {
	for slot, cell := range f.openuvs {
		if slot >= from {
			if slot >= 0 && slot < len(f.slots) {
				cell.Set(f.slots[slot])
			}
			delete(f.openuvs, slot)
		}
	}
}

// openUpvalue returns the (possibly newly created) open upvalue aliasing
// absolute register slot, reusing an existing cell from openuvs when one
// is already open for that slot, the same sharing rule as Lua 5.3's
// luaF_findupval (lfunc.c): two closures capturing the same enclosing
// local must see the same cell.
func (f *Frame) openUpvalue(slot int) *UpvalueCell {
	if cell, ok := f.openuvs[slot]; ok {
		return cell
	}
	cell := &UpvalueCell{}
	if slot >= 0 && slot < len(f.slots) {
		cell.value = f.slots[slot]
	}
	f.openuvs[slot] = cell
	return cell
}

// syncOpenUpvalueWrite writes the current register value back through an
// open upvalue cell that still aliases it. Call this after every register
// write that might be aliased. Real Lua aliases an open upvalue directly
// by pointing it at the live stack slot; Go slices can reallocate on
// growth, which would invalidate such a pointer, so this engine keeps the
// cell and register in sync explicitly on every access instead.
func (f *Frame) syncOpenUpvalueWrite(slot int, v Value) {
	if cell, ok := f.openuvs[slot]; ok {
		cell.Set(v)
	}
}

// syncOpenUpvalueRead refreshes register slot from an open upvalue cell
// before it is read, so a write made through the upvalue by a re-entrant
// host call is observed.
func (f *Frame) syncOpenUpvalueRead(slot int) {
	if cell, ok := f.openuvs[slot]; ok && slot >= 0 && slot < len(f.slots) {
		f.slots[slot] = cell.Get()
	}
}

// getReg and setReg are the dispatcher's only access path to 0-based
// registers (bytecode operands are 0-based; the host API above is
// 1-based), always going through the open-upvalue sync so the aliasing
// behavior holds regardless of which opcode handler touches a register.
func (f *Frame) getReg(r int) Value {
	f.syncOpenUpvalueRead(r)
	return f.slots[r]
}

func (f *Frame) setReg(r int, v Value) {
	f.slots[r] = v
	f.syncOpenUpvalueWrite(r, v)
}

// ensureTop grows the frame (padding with Nil) until at least n slots are
// live, used by CALL/RETURN/VARARG/SETLIST's "B=0 means up to current top"
// convention, the same "multiple results" encoding Lua 5.3's lopcodes.h
// documents for those instructions.
func (f *Frame) ensureTop(n int) {
	f.check(n - f.top())
	for f.top() < n {
		f.slots = append(f.slots, Nil)
	}
}

// placeResults writes results into registers starting at base, padding
// with Nil or truncating to want values; want<0 means "keep them all".
func (f *Frame) placeResults(base int, results []Value, want int) {
	if want < 0 {
		want = len(results)
	}
	f.ensureTop(base + want)
	for i := 0; i < want; i++ {
		var v Value
		if i < len(results) {
			v = results[i]
		}
		f.setReg(base+i, v)
	}
	f.slots = f.slots[:base+want]
}
