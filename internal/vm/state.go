package vm

import (
	"luavm/internal/chunk"
)

// Reserved constants, matching lua.h's LUA_MINSTACK / LUA_REGISTRYINDEX /
// LUA_RIDX_GLOBALS.
const (
	LuaMinStack = 20

	// LuaRegistryIndex is the pseudo-index addressing the registry table
	// instead of a frame slot; chosen as a large negative magic value so it
	// can never collide with a real (positive or small-negative) stack
	// index.
	LuaRegistryIndex = -1000000

	// LuaRidxGlobals is the registry's reserved integer key holding the
	// globals table.
	LuaRidxGlobals int64 = 2
)

// UpvalueIndex returns the pseudo-index a host function uses to reach its
// i'th captured upvalue (0-based), the Go equivalent of lua.h's
// lua_upvalueindex macro.
func UpvalueIndex(i int) int { return LuaRegistryIndex - 1 - i }

// Option configures a new State, in the functional-options idiom.
type Option func(*State)

// WithStackLimit bounds how many frames Call will allocate before refusing
// further recursion with a StackError, guarding against runaway
// host-to-bytecode re-entry.
func WithStackLimit(n int) Option {
	return func(s *State) { s.frameLimit = n }
}

// WithRegistrySize pre-sizes the registry table's map part.
func WithRegistrySize(nrec int) Option {
	return func(s *State) { s.registry = NewTableSized(0, nrec) }
}

// State is the multi-frame engine, this package's equivalent of Lua 5.3's
// lua_State: an ordered stack of Frames (top = active) plus a registry
// Table. It is not safe to share across goroutines: every Call runs its
// dispatch loop to completion before returning, the same single-threaded
// contract real Lua states have without a lock.
type State struct {
	frames     []*Frame
	registry   *Table
	frameLimit int
}

// NewState creates an empty engine with a fresh registry holding an empty
// globals table at LUA_RIDX_GLOBALS, and one root frame so the host has
// somewhere to push values before the first Load.
func NewState(opts ...Option) *State {
	s := &State{frameLimit: 200}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewTable()
	}
	s.registry.Put(Int(LuaRidxGlobals), TableVal(NewTable()))
	s.frames = append(s.frames, newFrame(nil, LuaMinStack, s.registry))
	return s
}

func (s *State) frame() *Frame { return s.frames[len(s.frames)-1] }

func (s *State) globals() *Table {
	return s.registry.Get(Int(LuaRidxGlobals)).AsTable()
}

// ---- Basic stack primitives (lua_gettop/lua_settop/lua_pushvalue/...) ----

func (s *State) GetTop() int { return s.frame().top() }

func (s *State) AbsIndex(idx int) int {
	if idx == LuaRegistryIndex || idx <= LuaRegistryIndex {
		return idx
	}
	return s.frame().absIndex(idx)
}

func (s *State) CheckStack(n int) { s.frame().check(n) }

func (s *State) Pop(n int) {
	for i := 0; i < n; i++ {
		s.frame().pop()
	}
}

func (s *State) Copy(from, to int) error {
	v := s.getByIndex(from)
	return s.setByIndex(to, v)
}

func (s *State) PushValue(idx int) {
	s.frame().push(s.getByIndex(idx))
}

// Replace mirrors lua_replace(idx): pop then set.
func (s *State) Replace(idx int) error {
	v := s.frame().pop()
	return s.setByIndex(idx, v)
}

// Insert mirrors lua_insert(idx) = rotate(idx, 1).
func (s *State) Insert(idx int) { s.frame().rotate(idx, 1) }

// Remove mirrors lua_remove(idx) = rotate(idx, -1); pop(1).
func (s *State) Remove(idx int) {
	s.frame().rotate(idx, -1)
	s.frame().pop()
}

func (s *State) Rotate(idx, n int) { s.frame().rotate(idx, n) }

func (s *State) SetTop(idx int) error { return s.frame().setTop(idx) }

func (s *State) getByIndex(idx int) Value {
	if idx == LuaRegistryIndex {
		return TableVal(s.registry)
	}
	if idx < LuaRegistryIndex {
		// Pseudo-index LUA_REGISTRY_INDEX - 1 - i addresses upvalue i of
		// the active closure, the same lua_upvalueindex scheme lua.h
		// defines; the extra -1 keeps upvalue 0's pseudo-index from
		// colliding with the registry's own sentinel at
		// LUA_REGISTRY_INDEX.
		i := LuaRegistryIndex - 1 - idx
		if cl := s.frame().closure; cl != nil {
			if cell := cl.Upvalue(i); cell != nil {
				return cell.Get()
			}
		}
		return Nil
	}
	return s.frame().get(idx)
}

func (s *State) setByIndex(idx int, v Value) error {
	if idx == LuaRegistryIndex {
		if !v.IsTable() {
			return newStackError("registry must be a table")
		}
		s.registry = v.AsTable()
		return nil
	}
	if idx < LuaRegistryIndex {
		i := LuaRegistryIndex - 1 - idx
		if cl := s.frame().closure; cl != nil {
			if cell := cl.Upvalue(i); cell != nil {
				cell.Set(v)
				return nil
			}
		}
		return newStackError("invalid upvalue pseudo-index")
	}
	return s.frame().set(idx, v)
}

// ---- Type access (lua_type/lua_is*) ----

func (s *State) TypeID(idx int) Tag {
	if idx == LuaRegistryIndex || idx < LuaRegistryIndex {
		return TypeTable
	}
	abs := s.frame().absIndex(idx)
	if !s.frame().isValid(abs) {
		return TypeNone
	}
	return s.frame().get(idx).Tag()
}

func (s *State) TypeName(tag Tag) string { return tag.String() }

func (s *State) IsNone(idx int) bool { return s.TypeID(idx) == TypeNone }
func (s *State) IsNoneOrNil(idx int) bool {
	t := s.TypeID(idx)
	return t == TypeNone || t == TypeNil
}
func (s *State) IsNil(idx int) bool     { return s.TypeID(idx) == TypeNil }
func (s *State) IsBoolean(idx int) bool { return s.TypeID(idx) == TypeBoolean }
func (s *State) IsTable(idx int) bool   { return s.TypeID(idx) == TypeTable }
func (s *State) IsFunction(idx int) bool { return s.TypeID(idx) == TypeFunction }
func (s *State) IsInteger(idx int) bool { return s.getByIndex(idx).IsInteger() }

// IsNumber mirrors lua_isnumber: true for anything that coerces to a
// number, not just values already tagged Number.
func (s *State) IsNumber(idx int) bool {
	_, ok := toNumber(s.getByIndex(idx))
	return ok
}

// IsString mirrors lua_isstring: accepts Number too, since numbers coerce
// to strings.
func (s *State) IsString(idx int) bool {
	v := s.getByIndex(idx)
	return v.IsString() || v.IsNumber()
}

// ---- Conversions (lua_toboolean/lua_tointeger/lua_tonumber/lua_tostring) ----

func (s *State) ToBoolean(idx int) bool { return toBoolean(s.getByIndex(idx)) }

func (s *State) ToIntegerX(idx int) (int64, bool) { return toInteger(s.getByIndex(idx)) }
func (s *State) ToInteger(idx int) int64 {
	i, _ := s.ToIntegerX(idx)
	return i
}

func (s *State) ToNumberX(idx int) (float64, bool) { return toNumber(s.getByIndex(idx)) }
func (s *State) ToNumber(idx int) float64 {
	f, _ := s.ToNumberX(idx)
	return f
}

func (s *State) ToStringX(idx int) (string, bool) { return toStr(s.getByIndex(idx)) }
func (s *State) ToString(idx int) string {
	str, _ := s.ToStringX(idx)
	return str
}

// ---- Push (lua_pushnil/lua_pushboolean/lua_pushinteger/...) ----

func (s *State) PushNil()            { s.frame().push(Nil) }
func (s *State) PushBoolean(b bool)  { s.frame().push(Bool(b)) }
func (s *State) PushInteger(i int64) { s.frame().push(Int(i)) }
func (s *State) PushNumber(f float64) { s.frame().push(Float(f)) }
func (s *State) PushString(str string) { s.frame().push(Str(str)) }

// ---- Arith / compare (lua_arith/lua_compare) ----

func (s *State) Arith(op ArithOp) error {
	f := s.frame()
	if op == OpUnm || op == OpBNot {
		v := f.pop()
		r, err := arith(op, v, v)
		if err != nil {
			return err
		}
		f.push(r)
		return nil
	}
	b := f.pop()
	a := f.pop()
	r, err := arith(op, a, b)
	if err != nil {
		return err
	}
	f.push(r)
	return nil
}

// Compare mirrors lua_compare(idx1,idx2,op): returns false (never errors)
// if either index is invalid, the same local-recovery policy Compare's
// value-level counterpart (valuesLess/valuesEqual) already follows.
func (s *State) Compare(idx1, idx2 int, op CompareOp) bool {
	if s.TypeID(idx1) == TypeNone || s.TypeID(idx2) == TypeNone {
		return false
	}
	a, b := s.getByIndex(idx1), s.getByIndex(idx2)
	switch op {
	case CmpEQ:
		return valuesEqual(a, b)
	case CmpLT:
		return valuesLess(a, b)
	case CmpLE:
		return valuesLessEqual(a, b)
	default:
		return false
	}
}

// ---- Misc (lua_len/lua_concat) ----

func (s *State) Len(idx int) error {
	v := s.getByIndex(idx)
	switch {
	case v.IsString():
		s.frame().push(Int(int64(len(v.AsString()))))
	case v.IsTable():
		s.frame().push(Int(v.AsTable().Len()))
	default:
		return newTypeError("length", v.Tag())
	}
	return nil
}

// Concat mirrors lua_concat(n): n==0 pushes "", n==1 is a no-op, n>1
// concatenates pairwise from the top down (kept as an explicit loop, not a
// single strings.Join, so each pair's coercion is validated independently
// the way Lua 5.3's luaV_concat does it, lvm.c).
func (s *State) Concat(n int) error {
	if n == 0 {
		s.frame().push(Str(""))
		return nil
	}
	if n == 1 {
		return nil
	}
	vs := s.frame().popN(n)
	acc, ok := toStr(vs[len(vs)-1])
	if !ok {
		return newTypeError("concat", vs[len(vs)-1].Tag())
	}
	for i := len(vs) - 2; i >= 0; i-- {
		left, ok := toStr(vs[i])
		if !ok {
			return newTypeError("concat", vs[i].Tag())
		}
		acc = left + acc
	}
	s.frame().push(Str(acc))
	return nil
}

// ---- Tables (lua_newtable/lua_gettable/lua_settable/...) ----

func (s *State) NewTable() { s.frame().push(TableVal(NewTable())) }

func (s *State) CreateTable(narr, nrec int) {
	s.frame().push(TableVal(NewTableSized(narr, nrec)))
}

// GetTable pops a key from top, pushes t[k] where t = stack[idx], and
// returns the result's type tag.
func (s *State) GetTable(idx int) (Tag, error) {
	t := s.getByIndex(idx)
	k := s.frame().pop()
	if !t.IsTable() {
		return TypeNone, newTypeError("index", t.Tag())
	}
	v := t.AsTable().Get(k)
	s.frame().push(v)
	return v.Tag(), nil
}

func (s *State) GetField(idx int, key string) (Tag, error) {
	t := s.getByIndex(idx)
	if !t.IsTable() {
		return TypeNone, newTypeError("index", t.Tag())
	}
	v := t.AsTable().Get(Str(key))
	s.frame().push(v)
	return v.Tag(), nil
}

func (s *State) GetI(idx int, i int64) (Tag, error) {
	t := s.getByIndex(idx)
	if !t.IsTable() {
		return TypeNone, newTypeError("index", t.Tag())
	}
	v := t.AsTable().Get(Int(i))
	s.frame().push(v)
	return v.Tag(), nil
}

// SetTable pops a value then a key, and sets t[k] = v where t = stack[idx].
func (s *State) SetTable(idx int) error {
	t := s.getByIndex(idx)
	v := s.frame().pop()
	k := s.frame().pop()
	if !t.IsTable() {
		return newTypeError("newindex", t.Tag())
	}
	return t.AsTable().Put(k, v)
}

func (s *State) SetField(idx int, key string) error {
	t := s.getByIndex(idx)
	v := s.frame().pop()
	if !t.IsTable() {
		return newTypeError("newindex", t.Tag())
	}
	return t.AsTable().Put(Str(key), v)
}

func (s *State) SetI(idx int, i int64) error {
	t := s.getByIndex(idx)
	v := s.frame().pop()
	if !t.IsTable() {
		return newTypeError("newindex", t.Tag())
	}
	return t.AsTable().Put(Int(i), v)
}

// ---- Globals & registry (lua_getglobal/lua_setglobal) ----

func (s *State) PushGlobalTable() { s.frame().push(TableVal(s.globals())) }

func (s *State) GetGlobal(name string) Tag {
	v := s.globals().Get(Str(name))
	s.frame().push(v)
	return v.Tag()
}

func (s *State) SetGlobal(name string) {
	v := s.frame().pop()
	s.globals().Put(Str(name), v)
}

// Register mirrors luaL_register's single-entry form: push fn + set_global.
func (s *State) Register(name string, fn RustFn) {
	s.PushRustFn(fn)
	s.SetGlobal(name)
}

// ---- Loading (lua_load) ----

// Load decodes bytes via the external chunk decoder, wraps the resulting
// top prototype in a closure, binds its first upvalue to the globals table
// per the `_ENV` convention (iff the prototype declares at least one
// upvalue), and pushes the closure. Returns a status byte, 0 meaning OK.
func (s *State) Load(data []byte, chunkName string, mode string) (int, error) {
	proto, err := chunk.Load(data, chunkName)
	if err != nil {
		return 1, wrap(err, "load")
	}
	cl := NewBytecodeClosure(proto)
	if len(cl.upvalues) > 0 {
		cl.upvalues[0] = &UpvalueCell{value: TableVal(s.globals())}
	}
	s.frame().push(FuncVal(cl))
	return 0, nil
}

// ---- Calls (lua_call/lua_pcall) ----

// Call mirrors lua_call(nargs, nresults): the callee sits at index
// -(nargs+1). Bytecode closures get a fresh frame and run the dispatch
// loop to an OP_RETURN; host closures get a frame sized for their args and
// invoke fn directly.
func (s *State) Call(nargs, nresults int) error {
	calleeIdx := -(nargs + 1)
	callee := s.getByIndex(calleeIdx)
	if !callee.IsFunction() {
		return newTypeError("call", callee.Tag())
	}
	cl := callee.AsClosure()

	caller := s.frame()
	args := caller.popN(nargs)
	caller.pop() // the callee itself

	results, err := s.invoke(cl, args)
	if err != nil {
		return err
	}
	s.frame().pushN(results, nresults)
	return nil
}

// invoke runs cl (bytecode or host) against args and returns its results,
// without touching the calling frame's own stack. Both State.Call and the
// CALL/SELF/TAILCALL opcode handlers in vm.go share this path so a bytecode
// closure calling a host closure calling back into bytecode composes to
// arbitrary re-entrant depth, the same way Lua 5.3's luaD_call supports C
// functions calling back into Lua and vice versa (ldo.c).
func (s *State) invoke(cl *Closure, args []Value) ([]Value, error) {
	if len(s.frames) >= s.frameLimit {
		return nil, newStackError("call stack overflow")
	}
	if cl.IsRustFn() {
		nf := newFrame(cl, len(args)+LuaMinStack, s.registry)
		nf.pushN(args, len(args))
		s.frames = append(s.frames, nf)
		n, err := cl.fn(s)
		results := s.frame().popN(n)
		s.frames = s.frames[:len(s.frames)-1]
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	proto := cl.proto
	capacity := int(proto.MaxStackSize) + LuaMinStack
	nf := newFrame(cl, capacity, s.registry)

	np := int(proto.NumParams)
	for i := 0; i < np; i++ {
		if i < len(args) {
			nf.push(args[i])
		} else {
			nf.push(Nil)
		}
	}
	if proto.IsVararg && len(args) > np {
		nf.varargs = append([]Value{}, args[np:]...)
	}
	if err := nf.setTop(int(proto.MaxStackSize)); err != nil {
		return nil, err
	}

	s.frames = append(s.frames, nf)
	results, err := s.run(nf)
	s.frames = s.frames[:len(s.frames)-1]
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ---- Closures with upvalues (lua_pushcclosure) ----

// PushRustClosure pops n values and binds them as upvalues of a new host
// closure.
func (s *State) PushRustClosure(fn RustFn, n int) {
	vs := s.frame().popN(n)
	cells := make([]*UpvalueCell, len(vs))
	for i, v := range vs {
		cells[i] = &UpvalueCell{value: v}
	}
	s.frame().push(FuncVal(NewRustClosure(fn, cells)))
}

// ---- Rust-fn detection (lua_iscfunction/lua_tocfunction) ----

func (s *State) PushRustFn(fn RustFn) {
	s.frame().push(FuncVal(NewRustClosure(fn, nil)))
}

func (s *State) IsRustFn(idx int) bool {
	v := s.getByIndex(idx)
	return v.IsFunction() && v.AsClosure().IsRustFn()
}

func (s *State) ToRustFn(idx int) RustFn {
	v := s.getByIndex(idx)
	if !v.IsFunction() || !v.AsClosure().IsRustFn() {
		return nil
	}
	return v.AsClosure().fn
}
