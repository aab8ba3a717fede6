package vm

import (
	"github.com/google/uuid"

	"luavm/internal/chunk"
)

// UpvalueCell is a shared mutable container holding exactly one Value,
// the Go equivalent of Lua 5.3's UpVal (lobject.h). Multiple closures may
// hold the same cell so a write through one is visible through the
// others.
type UpvalueCell struct {
	value Value
}

func (c *UpvalueCell) Get() Value  { return c.value }
func (c *UpvalueCell) Set(v Value) { c.value = v }

// RustFn is a host/native function: it reads its arguments and writes its
// results on its own frame and reports how many result values it left,
// the same calling convention as Lua 5.3's lua_CFunction (lua.h) — except
// rslua's reference implementation is itself a Rust host embedding this
// VM, hence the RustFn/push_rust_closure naming this package keeps rather
// than Lua's own "C function" vocabulary.
type RustFn func(s *State) (nresults int, err error)

// Closure is either a bytecode closure (a shared *chunk.Prototype plus one
// upvalue cell per proto.Upvalues) or a host closure (a native function
// pointer plus its captured upvalue cells), mirroring Lua 5.3's split
// between LClosure and CClosure (lobject.h) under a single Go type.
type Closure struct {
	proto    *chunk.Prototype
	fn       RustFn
	upvalues []*UpvalueCell

	// token gives every closure a stable identity usable as a table-key
	// hash source, independent of Go pointer identity so it survives being
	// copied into a hashKey value by value — the Go analog of rslua's
	// Closure::rdm seeded-random identity tag (state/closure.rs).
	token uuid.UUID
}

// NewBytecodeClosure wraps a decoded prototype. Upvalue cells are filled in
// by the CLOSURE opcode handler (vm.go), which knows which cells to share
// with the enclosing frame per proto.Upvalues.
func NewBytecodeClosure(proto *chunk.Prototype) *Closure {
	return &Closure{
		proto:    proto,
		upvalues: make([]*UpvalueCell, len(proto.Upvalues)),
		token:    uuid.New(),
	}
}

// NewRustClosure binds fn together with n captured upvalue cells, backing
// State.PushRustClosure.
func NewRustClosure(fn RustFn, upvalues []*UpvalueCell) *Closure {
	return &Closure{fn: fn, upvalues: upvalues, token: uuid.New()}
}

func (c *Closure) IsRustFn() bool { return c.fn != nil }

func (c *Closure) Upvalue(i int) *UpvalueCell {
	if i < 0 || i >= len(c.upvalues) {
		return nil
	}
	return c.upvalues[i]
}
