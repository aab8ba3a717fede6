package vm

import "luavm/internal/chunk"

const floatsPerFlush = 50 // Lua 5.3's LFIELDS_PER_FLUSH (lopcodes.h), SETLIST's batch size

// constantValue converts a decoder-produced chunk.Constant into a runtime
// Value. The core reads chunk.Prototype and its Upvalue entries as they
// are; constants are the one part of a prototype it converts, here.
func constantValue(c chunk.Constant) Value {
	switch c.Kind {
	case chunk.ConstNil:
		return Nil
	case chunk.ConstBoolean:
		return Bool(c.Boolean)
	case chunk.ConstInteger:
		return Int(c.Integer)
	case chunk.ConstNumber:
		return Float(c.Number)
	case chunk.ConstString:
		return Str(c.String)
	default:
		return Nil
	}
}

// rk resolves a 9-bit RK operand: the high bit set means "constant index in
// the low 8 bits", clear means "register index" (Lua 5.3's lopcodes.h RK
// encoding, ISK/INDEXK).
func rk(f *Frame, proto *chunk.Prototype, arg int) Value {
	if isK(arg) {
		return constantValue(proto.Constants[kIndex(arg)])
	}
	return f.getReg(arg)
}

// run executes f's closure's instructions until OP_RETURN, returning the
// values it returns. It is the sole dispatch loop: a plain switch over
// OpCode (fetch, increment pc, dispatch), the same shape Lua 5.3's own
// luaV_execute uses (lvm.c) rather than a computed-goto or
// function-pointer table.
func (s *State) run(f *Frame) ([]Value, error) {
	proto := f.closure.proto
	for {
		if f.pc >= len(proto.Code) {
			return nil, newCorruptionError("pc ran past end of code")
		}
		inst := Instruction(proto.Code[f.pc])
		line := proto.Line(f.pc)
		f.pc++

		switch inst.Op() {
		case OP_MOVE:
			f.setReg(inst.A(), f.getReg(inst.B()))

		case OP_LOADK:
			f.setReg(inst.A(), constantValue(proto.Constants[inst.Bx()]))

		case OP_LOADKX:
			if f.pc >= len(proto.Code) {
				return nil, newCorruptionError("LOADKX missing EXTRAARG")
			}
			extra := Instruction(proto.Code[f.pc])
			f.pc++
			f.setReg(inst.A(), constantValue(proto.Constants[extra.Ax()]))

		case OP_LOADBOOL:
			f.setReg(inst.A(), Bool(inst.B() != 0))
			if inst.C() != 0 {
				f.pc++
			}

		case OP_LOADNIL:
			a, b := inst.A(), inst.B()
			for r := a; r <= a+b; r++ {
				f.setReg(r, Nil)
			}

		case OP_GETUPVAL:
			cell := f.closure.Upvalue(inst.B())
			if cell == nil {
				return nil, withDebug(newCorruptionError("invalid upvalue index"), proto.Source, line)
			}
			f.setReg(inst.A(), cell.Get())

		case OP_SETUPVAL:
			cell := f.closure.Upvalue(inst.B())
			if cell == nil {
				return nil, withDebug(newCorruptionError("invalid upvalue index"), proto.Source, line)
			}
			cell.Set(f.getReg(inst.A()))

		case OP_GETTABUP:
			cell := f.closure.Upvalue(inst.B())
			if cell == nil {
				return nil, withDebug(newCorruptionError("invalid upvalue index"), proto.Source, line)
			}
			t := cell.Get()
			if !t.IsTable() {
				return nil, withDebug(newTypeError("index", t.Tag()), proto.Source, line)
			}
			f.setReg(inst.A(), t.AsTable().Get(rk(f, proto, inst.C())))

		case OP_SETTABUP:
			cell := f.closure.Upvalue(inst.A())
			if cell == nil {
				return nil, withDebug(newCorruptionError("invalid upvalue index"), proto.Source, line)
			}
			t := cell.Get()
			if !t.IsTable() {
				return nil, withDebug(newTypeError("newindex", t.Tag()), proto.Source, line)
			}
			if err := t.AsTable().Put(rk(f, proto, inst.B()), rk(f, proto, inst.C())); err != nil {
				return nil, withDebug(err.(*Error), proto.Source, line)
			}

		case OP_GETTABLE:
			t := f.getReg(inst.B())
			if !t.IsTable() {
				return nil, withDebug(newTypeError("index", t.Tag()), proto.Source, line)
			}
			f.setReg(inst.A(), t.AsTable().Get(rk(f, proto, inst.C())))

		case OP_SETTABLE:
			t := f.getReg(inst.A())
			if !t.IsTable() {
				return nil, withDebug(newTypeError("newindex", t.Tag()), proto.Source, line)
			}
			if err := t.AsTable().Put(rk(f, proto, inst.B()), rk(f, proto, inst.C())); err != nil {
				return nil, withDebug(err.(*Error), proto.Source, line)
			}

		case OP_NEWTABLE:
			narr := decodeFb(inst.B())
			nrec := decodeFb(inst.C())
			f.setReg(inst.A(), TableVal(NewTableSized(narr, nrec)))

		case OP_SELF:
			a, b := inst.A(), inst.B()
			recv := f.getReg(b)
			f.setReg(a+1, recv)
			if !recv.IsTable() {
				return nil, withDebug(newTypeError("index", recv.Tag()), proto.Source, line)
			}
			f.setReg(a, recv.AsTable().Get(rk(f, proto, inst.C())))

		case OP_ADD, OP_SUB, OP_MUL, OP_MOD, OP_POW, OP_DIV, OP_IDIV,
			OP_BAND, OP_BOR, OP_BXOR, OP_SHL, OP_SHR:
			b := rk(f, proto, inst.B())
			c := rk(f, proto, inst.C())
			r, err := arith(arithOpcodes[inst.Op()], b, c)
			if err != nil {
				return nil, withDebug(err.(*Error), proto.Source, line)
			}
			f.setReg(inst.A(), r)

		case OP_UNM, OP_BNOT:
			b := f.getReg(inst.B())
			r, err := arith(arithOpcodes[inst.Op()], b, b)
			if err != nil {
				return nil, withDebug(err.(*Error), proto.Source, line)
			}
			f.setReg(inst.A(), r)

		case OP_NOT:
			f.setReg(inst.A(), Bool(!toBoolean(f.getReg(inst.B()))))

		case OP_LEN:
			v := f.getReg(inst.B())
			switch {
			case v.IsString():
				f.setReg(inst.A(), Int(int64(len(v.AsString()))))
			case v.IsTable():
				f.setReg(inst.A(), Int(v.AsTable().Len()))
			default:
				return nil, withDebug(newTypeError("length", v.Tag()), proto.Source, line)
			}

		case OP_CONCAT:
			a, b, c := inst.A(), inst.B(), inst.C()
			acc, ok := toStr(f.getReg(c))
			if !ok {
				return nil, withDebug(newTypeError("concat", f.getReg(c).Tag()), proto.Source, line)
			}
			for r := c - 1; r >= b; r-- {
				left, ok := toStr(f.getReg(r))
				if !ok {
					return nil, withDebug(newTypeError("concat", f.getReg(r).Tag()), proto.Source, line)
				}
				acc = left + acc
			}
			f.setReg(a, Str(acc))

		case OP_JMP:
			f.pc += inst.SBx()
			if a := inst.A(); a != 0 {
				f.closeUpvaluesFrom(a - 1)
			}

		case OP_EQ, OP_LT, OP_LE:
			b := rk(f, proto, inst.B())
			c := rk(f, proto, inst.C())
			var result bool
			switch inst.Op() {
			case OP_EQ:
				result = valuesEqual(b, c)
			case OP_LT:
				result = valuesLess(b, c)
			case OP_LE:
				result = valuesLessEqual(b, c)
			}
			if boolToInt(result) != inst.A() {
				f.pc++
			}

		case OP_TEST:
			if boolToInt(toBoolean(f.getReg(inst.A()))) != inst.C() {
				f.pc++
			}

		case OP_TESTSET:
			v := f.getReg(inst.B())
			if boolToInt(toBoolean(v)) == inst.C() {
				f.setReg(inst.A(), v)
			} else {
				f.pc++
			}

		case OP_CALL:
			a, b, c := inst.A(), inst.B(), inst.C()
			nargs := b - 1
			if b == 0 {
				nargs = f.top() - (a + 1)
			}
			args := make([]Value, nargs)
			for i := 0; i < nargs; i++ {
				args[i] = f.getReg(a + 1 + i)
			}
			callee := f.getReg(a)
			if !callee.IsFunction() {
				return nil, withDebug(newTypeError("call", callee.Tag()), proto.Source, line)
			}
			results, err := s.invoke(callee.AsClosure(), args)
			if err != nil {
				return nil, err
			}
			want := c - 1
			if c == 0 {
				want = -1
			}
			f.placeResults(a, results, want)

		case OP_TAILCALL:
			// Treated as CALL with all results: proper tail calls (reusing
			// the caller's frame, per Lua 5.3's luaD_pretailcall in ldo.c)
			// are not implemented; this still produces correct results, it
			// just grows the Go call/frame stack instead of reusing it.
			a, b := inst.A(), inst.B()
			nargs := b - 1
			if b == 0 {
				nargs = f.top() - (a + 1)
			}
			args := make([]Value, nargs)
			for i := 0; i < nargs; i++ {
				args[i] = f.getReg(a + 1 + i)
			}
			callee := f.getReg(a)
			if !callee.IsFunction() {
				return nil, withDebug(newTypeError("call", callee.Tag()), proto.Source, line)
			}
			results, err := s.invoke(callee.AsClosure(), args)
			if err != nil {
				return nil, err
			}
			f.placeResults(a, results, -1)

		case OP_RETURN:
			a, b := inst.A(), inst.B()
			if b == 1 {
				return nil, nil
			}
			n := b - 1
			if b == 0 {
				n = f.top() - a
			}
			out := make([]Value, n)
			for i := 0; i < n; i++ {
				out[i] = f.getReg(a + i)
			}
			return out, nil

		case OP_FORPREP:
			a := inst.A()
			init, step, limit, err := forNumbers(f, a, proto.Source, line)
			if err != nil {
				return nil, err
			}
			f.setReg(a, Float(init-step))
			f.setReg(a+1, Float(limit))
			f.setReg(a+2, Float(step))
			f.pc += inst.SBx()

		case OP_FORLOOP:
			a := inst.A()
			idx := f.getReg(a).AsFloat() + f.getReg(a+2).AsFloat()
			limit := f.getReg(a + 1).AsFloat()
			step := f.getReg(a + 2).AsFloat()
			cont := step >= 0 && idx <= limit || step < 0 && idx >= limit
			if cont {
				f.pc += inst.SBx()
				f.setReg(a, Float(idx))
				f.setReg(a+3, Float(idx))
			}

		case OP_SETLIST:
			a, b, c := inst.A(), inst.B(), inst.C()
			n := b
			if b == 0 {
				n = f.top() - (a + 1)
			}
			batch := c - 1
			if c == 0 {
				if f.pc >= len(proto.Code) {
					return nil, newCorruptionError("SETLIST missing EXTRAARG")
				}
				batch = Instruction(proto.Code[f.pc]).Ax()
				f.pc++
			}
			t := f.getReg(a)
			if !t.IsTable() {
				return nil, withDebug(newTypeError("setlist", t.Tag()), proto.Source, line)
			}
			for i := 1; i <= n; i++ {
				if err := t.AsTable().Put(Int(int64(batch*floatsPerFlush+i)), f.getReg(a+i)); err != nil {
					return nil, withDebug(err.(*Error), proto.Source, line)
				}
			}

		case OP_CLOSURE:
			childProto := proto.Protos[inst.Bx()]
			child := NewBytecodeClosure(childProto)
			for i, uv := range childProto.Upvalues {
				if uv.InStack {
					child.upvalues[i] = f.openUpvalue(int(uv.Index))
				} else {
					child.upvalues[i] = f.closure.Upvalue(int(uv.Index))
				}
			}
			f.setReg(inst.A(), FuncVal(child))

		case OP_VARARG:
			a, b := inst.A(), inst.B()
			want := b - 1
			if b == 0 {
				want = -1
			}
			f.placeResults(a, f.varargs, want)

		case OP_EXTRAARG:
			// Consumed directly by the preceding LOADKX/SETLIST; reaching
			// it here means the dispatcher mis-stepped past one.
			return nil, withDebug(newCorruptionError("stray EXTRAARG"), proto.Source, line)

		default:
			return nil, withDebug(newCorruptionError("unknown opcode"), proto.Source, line)
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// forNumbers coerces R(A), R(A+1), R(A+2) (init, limit, step) to numbers
// for FORPREP, the same string-to-number coercion Lua 5.3's forprep does
// before the loop begins (lvm.c).
func forNumbers(f *Frame, a int, source string, line uint32) (init, step, limit float64, err error) {
	init, ok := toNumber(f.getReg(a))
	if !ok {
		return 0, 0, 0, withDebug(newTypeError("'for' initial value", f.getReg(a).Tag()), source, line)
	}
	limit, ok = toNumber(f.getReg(a + 1))
	if !ok {
		return 0, 0, 0, withDebug(newTypeError("'for' limit", f.getReg(a+1).Tag()), source, line)
	}
	step, ok = toNumber(f.getReg(a + 2))
	if !ok {
		return 0, 0, 0, withDebug(newTypeError("'for' step", f.getReg(a+2).Tag()), source, line)
	}
	return init, step, limit, nil
}
