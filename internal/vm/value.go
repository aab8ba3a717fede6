package vm

import (
	"strconv"
	"strings"
	"unsafe"

	"github.com/google/uuid"
)

// Tag identifies the dynamic type of a Value, matching Lua 5.3's basic
// type tags (lua.h's LUA_T* constants). NUMBER covers both
// Integer and Number subtypes: they are distinguished only by Value.isInt,
// never by a separate tag.
type Tag int8

const (
	TypeNone     Tag = -1
	TypeNil      Tag = 0
	TypeBoolean  Tag = 1
	TypeNumber   Tag = 3
	TypeString   Tag = 4
	TypeTable    Tag = 5
	TypeFunction Tag = 6
	TypeThread   Tag = 8
)

func (t Tag) String() string {
	switch t {
	case TypeNone:
		return "no value"
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Value is Lua 5.3's tagged union (TValue in lobject.h), kept as an
// explicit variant rather than a NaN-boxed float64: Lua 5.3's numbers are
// genuinely two distinct subtypes (Integer, Float) and need to keep that
// distinction past arithmetic, not recover it by bit-punning a payload.
type Value struct {
	tag     Tag
	boolean bool
	isInt   bool
	i       int64
	f       float64
	str     string
	table   *Table
	closure *Closure
}

var Nil = Value{tag: TypeNil}

func Bool(b bool) Value { return Value{tag: TypeBoolean, boolean: b} }

func Int(i int64) Value { return Value{tag: TypeNumber, isInt: true, i: i} }

func Float(f float64) Value { return Value{tag: TypeNumber, f: f} }

func Str(s string) Value { return Value{tag: TypeString, str: s} }

func TableVal(t *Table) Value { return Value{tag: TypeTable, table: t} }

func FuncVal(c *Closure) Value { return Value{tag: TypeFunction, closure: c} }

func (v Value) Tag() Tag       { return v.tag }
func (v Value) IsNil() bool    { return v.tag == TypeNil }
func (v Value) IsBoolean() bool { return v.tag == TypeBoolean }
func (v Value) IsNumber() bool { return v.tag == TypeNumber }
func (v Value) IsInteger() bool { return v.tag == TypeNumber && v.isInt }
func (v Value) IsFloat() bool  { return v.tag == TypeNumber && !v.isInt }
func (v Value) IsString() bool { return v.tag == TypeString }
func (v Value) IsTable() bool  { return v.tag == TypeTable }
func (v Value) IsFunction() bool { return v.tag == TypeFunction }

func (v Value) AsBoolean() bool { return v.boolean }
func (v Value) AsInt() int64    { return v.i }
func (v Value) AsFloat() float64 {
	if v.isInt {
		return float64(v.i)
	}
	return v.f
}
func (v Value) AsString() string   { return v.str }
func (v Value) AsTable() *Table    { return v.table }
func (v Value) AsClosure() *Closure { return v.closure }

// toBoolean matches Lua 5.3's truthiness rule: false only for Nil and
// Boolean(false); everything else, including 0 and "", is truthy.
func toBoolean(v Value) bool {
	if v.tag == TypeNil {
		return false
	}
	if v.tag == TypeBoolean {
		return v.boolean
	}
	return true
}

// toNumber mirrors Lua 5.3's luaV_tonumber_ (lvm.c): Integer casts to
// float, Number passes through, String parses as float, everything else
// fails. Both the Integer and Number arms are reachable and distinct,
// unlike rslua's to_numberx which collapses them into a single Number arm.
func toNumber(v Value) (float64, bool) {
	switch v.tag {
	case TypeNumber:
		if v.isInt {
			return float64(v.i), true
		}
		return v.f, true
	case TypeString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toInteger mirrors Lua 5.3's luaV_tointeger (lvm.c): Integer is returned
// as-is, Number/String go through an exact-integer conversion, anything
// else fails.
func toInteger(v Value) (int64, bool) {
	switch v.tag {
	case TypeNumber:
		if v.isInt {
			return v.i, true
		}
		return floatToInteger(v.f)
	case TypeString:
		s := strings.TrimSpace(v.str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInteger(f)
	default:
		return 0, false
	}
}

// toStr mirrors Lua 5.3's luaO_tostringbuff (lobject.c): String is itself;
// Integer/Number render as canonical decimal text; everything else fails.
func toStr(v Value) (string, bool) {
	switch v.tag {
	case TypeString:
		return v.str, true
	case TypeNumber:
		if v.isInt {
			return strconv.FormatInt(v.i, 10), true
		}
		return formatFloat(v.f), true
	default:
		return "", false
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// valuesEqual mirrors Lua 5.3's luaV_equalobj (lvm.c): numeric cross-type
// comparison treats Integer i and Float f as equal iff f == (double)i and
// i == (int64)f (both directions must hold, guarding against lossy
// float->int rounding).
func valuesEqual(a, b Value) bool {
	if a.tag == TypeNil && b.tag == TypeNil {
		return true
	}
	if a.tag == TypeBoolean && b.tag == TypeBoolean {
		return a.boolean == b.boolean
	}
	if a.tag == TypeNumber && b.tag == TypeNumber {
		if a.isInt && b.isInt {
			return a.i == b.i
		}
		if !a.isInt && !b.isInt {
			return a.f == b.f
		}
		var iv int64
		var fv float64
		if a.isInt {
			iv, fv = a.i, b.f
		} else {
			iv, fv = b.i, a.f
		}
		return fv == float64(iv) && iv == int64(fv)
	}
	if a.tag == TypeString && b.tag == TypeString {
		return a.str == b.str
	}
	if a.tag == TypeTable && b.tag == TypeTable {
		return a.table == b.table
	}
	if a.tag == TypeFunction && b.tag == TypeFunction {
		return a.closure == b.closure
	}
	return false
}

// valuesLess mirrors Lua 5.3's luaV_lessthan (lvm.c): defined only between
// two numbers (with cross-type promotion) or two strings (lexicographic
// byte order); any other combination is false, never an error (only
// arith() is fatal on a bad operand; Compare degrades to false).
func valuesLess(a, b Value) bool {
	if a.tag == TypeNumber && b.tag == TypeNumber {
		if a.isInt && b.isInt {
			return a.i < b.i
		}
		return a.AsFloat() < b.AsFloat()
	}
	if a.tag == TypeString && b.tag == TypeString {
		return a.str < b.str
	}
	return false
}

func valuesLessEqual(a, b Value) bool {
	if a.tag == TypeNumber && b.tag == TypeNumber {
		if a.isInt && b.isInt {
			return a.i <= b.i
		}
		return a.AsFloat() <= b.AsFloat()
	}
	if a.tag == TypeString && b.tag == TypeString {
		return a.str <= b.str
	}
	return false
}

// hashKey derives a comparable Go value suitable as a map key for the
// Table's map part (ltable.c's node hashing, minus the array-part fast
// path handled separately by Table.Get/Put). Table and Function
// values hash by identity: a Table by its pointer, a Function by its
// Closure's uuid token (see closure.go), so two distinct closures never
// share a map key.
type hashKey struct {
	tag Tag
	i   int64
	f   float64
	s   string
	u   uuid.UUID
	p   unsafe.Pointer
}

func hashKeyOf(v Value) (hashKey, bool) {
	switch v.tag {
	case TypeNil:
		return hashKey{}, false
	case TypeBoolean:
		var i int64
		if v.boolean {
			i = 1
		}
		return hashKey{tag: TypeBoolean, i: i}, true
	case TypeNumber:
		if v.isInt {
			return hashKey{tag: TypeNumber, i: v.i}, true
		}
		if v.f != v.f { // NaN
			return hashKey{}, false
		}
		if iv, ok := floatToInteger(v.f); ok {
			return hashKey{tag: TypeNumber, i: iv}, true
		}
		return hashKey{tag: TypeNumber, f: v.f}, true
	case TypeString:
		return hashKey{tag: TypeString, s: v.str}, true
	case TypeTable:
		return hashKey{tag: TypeTable, p: unsafe.Pointer(v.table)}, true
	case TypeFunction:
		return hashKey{tag: TypeFunction, u: v.closure.token}, true
	default:
		return hashKey{}, false
	}
}
