package chunk

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// ErrMalformed is the sentinel wrapped by every decode failure; callers can
// test for it with errors.Is to recognize a MalformedChunk-kind failure
// without depending on this package's concrete error text.
var ErrMalformed = errors.New("malformed chunk")

type reader struct {
	data   []byte
	cursor int
}

// Load decodes a Lua 5.3 binary chunk (lundump.c's luaU_undump) and
// returns its top-level Prototype.
func Load(data []byte, chunkName string) (*Prototype, error) {
	r := &reader{data: data}
	if err := r.checkHeader(); err != nil {
		return nil, errors.Wrapf(err, "load %q", chunkName)
	}
	_ = r.readByte() // size_upvalues of the main function, unused by the core
	proto, err := r.readProto("")
	if err != nil {
		return nil, errors.Wrapf(err, "load %q", chunkName)
	}
	return proto, nil
}

func (r *reader) malformed(format string, args ...interface{}) error {
	return errors.Wrap(ErrMalformed, fmt.Sprintf(format, args...))
}

func (r *reader) need(n int) error {
	if r.cursor+n > len(r.data) {
		return r.malformed("truncated chunk: need %s more bytes, have %s",
			humanize.Comma(int64(n)), humanize.Comma(int64(len(r.data)-r.cursor)))
	}
	return nil
}

func (r *reader) readByte() byte {
	b := r.data[r.cursor]
	r.cursor++
	return b
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.cursor : r.cursor+n]
	r.cursor += n
	return b, nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readLuaInteger() (int64, error) {
	u, err := r.readU64()
	return int64(u), err
}

func (r *reader) readLuaNumber() (float64, error) {
	u, err := r.readU64()
	return math.Float64frombits(u), err
}

// readString decodes Lua 5.3's length-prefixed string encoding
// (lundump.c's LoadString): a leading length byte (0 = nil/empty, 0xFF =
// "read a u64 for the real size"), with the encoded length including the
// string's own terminator.
func (r *reader) readString() (string, error) {
	if err := r.need(1); err != nil {
		return "", err
	}
	size := uint64(r.readByte())
	if size == 0 {
		return "", nil
	}
	if size == 0xFF {
		var err error
		size, err = r.readU64()
		if err != nil {
			return "", err
		}
	}
	b, err := r.readBytes(int(size - 1))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) checkHeader() error {
	sig, err := r.readBytes(4)
	if err != nil {
		return err
	}
	if [4]byte(sig) != Signature {
		return r.malformed("bad signature %x", sig)
	}
	if err := r.need(1); err != nil {
		return err
	}
	if v := r.readByte(); v != LuacVersion {
		return r.malformed("version mismatch: got 0x%02x, want 0x%02x", v, LuacVersion)
	}
	if err := r.need(1); err != nil {
		return err
	}
	if f := r.readByte(); f != LuacFormat {
		return r.malformed("format mismatch: got %d, want %d", f, LuacFormat)
	}
	data, err := r.readBytes(6)
	if err != nil {
		return err
	}
	if [6]byte(data) != LuacData {
		return r.malformed("corrupted magic data %x", data)
	}
	sizes := []struct {
		name string
		want byte
	}{
		{"int", CintSize},
		{"size_t", CsizetSize},
		{"instruction", InstructionSize},
		{"lua_Integer", LuaIntegerSize},
		{"lua_Number", LuaNumberSize},
	}
	for _, s := range sizes {
		if err := r.need(1); err != nil {
			return err
		}
		if got := r.readByte(); got != s.want {
			return r.malformed("%s size mismatch: got %d, want %d", s.name, got, s.want)
		}
	}
	i, err := r.readLuaInteger()
	if err != nil {
		return err
	}
	if i != LuacInt {
		return r.malformed("endianness mismatch: got 0x%x, want 0x%x", i, LuacInt)
	}
	n, err := r.readLuaNumber()
	if err != nil {
		return err
	}
	if n != LuacNum {
		return r.malformed("float format mismatch: got %v, want %v", n, LuacNum)
	}
	return nil
}

func (r *reader) readProto(parentSource string) (*Prototype, error) {
	src, err := r.readString()
	if err != nil {
		return nil, err
	}
	source := src
	if source == "" {
		source = parentSource
	}

	p := &Prototype{Source: source}
	if p.LineDefined, err = r.readU32(); err != nil {
		return nil, err
	}
	if p.LastLineDefined, err = r.readU32(); err != nil {
		return nil, err
	}
	if err := r.need(3); err != nil {
		return nil, err
	}
	p.NumParams = r.readByte()
	p.IsVararg = r.readByte() != 0
	p.MaxStackSize = r.readByte()

	if p.Code, err = r.readCode(); err != nil {
		return nil, err
	}
	if p.Constants, err = r.readConstants(); err != nil {
		return nil, err
	}
	if p.Upvalues, err = r.readUpvalues(); err != nil {
		return nil, err
	}
	if p.Protos, err = r.readProtos(source); err != nil {
		return nil, err
	}
	if p.LineInfo, err = r.readU32Vector(); err != nil {
		return nil, err
	}
	if p.LocVars, err = r.readLocVars(); err != nil {
		return nil, err
	}
	if p.UpvalueNames, err = r.readStringVector(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *reader) readU32Vector() ([]uint32, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	v := make([]uint32, n)
	for i := range v {
		if v[i], err = r.readU32(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (r *reader) readCode() ([]uint32, error) {
	return r.readU32Vector()
}

func (r *reader) readConstants() ([]Constant, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]Constant, n)
	for i := range out {
		if out[i], err = r.readConstant(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) readConstant() (Constant, error) {
	if err := r.need(1); err != nil {
		return Constant{}, err
	}
	switch tag := r.readByte(); tag {
	case TagNil:
		return Constant{Kind: ConstNil}, nil
	case TagBoolean:
		if err := r.need(1); err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstBoolean, Boolean: r.readByte() != 0}, nil
	case TagInteger:
		i, err := r.readLuaInteger()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstInteger, Integer: i}, nil
	case TagNumber:
		n, err := r.readLuaNumber()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstNumber, Number: n}, nil
	case TagShortStr, TagLongStr:
		s, err := r.readString()
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstString, String: s}, nil
	default:
		return Constant{}, r.malformed("unknown constant tag 0x%02x", tag)
	}
}

func (r *reader) readUpvalues() ([]Upvalue, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]Upvalue, n)
	for i := range out {
		if err := r.need(2); err != nil {
			return nil, err
		}
		out[i] = Upvalue{InStack: r.readByte() != 0, Index: r.readByte()}
	}
	return out, nil
}

func (r *reader) readProtos(parentSource string) ([]*Prototype, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]*Prototype, n)
	for i := range out {
		if out[i], err = r.readProto(parentSource); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) readLocVars() ([]LocVar, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]LocVar, n)
	for i := range out {
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		start, err := r.readU32()
		if err != nil {
			return nil, err
		}
		end, err := r.readU32()
		if err != nil {
			return nil, err
		}
		out[i] = LocVar{Name: name, StartPC: start, EndPC: end}
	}
	return out, nil
}

func (r *reader) readStringVector() ([]string, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = r.readString(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
