package chunk

import "testing"

// tableChunk is the compiled form of:
//
//	local t = {"a", "b", "c"}
//	t[2] = "B"
//	t.foo = "Bar"
//	local s = t[3]..t[2]..t[1]..t.foo..#t
//
// lifted byte-for-byte from the reference rslua test suite, so decoding it
// successfully is a real end-to-end check of the header/size/constant
// layout from Lua 5.3's binary chunk format.
var tableChunk = []byte{
	0x1b, 0x4c, 0x75, 0x61, 0x53, 0x00, 0x19, 0x93, 0x0d, 0x0a, 0x1a, 0x0a,
	0x04, 0x08, 0x04, 0x08, 0x08, 0x78, 0x56, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x28, 0x77, 0x40, 0x01, 0x0b, 0x40,
	0x74, 0x61, 0x62, 0x6c, 0x65, 0x2e, 0x6c, 0x75, 0x61, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x06, 0x0e, 0x00, 0x00, 0x00,
	0x0b, 0x00, 0x80, 0x01, 0x41, 0x00, 0x00, 0x00, 0x81, 0x40, 0x00, 0x00,
	0xc1, 0x80, 0x00, 0x00, 0x2b, 0x40, 0x80, 0x01, 0x0a, 0x00, 0xc1, 0x81,
	0x0a, 0x80, 0xc1, 0x82, 0x47, 0xc0, 0x41, 0x00, 0x87, 0xc0, 0x40, 0x00,
	0xc7, 0x00, 0x42, 0x00, 0x07, 0x41, 0x41, 0x00, 0x5c, 0x01, 0x00, 0x00,
	0x5d, 0x40, 0x81, 0x00, 0x26, 0x00, 0x80, 0x00, 0x09, 0x00, 0x00, 0x00,
	0x04, 0x02, 0x61, 0x04, 0x02, 0x62, 0x04, 0x02, 0x63, 0x13, 0x02, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0x02, 0x42, 0x04, 0x04, 0x66,
	0x6f, 0x6f, 0x04, 0x04, 0x42, 0x61, 0x72, 0x13, 0x03, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x13, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0e,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02,
	0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x04,
	0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x04,
	0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x02,
	0x00, 0x00, 0x00, 0x02, 0x74, 0x05, 0x00, 0x00, 0x00, 0x0e, 0x00, 0x00,
	0x00, 0x02, 0x73, 0x0d, 0x00, 0x00, 0x00, 0x0e, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x05, 0x5f, 0x45, 0x4e, 0x56,
}

func TestLoadTableChunk(t *testing.T) {
	proto, err := Load(tableChunk, "table.lua")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if proto.Source != "@table.lua" {
		t.Errorf("Source = %q, want @table.lua", proto.Source)
	}
	if proto.NumParams != 0 || proto.IsVararg != true {
		t.Errorf("NumParams/IsVararg = %d/%v, want 0/true", proto.NumParams, proto.IsVararg)
	}
	if got, want := len(proto.Constants), 9; got != want {
		t.Fatalf("len(Constants) = %d, want %d", got, want)
	}
	wantStrings := map[int]string{0: "a", 1: "b", 2: "c", 4: "B", 5: "foo", 6: "Bar"}
	for i, want := range wantStrings {
		if got := proto.Constants[i].String; got != want {
			t.Errorf("Constants[%d] = %q, want %q", i, got, want)
		}
	}
	if proto.Constants[3].Kind != ConstInteger || proto.Constants[3].Integer != 2 {
		t.Errorf("Constants[3] = %+v, want Integer(2)", proto.Constants[3])
	}
	if len(proto.Code) != int(14) {
		t.Errorf("len(Code) = %d, want 14", len(proto.Code))
	}
	if len(proto.Upvalues) != 1 || proto.UpvalueNames[0] != "_ENV" {
		t.Errorf("Upvalues = %+v, names = %v, want one upvalue named _ENV", proto.Upvalues, proto.UpvalueNames)
	}
}

func TestLoadRejectsBadSignature(t *testing.T) {
	bad := make([]byte, len(tableChunk))
	copy(bad, tableChunk)
	bad[0] = 0x00
	if _, err := Load(bad, "bad.lua"); err == nil {
		t.Fatal("Load accepted a corrupt signature")
	}
}

func TestLoadRejectsTruncated(t *testing.T) {
	if _, err := Load(tableChunk[:10], "short.lua"); err == nil {
		t.Fatal("Load accepted a truncated chunk")
	}
}
