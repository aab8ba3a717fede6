package vm

// Table is Lua 5.3's hybrid array/map container (ltable.c's Table struct):
// a dense 1-based array part for the common "sequence" case, plus a map
// part (Lua's "node" array) for sparse or non-integer keys. The boundary
// between the two moves as keys are inserted or removed (expand/shrink),
// rather than being fixed at creation, matching rslua's state/lua_table.rs
// amortized-growth behavior.
type Table struct {
	array []Value
	hash  map[hashKey]Value
}

func NewTable() *Table {
	return &Table{}
}

// NewTableSized pre-sizes the array and map parts, for NEWTABLE's
// Fb-decoded narr/nrec hint and the host API's create_table(narr,nrec).
func NewTableSized(narr, nrec int) *Table {
	t := &Table{}
	if narr > 0 {
		t.array = make([]Value, 0, narr)
	}
	if nrec > 0 {
		t.hash = make(map[hashKey]Value, nrec)
	}
	return t
}

// normalizeKey folds float keys with an exact integer value into the
// equivalent Integer, matching Lua 5.3's key normalization in ltable.c's
// luaH_get/luaH_newkey (t[1] and t[1.0] address the same slot).
func normalizeKey(k Value) Value {
	if k.tag == TypeNumber && !k.isInt {
		if i, ok := floatToInteger(k.f); ok {
			return Int(i)
		}
	}
	return k
}

// Get mirrors Lua 5.3's luaH_get (ltable.c): array part first when the key
// is an in-range positive integer, map part otherwise. Nil and NaN keys
// simply miss (Get never errors; only Put enforces the fatal rules).
func (t *Table) Get(k Value) Value {
	k = normalizeKey(k)
	if k.tag == TypeNumber && k.isInt && k.i >= 1 && int(k.i) <= len(t.array) {
		return t.array[k.i-1]
	}
	hk, ok := hashKeyOf(k)
	if !ok || t.hash == nil {
		return Nil
	}
	if v, found := t.hash[hk]; found {
		return v
	}
	return Nil
}

// Put mirrors Lua 5.3's luaH_newkey/luaV_settable (ltable.c/lvm.c):
// enforces the nil/NaN-key fatal rules, removes the key on a nil value,
// and maintains the array/map boundary via
// expand (absorbing consecutive integer keys out of the map when the array
// is extended by exactly one) and shrink (trimming trailing nils).
func (t *Table) Put(k, v Value) error {
	if k.tag == TypeNil {
		return newTableKeyError("table index is nil")
	}
	if k.tag == TypeNumber && !k.isInt && k.f != k.f {
		return newTableKeyError("table index is NaN")
	}
	k = normalizeKey(k)

	if k.tag == TypeNumber && k.isInt && k.i >= 1 {
		idx := int(k.i)
		if idx <= len(t.array) {
			t.array[idx-1] = v
			if v.tag == TypeNil && idx == len(t.array) {
				t.shrink()
			}
			return nil
		}
		if idx == len(t.array)+1 {
			if v.tag == TypeNil {
				return nil
			}
			t.array = append(t.array, v)
			t.expand()
			return nil
		}
	}

	if v.tag == TypeNil {
		if t.hash != nil {
			if hk, ok := hashKeyOf(k); ok {
				delete(t.hash, hk)
			}
		}
		return nil
	}
	hk, ok := hashKeyOf(k)
	if !ok {
		return newTableKeyError("unhashable table index")
	}
	if t.hash == nil {
		t.hash = make(map[hashKey]Value)
	}
	t.hash[hk] = v
	return nil
}

// expand absorbs consecutive integer keys already present in the map part
// once the array part is extended, so `t[#t+1] = v` followed by a
// previously out-of-range `t[#t+2]` migrates cleanly into the array.
func (t *Table) expand() {
	if t.hash == nil {
		return
	}
	for {
		next := Int(int64(len(t.array) + 1))
		hk, _ := hashKeyOf(next)
		v, ok := t.hash[hk]
		if !ok {
			return
		}
		t.array = append(t.array, v)
		delete(t.hash, hk)
	}
}

// shrink trims trailing nils from the array part after the last slot is
// cleared.
func (t *Table) shrink() {
	for len(t.array) > 0 && t.array[len(t.array)-1].tag == TypeNil {
		t.array = t.array[:len(t.array)-1]
	}
}

// Len mirrors Lua 5.3's luaH_getn (ltable.c): the array-part length. The
// reference manual leaves the length of a table with holes undefined; any
// border is an acceptable answer, so this only ever reports the array
// part's size.
func (t *Table) Len() int64 {
	return int64(len(t.array))
}
