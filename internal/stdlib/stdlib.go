// Package stdlib registers the small set of native functions the core
// needs to be runnable end to end. The engine itself only exposes the
// primitives needed to register host functions; it doesn't ship a full
// standard library, so this stays deliberately minimal: print, type,
// tostring, tonumber — the bare minimum a host CLI needs to show a
// program did something.
package stdlib

import (
	"fmt"

	"luavm/internal/vm"
)

// Register installs every function this package provides as a global on
// s, using State.Register (push fn + set_global), the same convention
// luaL_register uses in Lua 5.3's lauxlib.c.
func Register(s *vm.State) {
	s.Register("print", print_)
	s.Register("type", typeOf)
	s.Register("tostring", toString)
	s.Register("tonumber", toNumber)
}

func print_(s *vm.State) (int, error) {
	n := s.GetTop()
	for i := 1; i <= n; i++ {
		if i > 1 {
			fmt.Print("\t")
		}
		fmt.Print(argString(s, i))
	}
	fmt.Println()
	return 0, nil
}

func typeOf(s *vm.State) (int, error) {
	s.PushString(s.TypeName(s.TypeID(1)))
	return 1, nil
}

func toString(s *vm.State) (int, error) {
	s.PushString(argString(s, 1))
	return 1, nil
}

func toNumber(s *vm.State) (int, error) {
	if f, ok := s.ToNumberX(1); ok {
		s.PushNumber(f)
	} else {
		s.PushNil()
	}
	return 1, nil
}

// argString renders argument idx the way print needs to: strings pass
// through, everything else falls back to to_string, and values that don't
// coerce (tables, functions) render by type name rather than failing the
// whole call.
func argString(s *vm.State, idx int) string {
	if str, ok := s.ToStringX(idx); ok {
		return str
	}
	if s.IsNil(idx) {
		return "nil"
	}
	if s.IsBoolean(idx) {
		return fmt.Sprintf("%v", s.ToBoolean(idx))
	}
	return s.TypeName(s.TypeID(idx))
}
