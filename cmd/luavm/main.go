// Command luavm runs a precompiled binary chunk on the register-based
// virtual machine implemented in internal/vm.
package main

import (
	"fmt"
	"log"
	"os"

	"luavm/internal/stdlib"
	"luavm/internal/vm"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's body, factored out so cmd/luavm's own test suite can
// register it as the luavm command for rogpeppe/go-internal/testscript
// (see main_test.go), which runs the test binary itself under that name
// instead of needing a separately built luavm binary.
func run(args []string) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		usage()
		return 0
	}
	if args[0] == "--version" || args[0] == "-v" {
		fmt.Println("luavm", version)
		return 0
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Printf("luavm: %v", err)
		return 1
	}

	s := vm.NewState()
	stdlib.Register(s)

	if status, err := s.Load(data, args[0], "b"); err != nil || status != 0 {
		log.Printf("luavm: load %s: %v", args[0], err)
		return 1
	}
	if err := s.Call(0, 0); err != nil {
		log.Printf("luavm: %v", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Println("usage: luavm <chunk-file>")
}
