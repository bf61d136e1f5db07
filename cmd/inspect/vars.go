package inspect

import (
	"fmt"
	"strconv"

	"github.com/coredbg/coredbg/pkg/dbg/variables"
	"github.com/spf13/cobra"
)

// staticOracle answers every register and stack-pointer query with
// zero and every memory read with an error. It lets
// the demo CLI exercise ResolveVariablesAt against a binary with no
// attached live process: locations resolve to addresses and register
// numbers, but no value is read back.
type staticOracle struct{}

func (staticOracle) BaseAddress() uint64 { return 0 }
func (staticOracle) ReadMemory(uint64, int) ([]byte, error) {
	return nil, fmt.Errorf("no live process attached")
}
func (staticOracle) GetRegister(int) (uint64, error)  { return 0, nil }
func (staticOracle) GetStackPointer() (uint64, error) { return 0, nil }

var varsCmd = &cobra.Command{
	Use:   "vars <binary> <address>",
	Short: "List parameters, locals, and visible globals at a program counter",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openHandle(args[0])
		if err != nil {
			fail(err)
		}
		defer h.Close()

		pc, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			fail(fmt.Errorf("invalid address %q: %w", args[1], err))
		}

		params, locals, globals, err := h.ResolveVariablesAt(pc, staticOracle{})
		if err != nil {
			fail(err)
		}

		printVarGroup("Parameters", params)
		printVarGroup("Locals", locals)
		printVarGroup("Globals", globals)
	},
}

func printVarGroup(title string, vars []variables.Variable) {
	if len(vars) == 0 {
		return
	}
	colorHeader.Printf("%s:\n", title)
	for _, v := range vars {
		loc := "?"
		switch v.Location.Kind {
		case variables.LocationAddress:
			loc = colorAddr.Sprintf("@0x%x", v.Location.Address)
		case variables.LocationRegister:
			loc = colorAddr.Sprintf("$r%d", v.Location.Register)
		}
		partial := ""
		if v.Partial {
			partial = " (partial)"
		}
		fmt.Printf("  %s %s%s\n", colorField.Sprint(v.Name), loc, partial)
	}
}
