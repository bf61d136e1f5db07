package inspect

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var addr2lineCmd = &cobra.Command{
	Use:   "addr2line <binary> <address>",
	Short: "Resolve a program-counter value to its enclosing function and source position",
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

		loc, ok := h.AddressToLocation(pc)
		if !ok {
			colorError.Printf("no mapping for address %s\n", colorAddr.Sprintf("0x%x", pc))
			return
		}

		fmt.Printf("%s %s\n", colorAddr.Sprintf("0x%x", pc), colorFunc.Sprint(loc.Function))
		printLocation(loc.File, loc.Line)
	},
}

var line2addrLineFlag int

var line2addrCmd = &cobra.Command{
	Use:   "line2addr <binary> <file>",
	Short: "Resolve a source file and line to the first matching instruction address",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openHandle(args[0])
		if err != nil {
			fail(err)
		}
		defer h.Close()

		pc, ok := h.LocationToAddress(args[1], line2addrLineFlag, nil)
		if !ok {
			colorError.Printf("no code for %s:%d\n", args[1], line2addrLineFlag)
			return
		}

		fmt.Printf("%s\n", colorAddr.Sprintf("0x%x", pc))
	},
}

func init() {
	line2addrCmd.Flags().IntVar(&line2addrLineFlag, "line", 0, "source line number")
	line2addrCmd.MarkFlagRequired("line")
}
