package inspect

import (
	"fmt"

	"github.com/spf13/cobra"
)

var functionCmd = &cobra.Command{
	Use:   "function <binary> <name>",
	Short: "Resolve a function by name and show its address range and declaration site",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openHandle(args[0])
		if err != nil {
			fail(err)
		}
		defer h.Close()

		info, ok := h.FindFunction(args[1])
		if !ok {
			colorError.Printf("function %q not found\n", args[1])
			return
		}

		fmt.Printf("%s\n", colorFunc.Sprint(info.Name))
		fmt.Printf("  range: %s - %s\n", colorAddr.Sprintf("0x%x", info.LowPC), colorAddr.Sprintf("0x%x", info.HighPC))
		if info.IsStatic {
			fmt.Println("  linkage: static")
		}
		printLocation(info.File, info.Line)
	},
}
