package inspect

import (
	"fmt"

	"github.com/spf13/cobra"
)

var methodsCmd = &cobra.Command{
	Use:   "methods <binary> <type>",
	Short: "List every function associated with a named type",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openHandle(args[0])
		if err != nil {
			fail(err)
		}
		defer h.Close()

		methods, err := h.DiscoverMethods(args[1])
		if err != nil {
			fail(err)
		}
		if len(methods) == 0 {
			colorError.Printf("no methods found for %q\n", args[1])
			return
		}

		colorHeader.Printf("Methods of %s:\n", args[1])
		for _, m := range methods {
			static := ""
			if m.IsStatic {
				static = " (static)"
			}
			fmt.Printf("  %s%s %s - %s\n",
				colorFunc.Sprint(m.Name.Leaf),
				static,
				colorAddr.Sprintf("0x%x", m.LowPC),
				colorAddr.Sprintf("0x%x", m.HighPC))
		}
	},
}
