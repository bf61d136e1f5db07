package inspect

import (
	"fmt"
	"strings"

	"github.com/coredbg/coredbg/pkg/dbg/types"
	"github.com/spf13/cobra"
)

var typeCmd = &cobra.Command{
	Use:   "type <binary> <name>",
	Short: "Resolve a named type and print its memory layout",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		h, err := openHandle(args[0])
		if err != nil {
			fail(err)
		}
		defer h.Close()

		layout, ok := h.ResolveType(args[1])
		if !ok {
			colorError.Printf("type %q not found\n", args[1])
			return
		}

		printLayout(layout, 0)
	},
}

// printLayout renders a Layout as an indented tree, colorizing field
// names and leaf type names.
func printLayout(l types.Layout, depth int) {
	indent := strings.Repeat("  ", depth)

	switch v := l.(type) {
	case types.Primitive:
		fmt.Printf("%s%s (%d bytes)\n", indent, colorType.Sprint(v.Name), v.Size)
	case types.Pointer:
		kind := "*"
		if v.Indirection == types.IndirectionReference {
			kind = "&"
		}
		fmt.Printf("%s%s\n", indent, colorType.Sprint(kind))
		printLayout(v.Inner, depth+1)
	case types.Reference:
		fmt.Printf("%s&\n", indent)
		printLayout(v.Inner, depth+1)
	case types.Array:
		fmt.Printf("%s[%d] stride=%d\n", indent, v.Count, v.Stride)
		printLayout(v.Inner, depth+1)
	case types.Struct:
		fmt.Printf("%sstruct %s\n", indent, colorType.Sprint(v.Name))
		for _, f := range v.Fields {
			fmt.Printf("%s  %s @+%d:\n", indent, colorField.Sprint(f.Name), f.Offset)
			printLayout(f.Type, depth+2)
		}
	case types.Tuple:
		fmt.Printf("%stuple\n", indent)
		for _, e := range v.Elements {
			printLayout(e, depth+1)
		}
	case types.Enum:
		fmt.Printf("%senum (%d variants)\n", indent, len(v.Variants))
		for _, variant := range v.Variants {
			fmt.Printf("%s  %s = %s\n", indent, colorField.Sprint(variant.Name), colorValue.Sprintf("%d", variant.TagValue))
			if variant.Payload != nil {
				printLayout(variant.Payload, depth+2)
			}
		}
	case types.Option:
		fmt.Printf("%sOption\n", indent)
		printLayout(v.Some, depth+1)
	case types.Result:
		fmt.Printf("%sResult\n", indent)
		fmt.Printf("%s  Ok:\n", indent)
		printLayout(v.Ok, depth+2)
		fmt.Printf("%s  Err:\n", indent)
		printLayout(v.Err, depth+2)
	case types.GrowableVector:
		fmt.Printf("%svec<>\n", indent)
		printLayout(v.Inner, depth+1)
	case types.HashMap:
		fmt.Printf("%sHashMap\n", indent)
		fmt.Printf("%s  key:\n", indent)
		printLayout(v.Key, depth+2)
		fmt.Printf("%s  value:\n", indent)
		printLayout(v.Value, depth+2)
	case types.BTreeMap:
		fmt.Printf("%sBTreeMap\n", indent)
		fmt.Printf("%s  key:\n", indent)
		printLayout(v.Key, depth+2)
		fmt.Printf("%s  value:\n", indent)
		printLayout(v.Value, depth+2)
	case types.Alias:
		fmt.Printf("%s<unresolved alias>\n", indent)
	default:
		fmt.Printf("%s<unknown layout %T>\n", indent, l)
	}
}
