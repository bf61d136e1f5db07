// Package inspect implements the coredbg CLI's query subcommands: thin
// wrappers around pkg/dbg's public operations, colorized the way the
// teacher's interactive debugger colorizes its own output.
package inspect

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coredbg/coredbg/pkg/dbg"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	colorFunc   = color.New(color.FgYellow, color.Bold)
	colorAddr   = color.New(color.FgCyan)
	colorFile   = color.New(color.FgHiBlue)
	colorLine   = color.New(color.FgHiCyan)
	colorType   = color.New(color.FgHiYellow)
	colorField  = color.New(color.FgGreen)
	colorValue  = color.New(color.FgWhite, color.Bold)
	colorError  = color.New(color.FgRed, color.Bold)
	colorHeader = color.New(color.FgWhite, color.Bold, color.Underline)
)

var sourceMap []string

// InspectCmd is the parent of every coredbg query subcommand.
var InspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Query debug information embedded in a binary",
}

func init() {
	InspectCmd.PersistentFlags().StringSliceVar(&sourceMap, "source-map", nil,
		"remap a source path prefix, formatted as from=to (repeatable)")
	InspectCmd.AddCommand(functionCmd, addr2lineCmd, line2addrCmd, typeCmd, methodsCmd, varsCmd)
}

// parseLogLevel reads the --log-level flag registered on RootCmd.
// It can't import the parent cmd package (RootCmd already imports
// inspect to register this command tree), so it walks up to the root
// command and reads the flag by name instead.
func parseLogLevel() slog.Level {
	level, _ := InspectCmd.Root().PersistentFlags().GetString("log-level")
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func openHandle(path string) (*dbg.Handle, error) {
	logger := dbg.NewLogger(parseLogLevel(), nil)
	h, err := dbg.Open(path, "", &dbg.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	if len(sourceMap) > 0 {
		table := make(map[string]string, len(sourceMap))
		for _, entry := range sourceMap {
			from, to, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			table[from] = to
		}
		if err := h.SetSourceMap(func(p string) string {
			for from, to := range table {
				if strings.HasPrefix(p, from) {
					return to + strings.TrimPrefix(p, from)
				}
			}
			return p
		}); err != nil {
			h.Close()
			return nil, err
		}
	}

	return h, nil
}

func fail(err error) {
	colorError.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printLocation(file string, line int) {
	if file == "" {
		fmt.Println("  (no source location)")
		return
	}
	fmt.Printf("  %s:%s\n", colorFile.Sprint(file), colorLine.Sprintf("%d", line))
}
