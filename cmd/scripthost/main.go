package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "scripthost",
	Short: "Build and run WAT scripts in isolated wasm units",
	Long: `scripthost compiles WebAssembly Text scripts into modules, loads them
into an isolation unit and drives their exports through a member proxy.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "TOML configuration file")
	flags.String("name", "", "assembly name the scripts are built into")
	flags.StringSlice("override", nil, "module names always loaded from disk")
	flags.Bool("plain", false, "wrap scripts in a bare module instead of the functions preset")
	flags.String("wit", "", "file with WIT declarations of script members")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("debug", env.Bool("SCRIPTHOST_DEBUG"), "log at debug level to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
