package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] <script.wat>...",
	Short: "Compile scripts into a wasm module",
	Long: `Compile the scripts into one module and report diagnostics. With -o the
module image is written to a file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringP("output", "o", "", "write the module image to this file")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, _, err := newManager(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	if err := buildScripts(ctx, cmd, m); err != nil {
		return err
	}

	image := m.Pipeline().Image()
	out, _ := cmd.Flags().GetString("output")
	if out != "" {
		if err := os.WriteFile(out, image, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "built %s (%d bytes, exports: %v)\n",
		m.Name(), len(image), m.Module().Exports())
	return nil
}
