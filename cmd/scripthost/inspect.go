package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-scripthost/proxy"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <script.wat>...",
	Short: "List the members of a built script",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, _, err := newManager(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	if err := buildScripts(ctx, cmd, m); err != nil {
		return err
	}
	mod := m.Module()
	obj, err := mod.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer obj.Close(ctx)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Module: %s\n", mod.Name())
	if imports := mod.Imports(); len(imports) > 0 {
		fmt.Fprintf(w, "Imports: %v\n", imports)
	}
	fmt.Fprintln(w, "\nMembers:")
	for _, member := range proxy.New(obj).Members() {
		fmt.Fprintf(w, "  %-8s %s\n", member.Kind, describe(member))
	}
	return nil
}
