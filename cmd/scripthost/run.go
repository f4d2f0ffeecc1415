package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/proxy"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <script.wat>...",
	Short: "Build scripts and invoke their members",
	Long: `Build the scripts, instantiate the module and apply --set, --call and
--get in that order. With -i an interactive member browser is started
instead.

Arguments are integers, floats, true/false or strings; quote a value to
force a string, for example --arg '"42"'. Members returning an (i32, i32)
pair are read as strings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("call", "", "method to call")
	f.StringArray("arg", nil, "argument for --call (repeatable)")
	f.StringArray("get", nil, "field or property to read (repeatable)")
	f.StringArray("set", nil, "name=value to write before the call (repeatable)")
	f.Bool("static", false, "use the module's named instance instead of a fresh object")
	f.BoolP("interactive", "i", false, "browse and invoke members in a TUI")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, log, err := newManager(ctx, cmd, args)
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	if err := buildScripts(ctx, cmd, m); err != nil {
		return err
	}

	opts, err := proxyOptions(cmd, log)
	if err != nil {
		return err
	}

	var p *proxy.Proxy
	if static, _ := cmd.Flags().GetBool("static"); static {
		p, err = m.Static(ctx, opts...)
		if err != nil {
			return fmt.Errorf("bind static instance: %w", err)
		}
	} else {
		obj, err := m.Module().Instantiate(ctx)
		if err != nil {
			return fmt.Errorf("instantiate: %w", err)
		}
		defer obj.Close(ctx)
		p = proxy.New(obj, opts...)
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		return runInteractive(m.Name(), p)
	}
	return applyActions(ctx, cmd, p, log)
}

func applyActions(ctx context.Context, cmd *cobra.Command, p *proxy.Proxy, log *zap.Logger) error {
	flags := cmd.Flags()
	sets, _ := flags.GetStringArray("set")
	call, _ := flags.GetString("call")
	rawArgs, _ := flags.GetStringArray("arg")
	gets, _ := flags.GetStringArray("get")
	w := cmd.OutOrStdout()

	for _, s := range sets {
		name, value, err := parseAssignment(s)
		if err != nil {
			return err
		}
		if err := p.TrySet(ctx, name, value); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		log.Debug("member set", zap.String("member", name), zap.Any("value", value))
	}

	if call != "" {
		callArgs := make([]any, len(rawArgs))
		for i, a := range rawArgs {
			callArgs[i] = parseArg(a)
		}
		v, err := invoke(ctx, p, call, callArgs)
		if err != nil {
			return fmt.Errorf("call %s: %w", call, err)
		}
		printValue(w, call, v)
	}

	for _, name := range gets {
		v, err := read(ctx, p, name)
		if err != nil {
			return fmt.Errorf("get %s: %w", name, err)
		}
		printValue(w, name, v)
	}
	return nil
}

// invoke calls a method, decoding a (ptr, len) result as a string.
func invoke(ctx context.Context, p *proxy.Proxy, name string, args []any) (any, error) {
	if member, ok := findMember(p, name); ok && stringPair(member.Results) {
		return p.TryCallString(ctx, name, args...)
	}
	return p.TryCall(ctx, name, args...)
}

// read gets a field or property, decoding a (ptr, len) property as a
// string. A field shadowing a string property is read as a plain value.
func read(ctx context.Context, p *proxy.Proxy, name string) (any, error) {
	if member, ok := findMember(p, name); ok && member.Kind == proxy.Property && stringPair(member.Results) {
		s, err := p.TryGetString(ctx, name)
		if !errors.IsTypeMismatch(err) {
			return s, err
		}
	}
	return p.TryGet(ctx, name)
}

func findMember(p *proxy.Proxy, name string) (proxy.Member, bool) {
	for _, m := range p.Members() {
		if m.Name == name {
			return m, true
		}
	}
	return proxy.Member{}, false
}

func printValue(w io.Writer, name string, v any) {
	switch v := v.(type) {
	case nil:
		fmt.Fprintf(w, "%s: ok\n", name)
	case string:
		fmt.Fprintf(w, "%s: %q\n", name, v)
	default:
		fmt.Fprintf(w, "%s: %v\n", name, v)
	}
}
