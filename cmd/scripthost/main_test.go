package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/wippyai/wasm-scripthost/errors"
)

const greeterScript = `(global $p1 (mut i32) (i32.const 0))
(global $l1 (mut i32) (i32.const 0))
(global $count (export "Count") (mut i32) (i32.const 0))

(func (export "get_Value1") (result i32 i32) (global.get $p1) (global.get $l1))
(func (export "set_Value1") (param i32 i32)
	(global.set $p1 (local.get 0))
	(global.set $l1 (local.get 1)))
(func (export "Add") (param i32 i32) (result i32)
	(global.set $count (i32.add (global.get $count) (i32.const 1)))
	(i32.add (local.get 0) (local.get 1)))
`

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.wat")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		resetFlags(c.Flags())
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores defaults left over from an earlier Execute.
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func TestBuildCommand(t *testing.T) {
	script := writeScript(t, greeterScript)
	image := filepath.Join(t.TempDir(), "out.wasm")

	out, err := execute(t, "build", "--color", "off", "-o", image, script)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "built ScriptAssembly") {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile(image)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x00asm")) {
		t.Errorf("image does not start with the wasm magic: % x", data[:4])
	}
}

func TestBuildCommandReportsErrors(t *testing.T) {
	script := writeScript(t, `(func (export "f") (result i32) (i32.add))`)
	image := filepath.Join(t.TempDir(), "never.wasm")
	_, err := execute(t, "build", "--color", "off", "-o", image, script)
	if !errors.IsCompile(err) {
		t.Fatalf("build error = %v", err)
	}
	if !strings.Contains(err.Error(), "error(s)") {
		t.Errorf("error count missing: %v", err)
	}
	if _, err := os.Stat(image); !os.IsNotExist(err) {
		t.Error("image written for a failed build")
	}
}

func TestRunCommand(t *testing.T) {
	script := writeScript(t, greeterScript)
	out, err := execute(t, "run",
		"--set", "Value1=Hello",
		"--call", "Add", "--arg", "40", "--arg", "2",
		"--get", "Value1", "--get", "Count",
		script)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"Add: 42", `Value1: "Hello"`, "Count: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestRunCommandFieldShadowsStringProperty(t *testing.T) {
	script := writeScript(t, `(global $label (export "Label") i32 (i32.const 7))
(func (export "get_Label") (result i32 i32) (i32.const 0) (i32.const 0))
`)
	out, err := execute(t, "run", "--get", "Label", script)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Label: 7") {
		t.Errorf("output %q does not contain %q", out, "Label: 7")
	}
}

func TestInspectCommand(t *testing.T) {
	script := writeScript(t, greeterScript)
	out, err := execute(t, "inspect", script)
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	for _, want := range []string{"Module: ScriptAssembly", "Add(i32, i32) -> i32", "Value1: i32, i32 { get; set }"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
	if strings.Contains(out, "cabi_realloc") {
		t.Error("allocator listed as a member")
	}
}
