package sexpr

import (
	"testing"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/token"
)

func read(t *testing.T, src string) ([]*Node, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(0)
	return Read(token.Tokenize(src, bag), bag), bag
}

func TestRead(t *testing.T) {
	nodes, bag := read(t, `(module $m (func $f (param i32)) (data "x"))`)
	if bag.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %v", bag.Items())
	}
	if len(nodes) != 1 || nodes[0].Head() != "module" {
		t.Fatalf("nodes = %v", nodes)
	}
	args := nodes[0].Args()
	if len(args) != 3 || !args[0].IsID() {
		t.Fatalf("args = %v", args)
	}
	fn := args[1]
	if !fn.IsList("func") || fn.Col != 12 {
		t.Errorf("func node = %v at col %d", fn, fn.Col)
	}
	if args[2].Args()[0].Kind != String {
		t.Errorf("data payload kind = %v", args[2].Args()[0].Kind)
	}
}

func TestReadUnbalanced(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		count int
		line  int
	}{
		{"extra_close", "(module)\n)", 1, 2},
		{"unclosed", "(module\n  (func", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag := read(t, tt.src)
			if bag.Len() != tt.count {
				t.Fatalf("diagnostics = %v", bag.Items())
			}
			bag.Sort()
			if bag.Items()[0].Pos.Line != tt.line {
				t.Errorf("first diagnostic at %v", bag.Items()[0].Pos)
			}
		})
	}
}
