// Package sexpr builds a positioned s-expression tree from WAT tokens.
package sexpr

import (
	"strings"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/token"
)

type Kind int

const (
	List Kind = iota
	Atom
	String
)

type Node struct {
	Value string // atom text or raw string contents; empty for lists
	List  []*Node
	Kind  Kind
	Line  int
	Col   int
}

func (n *Node) Pos() diag.Pos {
	return diag.Pos{Line: n.Line, Col: n.Col}
}

// Head returns the keyword of a list node, or "" when the list is empty or
// does not start with an atom.
func (n *Node) Head() string {
	if n.Kind != List || len(n.List) == 0 || n.List[0].Kind != Atom {
		return ""
	}
	return n.List[0].Value
}

// Args returns the list elements after the head.
func (n *Node) Args() []*Node {
	if n.Kind != List || len(n.List) == 0 {
		return nil
	}
	return n.List[1:]
}

func (n *Node) IsList(head string) bool {
	return n.Kind == List && n.Head() == head
}

// IsID reports whether the node is a symbolic identifier such as $name.
func (n *Node) IsID() bool {
	return n.Kind == Atom && strings.HasPrefix(n.Value, "$") && len(n.Value) > 1
}

func (n *Node) String() string {
	switch n.Kind {
	case Atom:
		return n.Value
	case String:
		return `"` + n.Value + `"`
	}
	if h := n.Head(); h != "" {
		return "(" + h + " ...)"
	}
	return "(...)"
}

// Read parses the token stream into top-level nodes. An unmatched ')' is
// reported and skipped; a list left open at end of input is reported at
// its opening parenthesis and closed implicitly.
func Read(tokens []token.Token, bag *diag.Bag) []*Node {
	var (
		top   []*Node
		stack []*Node
	)
	push := func(n *Node) {
		if len(stack) == 0 {
			top = append(top, n)
			return
		}
		parent := stack[len(stack)-1]
		parent.List = append(parent.List, n)
	}

	for _, t := range tokens {
		switch t.Type {
		case token.LParen:
			n := &Node{Kind: List, Line: t.Line, Col: t.Col}
			push(n)
			stack = append(stack, n)
		case token.RParen:
			if len(stack) == 0 {
				bag.Errorf(t.Pos(), diag.CodeSyntax, "unexpected ')'")
				continue
			}
			stack = stack[:len(stack)-1]
		case token.Atom:
			push(&Node{Kind: Atom, Value: t.Value, Line: t.Line, Col: t.Col})
		case token.String:
			push(&Node{Kind: String, Value: t.Value, Line: t.Line, Col: t.Col})
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		bag.Errorf(n.Pos(), diag.CodeSyntax, "unclosed '(' opened here")
	}
	return top
}
