package token

import (
	"github.com/wippyai/wasm-scripthost/diag"
)

type Type int

const (
	LParen Type = iota
	RParen
	Atom
	String
)

func (t Type) String() string {
	switch t {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Atom:
		return "atom"
	case String:
		return "string"
	}
	return "unknown"
}

// Token is a lexical unit with its 1-based start position.
// String tokens carry the raw text between the quotes, escapes undecoded.
type Token struct {
	Value string
	Type  Type
	Line  int
	Col   int
}

func (t Token) Pos() diag.Pos {
	return diag.Pos{Line: t.Line, Col: t.Col}
}

type scanner struct {
	src  []rune
	bag  *diag.Bag
	i    int
	line int
	col  int
}

func (s *scanner) peekAt(off int) rune {
	if s.i+off >= len(s.src) {
		return 0
	}
	return s.src[s.i+off]
}

func (s *scanner) advance() {
	if s.src[s.i] == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	s.i++
}

func isAtomRune(r rune) bool {
	switch r {
	case '(', ')', '"', ';', ' ', '\t', '\n', '\r':
		return false
	}
	return r > ' '
}

// Tokenize splits WAT source into tokens. Lexical errors (unterminated
// strings and block comments) are reported to bag; scanning continues.
func Tokenize(input string, bag *diag.Bag) []Token {
	s := &scanner{src: []rune(input), bag: bag, line: 1, col: 1}
	var tokens []Token

	for s.i < len(s.src) {
		r := s.src[s.i]
		line, col := s.line, s.col

		switch {
		case r == ';' && s.peekAt(1) == ';':
			for s.i < len(s.src) && s.src[s.i] != '\n' {
				s.advance()
			}

		case r == '(' && s.peekAt(1) == ';':
			s.blockComment(line, col)

		case r == '(':
			s.advance()
			tokens = append(tokens, Token{Value: "(", Type: LParen, Line: line, Col: col})

		case r == ')':
			s.advance()
			tokens = append(tokens, Token{Value: ")", Type: RParen, Line: line, Col: col})

		case r == '"':
			tokens = append(tokens, s.str(line, col))

		case isAtomRune(r):
			start := s.i
			for s.i < len(s.src) && isAtomRune(s.src[s.i]) {
				s.advance()
			}
			tokens = append(tokens, Token{Value: string(s.src[start:s.i]), Type: Atom, Line: line, Col: col})

		default:
			s.advance()
		}
	}
	return tokens
}

func (s *scanner) blockComment(line, col int) {
	s.advance()
	s.advance()
	depth := 1
	for s.i < len(s.src) {
		switch {
		case s.src[s.i] == '(' && s.peekAt(1) == ';':
			depth++
			s.advance()
		case s.src[s.i] == ';' && s.peekAt(1) == ')':
			depth--
			s.advance()
		}
		s.advance()
		if depth == 0 {
			return
		}
	}
	s.bag.Errorf(diag.Pos{Line: line, Col: col}, diag.CodeSyntax, "unterminated block comment")
}

func (s *scanner) str(line, col int) Token {
	s.advance()
	start := s.i
	for s.i < len(s.src) && s.src[s.i] != '"' && s.src[s.i] != '\n' {
		if s.src[s.i] == '\\' && s.i+1 < len(s.src) {
			s.advance()
		}
		s.advance()
	}
	value := string(s.src[start:s.i])
	if s.i >= len(s.src) || s.src[s.i] != '"' {
		s.bag.Errorf(diag.Pos{Line: line, Col: col}, diag.CodeSyntax, "unterminated string literal")
	} else {
		s.advance()
	}
	return Token{Value: value, Type: String, Line: line, Col: col}
}
