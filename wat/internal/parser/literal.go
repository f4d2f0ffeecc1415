package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/opcode"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
)

func valType(n *sexpr.Node) (ast.ValType, error) {
	if n == nil || n.Kind != sexpr.Atom {
		return 0, errorAt(n, diag.CodeSyntax, "expected value type")
	}
	vt, ok := ast.ParseValType(n.Value)
	if !ok {
		return 0, errorAt(n, diag.CodeSyntax, "unknown value type %q", n.Value)
	}
	return vt, nil
}

func parseU32(s string) (uint32, error) {
	s = strings.ReplaceAll(s, "_", "")
	base := 10
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		s, base = rest, 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// parseInt accepts signed and unsigned spellings of a bits-wide integer and
// returns its two's complement bit pattern.
func parseInt(s string, bits int) (uint64, error) {
	neg, s := splitSign(strings.ReplaceAll(s, "_", ""))
	base := 10
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		s, base = rest, 16
	}
	v, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid i%d literal", bits)
	}
	if neg {
		if v > 1<<(bits-1) {
			return 0, fmt.Errorf("i%d literal out of range", bits)
		}
		v = -v
		if bits < 64 {
			v &= 1<<bits - 1
		}
	}
	return v, nil
}

func splitSign(s string) (bool, string) {
	switch {
	case strings.HasPrefix(s, "-"):
		return true, s[1:]
	case strings.HasPrefix(s, "+"):
		return false, s[1:]
	}
	return false, s
}

// parseFloat handles decimal and hexadecimal floats and inf. NaN literals
// go through nanBits so their payload survives.
func parseFloat(s string, bits int) (float64, error) {
	s = strings.ReplaceAll(s, "_", "")
	neg, body := splitSign(s)
	if body == "inf" {
		if neg {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	}
	if strings.HasPrefix(body, "0x") && !strings.ContainsAny(body, "pP") {
		s += "p0"
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid f%d literal", bits)
	}
	return v, nil
}

// nanBits returns the bit pattern of a nan or nan:0x literal and whether s
// is one.
func nanBits(s string, bits int) (uint64, bool, error) {
	neg, body := splitSign(strings.ReplaceAll(s, "_", ""))
	if body != "nan" && !strings.HasPrefix(body, "nan:0x") {
		return 0, false, nil
	}

	mantissa := uint(52)
	if bits == 32 {
		mantissa = 23
	}
	payload := uint64(1) << (mantissa - 1)
	if p, ok := strings.CutPrefix(body, "nan:0x"); ok {
		v, err := strconv.ParseUint(p, 16, 64)
		if err != nil || v == 0 || v >= 1<<mantissa {
			return 0, true, fmt.Errorf("invalid nan payload")
		}
		payload = v
	}

	exp := uint64(0x7FF) << 52
	signBit := uint64(1) << 63
	if bits == 32 {
		exp = 0xFF << 23
		signBit = 1 << 31
	}
	b := exp | payload
	if neg {
		b |= signBit
	}
	return b, true, nil
}

func constant(kind opcode.ImmKind, s string) (any, error) {
	switch kind {
	case opcode.ImmI32:
		v, err := parseInt(s, 32)
		return int32(uint32(v)), err
	case opcode.ImmI64:
		v, err := parseInt(s, 64)
		return int64(v), err
	case opcode.ImmF32:
		if b, ok, err := nanBits(s, 32); ok {
			return math.Float32frombits(uint32(b)), err
		}
		v, err := parseFloat(s, 32)
		return float32(v), err
	case opcode.ImmF64:
		if b, ok, err := nanBits(s, 64); ok {
			return math.Float64frombits(b), err
		}
		return parseFloat(s, 64)
	}
	return nil, fmt.Errorf("not a constant")
}

// decodeString resolves the escapes of a string literal body.
func decodeString(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			return nil, fmt.Errorf("dangling escape")
		}
		switch c = s[i]; c {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '"', '\'', '\\':
			out = append(out, c)
		case 'u':
			end := strings.IndexByte(s[i:], '}')
			if i+1 >= len(s) || s[i+1] != '{' || end < 0 {
				return nil, fmt.Errorf("malformed unicode escape")
			}
			cp, err := strconv.ParseUint(strings.ReplaceAll(s[i+2:i+end], "_", ""), 16, 32)
			if err != nil || !utf8.ValidRune(rune(cp)) {
				return nil, fmt.Errorf("invalid code point in unicode escape")
			}
			out = utf8.AppendRune(out, rune(cp))
			i += end
		default:
			if i+1 >= len(s) || !isHex(c) || !isHex(s[i+1]) {
				return nil, fmt.Errorf("unknown escape \\%c", c)
			}
			v, _ := strconv.ParseUint(s[i:i+2], 16, 8)
			out = append(out, byte(v))
			i++
		}
	}
	return out, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
