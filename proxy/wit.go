package proxy

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-scripthost/errors"
)

type signature struct {
	params  []wit.Type
	results []wit.Type
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// parseWitFunctions extracts function signatures from WIT text.
// Pattern: [export] name: func(params) -> result;
func parseWitFunctions(witText string) (map[string]*signature, error) {
	funcs := make(map[string]*signature)

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := strings.TrimSpace(match[3])

		sig := &signature{}
		for _, p := range splitParams(paramsStr) {
			typStr := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typStr = strings.TrimSpace(p[idx+1:])
			}
			t, err := wit.ParseType(typStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseProxy, errors.KindInvalidData, err, name+": parse param type "+typStr)
			}
			sig.params = append(sig.params, t)
		}

		if resultStr != "" && resultStr != "()" {
			parts := []string{resultStr}
			if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
				parts = splitParams(resultStr[1 : len(resultStr)-1])
			}
			for _, part := range parts {
				t, err := wit.ParseType(strings.TrimSpace(part))
				if err != nil {
					return nil, errors.Wrap(errors.PhaseProxy, errors.KindInvalidData, err, name+": parse result type "+part)
				}
				sig.results = append(sig.results, t)
			}
		}

		funcs[name] = sig
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseProxy, "no functions found in WIT text")
	}
	return funcs, nil
}

// splitParams splits parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}
	return result
}

func isString(t wit.Type) bool {
	_, ok := t.(wit.String)
	return ok
}

// witName returns the WIT spelling of a primitive type.
func witName(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	}
	return "unknown"
}
