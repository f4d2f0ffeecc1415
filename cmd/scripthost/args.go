package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/proxy"
)

// parseArg reads a command-line value. Integers, floats and true/false
// keep their type; anything else, or a double-quoted value, is a string.
func parseArg(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unq, err := strconv.Unquote(s); err == nil {
			return unq
		}
		return s[1 : len(s)-1]
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// splitArgs splits a comma-separated argument line, keeping commas inside
// double quotes.
func splitArgs(line string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && quote && i+1 < len(line):
			cur.WriteByte(c)
			i++
			cur.WriteByte(line[i])
		case c == '"':
			quote = !quote
			cur.WriteByte(c)
		case c == ',' && !quote:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if last := strings.TrimSpace(cur.String()); last != "" || len(out) > 0 {
		out = append(out, last)
	}
	return out
}

// parseAssignment splits name=value.
func parseAssignment(s string) (string, any, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("expected name=value, got %q", s)
	}
	return strings.TrimSpace(name), parseArg(value), nil
}

// stringPair reports whether core types look like a (ptr, len) string.
func stringPair(ts []api.ValueType) bool {
	return len(ts) == 2 && ts[0] == api.ValueTypeI32 && ts[1] == api.ValueTypeI32
}

func typeList(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

// describe renders a member the way inspect and the TUI list it.
func describe(m proxy.Member) string {
	switch m.Kind {
	case proxy.Property:
		var access []string
		if m.Readable {
			access = append(access, "get")
		}
		if m.Writable {
			access = append(access, "set")
		}
		t := typeList(m.Results)
		if t == "" {
			t = typeList(m.Params)
		}
		return fmt.Sprintf("%s: %s { %s }", m.Name, t, strings.Join(access, "; "))
	default:
		out := m.Name + "(" + typeList(m.Params) + ")"
		if len(m.Results) > 0 {
			out += " -> " + typeList(m.Results)
		}
		return out
	}
}
