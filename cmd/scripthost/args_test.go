package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/proxy"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"0x10", int64(16)},
		{"18446744073709551615", uint64(18446744073709551615)},
		{"2.5", 2.5},
		{"true", true},
		{"false", false},
		{"Bob", "Bob"},
		{`"42"`, "42"},
		{`"a\tb"`, "a\tb"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseArg(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArg(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"1", []string{"1"}},
		{"1, 2", []string{"1", "2"}},
		{`"a,b", c`, []string{`"a,b"`, "c"}},
		{`"say \"hi\"", 3`, []string{`"say \"hi\""`, "3"}},
	}
	for _, tt := range tests {
		if got := splitArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAssignment(t *testing.T) {
	name, v, err := parseAssignment("Value1=Hello")
	if err != nil || name != "Value1" || v != "Hello" {
		t.Errorf("got %q %#v %v", name, v, err)
	}
	if _, _, err := parseAssignment("=1"); err == nil {
		t.Error("empty name accepted")
	}
	if _, _, err := parseAssignment("Value1"); err == nil {
		t.Error("missing value accepted")
	}
}

func TestDescribe(t *testing.T) {
	i32 := api.ValueTypeI32
	tests := []struct {
		m    proxy.Member
		want string
	}{
		{proxy.Member{Name: "Add", Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}, "Add(i32, i32) -> i32"},
		{proxy.Member{Name: "Reset"}, "Reset()"},
		{proxy.Member{Name: "Value1", Kind: proxy.Property, Results: []api.ValueType{i32, i32}, Readable: true, Writable: true}, "Value1: i32, i32 { get; set }"},
		{proxy.Member{Name: "Sink", Kind: proxy.Property, Params: []api.ValueType{api.ValueTypeF64}, Writable: true}, "Sink: f64 { set }"},
	}
	for _, tt := range tests {
		if got := describe(tt.m); got != tt.want {
			t.Errorf("describe = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatDiagnostic(t *testing.T) {
	d := diag.Diagnostic{
		Severity: diag.SevError,
		Code:     diag.CodeSyntax,
		Message:  "unexpected ')'",
		Pos:      diag.Pos{Line: 3, Col: 9},
	}
	if got := formatDiagnostic(d, false); got != d.String() {
		t.Errorf("plain = %q", got)
	}
	colored := formatDiagnostic(d, true)
	if !strings.Contains(colored, "\x1b[") || !strings.Contains(colored, "unexpected ')'") {
		t.Errorf("colored = %q", colored)
	}
}
