package diag

import (
	"strings"
	"testing"
)

func TestBag(t *testing.T) {
	b := NewBag(2)
	b.Warnf(Pos{Line: 3, Col: 1}, CodeUnusedLocal, "unused local %s", "$x")
	b.Errorf(Pos{Line: 1, Col: 5}, CodeSyntax, "expected %s", "')'")
	if b.Add(Diagnostic{Severity: SevWarning, Message: "dropped"}) {
		t.Fatal("bag accepted warning beyond its limit")
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	if !b.HasErrors() {
		t.Fatal("HasErrors = false")
	}

	b.Sort()
	if b.Items()[0].Pos.Line != 1 {
		t.Errorf("Sort did not order by position: %v", b.Items())
	}
}

func TestBag_ErrorsPastLimit(t *testing.T) {
	b := NewBag(3)
	for i := 0; i < 5; i++ {
		b.Warnf(Pos{Line: i + 1, Col: 1}, CodeUnusedLocal, "unused local $x")
	}
	if b.HasErrors() {
		t.Fatal("HasErrors = true before any error")
	}
	if !b.Add(Diagnostic{Severity: SevError, Pos: Pos{Line: 9, Col: 2}, Message: "unknown instruction"}) {
		t.Fatal("error dropped by a full bag")
	}
	if !b.HasErrors() {
		t.Fatal("HasErrors = false after error past the limit")
	}
	if b.Len() != 4 {
		t.Fatalf("Len = %d, want 4", b.Len())
	}
}

func TestErrorsFilter(t *testing.T) {
	ds := []Diagnostic{
		{Severity: SevInfo, Message: "a"},
		{Severity: SevError, Message: "b"},
		{Severity: SevWarning, Message: "c"},
		{Severity: SevError, Message: "d"},
	}
	errs := Errors(ds)
	if len(errs) != 2 || errs[0].Message != "b" || errs[1].Message != "d" {
		t.Fatalf("Errors = %v", errs)
	}
	if !HasErrors(ds) || HasErrors(ds[:1]) {
		t.Fatal("HasErrors mismatch")
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: SevError, Code: CodeReferenceIO, Message: "cannot read", Source: "lib/math.wasm"}
	s := d.String()
	for _, want := range []string{"lib/math.wasm", "-", "error", "W0103", "cannot read"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q missing %q", s, want)
		}
	}

	d = Diagnostic{Severity: SevWarning, Pos: Pos{Line: 4, Col: 9}, Message: "m"}
	if got := d.String(); got != "4:9: warning: m" {
		t.Errorf("String = %q", got)
	}
}
