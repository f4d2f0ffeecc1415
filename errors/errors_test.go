package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseProxy,
				Kind:    KindTypeMismatch,
				Path:    []string{"DoStuff", "arg0"},
				GoType:  "bool",
				WitType: "string",
				Detail:  "cannot lower",
			},
			contains: []string{"[proxy]", "type_mismatch", "DoStuff.arg0", "bool", "string", "cannot lower"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseIsolation,
				Kind:  KindDisposed,
			},
			contains: []string{"[isolation]", "disposed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInstantiation,
				Detail: "instantiate module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "instantiation", "instantiate module", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Load("read module", cause)

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through chain")
	}
}

func TestError_Is(t *testing.T) {
	err := NotFound(PhaseIsolation, "module", "mathlib")

	if !errors.Is(err, &Error{Phase: PhaseIsolation, Kind: KindNotFound}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseProxy, Kind: KindNotFound}) {
		t.Error("unexpected match on different phase")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected kind-only sentinel to match")
	}
	if errors.Is(err, ErrDisposed) {
		t.Error("not-found must not match disposed")
	}
}

func TestPredicates(t *testing.T) {
	disposed := Disposed(PhaseBuild, "build pipeline")
	wrapped := fmt.Errorf("append: %w", disposed)

	if !IsDisposed(disposed) || !IsDisposed(wrapped) {
		t.Error("IsDisposed should see through wrapping")
	}
	if IsNotFound(wrapped) {
		t.Error("IsNotFound matched disposed error")
	}
	if !IsNotFound(NotFound(PhaseLoad, "file", "x.wasm")) {
		t.Error("IsNotFound failed on not-found error")
	}
	if IsDisposed(errors.New("plain")) {
		t.Error("plain error reported as disposed")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseProxy, KindTypeMismatch).
		Path("Value1").
		GoType("int").
		WitType("string").
		Value(42).
		Detail("cannot convert %d", 42).
		Build()

	if err.Detail != "cannot convert 42" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if len(err.Path) != 1 || err.Path[0] != "Value1" {
		t.Errorf("Path = %v", err.Path)
	}
}

func TestCompile(t *testing.T) {
	err := Compile("TestAssembly", 3)
	if !strings.Contains(err.Error(), `"TestAssembly"`) || !strings.Contains(err.Error(), "3 error(s)") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Kind != KindCompile {
		t.Errorf("Kind = %s", err.Kind)
	}
	if !IsCompile(err) || IsCompile(NotFound(PhaseBuild, "module", "x")) {
		t.Error("IsCompile mismatch")
	}
	if !IsTypeMismatch(TypeMismatch(PhaseProxy, []string{"Count"}, "string", "i32")) || IsTypeMismatch(err) {
		t.Error("IsTypeMismatch mismatch")
	}
}
