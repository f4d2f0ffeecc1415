package compiler

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/diag"
)

// ReferenceKind selects the directory a reference name is joined onto.
type ReferenceKind int

const (
	// KindSystem references live in the runtime-library directory.
	KindSystem ReferenceKind = iota
	// KindLocal references live in the host application's directory.
	KindLocal
)

func (k ReferenceKind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindLocal:
		return "local"
	}
	return "unknown"
}

// Reference is a prebuilt binary module whose exports the compiled source
// may import.
type Reference struct {
	Path string
	Kind ReferenceKind
}

// Signature is the core wasm type of a function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) Equal(params, results []api.ValueType) bool {
	return equalValueTypes(s.Params, params) && equalValueTypes(s.Results, results)
}

func equalValueTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	return formatTypes(s.Params) + " -> " + formatTypes(s.Results)
}

func formatTypes(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// Request is one compilation unit.
type Request struct {
	// Hosts lists the Go-implemented modules available at instantiation,
	// keyed by module name then function name.
	Hosts      map[string]map[string]Signature
	Name       string
	Source     string
	References []Reference
}

type Output struct {
	Image       []byte
	Diagnostics []diag.Diagnostic
}

// Success reports whether an image was produced.
func (o *Output) Success() bool {
	return o.Image != nil && !diag.HasErrors(o.Diagnostics)
}

// Service compiles source text into a binary module. A returned error
// means the service itself failed (for example a cancelled context);
// problems in the source are reported as diagnostics.
type Service interface {
	Compile(ctx context.Context, req *Request) (*Output, error)
}
