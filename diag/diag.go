package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// Code identifies the class of a diagnostic.
type Code string

const (
	CodeSyntax          Code = "W0001"
	CodeUnknownName     Code = "W0002"
	CodeUnknownInstr    Code = "W0003"
	CodeDuplicateName   Code = "W0004"
	CodeUnresolvedMod   Code = "W0100"
	CodeMissingExport   Code = "W0101"
	CodeSignature       Code = "W0102"
	CodeReferenceIO     Code = "W0103"
	CodeReferenceFormat Code = "W0104"
	CodeDuplicateRef    Code = "W0105"
	CodeValidation      Code = "W0200"
	CodeUnusedLocal     Code = "W0300"
)

// Pos is a 1-based line and column in the compiled source unit.
// The zero Pos means "no position".
type Pos struct {
	Line int
	Col  int
}

func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Before reports whether p sorts before q. Invalid positions sort first.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Pos      Pos
	// Source names the input that produced the diagnostic when it is not
	// the compiled unit itself, e.g. a reference path.
	Source string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Source != "" {
		b.WriteString(d.Source)
		b.WriteByte(':')
	}
	b.WriteString(d.Pos.String())
	b.WriteString(": ")
	b.WriteString(d.Severity.String())
	if d.Code != "" {
		b.WriteString(" ")
		b.WriteString(string(d.Code))
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Bag collects diagnostics up to a limit.
type Bag struct {
	items []Diagnostic
	max   int
}

// NewBag creates a bag holding at most max diagnostics. max <= 0 means unlimited.
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add stores d and reports whether it was kept. Errors are kept past the
// limit so a full bag never hides a failed build.
func (b *Bag) Add(d Diagnostic) bool {
	if b.max > 0 && len(b.items) >= b.max && d.Severity < SevError {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Errorf(pos Pos, code Code, format string, args ...any) {
	b.Add(Diagnostic{Severity: SevError, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (b *Bag) Warnf(pos Pos, code Code, format string, args ...any) {
	b.Add(Diagnostic{Severity: SevWarning, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns the collected diagnostics. The slice must not be modified.
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// Merge appends the diagnostics of other, ignoring the limit.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by source, position, then severity (errors first).
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.Source != dj.Source {
			return di.Source < dj.Source
		}
		if di.Pos != dj.Pos {
			return di.Pos.Before(dj.Pos)
		}
		return di.Severity > dj.Severity
	})
}

// Errors returns only error-severity diagnostics, preserving order.
func Errors(ds []Diagnostic) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if d.Severity >= SevError {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any diagnostic in ds is an error.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity >= SevError {
			return true
		}
	}
	return false
}
