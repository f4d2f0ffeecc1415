package ast

import (
	"strings"

	"github.com/wippyai/wasm-scripthost/diag"
)

type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return "unknown"
}

func ParseValType(s string) (ValType, bool) {
	switch s {
	case "i32":
		return I32, true
	case "i64":
		return I64, true
	case "f32":
		return F32, true
	case "f64":
		return F64, true
	}
	return 0, false
}

// External kinds as encoded in import and export entries.
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Section ids.
const (
	SectionCustom byte = 0
	SectionType   byte = 1
	SectionImport byte = 2
	SectionFunc   byte = 3
	SectionMemory byte = 5
	SectionGlobal byte = 6
	SectionExport byte = 7
	SectionStart  byte = 8
	SectionCode   byte = 10
	SectionData   byte = 11
)

const (
	FuncTypeMarker byte = 0x60
	BlockEmpty     byte = 0x40
)

type Module struct {
	Start    *uint32
	Name     string
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Limits
	Globals  []Global
	Exports  []Export
	Data     []Data
	// FuncNames maps function index to its symbolic name without the '$'.
	FuncNames map[uint32]string
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(other FuncType) bool {
	return equalTypes(ft.Params, other.Params) && equalTypes(ft.Results, other.Results)
}

func equalTypes(a, b []ValType) bool {
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

func (ft FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range ft.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range ft.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

type Import struct {
	Mem     *Limits
	Module  string
	Name    string
	Pos     diag.Pos
	TypeIdx uint32
	Kind    byte
}

type Func struct {
	Locals  []ValType
	Code    []Instr
	TypeIdx uint32
}

type Limits struct {
	Max *uint32
	Min uint32
}

type Global struct {
	Init    Instr
	Type    ValType
	Mutable bool
}

type Export struct {
	Name string
	Idx  uint32
	Kind byte
}

type Data struct {
	Init   []byte
	Offset Instr
}

// Instr is one encoded instruction. Imm depends on the opcode:
// uint32 for indices, int32/int64/float32/float64 for constants,
// BlockType, Memarg, []uint32 for br_table and 0xFC-prefixed operands,
// []ValType for typed select.
type Instr struct {
	Imm    any
	Opcode byte
}

type Memarg struct {
	Align  uint32
	Offset uint32
}

// BlockType is either a single byte (empty or one value type) or an index
// into the type section when TypeIdx >= 0.
type BlockType struct {
	TypeIdx int32
	Simple  byte
}
