package encoder

import (
	"sort"

	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
)

func writeSection(buf *Buffer, id byte, content *Buffer) {
	buf.AppendByte(id)
	buf.WriteLen(len(content.Bytes))
	buf.WriteBytes(content.Bytes)
}

func writeValTypes(buf *Buffer, types []ast.ValType) {
	buf.WriteLen(len(types))
	for _, t := range types {
		buf.AppendByte(byte(t))
	}
}

func encodeTypeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Types))
	for _, ft := range m.Types {
		sec.AppendByte(ast.FuncTypeMarker)
		writeValTypes(sec, ft.Params)
		writeValTypes(sec, ft.Results)
	}
	writeSection(buf, ast.SectionType, sec)
}

func encodeImportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Imports))
	for _, imp := range m.Imports {
		sec.WriteString(imp.Module)
		sec.WriteString(imp.Name)
		sec.AppendByte(imp.Kind)
		switch imp.Kind {
		case ast.KindFunc:
			sec.WriteU32(imp.TypeIdx)
		case ast.KindMemory:
			sec.WriteLimits(imp.Mem.Min, imp.Mem.Max)
		}
	}
	writeSection(buf, ast.SectionImport, sec)
}

func encodeFuncSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Funcs))
	for _, f := range m.Funcs {
		sec.WriteU32(f.TypeIdx)
	}
	writeSection(buf, ast.SectionFunc, sec)
}

func encodeMemorySection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Memories))
	for _, mem := range m.Memories {
		sec.WriteLimits(mem.Min, mem.Max)
	}
	writeSection(buf, ast.SectionMemory, sec)
}

func encodeGlobalSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Globals))
	for _, g := range m.Globals {
		sec.AppendByte(byte(g.Type))
		if g.Mutable {
			sec.AppendByte(0x01)
		} else {
			sec.AppendByte(0x00)
		}
		EncodeInstr(sec, g.Init)
		sec.AppendByte(0x0B)
	}
	writeSection(buf, ast.SectionGlobal, sec)
}

func encodeExportSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Exports))
	for _, e := range m.Exports {
		sec.WriteString(e.Name)
		sec.AppendByte(e.Kind)
		sec.WriteU32(e.Idx)
	}
	writeSection(buf, ast.SectionExport, sec)
}

// encodeLocals groups consecutive locals of the same type into runs.
func encodeLocals(buf *Buffer, locals []ast.ValType) {
	type run struct {
		count uint32
		typ   ast.ValType
	}
	var runs []run
	for _, l := range locals {
		if n := len(runs); n > 0 && runs[n-1].typ == l {
			runs[n-1].count++
			continue
		}
		runs = append(runs, run{count: 1, typ: l})
	}
	buf.WriteLen(len(runs))
	for _, r := range runs {
		buf.WriteU32(r.count)
		buf.AppendByte(byte(r.typ))
	}
}

func encodeCodeSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Funcs))
	for _, f := range m.Funcs {
		body := &Buffer{}
		encodeLocals(body, f.Locals)
		for _, ins := range f.Code {
			EncodeInstr(body, ins)
		}
		body.AppendByte(0x0B)
		sec.WriteLen(len(body.Bytes))
		sec.WriteBytes(body.Bytes)
	}
	writeSection(buf, ast.SectionCode, sec)
}

func encodeDataSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteLen(len(m.Data))
	for _, d := range m.Data {
		sec.WriteU32(0) // active, memory 0
		EncodeInstr(sec, d.Offset)
		sec.AppendByte(0x0B)
		sec.WriteLen(len(d.Init))
		sec.WriteBytes(d.Init)
	}
	writeSection(buf, ast.SectionData, sec)
}

const (
	nameSubModule   byte = 0
	nameSubFunction byte = 1
)

func encodeNameSection(buf *Buffer, m *ast.Module) {
	sec := &Buffer{}
	sec.WriteString("name")

	if m.Name != "" {
		sub := &Buffer{}
		sub.WriteString(m.Name)
		writeSection(sec, nameSubModule, sub)
	}

	if len(m.FuncNames) > 0 {
		indices := make([]uint32, 0, len(m.FuncNames))
		for idx := range m.FuncNames {
			indices = append(indices, idx)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

		sub := &Buffer{}
		sub.WriteLen(len(indices))
		for _, idx := range indices {
			sub.WriteU32(idx)
			sub.WriteString(m.FuncNames[idx])
		}
		writeSection(sec, nameSubFunction, sub)
	}

	writeSection(buf, ast.SectionCustom, sec)
}
