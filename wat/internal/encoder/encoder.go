package encoder

import (
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Encode produces the binary module. Sections are emitted in the order the
// binary format requires; empty sections are omitted. A name section
// carrying the module name and function names is appended last.
func Encode(m *ast.Module) []byte {
	buf := &Buffer{}
	buf.WriteBytes(header)

	if len(m.Types) > 0 {
		encodeTypeSection(buf, m)
	}
	if len(m.Imports) > 0 {
		encodeImportSection(buf, m)
	}
	if len(m.Funcs) > 0 {
		encodeFuncSection(buf, m)
	}
	if len(m.Memories) > 0 {
		encodeMemorySection(buf, m)
	}
	if len(m.Globals) > 0 {
		encodeGlobalSection(buf, m)
	}
	if len(m.Exports) > 0 {
		encodeExportSection(buf, m)
	}
	if m.Start != nil {
		sec := &Buffer{}
		sec.WriteU32(*m.Start)
		writeSection(buf, ast.SectionStart, sec)
	}
	if len(m.Funcs) > 0 {
		encodeCodeSection(buf, m)
	}
	if len(m.Data) > 0 {
		encodeDataSection(buf, m)
	}
	if m.Name != "" || len(m.FuncNames) > 0 {
		encodeNameSection(buf, m)
	}
	return buf.Bytes
}
