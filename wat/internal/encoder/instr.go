package encoder

import (
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/opcode"
)

func EncodeInstr(buf *Buffer, ins ast.Instr) {
	buf.AppendByte(ins.Opcode)

	switch imm := ins.Imm.(type) {
	case nil:
	case uint32:
		buf.WriteU32(imm)
	case int32:
		buf.WriteI64(int64(imm))
	case int64:
		buf.WriteI64(imm)
	case float32:
		buf.WriteF32(imm)
	case float64:
		buf.WriteF64(imm)
	case ast.BlockType:
		if imm.TypeIdx >= 0 {
			buf.WriteI64(int64(imm.TypeIdx))
		} else {
			buf.AppendByte(imm.Simple)
		}
	case ast.Memarg:
		buf.WriteU32(imm.Align)
		buf.WriteU32(imm.Offset)
	case []ast.ValType:
		writeValTypes(buf, imm)
	case []uint32:
		if ins.Opcode == opcode.PrefixMisc {
			for _, v := range imm {
				buf.WriteU32(v)
			}
			return
		}
		// br_table: the last label is the default target.
		buf.WriteLen(len(imm) - 1)
		for _, v := range imm {
			buf.WriteU32(v)
		}
	}
}
