package encoder

import (
	"encoding/binary"
	"math"

	"fortio.org/safecast"
)

type Buffer struct {
	Bytes []byte
}

func (b *Buffer) AppendByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.Bytes = append(b.Bytes, v...)
}

// WriteU32 writes unsigned LEB128.
func (b *Buffer) WriteU32(v uint32) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.AppendByte(c)
		if v == 0 {
			return
		}
	}
}

// WriteLen writes a vector or byte-string length. Lengths beyond the
// 32-bit range cannot be represented in a module and panic.
func (b *Buffer) WriteLen(n int) {
	b.WriteU32(safecast.MustConv[uint32](n))
}

// WriteI64 writes signed LEB128. i32 values use it too since the encoding
// of a sign-extended i32 is identical.
func (b *Buffer) WriteI64(v int64) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			b.AppendByte(c)
			return
		}
		b.AppendByte(c | 0x80)
	}
}

func (b *Buffer) WriteF32(v float32) {
	b.Bytes = binary.LittleEndian.AppendUint32(b.Bytes, math.Float32bits(v))
}

func (b *Buffer) WriteF64(v float64) {
	b.Bytes = binary.LittleEndian.AppendUint64(b.Bytes, math.Float64bits(v))
}

func (b *Buffer) WriteString(s string) {
	b.WriteLen(len(s))
	b.Bytes = append(b.Bytes, s...)
}

func (b *Buffer) WriteLimits(min uint32, max *uint32) {
	if max == nil {
		b.AppendByte(0x00)
		b.WriteU32(min)
		return
	}
	b.AppendByte(0x01)
	b.WriteU32(min)
	b.WriteU32(*max)
}
