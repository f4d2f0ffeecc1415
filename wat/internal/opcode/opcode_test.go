package opcode

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name  string
		code  byte
		imm   ImmKind
		align uint32
	}{
		{"unreachable", 0x00, ImmNone, 0},
		{"call", 0x10, ImmFunc, 0},
		{"local.tee", 0x22, ImmLocal, 0},
		{"i32.load", 0x28, ImmMemarg, 2},
		{"i64.store32", 0x3E, ImmMemarg, 2},
		{"i32.load8_u", 0x2D, ImmMemarg, 0},
		{"i32.ge_u", 0x4F, ImmNone, 0},
		{"i64.eqz", 0x50, ImmNone, 0},
		{"f64.ge", 0x66, ImmNone, 0},
		{"i32.rotr", 0x78, ImmNone, 0},
		{"i64.rotr", 0x8A, ImmNone, 0},
		{"f32.copysign", 0x98, ImmNone, 0},
		{"f64.copysign", 0xA6, ImmNone, 0},
		{"f64.reinterpret_i64", 0xBF, ImmNone, 0},
		{"i64.extend32_s", 0xC4, ImmNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := Lookup(tt.name)
			if !ok {
				t.Fatalf("%s not found", tt.name)
			}
			if info.Code != tt.code || info.Imm != tt.imm || info.Align != tt.align {
				t.Errorf("got %+v", info)
			}
		})
	}
}

func TestPrefixed(t *testing.T) {
	info, ok := Lookup("i64.trunc_sat_f64_u")
	if !ok || !info.Prefix || info.Sub != 7 || info.Code != PrefixMisc {
		t.Errorf("trunc_sat: %+v", info)
	}
	info, _ = Lookup("memory.copy")
	if info.Sub != 10 || info.Imm != ImmMemory2 {
		t.Errorf("memory.copy: %+v", info)
	}
	if _, ok := Lookup("v128.load"); ok {
		t.Error("unsupported instruction found")
	}
}
