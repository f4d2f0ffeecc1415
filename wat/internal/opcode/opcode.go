package opcode

type ImmKind int

const (
	ImmNone    ImmKind = iota
	ImmLabel           // br, br_if
	ImmLabels          // br_table
	ImmFunc            // call
	ImmLocal           // local.get/set/tee
	ImmGlobal          // global.get/set
	ImmI32             // i32.const
	ImmI64             // i64.const
	ImmF32             // f32.const
	ImmF64             // f64.const
	ImmBlock           // block, loop, if
	ImmMemarg          // loads and stores
	ImmMemory          // memory.size, memory.grow, memory.fill
	ImmMemory2         // memory.copy
	ImmSelect          // select with optional result type
)

// Prefix for 0xFC-encoded instructions.
const PrefixMisc byte = 0xFC

const (
	Unreachable byte = 0x00
	Block       byte = 0x02
	Loop        byte = 0x03
	If          byte = 0x04
	Else        byte = 0x05
	End         byte = 0x0B
	Select      byte = 0x1B
	SelectTyped byte = 0x1C
	I32Const    byte = 0x41
	I64Const    byte = 0x42
	F32Const    byte = 0x43
	F64Const    byte = 0x44
	GlobalGet   byte = 0x23
)

type Info struct {
	Imm    ImmKind
	Sub    uint32 // sub-opcode when Code is PrefixMisc
	Align  uint32 // natural alignment exponent of memory accesses
	Code   byte
	Prefix bool
}

func Lookup(name string) (Info, bool) {
	info, ok := table[name]
	return info, ok
}

var table = map[string]Info{
	"unreachable": {Code: 0x00},
	"nop":         {Code: 0x01},
	"block":       {Code: Block, Imm: ImmBlock},
	"loop":        {Code: Loop, Imm: ImmBlock},
	"if":          {Code: If, Imm: ImmBlock},
	"br":          {Code: 0x0C, Imm: ImmLabel},
	"br_if":       {Code: 0x0D, Imm: ImmLabel},
	"br_table":    {Code: 0x0E, Imm: ImmLabels},
	"return":      {Code: 0x0F},
	"call":        {Code: 0x10, Imm: ImmFunc},
	"drop":        {Code: 0x1A},
	"select":      {Code: Select, Imm: ImmSelect},

	"local.get":  {Code: 0x20, Imm: ImmLocal},
	"local.set":  {Code: 0x21, Imm: ImmLocal},
	"local.tee":  {Code: 0x22, Imm: ImmLocal},
	"global.get": {Code: GlobalGet, Imm: ImmGlobal},
	"global.set": {Code: 0x24, Imm: ImmGlobal},

	"i32.const": {Code: I32Const, Imm: ImmI32},
	"i64.const": {Code: I64Const, Imm: ImmI64},
	"f32.const": {Code: F32Const, Imm: ImmF32},
	"f64.const": {Code: F64Const, Imm: ImmF64},

	"memory.size": {Code: 0x3F, Imm: ImmMemory},
	"memory.grow": {Code: 0x40, Imm: ImmMemory},
	"memory.copy": {Code: PrefixMisc, Prefix: true, Sub: 10, Imm: ImmMemory2},
	"memory.fill": {Code: PrefixMisc, Prefix: true, Sub: 11, Imm: ImmMemory},
}

type memOp struct {
	name  string
	align uint32
}

// Loads and stores occupy 0x28..0x3E in this order.
var memoryOps = []memOp{
	{"i32.load", 2}, {"i64.load", 3}, {"f32.load", 2}, {"f64.load", 3},
	{"i32.load8_s", 0}, {"i32.load8_u", 0}, {"i32.load16_s", 1}, {"i32.load16_u", 1},
	{"i64.load8_s", 0}, {"i64.load8_u", 0}, {"i64.load16_s", 1}, {"i64.load16_u", 1},
	{"i64.load32_s", 2}, {"i64.load32_u", 2},
	{"i32.store", 2}, {"i64.store", 3}, {"f32.store", 2}, {"f64.store", 3},
	{"i32.store8", 0}, {"i32.store16", 1},
	{"i64.store8", 0}, {"i64.store16", 1}, {"i64.store32", 2},
}

// Numeric instructions without immediates, each group contiguous from its
// first opcode.
var numericOps = []struct {
	names []string
	first byte
}{
	{first: 0x45, names: []string{"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u", "i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u"}},
	{first: 0x50, names: []string{"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u", "i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u"}},
	{first: 0x5B, names: []string{"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge"}},
	{first: 0x61, names: []string{"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge"}},
	{first: 0x67, names: []string{"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul", "i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor", "i32.shl", "i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr"}},
	{first: 0x79, names: []string{"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul", "i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor", "i64.shl", "i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr"}},
	{first: 0x8B, names: []string{"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt", "f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign"}},
	{first: 0x99, names: []string{"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt", "f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign"}},
	{first: 0xA7, names: []string{
		"i32.wrap_i64", "i32.trunc_f32_s", "i32.trunc_f32_u", "i32.trunc_f64_s", "i32.trunc_f64_u",
		"i64.extend_i32_s", "i64.extend_i32_u", "i64.trunc_f32_s", "i64.trunc_f32_u", "i64.trunc_f64_s", "i64.trunc_f64_u",
		"f32.convert_i32_s", "f32.convert_i32_u", "f32.convert_i64_s", "f32.convert_i64_u", "f32.demote_f64",
		"f64.convert_i32_s", "f64.convert_i32_u", "f64.convert_i64_s", "f64.convert_i64_u", "f64.promote_f32",
		"i32.reinterpret_f32", "i64.reinterpret_f64", "f32.reinterpret_i32", "f64.reinterpret_i64",
		"i32.extend8_s", "i32.extend16_s", "i64.extend8_s", "i64.extend16_s", "i64.extend32_s",
	}},
}

var saturatingOps = []string{
	"i32.trunc_sat_f32_s", "i32.trunc_sat_f32_u", "i32.trunc_sat_f64_s", "i32.trunc_sat_f64_u",
	"i64.trunc_sat_f32_s", "i64.trunc_sat_f32_u", "i64.trunc_sat_f64_s", "i64.trunc_sat_f64_u",
}

func init() {
	for i, op := range memoryOps {
		table[op.name] = Info{Code: 0x28 + byte(i), Imm: ImmMemarg, Align: op.align}
	}
	for _, group := range numericOps {
		for i, name := range group.names {
			table[name] = Info{Code: group.first + byte(i)}
		}
	}
	for i, name := range saturatingOps {
		table[name] = Info{Code: PrefixMisc, Prefix: true, Sub: uint32(i)}
	}
}
