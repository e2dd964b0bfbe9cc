// Package pcode defines the P-code wire format: the opcode space, the
// secondary sub-opcode spaces, and the syscall numeric ABI baked into
// compiled programs. These values are fixed; renumbering them breaks
// every object file ever produced.
package pcode

// The two high bits of an opcode select its argument format.
const (
	ArgWide  = 0x80 // a 16-bit little-endian immediate follows
	ArgSmall = 0x40 // an 8-bit immediate follows (before the wide one)
)

// Width returns the encoded byte width of an instruction starting with op.
func Width(op byte) int {
	w := 1
	if op&ArgSmall != 0 {
		w++
	}
	if op&ArgWide != 0 {
		w += 2
	}
	return w
}

// No-argument opcodes (1 byte).
const (
	OpNop byte = 0x00

	OpAdd byte = 0x01
	OpSub byte = 0x02
	OpMul byte = 0x03
	OpDiv byte = 0x04
	OpMod byte = 0x05
	OpNeg byte = 0x06

	OpAnd byte = 0x07
	OpOr  byte = 0x08
	OpXor byte = 0x09
	OpNot byte = 0x0a
	OpShl byte = 0x0b
	OpShr byte = 0x0c

	OpEq byte = 0x0d
	OpNe byte = 0x0e
	OpLt byte = 0x0f
	OpLe byte = 0x10
	OpGt byte = 0x11
	OpGe byte = 0x12

	OpLtU byte = 0x13
	OpLeU byte = 0x14
	OpGtU byte = 0x15
	OpGeU byte = 0x16

	OpDup  byte = 0x17
	OpSwap byte = 0x18
	OpDrop byte = 0x19

	OpLdw byte = 0x1a
	OpStw byte = 0x1b
	OpLdb byte = 0x1c
	OpStb byte = 0x1d

	OpRet byte = 0x1e
	OpEnd byte = 0x1f
)

// Opcodes with an 8-bit immediate (2 bytes).
const (
	OpLit8 byte = 0x40 // push immediate, sign-extended
	OpInct byte = 0x41 // sp += imm words

	OpFloat   byte = 0x42 // imm selects a float sub-op
	OpLongop8 byte = 0x43 // imm selects a long sub-op
	OpSetop   byte = 0x44 // imm selects a set sub-op
	OpSyscall byte = 0x45 // imm selects a library sub-function
)

// Opcodes with a 16-bit immediate (3 bytes).
const (
	OpLit16 byte = 0x80
	OpJmp   byte = 0x81
	OpJpf   byte = 0x82 // pop; branch when zero
	OpJpt   byte = 0x83 // pop; branch when nonzero
	OpEnt   byte = 0x84 // allocate imm bytes of locals

	OpLdg byte = 0x85 // push word at absolute data offset
	OpStg byte = 0x86 // pop word to absolute data offset
	OpLag byte = 0x87 // push absolute data offset

	OpLdr byte = 0x88 // push word at rop+imm
	OpLar byte = 0x89 // push rop+imm

	OpIxa byte = 0x8a // pop index, pop base; push base + index*imm
	OpMov byte = 0x8b // pop src, pop dst; copy imm bytes
)

// Opcodes with both immediates (4 bytes): 8-bit first, then 16-bit.
const (
	OpCall byte = 0xc0 // small = target level, wide = target pc
	OpLod  byte = 0xc1 // small = level delta, wide = frame offset; push word
	OpStro byte = 0xc2 // small = level delta, wide = frame offset; pop word
	OpLda  byte = 0xc3 // small = level delta, wide = frame offset; push address

	OpLongop24 byte = 0xc4 // small selects a long sub-op, wide is its argument
)

var mnemonics = map[byte]string{
	OpNop: "nop",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod", OpNeg: "neg",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpNot: "not", OpShl: "shl", OpShr: "shr",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpLtU: "ltu", OpLeU: "leu", OpGtU: "gtu", OpGeU: "geu",
	OpDup: "dup", OpSwap: "swap", OpDrop: "drop",
	OpLdw: "ldw", OpStw: "stw", OpLdb: "ldb", OpStb: "stb",
	OpRet: "ret", OpEnd: "end",
	OpLit8: "lit8", OpInct: "inct",
	OpFloat: "float", OpLongop8: "long", OpSetop: "set", OpSyscall: "sys",
	OpLit16: "lit16", OpJmp: "jmp", OpJpf: "jpf", OpJpt: "jpt", OpEnt: "ent",
	OpLdg: "ldg", OpStg: "stg", OpLag: "lag", OpLdr: "ldr", OpLar: "lar",
	OpIxa: "ixa", OpMov: "mov",
	OpCall: "call", OpLod: "lod", OpStro: "str", OpLda: "lda", OpLongop24: "long24",
}

// Mnemonic returns the assembler name for an opcode, or "" when unknown.
func Mnemonic(op byte) string {
	return mnemonics[op]
}
