package pcode

import (
	"errors"
	"fmt"
)

var ErrTruncated = errors.New("pcode: instruction truncated")

// Instr is one decoded instruction.
type Instr struct {
	Op    byte
	Small uint8  // 8-bit immediate, when the format carries one
	Wide  uint16 // 16-bit immediate, when the format carries one
	Width int    // encoded size in bytes
}

// Decode reads the instruction starting at pc. It only checks that the
// encoding fits inside code; opcode validity is the dispatcher's business.
func Decode(code []byte, pc int) (Instr, error) {
	if pc < 0 || pc >= len(code) {
		return Instr{}, ErrTruncated
	}

	op := code[pc]
	in := Instr{Op: op, Width: Width(op)}
	if pc+in.Width > len(code) {
		return Instr{}, ErrTruncated
	}

	p := pc + 1
	if op&ArgSmall != 0 {
		in.Small = code[p]
		p++
	}
	if op&ArgWide != 0 {
		in.Wide = uint16(code[p]) | uint16(code[p+1])<<8
	}

	return in, nil
}

// String renders the instruction in assembler-listing form.
func (in Instr) String() string {
	name := Mnemonic(in.Op)
	if name == "" {
		name = fmt.Sprintf("db 0x%02x", in.Op)
	}

	switch {
	case in.Op&ArgSmall != 0 && in.Op&ArgWide != 0:
		return fmt.Sprintf("%s %d, %d", name, in.Small, in.Wide)
	case in.Op&ArgSmall != 0:
		return fmt.Sprintf("%s %d", name, in.Small)
	case in.Op&ArgWide != 0:
		return fmt.Sprintf("%s %d", name, in.Wide)
	default:
		return name
	}
}
