package pcode

// Builder assembles an instruction stream. The linker side uses it to
// emit code; tests use it to write small programs by hand.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PC returns the offset the next instruction will be emitted at.
func (b *Builder) PC() uint16 {
	return uint16(len(b.buf))
}

// Op emits a no-argument instruction.
func (b *Builder) Op(op byte) *Builder {
	b.buf = append(b.buf, op)
	return b
}

// Op8 emits an instruction with an 8-bit immediate.
func (b *Builder) Op8(op byte, small uint8) *Builder {
	b.buf = append(b.buf, op, small)
	return b
}

// Op16 emits an instruction with a 16-bit immediate.
func (b *Builder) Op16(op byte, wide uint16) *Builder {
	b.buf = append(b.buf, op, byte(wide), byte(wide>>8))
	return b
}

// Op24 emits an instruction with both immediates.
func (b *Builder) Op24(op byte, small uint8, wide uint16) *Builder {
	b.buf = append(b.buf, op, small, byte(wide), byte(wide>>8))
	return b
}

// Patch16 rewrites the 16-bit immediate of the instruction at pc,
// for back-patching forward branches.
func (b *Builder) Patch16(pc uint16, wide uint16) {
	at := int(pc) + 1
	if b.buf[pc]&ArgSmall != 0 {
		at++
	}
	b.buf[at] = byte(wide)
	b.buf[at+1] = byte(wide >> 8)
}

// Bytes returns the assembled stream.
func (b *Builder) Bytes() []byte {
	return b.buf
}
