package machine

// Activation records are not objects; they are a fixed four-word mark
// at the base of each frame, directly below the frame's locals:
//
//	fp+0  static link   (lexically enclosing frame)
//	fp+2  dynamic link  (caller's frame)
//	fp+4  return address
//	fp+6  level word    (caller lsp << 8 | this frame's level)
//
// Locals live at fp+frameMark and up; parameters and the result slot
// sit below fp at negative offsets.
const (
	frameMark = 4 * WordSize

	levelMask = 0x00ff
	lspShift  = 8
)

// maxStaticChain bounds the static-link walk. The level byte cannot
// leave [0,255], so a longer chain means corrupted frame data.
const maxStaticChain = 256

// resetFrame plants the level-0 base frame at the bottom of the stack
// region, with both links pointing at itself.
func (m *Machine) resetFrame() {
	m.fp = m.spb
	m.mem.setWord(m.spb, m.spb)            // static link
	m.mem.setWord(m.spb+WordSize, m.spb)   // dynamic link
	m.mem.setWord(m.spb+2*WordSize, 0)     // return address
	m.mem.setWord(m.spb+3*WordSize, 0)     // level word
	m.sp = m.spb + frameMark
}

// findParent walks the static chain from the caller's frame looking
// for the frame at the callee's lexical parent level.
func (m *Machine) findParent(level uint8) (uint16, Code) {
	f := m.fp
	for i := 0; i < maxStaticChain; i++ {
		w, c := m.mem.word(f + 3*WordSize)
		if c != NoError {
			return 0, c
		}
		lev := w & levelMask
		if lev == uint16(level)-1 {
			return f, NoError
		}
		if lev == 0 {
			return 0, NestingLevel
		}
		f, c = m.mem.word(f)
		if c != NoError {
			return 0, c
		}
	}
	return 0, NestingLevel
}

// call builds a frame for a procedure at the given lexical level and
// transfers control. retAddr is the instruction after the call.
func (m *Machine) call(level uint8, target, retAddr uint16) stepResult {
	if level == 0 {
		return fail(NestingLevel)
	}
	parent, c := m.findParent(level)
	if c != NoError {
		return fail(c)
	}

	base := m.sp
	if c := m.push(parent); c != NoError {
		return fail(c)
	}
	if c := m.push(m.fp); c != NoError {
		return fail(c)
	}
	if c := m.push(retAddr); c != NoError {
		return fail(c)
	}
	if c := m.push(uint16(m.lsp)<<lspShift | uint16(level)); c != NoError {
		return fail(c)
	}

	m.fp = base
	m.lsp = int(level)
	return jump(target)
}

// ret tears the current frame down. sp drops back to the frame base,
// exactly where it was before the call pushed the mark. Returning from
// the base frame ends the program.
func (m *Machine) ret() stepResult {
	if m.fp == m.spb {
		return halt()
	}
	if m.fp < m.spb || m.fp+frameMark > m.sp {
		return fail(StackUnderflow)
	}
	lw, c := m.mem.word(m.fp + 3*WordSize)
	if c != NoError {
		return fail(c)
	}
	retAddr, c := m.mem.word(m.fp + 2*WordSize)
	if c != NoError {
		return fail(c)
	}
	dyn, c := m.mem.word(m.fp + WordSize)
	if c != NoError {
		return fail(c)
	}

	m.sp = m.fp
	m.lsp = int(lw >> lspShift)
	m.fp = dyn
	return jump(retAddr)
}

// resolveAddress turns a (level delta, frame offset) pair into a data
// offset. Non-negative offsets address locals and are biased past the
// mark; negative offsets address parameters and the result slot.
func (m *Machine) resolveAddress(delta uint8, offset uint16) (uint16, Code) {
	base := m.fp
	for i := uint8(0); i < delta; i++ {
		var c Code
		base, c = m.mem.word(base)
		if c != NoError {
			return 0, c
		}
	}
	if int16(offset) >= 0 {
		return base + frameMark + offset, NoError
	}
	return base + offset, NoError
}
