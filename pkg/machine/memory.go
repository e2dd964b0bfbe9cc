package machine

// mem is the data-space accessor: one flat byte arena addressed by
// 16-bit offsets, with the bounds check done here once instead of at
// every opcode handler. Words are little-endian.
type mem struct {
	buf []byte
}

// WordSize is the machine word size in bytes.
const WordSize = 2

func newMem(size int) mem {
	return mem{buf: make([]byte, size)}
}

func (m *mem) size() int {
	return len(m.buf)
}

func (m *mem) byteAt(off uint16) (byte, Code) {
	if int(off) >= len(m.buf) {
		return 0, MemFault
	}
	return m.buf[off], NoError
}

func (m *mem) setByte(off uint16, v byte) Code {
	if int(off) >= len(m.buf) {
		return MemFault
	}
	m.buf[off] = v
	return NoError
}

func (m *mem) word(off uint16) (uint16, Code) {
	if int(off)+1 >= len(m.buf) {
		return 0, MemFault
	}
	return uint16(m.buf[off]) | uint16(m.buf[off+1])<<8, NoError
}

func (m *mem) setWord(off uint16, v uint16) Code {
	if int(off)+1 >= len(m.buf) {
		return MemFault
	}
	m.buf[off] = byte(v)
	m.buf[off+1] = byte(v >> 8)
	return NoError
}

func (m *mem) long(off uint16) (uint32, Code) {
	lo, c := m.word(off)
	if c != NoError {
		return 0, c
	}
	hi, c := m.word(off + WordSize)
	if c != NoError {
		return 0, c
	}
	return uint32(lo) | uint32(hi)<<16, NoError
}

func (m *mem) setLong(off uint16, v uint32) Code {
	if c := m.setWord(off, uint16(v)); c != NoError {
		return c
	}
	return m.setWord(off+WordSize, uint16(v>>16))
}

// bytes returns the n-byte window at off, for block reads and writes.
func (m *mem) bytes(off uint16, n int) ([]byte, Code) {
	if n < 0 || int(off)+n > len(m.buf) {
		return nil, MemFault
	}
	return m.buf[off : int(off)+n], NoError
}

// copyBytes moves n bytes inside the arena; the ranges may overlap.
func (m *mem) copyBytes(dst, src uint16, n int) Code {
	if n < 0 || int(dst)+n > len(m.buf) || int(src)+n > len(m.buf) {
		return MemFault
	}
	copy(m.buf[dst:int(dst)+n], m.buf[src:int(src)+n])
	return NoError
}

func (m *mem) fill(off uint16, n int, v byte) Code {
	w, c := m.bytes(off, n)
	if c != NoError {
		return c
	}
	for i := range w {
		w[i] = v
	}
	return NoError
}

func (m *mem) zero() {
	for i := range m.buf {
		m.buf[i] = 0
	}
}
