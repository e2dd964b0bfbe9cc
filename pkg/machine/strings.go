package machine

import "fmt"

// Variable-length strings are a 3-word descriptor plus a buffer:
//
//	d+0  current size in bytes
//	d+2  data offset
//	d+4  allocation size | strHeapBit
//
// Buffers come from one of two places. Persistent strings bump csp and
// are reclaimed only wholesale; heap temporaries carry strHeapBit and
// must be consumed exactly once by whichever operation uses their
// value. Every operation below that takes a string input consumes it
// when it is a temporary. That rule is the engine's central protocol.
const (
	strHeapBit = 0x8000
	strCapMask = 0x7fff

	// Capacity given to every duplicate, matching the classic string
	// default length.
	defaultStrCap = 80
)

type strDesc struct {
	size uint16
	data uint16
	cap  uint16
	temp bool
}

func align16(n int) int {
	if n < 1 {
		n = 1
	}
	return (n + allocUnit - 1) / allocUnit * allocUnit
}

func (m *Machine) readDesc(d uint16) (strDesc, Code) {
	size, c := m.mem.word(d)
	if c != NoError {
		return strDesc{}, c
	}
	data, c := m.mem.word(d + WordSize)
	if c != NoError {
		return strDesc{}, c
	}
	al, c := m.mem.word(d + 2*WordSize)
	if c != NoError {
		return strDesc{}, c
	}
	return strDesc{size: size, data: data, cap: al & strCapMask, temp: al&strHeapBit != 0}, NoError
}

func (m *Machine) writeDesc(d uint16, s strDesc) Code {
	if c := m.mem.setWord(d, s.size); c != NoError {
		return c
	}
	if c := m.mem.setWord(d+WordSize, s.data); c != NoError {
		return c
	}
	al := s.cap & strCapMask
	if s.temp {
		al |= strHeapBit
	}
	return m.mem.setWord(d+2*WordSize, al)
}

// strInit binds d to a fresh string-stack buffer of at least size bytes.
func (m *Machine) strInit(d uint16, size int) Code {
	al := align16(size)
	if int(m.csp)+al > m.strSize {
		return StringSpace
	}
	data := m.csp
	m.csp += uint16(al)
	return m.writeDesc(d, strDesc{data: data, cap: uint16(al)})
}

// strTmp binds d to a heap temporary of at least size bytes.
func (m *Machine) strTmp(d uint16, size int) Code {
	al := align16(size)
	off := m.alloc(al)
	if off == 0 {
		return StringSpace
	}
	return m.writeDesc(d, strDesc{data: off, cap: uint16(al), temp: true})
}

// consumeString releases d's buffer when it is a heap temporary and
// kills the descriptor either way.
func (m *Machine) consumeString(d uint16) Code {
	s, c := m.readDesc(d)
	if c != NoError {
		return c
	}
	if s.temp {
		if c := m.free(s.data); c != NoError {
			return c
		}
	}
	return m.writeDesc(d, strDesc{})
}

// strCopy replaces dst's value with src's, clipped to dst's capacity.
// Truncation is silent; that is the documented policy.
func (m *Machine) strCopy(dst, src uint16) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	ss, c := m.readDesc(src)
	if c != NoError {
		return c
	}

	n := int(ss.size)
	if n > int(ds.cap) {
		n = int(ds.cap)
	}
	if c := m.mem.copyBytes(ds.data, ss.data, n); c != NoError {
		return c
	}
	ds.size = uint16(n)
	if c := m.writeDesc(dst, ds); c != NoError {
		return c
	}
	return m.consumeString(src)
}

// strConcat appends src to dst, silently clipping the appended part.
func (m *Machine) strConcat(dst, src uint16) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	ss, c := m.readDesc(src)
	if c != NoError {
		return c
	}

	n := int(ss.size)
	if room := int(ds.cap) - int(ds.size); n > room {
		n = room
	}
	if n > 0 {
		if c := m.mem.copyBytes(ds.data+ds.size, ss.data, n); c != NoError {
			return c
		}
		ds.size += uint16(n)
	}
	if c := m.writeDesc(dst, ds); c != NoError {
		return c
	}
	return m.consumeString(src)
}

// strDup makes dst a heap temporary holding a copy of src. The source
// is left alone; the copy is what gets consumed downstream.
func (m *Machine) strDup(dst, src uint16) Code {
	ss, c := m.readDesc(src)
	if c != NoError {
		return c
	}
	if c := m.strTmp(dst, defaultStrCap); c != NoError {
		return c
	}
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}

	n := int(ss.size)
	if n > int(ds.cap) {
		n = int(ds.cap)
	}
	if c := m.mem.copyBytes(ds.data, ss.data, n); c != NoError {
		return c
	}
	ds.size = uint16(n)
	return m.writeDesc(dst, ds)
}

// strCompare orders a against b: -1, 0 or 1. A shorter string sharing
// the longer one's prefix orders first. Both temporaries are consumed.
func (m *Machine) strCompare(a, b uint16) (int16, Code) {
	as, c := m.readDesc(a)
	if c != NoError {
		return 0, c
	}
	bs, c := m.readDesc(b)
	if c != NoError {
		return 0, c
	}

	ab, c := m.mem.bytes(as.data, int(as.size))
	if c != NoError {
		return 0, c
	}
	bb, c := m.mem.bytes(bs.data, int(bs.size))
	if c != NoError {
		return 0, c
	}

	var r int16
	n := len(ab)
	if len(bb) < n {
		n = len(bb)
	}
	for i := 0; i < n; i++ {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				r = -1
			} else {
				r = 1
			}
			break
		}
	}
	if r == 0 {
		switch {
		case len(ab) < len(bb):
			r = -1
		case len(ab) > len(bb):
			r = 1
		}
	}

	if c := m.consumeString(a); c != NoError {
		return 0, c
	}
	return r, m.consumeString(b)
}

// strSubstr copies count bytes of src starting at 1-based pos into
// dst. Out-of-range positions clamp instead of erroring.
func (m *Machine) strSubstr(dst, src uint16, pos, count int) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	ss, c := m.readDesc(src)
	if c != NoError {
		return c
	}

	p := pos - 1
	if p < 0 {
		p = 0
	}
	if p > int(ss.size) {
		p = int(ss.size)
	}
	n := count
	if n < 0 {
		n = 0
	}
	if n > int(ss.size)-p {
		n = int(ss.size) - p
	}
	if n > int(ds.cap) {
		n = int(ds.cap)
	}

	if c := m.mem.copyBytes(ds.data, ss.data+uint16(p), n); c != NoError {
		return c
	}
	ds.size = uint16(n)
	if c := m.writeDesc(dst, ds); c != NoError {
		return c
	}
	return m.consumeString(src)
}

// strInsert splices src into dst at 1-based pos, clipping whatever no
// longer fits dst's capacity.
func (m *Machine) strInsert(dst, src uint16, pos int) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	ss, c := m.readDesc(src)
	if c != NoError {
		return c
	}

	p := pos - 1
	if p < 0 {
		p = 0
	}
	if p > int(ds.size) {
		p = int(ds.size)
	}

	ins := int(ss.size)
	newSize := int(ds.size) + ins
	if newSize > int(ds.cap) {
		newSize = int(ds.cap)
	}

	// Shift the tail right, then lay the insertion down; both moves
	// are clipped against capacity.
	tail := int(ds.size) - p
	tailDst := p + ins
	if keep := newSize - tailDst; keep > 0 {
		if keep > tail {
			keep = tail
		}
		if c := m.mem.copyBytes(ds.data+uint16(tailDst), ds.data+uint16(p), keep); c != NoError {
			return c
		}
	}
	if n := min(ins, int(ds.cap)-p); n > 0 {
		if c := m.mem.copyBytes(ds.data+uint16(p), ss.data, n); c != NoError {
			return c
		}
	}

	ds.size = uint16(newSize)
	if c := m.writeDesc(dst, ds); c != NoError {
		return c
	}
	return m.consumeString(src)
}

// strDelete removes count bytes of dst starting at 1-based pos.
func (m *Machine) strDelete(dst uint16, pos, count int) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}

	p := pos - 1
	if p < 0 {
		p = 0
	}
	if p > int(ds.size) {
		p = int(ds.size)
	}
	n := count
	if n < 0 {
		n = 0
	}
	if n > int(ds.size)-p {
		n = int(ds.size) - p
	}

	tail := int(ds.size) - p - n
	if tail > 0 {
		if c := m.mem.copyBytes(ds.data+uint16(p), ds.data+uint16(p+n), tail); c != NoError {
			return c
		}
	}
	ds.size -= uint16(n)
	return m.writeDesc(dst, ds)
}

// strFill sets dst to count copies of ch, bounded by capacity.
func (m *Machine) strFill(dst uint16, ch byte, count int) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	n := count
	if n < 0 {
		n = 0
	}
	if n > int(ds.cap) {
		n = int(ds.cap)
	}
	if c := m.mem.fill(ds.data, n, ch); c != NoError {
		return c
	}
	ds.size = uint16(n)
	return m.writeDesc(dst, ds)
}

// strItoa formats v into dst with a minimum field width.
func (m *Machine) strItoa(dst uint16, v int16, width int) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	s := fmt.Sprintf("%*d", width, v)
	n := len(s)
	if n > int(ds.cap) {
		n = int(ds.cap)
	}
	buf, c := m.mem.bytes(ds.data, n)
	if c != NoError {
		return c
	}
	copy(buf, s[:n])
	ds.size = uint16(n)
	return m.writeDesc(dst, ds)
}

// strAtoi parses src with the manual decimal scanner: leading blanks,
// an optional sign, then digits, saturating at the int16 bounds. The
// source temporary is consumed.
func (m *Machine) strAtoi(src uint16) (int16, Code) {
	ss, c := m.readDesc(src)
	if c != NoError {
		return 0, c
	}
	b, c := m.mem.bytes(ss.data, int(ss.size))
	if c != NoError {
		return 0, c
	}

	v := scanDecimal(b)
	return v, m.consumeString(src)
}

// setStringValue stores a host string into dst, clipped to capacity.
func (m *Machine) setStringValue(dst uint16, s string) Code {
	ds, c := m.readDesc(dst)
	if c != NoError {
		return c
	}
	n := len(s)
	if n > int(ds.cap) {
		n = int(ds.cap)
	}
	buf, c := m.mem.bytes(ds.data, n)
	if c != NoError {
		return c
	}
	copy(buf, s[:n])
	ds.size = uint16(n)
	return m.writeDesc(dst, ds)
}

// scanDecimal is the shared saturating int16 scanner used by the
// string library and by text-file integer reads.
func scanDecimal(b []byte) int16 {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}

	neg := false
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		neg = b[i] == '-'
		i++
	}

	var acc int32
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		acc = acc*10 + int32(b[i]-'0')
		if acc > 32768 {
			acc = 32768
		}
		i++
	}

	if neg {
		if acc > 32768 {
			acc = 32768
		}
		return int16(-acc)
	}
	if acc > 32767 {
		acc = 32767
	}
	return int16(acc)
}
