package machine

import (
	"os"

	"pmach/pkg/pcode"
)

// syscall routes a library sub-function to the file I/O, string, or
// OS group by its fixed numeric range.
func (m *Machine) syscall(sub byte) stepResult {
	switch {
	case sub >= 0x01 && sub <= 0x2b:
		return m.fileCall(sub)
	case sub >= 0x40 && sub <= 0x4f:
		return m.strCall(sub)
	case sub >= 0x60 && sub <= 0x6f:
		return m.osCall(sub)
	}
	return fail(IllegalOpcode)
}

func (m *Machine) strCall(sub byte) stepResult {
	switch sub {
	case pcode.SInit, pcode.STmp:
		size, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		d, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if sub == pcode.SInit {
			c = m.strInit(d, int(size))
		} else {
			c = m.strTmp(d, int(size))
		}
		if c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SConsume:
		d, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.consumeString(d); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SCopy, pcode.SConcat, pcode.SDup:
		src, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		switch sub {
		case pcode.SCopy:
			c = m.strCopy(dst, src)
		case pcode.SConcat:
			c = m.strConcat(dst, src)
		case pcode.SDup:
			c = m.strDup(dst, src)
		}
		if c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SCompare:
		b, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		a, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		r, c := m.strCompare(a, b)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(r)); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SSubstr:
		count, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		pos, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		src, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.strSubstr(dst, src, int(int16(pos)), int(int16(count))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SInsert:
		pos, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		src, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.strInsert(dst, src, int(int16(pos))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SDelete:
		count, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		pos, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.strDelete(dst, int(int16(pos)), int(int16(count))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SFill:
		count, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		ch, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.strFill(dst, byte(ch), int(int16(count))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SItoa:
		width, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.strItoa(dst, int16(v), int(int16(width))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SAtoi:
		src, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		v, c := m.strAtoi(src)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(v)); c != NoError {
			return fail(c)
		}
		return next()
	}
	return fail(IllegalOpcode)
}

func (m *Machine) osCall(sub byte) stepResult {
	switch sub {
	case pcode.OSExit:
		code, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		m.exitCode = int(int16(code))
		return halt()

	case pcode.OSNew:
		size, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		ptr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		// 0 means the allocation failed; the program checks.
		off := m.alloc(int(size))
		if c := m.mem.setWord(ptr, off); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OSDispose:
		ptr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		p, c := m.mem.word(ptr)
		if c != NoError {
			return fail(c)
		}
		if c := m.free(p); c != NoError {
			return fail(c)
		}
		if c := m.mem.setWord(ptr, 0); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OSGetenv:
		nameDesc, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		name, c := m.takeStringValue(nameDesc)
		if c != NoError {
			return fail(c)
		}
		if c := m.setStringValue(dst, os.Getenv(name)); c != NoError {
			return fail(c)
		}
		return next()
	}
	return fail(IllegalOpcode)
}
