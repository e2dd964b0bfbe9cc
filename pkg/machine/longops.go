package machine

import "pmach/pkg/pcode"

// 32-bit integers live on the stack as two words, low word first.
// longCall handles both OpLongop8 (no argument) and OpLongop24 sub-ops
// (arg carries the 16-bit immediate).

func (m *Machine) longCall(sub byte, arg uint16) stepResult {
	switch sub {
	case pcode.LAdd, pcode.LSub, pcode.LMul, pcode.LDiv, pcode.LMod,
		pcode.LShl, pcode.LShr:
		b, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		a, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		var r uint32
		switch sub {
		case pcode.LAdd:
			r = uint32(int32(a) + int32(b))
		case pcode.LSub:
			r = uint32(int32(a) - int32(b))
		case pcode.LMul:
			r = uint32(int32(a) * int32(b))
		case pcode.LDiv:
			if b == 0 {
				return fail(DivZero)
			}
			r = uint32(int32(a) / int32(b))
		case pcode.LMod:
			if b == 0 {
				return fail(DivZero)
			}
			r = uint32(int32(a) % int32(b))
		case pcode.LShl:
			r = a << (b & 31)
		case pcode.LShr:
			r = a >> (b & 31)
		}
		if c := m.push32(r); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LNeg, pcode.LAbs:
		a, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		v := int32(a)
		if sub == pcode.LNeg || v < 0 {
			v = -v
		}
		if c := m.push32(uint32(v)); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LEq, pcode.LNe, pcode.LLt, pcode.LLe, pcode.LGt, pcode.LGe:
		b, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		a, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		as, bs := int32(a), int32(b)
		var r bool
		switch sub {
		case pcode.LEq:
			r = as == bs
		case pcode.LNe:
			r = as != bs
		case pcode.LLt:
			r = as < bs
		case pcode.LLe:
			r = as <= bs
		case pcode.LGt:
			r = as > bs
		case pcode.LGe:
			r = as >= bs
		}
		if c := m.pushBool(r); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LLtU:
		// The historical implementation compared a half-built
		// temporary here; this one compares the operands.
		b, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		a, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		if c := m.pushBool(a < b); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LExt:
		w, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.push32(uint32(int32(int16(w)))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LCut:
		v, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(v)); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LLit:
		if c := m.push32(uint32(int32(int16(arg)))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.LAddImm:
		a, c := m.pop32()
		if c != NoError {
			return fail(c)
		}
		r := uint32(int32(a) + int32(int16(arg)))
		if c := m.push32(r); c != NoError {
			return fail(c)
		}
		return next()
	}
	return fail(IllegalOpcode)
}
