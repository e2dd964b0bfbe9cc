package machine

import (
	"math"

	"pmach/pkg/pcode"
)

// Reals are 32-bit IEEE floats, stacked as two words like longs.

func (m *Machine) popReal() (float32, Code) {
	bits, c := m.pop32()
	if c != NoError {
		return 0, c
	}
	return math.Float32frombits(bits), NoError
}

func (m *Machine) pushReal(v float32) Code {
	return m.push32(math.Float32bits(v))
}

func (m *Machine) floatCall(sub byte) stepResult {
	switch sub {
	case pcode.FAdd, pcode.FSub, pcode.FMul, pcode.FDiv:
		b, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		a, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		var r float32
		switch sub {
		case pcode.FAdd:
			r = a + b
		case pcode.FSub:
			r = a - b
		case pcode.FMul:
			r = a * b
		case pcode.FDiv:
			if b == 0 {
				return fail(DivZero)
			}
			r = a / b
		}
		if c := m.pushReal(r); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.FNeg, pcode.FAbs:
		a, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		if sub == pcode.FNeg {
			a = -a
		} else if a < 0 {
			a = -a
		}
		if c := m.pushReal(a); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.FEq, pcode.FNe, pcode.FLt, pcode.FLe, pcode.FGt, pcode.FGe:
		b, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		a, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		var r bool
		switch sub {
		case pcode.FEq:
			r = a == b
		case pcode.FNe:
			r = a != b
		case pcode.FLt:
			r = a < b
		case pcode.FLe:
			r = a <= b
		case pcode.FGt:
			r = a > b
		case pcode.FGe:
			r = a >= b
		}
		if c := m.pushBool(r); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.FFloat:
		w, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.pushReal(float32(int16(w))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.FTrunc:
		a, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(int16(a))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.FRound:
		a, c := m.popReal()
		if c != NoError {
			return fail(c)
		}
		r := int16(math.Round(float64(a)))
		if c := m.push(uint16(r)); c != NoError {
			return fail(c)
		}
		return next()
	}
	return fail(IllegalOpcode)
}
