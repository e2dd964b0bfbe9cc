package machine

import "pmach/pkg/pcode"

// Sets are fixed 8-word bitsets (members 0..127), stacked low word
// first like any other multi-word value.

func (m *Machine) popSet() ([pcode.SetWords]uint16, Code) {
	var s [pcode.SetWords]uint16
	for i := pcode.SetWords - 1; i >= 0; i-- {
		w, c := m.pop()
		if c != NoError {
			return s, c
		}
		s[i] = w
	}
	return s, NoError
}

func (m *Machine) pushSet(s [pcode.SetWords]uint16) Code {
	for i := 0; i < pcode.SetWords; i++ {
		if c := m.push(s[i]); c != NoError {
			return c
		}
	}
	return NoError
}

func (m *Machine) setCall(sub byte) stepResult {
	switch sub {
	case pcode.SetUnion, pcode.SetInter, pcode.SetDiff:
		b, c := m.popSet()
		if c != NoError {
			return fail(c)
		}
		a, c := m.popSet()
		if c != NoError {
			return fail(c)
		}
		for i := range a {
			switch sub {
			case pcode.SetUnion:
				a[i] |= b[i]
			case pcode.SetInter:
				a[i] &= b[i]
			case pcode.SetDiff:
				a[i] &^= b[i]
			}
		}
		if c := m.pushSet(a); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SetMember:
		s, c := m.popSet()
		if c != NoError {
			return fail(c)
		}
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		in := v < pcode.SetWords*16 && s[v/16]&(1<<(v%16)) != 0
		if c := m.pushBool(in); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SetSingle:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		var s [pcode.SetWords]uint16
		if v < pcode.SetWords*16 {
			s[v/16] |= 1 << (v % 16)
		}
		if c := m.pushSet(s); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SetRange:
		hi, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		lo, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		var s [pcode.SetWords]uint16
		for v := lo; v <= hi && v < pcode.SetWords*16; v++ {
			s[v/16] |= 1 << (v % 16)
		}
		if c := m.pushSet(s); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.SetEq, pcode.SetSub:
		b, c := m.popSet()
		if c != NoError {
			return fail(c)
		}
		a, c := m.popSet()
		if c != NoError {
			return fail(c)
		}
		r := true
		for i := range a {
			if sub == pcode.SetEq {
				if a[i] != b[i] {
					r = false
					break
				}
			} else if a[i]&^b[i] != 0 {
				r = false
				break
			}
		}
		if c := m.pushBool(r); c != NoError {
			return fail(c)
		}
		return next()
	}
	return fail(IllegalOpcode)
}
