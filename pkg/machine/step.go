package machine

import "pmach/pkg/pcode"

// exec runs one decoded instruction. Each handler reports its outcome
// as a tagged result; Step applies the pc update uniformly, so no
// handler touches pc directly.
func (m *Machine) exec(in pcode.Instr) stepResult {
	switch in.Op {
	case pcode.OpNop:
		return next()

	// Arithmetic and logic on the top one or two words.
	case pcode.OpAdd, pcode.OpSub, pcode.OpMul, pcode.OpDiv, pcode.OpMod,
		pcode.OpAnd, pcode.OpOr, pcode.OpXor, pcode.OpShl, pcode.OpShr:
		return m.binary(in.Op)

	case pcode.OpNeg:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(-int16(v))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpNot:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(^v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpEq, pcode.OpNe, pcode.OpLt, pcode.OpLe, pcode.OpGt, pcode.OpGe,
		pcode.OpLtU, pcode.OpLeU, pcode.OpGtU, pcode.OpGeU:
		return m.compare(in.Op)

	// Stack manipulation.
	case pcode.OpDup:
		v, c := m.top()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpSwap:
		b, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		a, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(b); c != NoError {
			return fail(c)
		}
		if c := m.push(a); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpDrop:
		if _, c := m.pop(); c != NoError {
			return fail(c)
		}
		return next()

	// Indirect loads and stores; the address is on the stack.
	case pcode.OpLdw:
		addr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		v, c := m.mem.word(addr)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpStw:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		addr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.mem.setWord(addr, v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLdb:
		addr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		v, c := m.mem.byteAt(addr)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(uint16(v)); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpStb:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		addr, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.mem.setByte(addr, byte(v)); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpRet:
		return m.ret()

	case pcode.OpEnd:
		m.exitCode = 0
		return halt()

	// Immediates.
	case pcode.OpLit8:
		if c := m.push(uint16(int16(int8(in.Small)))); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLit16:
		if c := m.push(in.Wide); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpInct:
		adv := uint16(in.Small) * WordSize
		if int(m.sp)+int(adv) > int(m.spb)+m.stkSize {
			return fail(StackOverflow)
		}
		m.sp += adv
		return next()

	// Extension groups.
	case pcode.OpFloat:
		return m.floatCall(in.Small)
	case pcode.OpLongop8:
		return m.longCall(in.Small, 0)
	case pcode.OpLongop24:
		return m.longCall(in.Small, in.Wide)
	case pcode.OpSetop:
		return m.setCall(in.Small)
	case pcode.OpSyscall:
		return m.syscall(in.Small)

	// Control flow.
	case pcode.OpJmp:
		return jump(in.Wide)

	case pcode.OpJpf, pcode.OpJpt:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		taken := v == 0
		if in.Op == pcode.OpJpt {
			taken = !taken
		}
		if taken {
			return jump(in.Wide)
		}
		return next()

	case pcode.OpEnt:
		if int(m.sp)+int(in.Wide) > int(m.spb)+m.stkSize {
			return fail(StackOverflow)
		}
		m.sp += in.Wide
		return next()

	case pcode.OpCall:
		return m.call(in.Small, in.Wide, m.pc+uint16(in.Width))

	// Direct loads and stores.
	case pcode.OpLdg:
		v, c := m.mem.word(in.Wide)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpStg:
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.mem.setWord(in.Wide, v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLag:
		if c := m.push(in.Wide); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLdr:
		v, c := m.mem.word(m.rop + in.Wide)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLar:
		if c := m.push(m.rop + in.Wide); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpIxa:
		idx, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		base, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.push(base + idx*in.Wide); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpMov:
		src, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		dst, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.mem.copyBytes(dst, src, int(in.Wide)); c != NoError {
			return fail(c)
		}
		return next()

	// Frame-relative access.
	case pcode.OpLod:
		addr, c := m.resolveAddress(in.Small, in.Wide)
		if c != NoError {
			return fail(c)
		}
		v, c := m.mem.word(addr)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpStro:
		addr, c := m.resolveAddress(in.Small, in.Wide)
		if c != NoError {
			return fail(c)
		}
		v, c := m.pop()
		if c != NoError {
			return fail(c)
		}
		if c := m.mem.setWord(addr, v); c != NoError {
			return fail(c)
		}
		return next()

	case pcode.OpLda:
		addr, c := m.resolveAddress(in.Small, in.Wide)
		if c != NoError {
			return fail(c)
		}
		if c := m.push(addr); c != NoError {
			return fail(c)
		}
		return next()
	}

	return fail(IllegalOpcode)
}

func (m *Machine) binary(op byte) stepResult {
	b, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	a, c := m.pop()
	if c != NoError {
		return fail(c)
	}

	var r uint16
	switch op {
	case pcode.OpAdd:
		r = uint16(int16(a) + int16(b))
	case pcode.OpSub:
		r = uint16(int16(a) - int16(b))
	case pcode.OpMul:
		r = uint16(int16(a) * int16(b))
	case pcode.OpDiv:
		if b == 0 {
			return fail(DivZero)
		}
		r = uint16(int16(a) / int16(b))
	case pcode.OpMod:
		if b == 0 {
			return fail(DivZero)
		}
		r = uint16(int16(a) % int16(b))
	case pcode.OpAnd:
		r = a & b
	case pcode.OpOr:
		r = a | b
	case pcode.OpXor:
		r = a ^ b
	case pcode.OpShl:
		r = a << (b & 15)
	case pcode.OpShr:
		r = a >> (b & 15)
	}

	if c := m.push(r); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) compare(op byte) stepResult {
	b, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	a, c := m.pop()
	if c != NoError {
		return fail(c)
	}

	as, bs := int16(a), int16(b)
	var r bool
	switch op {
	case pcode.OpEq:
		r = a == b
	case pcode.OpNe:
		r = a != b
	case pcode.OpLt:
		r = as < bs
	case pcode.OpLe:
		r = as <= bs
	case pcode.OpGt:
		r = as > bs
	case pcode.OpGe:
		r = as >= bs
	case pcode.OpLtU:
		r = a < b
	case pcode.OpLeU:
		r = a <= b
	case pcode.OpGtU:
		r = a > b
	case pcode.OpGeU:
		r = a >= b
	}

	if c := m.pushBool(r); c != NoError {
		return fail(c)
	}
	return next()
}
