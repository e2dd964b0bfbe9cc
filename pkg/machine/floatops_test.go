package machine

import (
	"math"
	"testing"

	"pmach/pkg/pcode"
)

func litReal(b *pcode.Builder, v float32) {
	bits := math.Float32bits(v)
	b.Op16(pcode.OpLit16, uint16(bits))
	b.Op16(pcode.OpLit16, uint16(bits>>16))
}

func stackTopReal(t *testing.T, m *Machine) float32 {
	t.Helper()
	return math.Float32frombits(uint32(stackTop32(t, m)))
}

func TestRealArithmetic(t *testing.T) {
	tests := []struct {
		a, b     float32
		sub      byte
		expected float32
		desc     string
	}{
		{1.5, 2.25, pcode.FAdd, 3.75, "add"},
		{1.5, 2.25, pcode.FSub, -0.75, "subtract"},
		{1.5, 4, pcode.FMul, 6, "multiply"},
		{7.5, 2.5, pcode.FDiv, 3, "divide"},
	}

	for _, test := range tests {
		b := pcode.NewBuilder()
		litReal(b, test.a)
		litReal(b, test.b)
		b.Op8(pcode.OpFloat, test.sub)
		b.Op(pcode.OpEnd)

		m := newTestMachine(t, b.Bytes())
		runToEnd(t, m)
		if got := stackTopReal(t, m); got != test.expected {
			t.Errorf("%s: got %g, want %g", test.desc, got, test.expected)
		}
	}
}

func TestRealDivideByZero(t *testing.T) {
	b := pcode.NewBuilder()
	litReal(b, 1)
	litReal(b, 0)
	b.Op8(pcode.OpFloat, pcode.FDiv)

	m := newTestMachine(t, b.Bytes())
	if c := m.Run(); c != DivZero {
		t.Errorf("got %s, want DIVZERO", c)
	}
}

func TestRealNegAbs(t *testing.T) {
	tests := []struct {
		v        float32
		sub      byte
		expected float32
	}{
		{2.5, pcode.FNeg, -2.5},
		{-2.5, pcode.FNeg, 2.5},
		{-2.5, pcode.FAbs, 2.5},
		{2.5, pcode.FAbs, 2.5},
	}

	for _, test := range tests {
		b := pcode.NewBuilder()
		litReal(b, test.v)
		b.Op8(pcode.OpFloat, test.sub)
		b.Op(pcode.OpEnd)

		m := newTestMachine(t, b.Bytes())
		runToEnd(t, m)
		if got := stackTopReal(t, m); got != test.expected {
			t.Errorf("sub %#x on %g: got %g, want %g", test.sub, test.v, got, test.expected)
		}
	}
}

func TestRealComparisons(t *testing.T) {
	tests := []struct {
		a, b     float32
		sub      byte
		expected bool
		desc     string
	}{
		{1.5, 1.5, pcode.FEq, true, "equal"},
		{1.5, 2.5, pcode.FNe, true, "not equal"},
		{-1.5, 1.5, pcode.FLt, true, "less"},
		{1.5, 1.5, pcode.FLe, true, "le equal"},
		{2.5, 1.5, pcode.FGt, true, "greater"},
		{1.5, 1.5, pcode.FGe, true, "ge equal"},
		{1.5, 1.5, pcode.FLt, false, "not less when equal"},
	}

	for _, test := range tests {
		b := pcode.NewBuilder()
		litReal(b, test.a)
		litReal(b, test.b)
		b.Op8(pcode.OpFloat, test.sub)
		b.Op(pcode.OpEnd)

		m := newTestMachine(t, b.Bytes())
		runToEnd(t, m)

		want := int16(0)
		if test.expected {
			want = 1
		}
		if got := stackTop(t, m); got != want {
			t.Errorf("%s: got %d, want %d", test.desc, got, want)
		}
	}
}

func TestRealConversions(t *testing.T) {
	// float then truncate is identity for integral values.
	v := int16(-123)
	b := pcode.NewBuilder()
	b.Op16(pcode.OpLit16, uint16(v))
	b.Op8(pcode.OpFloat, pcode.FFloat)
	b.Op8(pcode.OpFloat, pcode.FTrunc)
	b.Op(pcode.OpEnd)

	m := newTestMachine(t, b.Bytes())
	runToEnd(t, m)
	if got := stackTop(t, m); got != -123 {
		t.Errorf("float/trunc round trip: got %d, want -123", got)
	}
}

func TestRealTruncAndRound(t *testing.T) {
	tests := []struct {
		v        float32
		sub      byte
		expected int16
		desc     string
	}{
		{2.9, pcode.FTrunc, 2, "trunc toward zero"},
		{-2.9, pcode.FTrunc, -2, "trunc negative toward zero"},
		{2.4, pcode.FRound, 2, "round down"},
		{2.6, pcode.FRound, 3, "round up"},
		{-2.6, pcode.FRound, -3, "round negative"},
	}

	for _, test := range tests {
		b := pcode.NewBuilder()
		litReal(b, test.v)
		b.Op8(pcode.OpFloat, test.sub)
		b.Op(pcode.OpEnd)

		m := newTestMachine(t, b.Bytes())
		runToEnd(t, m)
		if got := stackTop(t, m); got != test.expected {
			t.Errorf("%s: got %d, want %d", test.desc, got, test.expected)
		}
	}
}
