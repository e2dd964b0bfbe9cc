// Package machine implements the P-code virtual machine: a 16-bit
// stack machine with a flat data space split into a string stack,
// read-only data, an ordinary stack, and a chunk-allocated heap. One
// Machine holds all mutable state; independent instances are safe to
// run concurrently.
package machine

import (
	"errors"
	"fmt"
	"io"
	"os"

	"pmach/pkg/pcode"
)

var (
	ErrBadConfig = errors.New("machine: invalid configuration")
)

// Config describes everything needed to build a runnable Machine. The
// code and read-only data come from the compiler/linker as-is.
type Config struct {
	Code         []byte
	Entry        uint16
	MaxPc        int // 0 means len(Code)
	ReadOnlyData []byte

	StringStackSize int
	StackSize       int
	HeapSize        int
}

// Machine is the whole abstract machine. Nothing here is shared
// between instances; there is no package-level mutable state.
type Machine struct {
	code  []byte
	entry uint16
	maxPc int

	mem    mem
	roData []byte

	// Registers. All stack offsets stay word-aligned.
	spb uint16 // stack region base
	sp  uint16 // stack pointer, next free slot
	csp uint16 // string-stack bump pointer
	hpb uint16 // heap region base
	fp  uint16 // current frame base
	rop uint16 // read-only data base
	pc  uint16
	lsp int // current static nesting level

	strSize int
	stkSize int
	hpSize  int

	freeHead uint16 // heap free-list head, 0 when empty
	exitCode int

	files [MaxOpenFiles]fileDesc

	stdin  io.Reader
	stdout io.Writer

	steps    int
	maxSteps int

	before func(*Machine)
	after  func(*Machine, Code)
}

type Option func(*Machine)

// WithStdin sets the reader behind file number 0.
func WithStdin(r io.Reader) Option {
	return func(m *Machine) { m.stdin = r }
}

// WithStdout sets the writer behind file number 1.
func WithStdout(w io.Writer) Option {
	return func(m *Machine) { m.stdout = w }
}

// WithMaxSteps bounds the number of steps before Step returns StepLimit.
func WithMaxSteps(n int) Option {
	return func(m *Machine) { m.maxSteps = n }
}

// WithBeforeStep installs a hook invoked before every step. The hook
// may inspect the machine but the core keeps no debugger state.
func WithBeforeStep(fn func(*Machine)) Option {
	return func(m *Machine) { m.before = fn }
}

// WithAfterStep installs a hook invoked after every step with its result.
func WithAfterStep(fn func(*Machine, Code)) Option {
	return func(m *Machine) { m.after = fn }
}

// New builds a Machine from cfg and resets it. The data buffer is
// allocated once here; Reset never reallocates it.
func New(cfg Config, opts ...Option) (*Machine, error) {
	maxPc := cfg.MaxPc
	if maxPc == 0 {
		maxPc = len(cfg.Code)
	}
	if maxPc < 0 || maxPc > len(cfg.Code) {
		return nil, fmt.Errorf("%w: maxPc %d outside code of %d bytes", ErrBadConfig, maxPc, len(cfg.Code))
	}
	if int(cfg.Entry) >= maxPc && maxPc > 0 {
		return nil, fmt.Errorf("%w: entry %d outside code", ErrBadConfig, cfg.Entry)
	}

	for _, s := range []int{cfg.StringStackSize, cfg.StackSize, cfg.HeapSize} {
		if s <= 0 || s%allocUnit != 0 {
			return nil, fmt.Errorf("%w: region sizes must be positive multiples of %d", ErrBadConfig, allocUnit)
		}
	}
	if cfg.HeapSize > chunkMaxBytes {
		return nil, fmt.Errorf("%w: heap size %d exceeds the %d-byte chunk capacity", ErrBadConfig, cfg.HeapSize, chunkMaxBytes)
	}

	roSize := (len(cfg.ReadOnlyData) + allocUnit - 1) / allocUnit * allocUnit
	total := cfg.StringStackSize + roSize + cfg.StackSize + cfg.HeapSize
	if total > 1<<16 {
		return nil, fmt.Errorf("%w: regions total %d bytes, over the 16-bit space", ErrBadConfig, total)
	}

	m := &Machine{
		code:    cfg.Code,
		entry:   cfg.Entry,
		maxPc:   maxPc,
		mem:     newMem(total),
		roData:  cfg.ReadOnlyData,
		strSize: cfg.StringStackSize,
		stkSize: cfg.StackSize,
		hpSize:  cfg.HeapSize,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}

	m.rop = uint16(cfg.StringStackSize)
	m.spb = uint16(cfg.StringStackSize + roSize)
	m.hpb = m.spb + uint16(cfg.StackSize)

	for _, o := range opts {
		o(m)
	}

	m.Reset()
	return m, nil
}

// Reset reinitializes registers, the heap, the string stack, and the
// file table without touching the underlying buffer allocation.
func (m *Machine) Reset() {
	m.closeFiles()
	m.mem.zero()
	copy(m.mem.buf[m.rop:], m.roData)

	// Offset 0 is the nil sentinel; the string stack starts above it.
	m.csp = WordSize

	m.pc = m.entry
	m.lsp = 0
	m.exitCode = 0
	m.steps = 0

	m.resetFrame()
	m.heapInit()
	m.fileInit()
}

// Step executes one instruction and returns its result code. NoError
// means the machine can be stepped again.
func (m *Machine) Step() Code {
	if m.before != nil {
		m.before(m)
	}
	c := m.step()
	if m.after != nil {
		m.after(m, c)
	}
	return c
}

func (m *Machine) step() Code {
	if m.maxSteps > 0 && m.steps >= m.maxSteps {
		return StepLimit
	}
	m.steps++

	if int(m.pc) >= m.maxPc {
		return BadPc
	}
	in, err := pcode.Decode(m.code[:m.maxPc], int(m.pc))
	if err != nil {
		return BadPc
	}

	res := m.exec(in)
	switch res.kind {
	case stepNext:
		m.pc += uint16(in.Width)
		return NoError
	case stepJump:
		m.pc = res.target
		return NoError
	case stepHalt:
		return Exit
	default:
		// Recoverable file faults advance past the instruction so the
		// driver can keep stepping; fatal faults leave pc in place.
		if !res.code.Fatal() {
			m.pc += uint16(in.Width)
		}
		return res.code
	}
}

// Run steps until a terminal or fault code.
func (m *Machine) Run() Code {
	for {
		if c := m.Step(); c != NoError {
			return c
		}
	}
}

// PC returns the current program counter.
func (m *Machine) PC() uint16 { return m.pc }

// SP returns the current stack pointer.
func (m *Machine) SP() uint16 { return m.sp }

// FP returns the current frame base.
func (m *Machine) FP() uint16 { return m.fp }

// Level returns the current static nesting level.
func (m *Machine) Level() int { return m.lsp }

// ExitCode returns the status the program passed to exit, valid after Exit.
func (m *Machine) ExitCode() int { return m.exitCode }

// Steps returns how many instructions have executed since Reset.
func (m *Machine) Steps() int { return m.steps }

// Word reads one data-space word, for debugger hooks and tests.
func (m *Machine) Word(off uint16) (uint16, Code) {
	return m.mem.word(off)
}

// push puts one word on the ordinary stack.
func (m *Machine) push(v uint16) Code {
	if int(m.sp)+WordSize > int(m.spb)+m.stkSize {
		return StackOverflow
	}
	c := m.mem.setWord(m.sp, v)
	if c == NoError {
		m.sp += WordSize
	}
	return c
}

// pop takes one word off the ordinary stack. The current frame's mark
// is the floor; popping into it is underflow.
func (m *Machine) pop() (uint16, Code) {
	if m.sp < m.fp+frameMark+WordSize {
		return 0, StackUnderflow
	}
	m.sp -= WordSize
	return m.mem.word(m.sp)
}

// top reads the word on top of the stack without popping it.
func (m *Machine) top() (uint16, Code) {
	if m.sp < m.fp+frameMark+WordSize {
		return 0, StackUnderflow
	}
	return m.mem.word(m.sp - WordSize)
}

// push32 pushes a 32-bit value as two words, low word first.
func (m *Machine) push32(v uint32) Code {
	if c := m.push(uint16(v)); c != NoError {
		return c
	}
	return m.push(uint16(v >> 16))
}

// pop32 pops two words and recomposes the 32-bit value.
func (m *Machine) pop32() (uint32, Code) {
	hi, c := m.pop()
	if c != NoError {
		return 0, c
	}
	lo, c := m.pop()
	if c != NoError {
		return 0, c
	}
	return uint32(lo) | uint32(hi)<<16, NoError
}

// pushBool pushes 1 for true, 0 for false.
func (m *Machine) pushBool(b bool) Code {
	if b {
		return m.push(1)
	}
	return m.push(0)
}
