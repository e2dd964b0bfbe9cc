package machine

// Code is the closed set of step results. NoError means the machine can
// keep stepping; Exit is normal termination; the rest are faults. File
// codes are surfaced to the running program as status words and never
// halt the machine on their own.
type Code int

const (
	NoError Code = iota
	Exit

	// Fatal: the machine must not be stepped further.
	IllegalOpcode
	BadPc
	NestingLevel
	MemFault
	StackOverflow
	StackUnderflow
	DivZero
	StringSpace
	HeapHuh

	// File I/O, recoverable by the program.
	BadFileNum
	TooManyFiles
	NotOpenForRead
	NotOpenForWrite
	ReadFailed
	WriteFailed
	SeekFailed

	// The caller's step budget ran out (see WithMaxSteps).
	StepLimit
)

var codeNames = map[Code]string{
	NoError:         "NOERROR",
	Exit:            "EXIT",
	IllegalOpcode:   "ILLEGALOPCODE",
	BadPc:           "BADPC",
	NestingLevel:    "NESTINGLEVEL",
	MemFault:        "MEMFAULT",
	StackOverflow:   "STACKOVERFLOW",
	StackUnderflow:  "STACKUNDERFLOW",
	DivZero:         "DIVZERO",
	StringSpace:     "STRINGSPACE",
	HeapHuh:         "HUH",
	BadFileNum:      "BADFILENUM",
	TooManyFiles:    "TOOMANYFILES",
	NotOpenForRead:  "NOTOPENFORREAD",
	NotOpenForWrite: "NOTOPENFORWRITE",
	ReadFailed:      "READFAILED",
	WriteFailed:     "WRITEFAILED",
	SeekFailed:      "SEEKFAILED",
	StepLimit:       "STEPLIMIT",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Fatal reports whether the machine must stop on this code.
func (c Code) Fatal() bool {
	switch c {
	case NoError, Exit, StepLimit:
		return false
	case BadFileNum, TooManyFiles, NotOpenForRead, NotOpenForWrite,
		ReadFailed, WriteFailed, SeekFailed:
		return false
	default:
		return true
	}
}

// stepResult is the tagged outcome of one instruction handler. The
// dispatcher applies the pc update uniformly based on the kind.
type stepResult struct {
	kind   stepKind
	target uint16 // jump target when kind == stepJump
	code   Code   // fault or terminal code otherwise
}

type stepKind int

const (
	stepNext stepKind = iota // advance pc by the instruction width
	stepJump                 // set pc to target
	stepHalt                 // terminal: Exit
	stepFail                 // fatal or file fault in code
)

func next() stepResult         { return stepResult{kind: stepNext} }
func jump(t uint16) stepResult { return stepResult{kind: stepJump, target: t} }
func halt() stepResult         { return stepResult{kind: stepHalt, code: Exit} }
func fail(c Code) stepResult   { return stepResult{kind: stepFail, code: c} }
