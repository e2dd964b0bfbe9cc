package pcode

// Float sub-operations (the immediate byte of OpFloat). Reals are
// 32-bit IEEE values held on the stack as two words, low word first.
const (
	FAdd   byte = 0x01
	FSub   byte = 0x02
	FMul   byte = 0x03
	FDiv   byte = 0x04
	FNeg   byte = 0x05
	FAbs   byte = 0x06
	FEq    byte = 0x07
	FNe    byte = 0x08
	FLt    byte = 0x09
	FLe    byte = 0x0a
	FGt    byte = 0x0b
	FGe    byte = 0x0c
	FFloat byte = 0x0d // word -> real
	FTrunc byte = 0x0e // real -> word, toward zero
	FRound byte = 0x0f // real -> word, nearest
)

// Long (32-bit integer) sub-operations, shared between OpLongop8 and
// OpLongop24. Longs are two stacked words, low word first.
const (
	LAdd byte = 0x01
	LSub byte = 0x02
	LMul byte = 0x03
	LDiv byte = 0x04
	LMod byte = 0x05
	LNeg byte = 0x06
	LAbs byte = 0x07
	LEq  byte = 0x08
	LNe  byte = 0x09
	LLt  byte = 0x0a
	LLe  byte = 0x0b
	LGt  byte = 0x0c
	LGe  byte = 0x0d
	LLtU byte = 0x0e
	LShl byte = 0x0f
	LShr byte = 0x10
	LExt byte = 0x11 // sign-extend word -> long
	LCut byte = 0x12 // truncate long -> word

	// OpLongop24 only: the wide immediate is the operand.
	LLit    byte = 0x20 // push immediate sign-extended to 32 bits
	LAddImm byte = 0x21 // add sign-extended immediate to the long on top
)

// Set sub-operations. Sets are fixed 8-word (128-member) bitsets,
// stacked low word first.
const (
	SetUnion  byte = 0x01
	SetInter  byte = 0x02
	SetDiff   byte = 0x03
	SetMember byte = 0x04 // pop set, pop word; push 0/1
	SetSingle byte = 0x05 // pop word; push the one-member set
	SetRange  byte = 0x06 // pop hi, pop lo; push the subrange set
	SetEq     byte = 0x07
	SetSub    byte = 0x08 // pop b, pop a; push a ⊆ b
)

// SetWords is the fixed on-stack size of a set, in 16-bit words.
const SetWords = 8

// File I/O sub-functions (the immediate byte of OpSyscall, range
// 0x01-0x2b). Compiled programs hard-code these numbers.
const (
	XAllocate  byte = 0x01 // push a fresh file number, or -1
	XFree      byte = 0x02 // pop file number
	XAssign    byte = 0x03 // pop nameDesc, pop isText, pop file number
	XOpenRead  byte = 0x04 // pop file number
	XOpenWrite byte = 0x05
	XOpenApp   byte = 0x06
	XClose     byte = 0x07
	XSetRec    byte = 0x08 // pop record size, pop file number; sets the block-transfer default

	XReadChar byte = 0x10 // pop file number; push char
	XReadInt  byte = 0x11 // pop file number; push word
	XReadReal byte = 0x12 // pop file number; push real (2 words)
	XReadStr  byte = 0x13 // pop destDesc, pop file number; read to eoln
	XReadLn   byte = 0x14 // pop file number; skip to past eoln
	XReadBlk  byte = 0x15 // pop count (0 means one record), pop addr, pop file number; push bytes read

	XWriteChar byte = 0x20 // pop char, pop file number
	XWriteInt  byte = 0x21 // pop width, pop word, pop file number
	XWriteReal byte = 0x22 // pop prec, pop width, pop real, pop file number
	XWriteStr  byte = 0x23 // pop srcDesc, pop file number
	XWriteLn   byte = 0x24 // pop file number
	XPage      byte = 0x25 // pop file number
	XWriteBlk  byte = 0x26 // pop count (0 means one record), pop addr, pop file number

	XEof  byte = 0x27 // pop file number; push 0/1
	XEoln byte = 0x28 // pop file number; push 0/1

	XSeek byte = 0x29 // pop position (long), pop file number
	XPos  byte = 0x2a // pop file number; push position (long)
	XSize byte = 0x2b // pop file number; push size (long)

	XDirOpen   byte = 0x1a // pop nameDesc, pop file number
	XDirRead   byte = 0x1b // pop destDesc, pop file number; push 0/1
	XDirRewind byte = 0x1c // pop file number
	XDirClose  byte = 0x1d // pop file number
	XStat      byte = 0x1e // pop addr, pop nameDesc; push 0/1; writes
	// {size:4, mtime:4, flags:2, pad:2} at addr
)

// String library sub-functions (0x40-0x4f). Strings are passed as the
// address of a 3-word descriptor {size, dataOffset, allocSize}.
const (
	SInit    byte = 0x40 // pop size, pop descAddr; bind a string-stack buffer
	STmp     byte = 0x41 // pop size, pop descAddr; bind a heap temporary
	SConsume byte = 0x42 // pop descAddr; release a heap temporary
	SCopy    byte = 0x43 // pop srcDesc, pop dstDesc
	SConcat  byte = 0x44 // pop srcDesc, pop dstDesc
	SDup     byte = 0x45 // pop srcDesc, pop dstDesc; dst becomes a heap temp
	SCompare byte = 0x46 // pop bDesc, pop aDesc; push -1/0/1
	SSubstr  byte = 0x47 // pop count, pop pos, pop srcDesc, pop dstDesc
	SInsert  byte = 0x48 // pop pos, pop srcDesc, pop dstDesc
	SDelete  byte = 0x49 // pop count, pop pos, pop dstDesc
	SFill    byte = 0x4a // pop count, pop char, pop dstDesc
	SItoa    byte = 0x4b // pop width, pop value, pop dstDesc
	SAtoi    byte = 0x4c // pop srcDesc; push value
)

// OS library sub-functions (0x60-0x6f).
const (
	OSExit    byte = 0x60 // pop exit code; terminal
	OSNew     byte = 0x61 // pop size, pop ptrAddr; store offset or 0
	OSDispose byte = 0x62 // pop ptrAddr; free and zero it
	OSGetenv  byte = 0x63 // pop nameDesc, pop dstDesc
)
