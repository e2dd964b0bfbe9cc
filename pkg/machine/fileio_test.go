package machine

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pmach/pkg/pcode"
)

// pushArgs loads call arguments onto the stack in the given order.
func pushArgs(t *testing.T, m *Machine, args ...uint16) {
	t.Helper()
	for _, a := range args {
		if c := m.push(a); c != NoError {
			t.Fatalf("push: %s", c)
		}
	}
}

// fileOp invokes one file sub-function and requires it to succeed.
func fileOp(t *testing.T, m *Machine, sub byte, args ...uint16) {
	t.Helper()
	pushArgs(t, m, args...)
	if res := m.fileCall(sub); res.kind == stepFail {
		t.Fatalf("sub %#x: %s", sub, res.code)
	}
}

// fileOpErr invokes one file sub-function and returns its failure code.
func fileOpErr(t *testing.T, m *Machine, sub byte, args ...uint16) Code {
	t.Helper()
	pushArgs(t, m, args...)
	res := m.fileCall(sub)
	if res.kind != stepFail {
		t.Fatalf("sub %#x: expected a failure", sub)
	}
	return res.code
}

func popWord(t *testing.T, m *Machine) uint16 {
	t.Helper()
	v, c := m.pop()
	if c != NoError {
		t.Fatalf("pop: %s", c)
	}
	return v
}

func TestReadIntAndEoln(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd},
		WithStdin(strings.NewReader("123\n456\n")))

	fileOp(t, m, pcode.XReadInt, 0)
	if v := popWord(t, m); int16(v) != 123 {
		t.Errorf("first read: got %d, want 123", int16(v))
	}
	fileOp(t, m, pcode.XEoln, 0)
	if v := popWord(t, m); v != 1 {
		t.Errorf("eoln after 123: got %d, want 1", v)
	}

	// The scanner skips the newline on its own for the next token.
	fileOp(t, m, pcode.XReadInt, 0)
	if v := popWord(t, m); int16(v) != 456 {
		t.Errorf("second read: got %d, want 456", int16(v))
	}

	fileOp(t, m, pcode.XEof, 0)
	if v := popWord(t, m); v != 0 {
		t.Errorf("eof before final newline: got %d, want 0", v)
	}
	fileOp(t, m, pcode.XReadLn, 0)
	fileOp(t, m, pcode.XEof, 0)
	if v := popWord(t, m); v != 1 {
		t.Errorf("eof at end: got %d, want 1", v)
	}
}

func TestReadIntSaturates(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd},
		WithStdin(strings.NewReader("99999 -99999")))

	fileOp(t, m, pcode.XReadInt, 0)
	if v := popWord(t, m); int16(v) != 32767 {
		t.Errorf("got %d, want 32767", int16(v))
	}
	fileOp(t, m, pcode.XReadInt, 0)
	if v := popWord(t, m); int16(v) != -32768 {
		t.Errorf("got %d, want -32768", int16(v))
	}
}

func TestReadChar(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd}, WithStdin(strings.NewReader("ab")))

	fileOp(t, m, pcode.XReadChar, 0)
	if v := popWord(t, m); v != 'a' {
		t.Errorf("got %q, want 'a'", v)
	}
	fileOp(t, m, pcode.XReadChar, 0)
	if v := popWord(t, m); v != 'b' {
		t.Errorf("got %q, want 'b'", v)
	}
	if c := fileOpErr(t, m, pcode.XReadChar, 0); c != ReadFailed {
		t.Errorf("read past eof: got %s, want READFAILED", c)
	}
}

func TestReadReal(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd},
		WithStdin(strings.NewReader("3.5 -2e1")))

	fileOp(t, m, pcode.XReadReal, 0)
	if v := stackTopReal(t, m); v != 3.5 {
		t.Errorf("got %g, want 3.5", v)
	}
	m.pop32()
	fileOp(t, m, pcode.XReadReal, 0)
	if v := stackTopReal(t, m); v != -20 {
		t.Errorf("got %g, want -20", v)
	}
}

func TestReadStr(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd},
		WithStdin(strings.NewReader("hello\nworld\n")))
	d := descAddr(m, 0)
	newString(t, m, d, 16, "")

	fileOp(t, m, pcode.XReadStr, 0, d)
	if got := strValue(t, m, d); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	fileOp(t, m, pcode.XEoln, 0)
	if v := popWord(t, m); v != 1 {
		t.Errorf("eoln after line read: got %d, want 1", v)
	}

	fileOp(t, m, pcode.XReadLn, 0)
	fileOp(t, m, pcode.XReadStr, 0, d)
	if got := strValue(t, m, d); got != "world" {
		t.Errorf("got %q, want %q", got, "world")
	}
}

func TestWriteOps(t *testing.T) {
	var out bytes.Buffer
	m := newTestMachine(t, []byte{pcode.OpEnd}, WithStdout(&out))

	v := int16(-42)
	fileOp(t, m, pcode.XWriteInt, 1, uint16(v), 5)
	fileOp(t, m, pcode.XWriteChar, 1, 'A')

	d := descAddr(m, 0)
	newString(t, m, d, 16, "hi")
	fileOp(t, m, pcode.XWriteStr, 1, d)
	fileOp(t, m, pcode.XWriteLn, 1)

	want := "  -42Ahi\n"
	if got := out.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteReal(t *testing.T) {
	var out bytes.Buffer
	m := newTestMachine(t, []byte{pcode.OpEnd}, WithStdout(&out))

	pushArgs(t, m, 1)
	if c := m.pushReal(3.25); c != NoError {
		t.Fatalf("pushReal: %s", c)
	}
	pushArgs(t, m, 6, 2)
	if res := m.fileCall(pcode.XWriteReal); res.kind == stepFail {
		t.Fatalf("write real: %s", res.code)
	}

	if got := out.String(); got != "  3.25" {
		t.Errorf("got %q, want %q", got, "  3.25")
	}
}

// A write on the read-only standard input is a recoverable fault: the
// program sees the code and can carry on.
func TestWriteToStdinFails(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})

	c := fileOpErr(t, m, pcode.XWriteChar, 0, 'A')
	if c != NotOpenForWrite {
		t.Fatalf("got %s, want NOTOPENFORWRITE", c)
	}
	if c.Fatal() {
		t.Error("file faults must not be fatal")
	}
}

func TestReadFromStdoutFails(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})
	if c := fileOpErr(t, m, pcode.XReadChar, 1); c != NotOpenForRead {
		t.Errorf("got %s, want NOTOPENFORREAD", c)
	}
}

func TestAllocateAndFree(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})

	fileOp(t, m, pcode.XAllocate)
	n := popWord(t, m)
	if n != 2 {
		t.Errorf("first handle: got %d, want 2", n)
	}

	// Exhaust the table.
	for i := 3; i < MaxOpenFiles; i++ {
		fileOp(t, m, pcode.XAllocate)
		popWord(t, m)
	}
	if c := fileOpErr(t, m, pcode.XAllocate); c != TooManyFiles {
		t.Errorf("got %s, want TOOMANYFILES", c)
	}
	if v := popWord(t, m); v != 0xffff {
		t.Errorf("failure marker: got %#x, want 0xffff", v)
	}

	fileOp(t, m, pcode.XFree, n)
	fileOp(t, m, pcode.XAllocate)
	if v := popWord(t, m); v != n {
		t.Errorf("reallocated handle: got %d, want %d", v, n)
	}
}

func TestFreeValidatesHandle(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})

	for _, n := range []uint16{0, 1, 5, MaxOpenFiles} {
		if c := fileOpErr(t, m, pcode.XFree, n); c != BadFileNum {
			t.Errorf("free %d: got %s, want BADFILENUM", n, c)
		}
	}
}

func TestStdStreamsStayOpen(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})

	// Close is a no-op on the standard streams.
	fileOp(t, m, pcode.XClose, 0)
	fileOp(t, m, pcode.XClose, 1)
	fileOp(t, m, pcode.XEof, 0)
	popWord(t, m)

	// Opening them by handle is rejected.
	if c := fileOpErr(t, m, pcode.XOpenRead, 0); c != BadFileNum {
		t.Errorf("open stdin: got %s, want BADFILENUM", c)
	}
}

// assignFile binds a fresh handle to name via the assign call.
func assignFile(t *testing.T, m *Machine, name string, isText uint16) uint16 {
	t.Helper()
	fileOp(t, m, pcode.XAllocate)
	n := popWord(t, m)

	d := descAddr(m, 3)
	newString(t, m, d, 64, name)
	fileOp(t, m, pcode.XAssign, n, isText, d)
	return n
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	m := newTestMachine(t, []byte{pcode.OpEnd})

	n := assignFile(t, m, path, 1)
	fileOp(t, m, pcode.XOpenWrite, n)
	fileOp(t, m, pcode.XWriteInt, n, 7, 0)
	fileOp(t, m, pcode.XWriteLn, n)
	fileOp(t, m, pcode.XClose, n)

	fileOp(t, m, pcode.XOpenRead, n)
	fileOp(t, m, pcode.XReadInt, n)
	if v := popWord(t, m); int16(v) != 7 {
		t.Errorf("read back: got %d, want 7", int16(v))
	}
	fileOp(t, m, pcode.XClose, n)
	fileOp(t, m, pcode.XFree, n)
}

func TestFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestMachine(t, []byte{pcode.OpEnd})

	n := assignFile(t, m, path, 1)
	fileOp(t, m, pcode.XOpenApp, n)
	d := descAddr(m, 0)
	newString(t, m, d, 16, "two")
	fileOp(t, m, pcode.XWriteStr, n, d)
	fileOp(t, m, pcode.XWriteLn, n)
	fileOp(t, m, pcode.XClose, n)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("got %q, want %q", got, "one\ntwo\n")
	}
}

func TestOpenMissingFile(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})
	n := assignFile(t, m, filepath.Join(t.TempDir(), "absent"), 1)
	if c := fileOpErr(t, m, pcode.XOpenRead, n); c != ReadFailed {
		t.Errorf("got %s, want READFAILED", c)
	}
}

func TestBlockIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	m := newTestMachine(t, []byte{pcode.OpEnd})

	// Stage a payload above the string stack's high-water mark.
	src := uint16(128)
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	for i, b := range payload {
		m.mem.setByte(src+uint16(i), b)
	}

	n := assignFile(t, m, path, 0)
	fileOp(t, m, pcode.XSetRec, n, uint16(len(payload)))
	fileOp(t, m, pcode.XOpenWrite, n)
	fileOp(t, m, pcode.XWriteBlk, n, src, uint16(len(payload)))
	fileOp(t, m, pcode.XClose, n)

	dst := uint16(160)
	fileOp(t, m, pcode.XOpenRead, n)
	fileOp(t, m, pcode.XReadBlk, n, dst, uint16(len(payload)))
	if got := popWord(t, m); int(got) != len(payload) {
		t.Fatalf("read count: got %d, want %d", got, len(payload))
	}
	for i, b := range payload {
		v, _ := m.mem.byteAt(dst + uint16(i))
		if v != b {
			t.Errorf("byte %d: got %#x, want %#x", i, v, b)
		}
	}
	fileOp(t, m, pcode.XClose, n)
}

// The formatted operations are defined for text files only; a binary
// file takes block and char transfers but rejects the token scanners
// and formatted writers.
func TestTextModeGating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	if err := os.WriteFile(path, []byte("123 456\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestMachine(t, []byte{pcode.OpEnd})

	n := assignFile(t, m, path, 0)
	fileOp(t, m, pcode.XOpenRead, n)
	if c := fileOpErr(t, m, pcode.XReadInt, n); c != ReadFailed {
		t.Errorf("read int on binary file: got %s, want READFAILED", c)
	}
	fileOp(t, m, pcode.XReadChar, n)
	if v := popWord(t, m); v != '1' {
		t.Errorf("char read on binary file: got %q, want '1'", v)
	}
	fileOp(t, m, pcode.XClose, n)

	fileOp(t, m, pcode.XOpenWrite, n)
	if c := fileOpErr(t, m, pcode.XWriteInt, n, 7, 0); c != WriteFailed {
		t.Errorf("write int on binary file: got %s, want WRITEFAILED", c)
	}
	if c := fileOpErr(t, m, pcode.XWriteLn, n); c != WriteFailed {
		t.Errorf("writeln on binary file: got %s, want WRITEFAILED", c)
	}
	fileOp(t, m, pcode.XWriteChar, n, 'x')
	fileOp(t, m, pcode.XClose, n)
}

// A zero-count block transfer moves one record of the configured size.
func TestRecordSizedBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recs")
	m := newTestMachine(t, []byte{pcode.OpEnd})

	src := uint16(128)
	for i, b := range []byte{1, 2, 3, 4, 5, 6} {
		m.mem.setByte(src+uint16(i), b)
	}

	n := assignFile(t, m, path, 0)
	fileOp(t, m, pcode.XSetRec, n, 3)
	fileOp(t, m, pcode.XOpenWrite, n)
	fileOp(t, m, pcode.XWriteBlk, n, src, 0)
	fileOp(t, m, pcode.XWriteBlk, n, src+3, 0)
	fileOp(t, m, pcode.XClose, n)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("wrote %d bytes, want 6", len(got))
	}

	dst := uint16(160)
	fileOp(t, m, pcode.XOpenRead, n)
	fileOp(t, m, pcode.XReadBlk, n, dst, 0)
	if v := popWord(t, m); v != 3 {
		t.Fatalf("record read count: got %d, want 3", v)
	}
	for i, want := range []byte{1, 2, 3} {
		if v, _ := m.mem.byteAt(dst + uint16(i)); v != want {
			t.Errorf("byte %d: got %d, want %d", i, v, want)
		}
	}
	fileOp(t, m, pcode.XClose, n)
}

func TestSeekPosSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestMachine(t, []byte{pcode.OpEnd})

	n := assignFile(t, m, path, 1)
	fileOp(t, m, pcode.XOpenRead, n)

	fileOp(t, m, pcode.XReadChar, n)
	fileOp(t, m, pcode.XReadChar, n)
	fileOp(t, m, pcode.XReadChar, n)
	popWord(t, m)
	popWord(t, m)
	popWord(t, m)

	fileOp(t, m, pcode.XPos, n)
	if pos := stackTop32(t, m); pos != 3 {
		t.Errorf("pos: got %d, want 3", pos)
	}
	m.pop32()

	pushArgs(t, m, n)
	m.push32(5)
	if res := m.fileCall(pcode.XSeek); res.kind == stepFail {
		t.Fatalf("seek: %s", res.code)
	}
	fileOp(t, m, pcode.XReadChar, n)
	if v := popWord(t, m); v != '5' {
		t.Errorf("after seek: got %q, want '5'", v)
	}

	fileOp(t, m, pcode.XSize, n)
	if size := stackTop32(t, m); size != 10 {
		t.Errorf("size: got %d, want 10", size)
	}
}

func TestSeekOnStdinFails(t *testing.T) {
	m := newTestMachine(t, []byte{pcode.OpEnd})
	pushArgs(t, m, 0)
	m.push32(0)
	res := m.fileCall(pcode.XSeek)
	if res.kind != stepFail || res.code != SeekFailed {
		t.Errorf("got %s, want SEEKFAILED", res.code)
	}
}

func TestDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"aa", "bb", "cc"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m := newTestMachine(t, []byte{pcode.OpEnd})

	fileOp(t, m, pcode.XAllocate)
	n := popWord(t, m)

	nameDesc := descAddr(m, 3)
	newString(t, m, nameDesc, 64, dir)
	fileOp(t, m, pcode.XDirOpen, n, nameDesc)

	entry := descAddr(m, 0)
	newString(t, m, entry, 64, "")

	var names []string
	for {
		fileOp(t, m, pcode.XDirRead, n, entry)
		if popWord(t, m) == 0 {
			break
		}
		names = append(names, strValue(t, m, entry))
	}
	if len(names) != 3 {
		t.Fatalf("got %d entries %v, want 3", len(names), names)
	}

	fileOp(t, m, pcode.XDirRewind, n)
	fileOp(t, m, pcode.XDirRead, n, entry)
	if popWord(t, m) != 1 {
		t.Fatal("read after rewind failed")
	}
	if got := strValue(t, m, entry); got != names[0] {
		t.Errorf("after rewind: got %q, want %q", got, names[0])
	}

	fileOp(t, m, pcode.XDirClose, n)
	fileOp(t, m, pcode.XFree, n)
}

func TestStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestMachine(t, []byte{pcode.OpEnd})

	nameDesc := descAddr(m, 0)
	newString(t, m, nameDesc, 64, path)
	buf := uint16(200) // stat record, clear of the string buffers
	fileOp(t, m, pcode.XStat, nameDesc, buf)
	if popWord(t, m) != 1 {
		t.Fatal("stat of an existing file failed")
	}
	size, _ := m.mem.long(buf)
	if size != 5 {
		t.Errorf("size field: got %d, want 5", size)
	}
	flags, _ := m.mem.word(buf + 8)
	if flags&1 != 0 {
		t.Error("regular file flagged as a directory")
	}

	newString(t, m, nameDesc, 64, path+".missing")
	fileOp(t, m, pcode.XStat, nameDesc, buf)
	if popWord(t, m) != 0 {
		t.Error("stat of a missing file succeeded")
	}
}
