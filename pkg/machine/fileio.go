package machine

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"pmach/pkg/pcode"
)

// MaxOpenFiles is the size of the fixed file-handle table.
const MaxOpenFiles = 16

type fileMode int

const (
	modeClosed fileMode = iota
	modeRead
	modeWrite
	modeAppend
	modeDir
)

// fileDesc is one slot of the file table. Numbers 0 and 1 are bound to
// the standard streams at Reset and cannot be freed.
type fileDesc struct {
	name    string
	inUse   bool
	isText  bool
	eoln    bool
	recSize int
	mode    fileMode

	f *os.File // nil for the standard streams
	r *bufio.Reader
	w io.Writer

	dir   []os.DirEntry
	dirAt int
}

func (m *Machine) fileInit() {
	for i := range m.files {
		m.files[i] = fileDesc{}
	}
	m.files[0] = fileDesc{
		name:   "<stdin>",
		inUse:  true,
		isText: true,
		mode:   modeRead,
		r:      bufio.NewReader(m.stdin),
	}
	m.files[1] = fileDesc{
		name:   "<stdout>",
		inUse:  true,
		isText: true,
		mode:   modeWrite,
		w:      m.stdout,
	}
}

func (m *Machine) closeFiles() {
	for i := range m.files {
		if m.files[i].f != nil {
			m.files[i].f.Close()
		}
		m.files[i] = fileDesc{}
	}
}

// fdFor validates a file number and, when want is not modeClosed, its
// open mode. Append counts as writable.
func (m *Machine) fdFor(n uint16, want fileMode) (*fileDesc, Code) {
	if int(n) >= MaxOpenFiles {
		return nil, BadFileNum
	}
	fd := &m.files[n]
	if !fd.inUse {
		return nil, BadFileNum
	}
	switch want {
	case modeRead:
		if fd.mode != modeRead {
			return nil, NotOpenForRead
		}
	case modeWrite:
		if fd.mode != modeWrite && fd.mode != modeAppend {
			return nil, NotOpenForWrite
		}
	case modeDir:
		if fd.mode != modeDir {
			return nil, BadFileNum
		}
	}
	return fd, NoError
}

// textFd resolves a file number for a formatted operation. The token
// scanners and formatted writers are defined for text files only; on a
// binary file they fail the same way a bad host transfer would.
func (m *Machine) textFd(n uint16, want fileMode) (*fileDesc, Code) {
	fd, c := m.fdFor(n, want)
	if c != NoError {
		return nil, c
	}
	if !fd.isText {
		if want == modeRead {
			return nil, ReadFailed
		}
		return nil, WriteFailed
	}
	return fd, NoError
}

// updateEoln refreshes the descriptor's end-of-line flag from the next
// unread byte. The flag is tracked here, independent of host state.
func (fd *fileDesc) updateEoln() {
	if fd.r == nil {
		fd.eoln = false
		return
	}
	b, err := fd.r.Peek(1)
	fd.eoln = err == nil && b[0] == '\n'
}

// fileCall dispatches one file-I/O sub-function. Arguments arrive on
// the stack, results go back there; failures become file codes that
// leave the descriptor usable for a retry.
func (m *Machine) fileCall(sub byte) stepResult {
	switch sub {
	case pcode.XAllocate:
		return m.fileAllocate()
	case pcode.XFree:
		return m.fileFree()
	case pcode.XAssign:
		return m.fileAssign()
	case pcode.XOpenRead, pcode.XOpenWrite, pcode.XOpenApp:
		return m.fileOpen(sub)
	case pcode.XClose:
		return m.fileClose()
	case pcode.XSetRec:
		return m.fileSetRec()

	case pcode.XReadChar:
		return m.fileReadChar()
	case pcode.XReadInt:
		return m.fileReadInt()
	case pcode.XReadReal:
		return m.fileReadReal()
	case pcode.XReadStr:
		return m.fileReadStr()
	case pcode.XReadLn:
		return m.fileReadLn()
	case pcode.XReadBlk:
		return m.fileReadBlk()

	case pcode.XWriteChar:
		return m.fileWriteChar()
	case pcode.XWriteInt:
		return m.fileWriteInt()
	case pcode.XWriteReal:
		return m.fileWriteReal()
	case pcode.XWriteStr:
		return m.fileWriteStr()
	case pcode.XWriteLn:
		return m.fileWriteRaw("\n")
	case pcode.XPage:
		return m.fileWriteRaw("\f")
	case pcode.XWriteBlk:
		return m.fileWriteBlk()

	case pcode.XEof:
		return m.fileEof()
	case pcode.XEoln:
		return m.fileEoln()

	case pcode.XSeek:
		return m.fileSeek()
	case pcode.XPos:
		return m.filePos()
	case pcode.XSize:
		return m.fileSize()

	case pcode.XDirOpen:
		return m.dirOpen()
	case pcode.XDirRead:
		return m.dirRead()
	case pcode.XDirRewind:
		return m.dirRewind()
	case pcode.XDirClose:
		return m.dirClose()
	case pcode.XStat:
		return m.fileStat()
	}
	return fail(IllegalOpcode)
}

func (m *Machine) fileAllocate() stepResult {
	for n := 2; n < MaxOpenFiles; n++ {
		if !m.files[n].inUse {
			m.files[n] = fileDesc{inUse: true}
			if c := m.push(uint16(n)); c != NoError {
				return fail(c)
			}
			return next()
		}
	}
	if c := m.push(0xffff); c != NoError {
		return fail(c)
	}
	return fail(TooManyFiles)
}

func (m *Machine) fileFree() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	if n < 2 || int(n) >= MaxOpenFiles || !m.files[n].inUse {
		return fail(BadFileNum)
	}
	if m.files[n].f != nil {
		m.files[n].f.Close()
	}
	m.files[n] = fileDesc{}
	return next()
}

func (m *Machine) fileAssign() stepResult {
	nameDesc, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	isText, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	name, c := m.takeStringValue(nameDesc)
	if c != NoError {
		return fail(c)
	}

	fd.name = name
	fd.isText = isText != 0
	return next()
}

func (m *Machine) fileOpen(sub byte) stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if n < 2 {
		// The standard streams are always open.
		return fail(BadFileNum)
	}
	if fd.f != nil {
		fd.f.Close()
		fd.f = nil
	}

	var (
		f   *os.File
		err error
	)
	switch sub {
	case pcode.XOpenRead:
		f, err = os.Open(fd.name)
		if err != nil {
			return fail(ReadFailed)
		}
		fd.mode = modeRead
		fd.r = bufio.NewReader(f)
		fd.w = nil
	case pcode.XOpenWrite:
		f, err = os.Create(fd.name)
		if err != nil {
			return fail(WriteFailed)
		}
		fd.mode = modeWrite
		fd.w = f
		fd.r = nil
	case pcode.XOpenApp:
		f, err = os.OpenFile(fd.name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fail(WriteFailed)
		}
		fd.mode = modeAppend
		fd.w = f
		fd.r = nil
	}
	fd.f = f
	fd.eoln = false
	return next()
}

func (m *Machine) fileClose() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if n < 2 {
		return next() // never closed
	}
	if fd.f != nil {
		fd.f.Close()
		fd.f = nil
	}
	fd.mode = modeClosed
	fd.r = nil
	fd.w = nil
	return next()
}

func (m *Machine) fileSetRec() stepResult {
	size, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	fd.recSize = int(size)
	return next()
}

func (m *Machine) fileReadChar() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeRead)
	if c != NoError {
		return fail(c)
	}
	b, err := fd.r.ReadByte()
	if err != nil {
		return fail(ReadFailed)
	}
	fd.updateEoln()
	if c := m.push(uint16(b)); c != NoError {
		return fail(c)
	}
	return next()
}

// fileReadInt scans a decimal integer from a text file: whitespace,
// optional sign, digits, saturating at the int16 bounds.
func (m *Machine) fileReadInt() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeRead)
	if c != NoError {
		return fail(c)
	}

	tok, code := scanToken(fd.r, func(b byte, i int) bool {
		if i == 0 && (b == '+' || b == '-') {
			return true
		}
		return b >= '0' && b <= '9'
	})
	if code != NoError {
		return fail(code)
	}
	fd.updateEoln()
	if c := m.push(uint16(scanDecimal(tok))); c != NoError {
		return fail(c)
	}
	return next()
}

// fileReadReal scans a real token and pushes it as two words.
func (m *Machine) fileReadReal() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeRead)
	if c != NoError {
		return fail(c)
	}

	tok, code := scanToken(fd.r, func(b byte, i int) bool {
		switch {
		case b >= '0' && b <= '9':
			return true
		case b == '+' || b == '-' || b == '.' || b == 'e' || b == 'E':
			return true
		}
		return false
	})
	if code != NoError {
		return fail(code)
	}
	fd.updateEoln()

	v, err := strconv.ParseFloat(string(tok), 32)
	if err != nil {
		v = 0
	}
	if c := m.push32(math.Float32bits(float32(v))); c != NoError {
		return fail(c)
	}
	return next()
}

// scanToken skips leading whitespace (including newlines), then
// collects bytes accepted by ok. EOF before any content is a read
// failure; EOF mid-token just ends the token.
func scanToken(r *bufio.Reader, ok func(b byte, i int) bool) ([]byte, Code) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, ReadFailed
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		r.UnreadByte()
		break
	}

	var tok []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return tok, NoError
		}
		if !ok(b, len(tok)) {
			r.UnreadByte()
			return tok, NoError
		}
		tok = append(tok, b)
	}
}

func (m *Machine) fileReadStr() stepResult {
	dst, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeRead)
	if c != NoError {
		return fail(c)
	}

	// Read up to, not including, the end of line.
	var buf []byte
	for {
		b, err := fd.r.ReadByte()
		if err != nil {
			if len(buf) == 0 && err != io.EOF {
				return fail(ReadFailed)
			}
			break
		}
		if b == '\n' {
			fd.r.UnreadByte()
			break
		}
		buf = append(buf, b)
	}
	fd.updateEoln()

	if c := m.setStringValue(dst, string(buf)); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileReadLn() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeRead)
	if c != NoError {
		return fail(c)
	}
	for {
		b, err := fd.r.ReadByte()
		if err != nil || b == '\n' {
			break
		}
	}
	fd.updateEoln()
	return next()
}

func (m *Machine) fileReadBlk() stepResult {
	count, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	addr, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeRead)
	if c != NoError {
		return fail(c)
	}
	// A zero count transfers one record of the size set by XSetRec.
	if count == 0 && fd.recSize > 0 {
		count = uint16(fd.recSize)
	}

	dst, c := m.mem.bytes(addr, int(count))
	if c != NoError {
		return fail(c)
	}
	got, err := io.ReadFull(fd.r, dst)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fail(ReadFailed)
	}
	if c := m.push(uint16(got)); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileWriteChar() stepResult {
	ch, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeWrite)
	if c != NoError {
		return fail(c)
	}
	if _, err := fd.w.Write([]byte{byte(ch)}); err != nil {
		return fail(WriteFailed)
	}
	return next()
}

func (m *Machine) fileWriteInt() stepResult {
	width, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	v, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeWrite)
	if c != NoError {
		return fail(c)
	}
	if _, err := fmt.Fprintf(fd.w, "%*d", int16(width), int16(v)); err != nil {
		return fail(WriteFailed)
	}
	return next()
}

func (m *Machine) fileWriteReal() stepResult {
	prec, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	width, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	bits, c := m.pop32()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeWrite)
	if c != NoError {
		return fail(c)
	}
	v := math.Float32frombits(bits)
	if _, err := fmt.Fprintf(fd.w, "%*.*f", int16(width), int16(prec), v); err != nil {
		return fail(WriteFailed)
	}
	return next()
}

func (m *Machine) fileWriteStr() stepResult {
	src, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeWrite)
	if c != NoError {
		return fail(c)
	}

	ss, c := m.readDesc(src)
	if c != NoError {
		return fail(c)
	}
	b, c := m.mem.bytes(ss.data, int(ss.size))
	if c != NoError {
		return fail(c)
	}
	if _, err := fd.w.Write(b); err != nil {
		return fail(WriteFailed)
	}
	if c := m.consumeString(src); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileWriteRaw(s string) stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.textFd(n, modeWrite)
	if c != NoError {
		return fail(c)
	}
	if _, err := io.WriteString(fd.w, s); err != nil {
		return fail(WriteFailed)
	}
	return next()
}

func (m *Machine) fileWriteBlk() stepResult {
	count, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	addr, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeWrite)
	if c != NoError {
		return fail(c)
	}
	if count == 0 && fd.recSize > 0 {
		count = uint16(fd.recSize)
	}
	b, c := m.mem.bytes(addr, int(count))
	if c != NoError {
		return fail(c)
	}
	if _, err := fd.w.Write(b); err != nil {
		return fail(WriteFailed)
	}
	return next()
}

func (m *Machine) fileEof() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	eof := true
	if fd.r != nil {
		_, err := fd.r.Peek(1)
		eof = err != nil
	}
	if c := m.pushBool(eof); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileEoln() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if c := m.pushBool(fd.eoln); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileSeek() stepResult {
	pos, c := m.pop32()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if fd.f == nil {
		return fail(SeekFailed)
	}
	if _, err := fd.f.Seek(int64(int32(pos)), io.SeekStart); err != nil {
		return fail(SeekFailed)
	}
	if fd.r != nil {
		fd.r.Reset(fd.f)
	}
	fd.eoln = false
	return next()
}

func (m *Machine) filePos() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if fd.f == nil {
		return fail(SeekFailed)
	}
	pos, err := fd.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(SeekFailed)
	}
	if fd.r != nil {
		pos -= int64(fd.r.Buffered())
	}
	if c := m.push32(uint32(pos)); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) fileSize() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	if fd.f == nil {
		return fail(SeekFailed)
	}
	st, err := fd.f.Stat()
	if err != nil {
		return fail(SeekFailed)
	}
	if c := m.push32(uint32(st.Size())); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) dirOpen() stepResult {
	nameDesc, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeClosed)
	if c != NoError {
		return fail(c)
	}
	name, c := m.takeStringValue(nameDesc)
	if c != NoError {
		return fail(c)
	}

	entries, err := os.ReadDir(name)
	if err != nil {
		return fail(ReadFailed)
	}
	fd.name = name
	fd.mode = modeDir
	fd.dir = entries
	fd.dirAt = 0
	return next()
}

func (m *Machine) dirRead() stepResult {
	dst, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeDir)
	if c != NoError {
		return fail(c)
	}

	if fd.dirAt >= len(fd.dir) {
		if c := m.pushBool(false); c != NoError {
			return fail(c)
		}
		return next()
	}
	if c := m.setStringValue(dst, fd.dir[fd.dirAt].Name()); c != NoError {
		return fail(c)
	}
	fd.dirAt++
	if c := m.pushBool(true); c != NoError {
		return fail(c)
	}
	return next()
}

func (m *Machine) dirRewind() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeDir)
	if c != NoError {
		return fail(c)
	}
	fd.dirAt = 0
	return next()
}

func (m *Machine) dirClose() stepResult {
	n, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	fd, c := m.fdFor(n, modeDir)
	if c != NoError {
		return fail(c)
	}
	fd.dir = nil
	fd.dirAt = 0
	fd.mode = modeClosed
	return next()
}

// fileStat writes {size:4, mtime:4, flags:2, pad:2} at the target
// address and pushes 1, or pushes 0 when the host stat fails.
func (m *Machine) fileStat() stepResult {
	addr, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	nameDesc, c := m.pop()
	if c != NoError {
		return fail(c)
	}
	name, c := m.takeStringValue(nameDesc)
	if c != NoError {
		return fail(c)
	}

	st, err := os.Stat(name)
	if err != nil {
		if c := m.pushBool(false); c != NoError {
			return fail(c)
		}
		return next()
	}

	if c := m.mem.setLong(addr, uint32(st.Size())); c != NoError {
		return fail(c)
	}
	if c := m.mem.setLong(addr+4, uint32(st.ModTime().Unix())); c != NoError {
		return fail(c)
	}
	var flags uint16
	if st.IsDir() {
		flags |= 1
	}
	if c := m.mem.setWord(addr+8, flags); c != NoError {
		return fail(c)
	}
	if c := m.mem.setWord(addr+10, 0); c != NoError {
		return fail(c)
	}
	if c := m.pushBool(true); c != NoError {
		return fail(c)
	}
	return next()
}

// takeStringValue reads a descriptor's bytes as a host string and
// consumes the descriptor, honoring the one-free-per-temporary rule.
func (m *Machine) takeStringValue(d uint16) (string, Code) {
	s, c := m.readDesc(d)
	if c != NoError {
		return "", c
	}
	b, c := m.mem.bytes(s.data, int(s.size))
	if c != NoError {
		return "", c
	}
	v := string(b)
	return v, m.consumeString(d)
}
