// Package image reads and writes the code-image container that sits
// between the linker and the machine: a small little-endian header,
// the instruction stream, and the read-only data blob.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrBadMagic   = errors.New("image: bad magic")
	ErrBadVersion = errors.New("image: unsupported version")
	ErrTruncated  = errors.New("image: truncated file")
)

// Magic identifies a P-code machine image, version 1.
var Magic = [4]byte{'P', 'M', 'I', '1'}

const Version = 1

// Image is one loadable program plus the region sizes it was linked for.
type Image struct {
	Entry        uint16
	Code         []byte
	ReadOnlyData []byte

	StringStackSize uint16
	StackSize       uint16
	HeapSize        uint16
}

type header struct {
	Magic   [4]byte
	Version uint16
	Entry   uint16
	CodeLen uint16
	RoLen   uint16
	StrSize uint16
	StkSize uint16
	HpSize  uint16
}

// Read parses an image from r.
func Read(r io.Reader) (*Image, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if int(h.Entry) >= int(h.CodeLen) && h.CodeLen > 0 {
		return nil, fmt.Errorf("image: entry %d outside code of %d bytes", h.Entry, h.CodeLen)
	}

	img := &Image{
		Entry:           h.Entry,
		Code:            make([]byte, h.CodeLen),
		ReadOnlyData:    make([]byte, h.RoLen),
		StringStackSize: h.StrSize,
		StackSize:       h.StkSize,
		HeapSize:        h.HpSize,
	}
	if _, err := io.ReadFull(r, img.Code); err != nil {
		return nil, fmt.Errorf("%w: code", ErrTruncated)
	}
	if _, err := io.ReadFull(r, img.ReadOnlyData); err != nil {
		return nil, fmt.Errorf("%w: read-only data", ErrTruncated)
	}
	return img, nil
}

// Write emits the image to w.
func (img *Image) Write(w io.Writer) error {
	h := header{
		Magic:   Magic,
		Version: Version,
		Entry:   img.Entry,
		CodeLen: uint16(len(img.Code)),
		RoLen:   uint16(len(img.ReadOnlyData)),
		StrSize: img.StringStackSize,
		StkSize: img.StackSize,
		HpSize:  img.HeapSize,
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	if _, err := w.Write(img.Code); err != nil {
		return err
	}
	_, err := w.Write(img.ReadOnlyData)
	return err
}

// Load reads an image from a file on disk.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Save writes the image to a file on disk.
func (img *Image) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := img.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
