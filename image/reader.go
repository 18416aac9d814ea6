// Package image parses the PE/CLI container (spec.md §4.A, §4.B): the
// byte-level DOS/COFF/Optional/CLR headers, section table, and the
// relative-virtual-address (RVA) to file-offset mapping that every later
// stage (metadata, CIL) is read through.
package image

import (
	"fmt"

	"github.com/wippyai/clrvm/errors"
)

// Reader is a little-endian, position-tracking cursor over an in-memory
// image. Unlike the teacher's WASM binary.Reader (which decodes LEB128
// variable-width integers), PE/CLI headers are fixed-width fields, so this
// Reader exposes fixed-size reads instead.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current byte offset.
func (r *Reader) Position() int { return r.pos }

// Seek moves the cursor to an absolute offset. It does not validate the
// offset against the buffer length; the next read will fail if it does.
func (r *Reader) Seek(pos int) { r.pos = pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

func (r *Reader) require(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return r.wrap(fmt.Errorf("need %d bytes, have %d", n, len(r.buf)-r.pos))
	}
	return nil
}

func (r *Reader) wrap(err error) error {
	return errors.BadImage(err.Error(), int64(r.pos))
}

// ReadBytes reads exactly n bytes and advances the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (byte, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// ReadCString reads an ASCII/UTF-8 string up to a NUL terminator or n
// bytes, whichever comes first, then skips the remaining padding bytes of
// a fixed-size n-byte field.
func (r *Reader) ReadCString(n int) (string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end]), nil
}
