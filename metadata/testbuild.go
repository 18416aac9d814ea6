package metadata

import "encoding/binary"

// StrBuilder accumulates a #Strings heap, always starting with the
// mandatory empty string at index 0, and hands back byte offsets for
// later embedding in table rows. Exported (not _test.go) so the interp
// package's tests can build fixtures sharing the same metadata-root
// assembly logic, mirroring how image.Builder is shared.
type StrBuilder struct {
	buf []byte
	idx map[string]uint32
}

// NewStrBuilder returns an empty heap builder.
func NewStrBuilder() *StrBuilder {
	return &StrBuilder{buf: []byte{0}, idx: map[string]uint32{"": 0}}
}

// Add interns str and returns its byte offset.
func (s *StrBuilder) Add(str string) uint16 {
	if off, ok := s.idx[str]; ok {
		return uint16(off)
	}
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(str)...)
	s.buf = append(s.buf, 0)
	s.idx[str] = off
	return uint16(off)
}

// Bytes returns the accumulated heap bytes.
func (s *StrBuilder) Bytes() []byte { return s.buf }

// PaddedName NUL-terminates name and pads it to a 4-byte boundary, the
// stream-header name encoding spec.md §4.C requires.
func PaddedName(name string) []byte {
	b := append([]byte(name), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// RootStream is one named stream to embed in a metadata root.
type RootStream struct {
	Name string
	Data []byte
}

// BuildRoot assembles a metadata root with the given streams, computing
// stream offsets from actual header/stream lengths rather than hand
// counted constants.
func BuildRoot(streams []RootStream) []byte {
	version := append([]byte("v4.0.30319"), 0)
	for len(version)%4 != 0 {
		version = append(version, 0)
	}

	headerLen := 4 + 2 + 2 + 4 + 4 + len(version) + 2 + 2
	for _, s := range streams {
		headerLen += 4 + 4 + len(PaddedName(s.Name))
	}

	var out []byte
	out = binary.LittleEndian.AppendUint32(out, 0x424A5342)
	out = binary.LittleEndian.AppendUint16(out, 1) // major
	out = binary.LittleEndian.AppendUint16(out, 1) // minor
	out = binary.LittleEndian.AppendUint32(out, 0) // reserved
	out = binary.LittleEndian.AppendUint32(out, uint32(len(version)))
	out = append(out, version...)
	out = binary.LittleEndian.AppendUint16(out, 0)                   // flags
	out = binary.LittleEndian.AppendUint16(out, uint16(len(streams))) // stream count

	offset := uint32(headerLen)
	offsets := make([]uint32, len(streams))
	for i, s := range streams {
		offsets[i] = offset
		offset += uint32(len(s.Data))
	}
	for i, s := range streams {
		out = binary.LittleEndian.AppendUint32(out, offsets[i])
		out = binary.LittleEndian.AppendUint32(out, uint32(len(s.Data)))
		out = append(out, PaddedName(s.Name)...)
	}
	for _, s := range streams {
		out = append(out, s.Data...)
	}
	return out
}

// BuildTilde assembles a #~ stream from per-table rows.
func BuildTilde(rows map[TableID][][]byte) []byte {
	var valid uint64
	for id, rs := range rows {
		if len(rs) > 0 {
			valid |= 1 << uint(id)
		}
	}

	var out []byte
	out = binary.LittleEndian.AppendUint32(out, 0) // reserved
	out = append(out, 2, 0)                        // major, minor
	out = append(out, 0)                           // heap sizes: small heaps only
	out = append(out, 0)                           // reserved2
	out = binary.LittleEndian.AppendUint64(out, valid)
	out = binary.LittleEndian.AppendUint64(out, 0) // sorted

	for id := TableID(0); id < 64; id++ {
		if n := len(rows[id]); n > 0 {
			out = binary.LittleEndian.AppendUint32(out, uint32(n))
		}
	}
	for id := TableID(0); id < 64; id++ {
		for _, row := range rows[id] {
			out = append(out, row...)
		}
	}
	return out
}

// U16Row packs fields as consecutive little-endian uint16s, the shape
// every fixed-width metadata row narrower than 32 bits is built from.
func U16Row(fields ...uint16) []byte {
	var b []byte
	for _, f := range fields {
		b = binary.LittleEndian.AppendUint16(b, f)
	}
	return b
}
