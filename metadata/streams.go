package metadata

import (
	"encoding/binary"

	"github.com/wippyai/clrvm/errors"
	"github.com/wippyai/clrvm/image"
)

// StreamHeader describes one stream directory entry within the metadata
// root: its byte offset (relative to the root) and size.
type StreamHeader struct {
	Offset uint32
	Size   uint32
}

// MetadataRoot is the parsed "BSJB" header plus its stream directory.
// Stream bytes are sliced directly out of root, so root must outlive any
// StreamHeader-derived slice.
type MetadataRoot struct {
	VersionString string
	root          []byte
	Streams       map[string]StreamHeader
}

// ParseMetadataRoot parses the metadata root located at CLRHeader.MetaData,
// per spec.md §4.C / §6.1: signature, version string, then a stream
// directory of (offset, size, name) triples.
func ParseMetadataRoot(data []byte) (*MetadataRoot, error) {
	r := image.NewReader(data)

	sigPos := r.Position()
	sig, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if sig != image.MetadataRootSignature {
		return nil, errors.BadImage("bad metadata root signature", int64(sigPos))
	}

	if _, err := r.ReadU16(); err != nil { // MajorVersion
		return nil, err
	}
	if _, err := r.ReadU16(); err != nil { // MinorVersion
		return nil, err
	}
	if _, err := r.ReadU32(); err != nil { // Reserved
		return nil, err
	}

	verLen, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	verBytes, err := r.ReadBytes(int(verLen))
	if err != nil {
		return nil, err
	}
	end := 0
	for end < len(verBytes) && verBytes[end] != 0 {
		end++
	}
	version := string(verBytes[:end])

	if _, err := r.ReadU16(); err != nil { // Flags
		return nil, err
	}
	streamCount, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	streams := make(map[string]StreamHeader, streamCount)
	for i := 0; i < int(streamCount); i++ {
		offset, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		name, err := readPaddedName(r)
		if err != nil {
			return nil, err
		}
		streams[name] = StreamHeader{Offset: offset, Size: size}
	}

	return &MetadataRoot{VersionString: version, root: data, Streams: streams}, nil
}

// readPaddedName reads a NUL-terminated ASCII name whose total field width
// (including the terminator) is padded up to a multiple of 4 bytes.
func readPaddedName(r *image.Reader) (string, error) {
	var name []byte
	n := 0
	for {
		c, err := r.ReadU8()
		if err != nil {
			return "", err
		}
		n++
		if c == 0 {
			break
		}
		name = append(name, c)
	}
	for n%4 != 0 {
		if _, err := r.ReadU8(); err != nil {
			return "", err
		}
		n++
	}
	return string(name), nil
}

// Bytes returns the stream's raw byte slice within the metadata root.
func (h StreamHeader) Bytes(root *MetadataRoot) ([]byte, error) {
	if int(h.Offset)+int(h.Size) > len(root.root) {
		return nil, errors.BadImage("stream extends past metadata root", int64(h.Offset))
	}
	return root.root[h.Offset : h.Offset+h.Size], nil
}

// tildeHeader is the fixed 24-byte prefix of the #~ stream (ECMA-335
// §II.24.2.6), followed by the Valid/Sorted bitmasks and per-table row
// counts.
type tildeHeader struct {
	HeapSizes byte
	Valid     uint64
	Sorted    uint64
}

// parseTilde parses the #~ stream: its fixed header, the Valid bitmask's
// row-count array, then slices each present table into fixed-width rows
// per RowWidths. It enforces the small-heap assumption (spec.md §6.3):
// any heap-size flag signaling 4-byte heap indices, and any table with more
// rows than a 2-byte index can address, is rejected outright rather than
// silently misread, since RowWidths assumes 2-byte indices throughout.
func parseTilde(data []byte) (*Tables, error) {
	r := image.NewReader(data)

	if _, err := r.ReadU32(); err != nil { // Reserved
		return nil, err
	}
	if _, err := r.ReadU8(); err != nil { // MajorVersion
		return nil, err
	}
	if _, err := r.ReadU8(); err != nil { // MinorVersion
		return nil, err
	}
	heapSizes, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	if heapSizes&(heapFlagLargeStrings|heapFlagLargeGUID|heapFlagLargeBlob) != 0 {
		return nil, errors.UnsupportedImage("image requires large (4-byte) heap indices, which this implementation does not support")
	}
	if _, err := r.ReadU8(); err != nil { // Reserved2 (padding byte)
		return nil, err
	}
	valid, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	sorted, err := r.ReadU64()
	if err != nil {
		return nil, err
	}

	var rowCounts [64]uint32
	for i := 0; i < 64; i++ {
		if valid&(1<<uint(i)) == 0 {
			continue
		}
		count, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if count > 0xFFFF {
			return nil, errors.UnsupportedImage(TableID(i).String() + " table has more rows than 2-byte table indices can address")
		}
		rowCounts[i] = count
	}

	t := &Tables{valid: valid, sorted: sorted, rowCounts: rowCounts}
	for i := 0; i < 64; i++ {
		if rowCounts[i] == 0 {
			continue
		}
		width := RowWidths[i]
		if width == 0 {
			return nil, errors.UnsupportedImage(TableID(i).String() + " table has rows but a zero row width in this implementation")
		}
		rows := make([][]byte, rowCounts[i])
		for row := uint32(0); row < rowCounts[i]; row++ {
			b, err := r.ReadBytes(width)
			if err != nil {
				return nil, err
			}
			rows[row] = b
		}
		t.rows[i] = rows
	}

	return t, nil
}

// le16 / le32 read a little-endian field out of a raw row slice at the
// given byte offset; row decoders use these rather than re-wrapping a
// Reader for every field.
func le16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func le32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
