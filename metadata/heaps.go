package metadata

import (
	"unicode/utf16"

	"github.com/wippyai/clrvm/errors"
)

// decodeCompressedUint decodes one ECMA-335 §II.23.2 compressed unsigned
// integer from the front of b, returning the value and the number of bytes
// it occupied.
func decodeCompressedUint(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, errors.New(errors.PhaseMetadata, errors.KindBadImage).
			Detail("compressed integer: empty buffer").Build()
	}
	first := b[0]
	switch {
	case first&0x80 == 0:
		return uint32(first), 1, nil
	case first&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, errors.New(errors.PhaseMetadata, errors.KindBadImage).
				Detail("compressed integer: truncated 2-byte form").Build()
		}
		return uint32(first&0x3F)<<8 | uint32(b[1]), 2, nil
	case first&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, errors.New(errors.PhaseMetadata, errors.KindBadImage).
				Detail("compressed integer: truncated 4-byte form").Build()
		}
		return uint32(first&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	default:
		return 0, 0, errors.New(errors.PhaseMetadata, errors.KindBadImage).
			Detail("compressed integer: invalid leading byte 0x%02x", first).Build()
	}
}

// StringsHeap is the #Strings heap: NUL-terminated UTF-8 strings indexed
// by byte offset.
type StringsHeap struct{ data []byte }

// String returns the NUL-terminated string starting at the given offset.
func (h *StringsHeap) String(index uint32) (string, error) {
	if h == nil || int(index) >= len(h.data) {
		return "", errors.BadImage("#Strings index out of range", int64(index))
	}
	end := int(index)
	for end < len(h.data) && h.data[end] != 0 {
		end++
	}
	return string(h.data[index:end]), nil
}

// BlobHeap is the #Blob heap: length-prefixed (compressed integer) byte
// blobs indexed by byte offset.
type BlobHeap struct{ data []byte }

// Blob returns the blob at the given offset, excluding its length prefix.
func (h *BlobHeap) Blob(index uint32) ([]byte, error) {
	if h == nil || int(index) >= len(h.data) {
		return nil, errors.BadImage("#Blob index out of range", int64(index))
	}
	length, n, err := decodeCompressedUint(h.data[index:])
	if err != nil {
		return nil, err
	}
	start := int(index) + n
	end := start + int(length)
	if end > len(h.data) {
		return nil, errors.BadImage("#Blob entry extends past heap", int64(index))
	}
	return h.data[start:end], nil
}

// USHeap is the #US (user string) heap: length-prefixed UTF-16LE strings
// with a trailing flag byte, indexed by byte offset.
type USHeap struct{ data []byte }

// String returns the user string at the given offset, decoded from
// UTF-16LE. The trailing single-byte "has special chars" flag is dropped.
func (h *USHeap) String(index uint32) (string, error) {
	if h == nil || int(index) >= len(h.data) {
		return "", errors.BadImage("#US index out of range", int64(index))
	}
	length, n, err := decodeCompressedUint(h.data[index:])
	if err != nil {
		return "", err
	}
	start := int(index) + n
	if length == 0 {
		return "", nil
	}
	end := start + int(length) - 1 // last byte is the trailing flag, not UTF-16 data
	if end > len(h.data) || end < start {
		return "", errors.BadImage("#US entry extends past heap", int64(index))
	}
	raw := h.data[start:end]
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// GUIDHeap is the #GUID heap: a sequence of fixed 16-byte GUIDs, indexed
// 1-based per ECMA-335 convention.
type GUIDHeap struct{ data []byte }

// GUID returns the raw 16 bytes of the 1-based GUID index.
func (h *GUIDHeap) GUID(index uint32) ([16]byte, error) {
	var out [16]byte
	if h == nil || index == 0 || int(index-1)*16+16 > len(h.data) {
		return out, errors.BadImage("#GUID index out of range", int64(index))
	}
	copy(out[:], h.data[(index-1)*16:(index-1)*16+16])
	return out, nil
}
