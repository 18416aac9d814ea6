package cil

import (
	"encoding/binary"

	"github.com/wippyai/clrvm/errors"
)

// The low 2 bits of a method header's first byte distinguish tiny from fat
// format (ECMA-335 §II.25.4.1/.4.2).
const (
	corILMethodTinyFormat = 0x2
	corILMethodFatFormat  = 0x3
)

// MethodHeader is the decoded tiny-or-fat prefix of a method body, per
// spec.md §4.E.
type MethodHeader struct {
	MaxStack       uint16
	CodeSize       uint32
	LocalVarSigTok uint32
	// CodeOffset is the byte offset within the method body blob at which
	// the CIL instruction stream begins.
	CodeOffset int
}

// DecodeHeader reads the tiny or fat method header at the start of body.
func DecodeHeader(body []byte) (*MethodHeader, error) {
	if len(body) == 0 {
		return nil, errors.BadImage("empty method body", 0)
	}

	switch body[0] & 0x3 {
	case corILMethodTinyFormat:
		return &MethodHeader{
			MaxStack:   8,
			CodeSize:   uint32(body[0] >> 2),
			CodeOffset: 1,
		}, nil
	case corILMethodFatFormat:
		if len(body) < 12 {
			return nil, errors.BadImage("truncated fat method header", 0)
		}
		flagsAndSize := binary.LittleEndian.Uint16(body[0:2])
		if flagsAndSize>>12 != 3 {
			return nil, errors.BadImage("fat method header declares non-standard size", 0)
		}
		return &MethodHeader{
			MaxStack:       binary.LittleEndian.Uint16(body[2:4]),
			CodeSize:       binary.LittleEndian.Uint32(body[4:8]),
			LocalVarSigTok: binary.LittleEndian.Uint32(body[8:12]),
			CodeOffset:     12,
		}, nil
	default:
		return nil, errors.BadImage("unrecognized method header format", 0)
	}
}
