package interp

import (
	"github.com/wippyai/clrvm/cil"
	"github.com/wippyai/clrvm/errors"
	"github.com/wippyai/clrvm/metadata"
)

// loadMethodBody reads a MethodDef's RVA, decodes its tiny-or-fat header
// (spec.md §4.E), and returns the raw CIL byte span that follows it. The
// exact body length isn't known until the header is decoded, so this
// first reads everything remaining in the owning section and then trims
// to the header's declared CodeSize.
// LoadMethodBody is the exported form, used by cmd/clrvm's -disasm flag to
// fetch a method's instruction bytes without running it.
func LoadMethodBody(asm *metadata.Assembly, methodTok metadata.Token) (*cil.MethodHeader, []byte, error) {
	return loadMethodBody(asm, methodTok)
}

func loadMethodBody(asm *metadata.Assembly, methodTok metadata.Token) (*cil.MethodHeader, []byte, error) {
	md, err := asm.Tables.MethodDef(methodTok)
	if err != nil {
		return nil, nil, err
	}

	section, ok := asm.Mapper.VirtualSection(md.RVA)
	if !ok {
		return nil, nil, errors.BadImage("method body rva has no owning section", 0)
	}
	avail := int(section.Header.VirtualAddress+section.Header.VirtualSize) - int(md.RVA)
	raw, err := asm.Mapper.BytesAt(md.RVA, avail)
	if err != nil {
		return nil, nil, err
	}

	header, err := cil.DecodeHeader(raw)
	if err != nil {
		return nil, nil, err
	}

	start := header.CodeOffset
	end := start + int(header.CodeSize)
	if end > len(raw) {
		return nil, nil, errors.BadImage("method body code size extends past its section", int64(md.RVA))
	}
	return header, raw[start:end], nil
}
