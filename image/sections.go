package image

import "github.com/wippyai/clrvm/errors"

// Section pairs a validated section header with the byte span it maps to
// in the underlying image buffer.
type Section struct {
	Header SectionHeader
	data   []byte
	offset int // file offset of Header.PointerToRawData within data
}

// Contains reports whether rva falls within this section's virtual range,
// per spec.md §3's Section invariant: virtualAddress ≤ rva < virtualAddress+virtualSize.
func (s Section) Contains(rva uint32) bool {
	return rva >= s.Header.VirtualAddress && rva < s.Header.VirtualAddress+s.Header.VirtualSize
}

// BytesAt returns the n-byte span starting at rva within this section,
// failing with BadImage if rva+n escapes the section's virtual size
// (spec.md §4.A).
func (s Section) BytesAt(rva uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.BadImage("negative read length", 0)
	}
	end := uint64(rva) + uint64(n)
	if !s.Contains(rva) || end > uint64(s.Header.VirtualAddress)+uint64(s.Header.VirtualSize) {
		return nil, errors.New(errors.PhaseDecode, errors.KindBadImage).
			Detail("rva 0x%x+%d escapes section %q (va=0x%x size=0x%x)",
				rva, n, s.Header.Name, s.Header.VirtualAddress, s.Header.VirtualSize).Build()
	}
	fileOff := s.offset + int(rva-s.Header.VirtualAddress)
	if fileOff+n > len(s.data) {
		return nil, errors.BadImage("section byte range exceeds image buffer", int64(fileOff))
	}
	return s.data[fileOff : fileOff+n], nil
}

// RVAMapper resolves relative virtual addresses against a section table,
// per spec.md §4.A.
type RVAMapper struct {
	sections []Section
}

// NewRVAMapper builds a mapper over the given section headers and the raw
// image bytes they were parsed from.
func NewRVAMapper(headers []SectionHeader, data []byte) *RVAMapper {
	sections := make([]Section, len(headers))
	for i, h := range headers {
		sections[i] = Section{Header: h, data: data, offset: int(h.PointerToRawData)}
	}
	return &RVAMapper{sections: sections}
}

func toSections(headers []SectionHeader, data []byte) []Section {
	return NewRVAMapper(headers, data).sections
}

// VirtualSection returns the unique section whose virtual range contains
// rva, or (Section{}, false) if none does.
func (m *RVAMapper) VirtualSection(rva uint32) (Section, bool) {
	for _, s := range m.sections {
		if s.Contains(rva) {
			return s, true
		}
	}
	return Section{}, false
}

// BytesAt finds the owning section for rva and returns its n-byte span.
func (m *RVAMapper) BytesAt(rva uint32, n int) ([]byte, error) {
	s, ok := m.VirtualSection(rva)
	if !ok {
		return nil, errors.BadImage("rva has no owning section", 0)
	}
	return s.BytesAt(rva, n)
}

func rvaToFileOffset(sections []Section, rva uint32, n int) (int, error) {
	for _, s := range sections {
		if s.Contains(rva) {
			if _, err := s.BytesAt(rva, n); err != nil {
				return 0, err
			}
			return s.offset + int(rva-s.Header.VirtualAddress), nil
		}
	}
	return 0, errors.BadImage("rva has no owning section", 0)
}
