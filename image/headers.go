package image

import "github.com/wippyai/clrvm/errors"

// DataDirectory is one entry of the optional header's data directory array.
type DataDirectory struct {
	RVA  uint32
	Size uint32
}

// COFFHeader is the fixed-size COFF file header that follows the DOS stub.
type COFFHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// OptionalHeader is the PE32+ optional header. Only the fields this
// specification actually consumes (stack reserve size, data directory
// count) are given descriptive names beyond what validation requires;
// every field is still read in declared order, field-by-field, per
// spec.md §4.B's "no in-place casts" requirement.
type OptionalHeader struct {
	Magic                       uint16
	MajorLinkerVersion          byte
	MinorLinkerVersion          byte
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders                uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectories             []DataDirectory
}

// CLRHeader is IMAGE_COR20_HEADER: the ".NET" runtime header located via
// the CLRRuntimeHeaderDirectory data directory.
type CLRHeader struct {
	Cb                      uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               DataDirectory
	StrongNameSignature     DataDirectory
	CodeManagerTable        DataDirectory
	VTableFixups            DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader     DataDirectory
}

// SectionHeader is one IMAGE_SECTION_HEADER row from the section table.
type SectionHeader struct {
	Name                 string
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// Headers is the fully validated, parsed header set for one image.
type Headers struct {
	COFF     COFFHeader
	Optional OptionalHeader
	Sections []SectionHeader
	CLR      CLRHeader
}

// ParseHeaders sequentially validates DOS -> COFF -> Optional -> data
// directories -> section headers -> CLR runtime header, per spec.md §4.B.
// Any validation failure raises errors.KindBadImage with the offset at
// which the mismatch was detected.
func ParseHeaders(buf []byte) (*Headers, error) {
	r := NewReader(buf)

	if err := parseDOSHeader(r); err != nil {
		return nil, err
	}

	coff, err := parseCOFFHeader(r)
	if err != nil {
		return nil, err
	}

	optionalStart := r.Position()
	opt, err := parseOptionalHeader(r)
	if err != nil {
		return nil, err
	}
	if got := r.Position() - optionalStart; got > int(coff.SizeOfOptionalHeader) {
		return nil, errors.BadImage("optional header longer than SizeOfOptionalHeader declares", int64(optionalStart))
	}

	// Section headers immediately follow the optional header, regardless
	// of how many data-directory bytes we actually interpreted.
	r.Seek(optionalStart + int(coff.SizeOfOptionalHeader))

	sections, err := parseSectionHeaders(r, int(coff.NumberOfSections))
	if err != nil {
		return nil, err
	}

	h := &Headers{COFF: *coff, Optional: *opt, Sections: sections}

	clr, err := parseCLRHeader(buf, h)
	if err != nil {
		return nil, err
	}
	h.CLR = *clr

	return h, nil
}

func parseDOSHeader(r *Reader) error {
	sig, err := r.ReadU16()
	if err != nil {
		return err
	}
	if sig != DOSSignature {
		return errors.BadImage("bad DOS signature", 0)
	}
	r.Seek(CoffHeaderOffsetField)
	lfanew, err := r.ReadU32()
	if err != nil {
		return err
	}
	r.Seek(int(lfanew))
	return nil
}

func parseCOFFHeader(r *Reader) (*COFFHeader, error) {
	peSigStart := r.Position()
	sig, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if sig != PESignature {
		return nil, errors.BadImage("bad PE signature", int64(peSigStart))
	}

	var h COFFHeader
	if h.Machine, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.NumberOfSections, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.TimeDateStamp, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.PointerToSymbolTable, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.NumberOfSymbols, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.SizeOfOptionalHeader, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if h.Characteristics, err = r.ReadU16(); err != nil {
		return nil, err
	}
	return &h, nil
}

func parseOptionalHeader(r *Reader) (*OptionalHeader, error) {
	var o OptionalHeader
	var err error

	magicPos := r.Position()
	if o.Magic, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.Magic != OptionalHeaderMagicPE32Plus {
		return nil, errors.BadImage("optional header is not PE32+", int64(magicPos))
	}
	if o.MajorLinkerVersion, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if o.MinorLinkerVersion, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if o.SizeOfCode, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.SizeOfInitializedData, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.SizeOfUninitializedData, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.AddressOfEntryPoint, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.BaseOfCode, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.ImageBase, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if o.SectionAlignment, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.FileAlignment, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.MajorOperatingSystemVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.MinorOperatingSystemVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.MajorImageVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.MinorImageVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.MajorSubsystemVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.MinorSubsystemVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.Win32VersionValue, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.SizeOfImage, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.SizeOfHeaders, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.CheckSum, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.Subsystem, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.DllCharacteristics, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if o.SizeOfStackReserve, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if o.SizeOfStackCommit, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if o.SizeOfHeapReserve, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if o.SizeOfHeapCommit, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if o.LoaderFlags, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if o.NumberOfRvaAndSizes, err = r.ReadU32(); err != nil {
		return nil, err
	}

	o.DataDirectories = make([]DataDirectory, o.NumberOfRvaAndSizes)
	for i := range o.DataDirectories {
		if o.DataDirectories[i].RVA, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if o.DataDirectories[i].Size, err = r.ReadU32(); err != nil {
			return nil, err
		}
	}

	return &o, nil
}

func parseSectionHeaders(r *Reader, count int) ([]SectionHeader, error) {
	sections := make([]SectionHeader, count)
	for i := 0; i < count; i++ {
		var s SectionHeader
		name, err := r.ReadCString(8)
		if err != nil {
			return nil, err
		}
		s.Name = name
		if s.VirtualSize, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.VirtualAddress, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.SizeOfRawData, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.PointerToRawData, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.PointerToRelocations, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.PointerToLinenumbers, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if s.NumberOfRelocations, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if s.NumberOfLinenumbers, err = r.ReadU16(); err != nil {
			return nil, err
		}
		if s.Characteristics, err = r.ReadU32(); err != nil {
			return nil, err
		}
		sections[i] = s
	}
	return sections, nil
}

func parseCLRHeader(buf []byte, h *Headers) (*CLRHeader, error) {
	if int(CLRRuntimeHeaderDirectory) >= len(h.Optional.DataDirectories) {
		return nil, errors.BadImage("image has no CLR runtime header directory", 0)
	}
	dir := h.Optional.DataDirectories[CLRRuntimeHeaderDirectory]
	if dir.RVA == 0 {
		return nil, errors.BadImage("image is not a managed (CLI) executable", 0)
	}

	sections := toSections(h.Sections, buf)
	off, err := rvaToFileOffset(sections, dir.RVA, CLRHeaderSize)
	if err != nil {
		return nil, err
	}

	r := NewReader(buf)
	r.Seek(off)

	var c CLRHeader
	if c.Cb, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if c.Cb != CLRHeaderSizeField {
		return nil, errors.BadImage("bad CLR header signature (cb field)", int64(off))
	}
	if c.MajorRuntimeVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if c.MinorRuntimeVersion, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if c.MetaData.RVA, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if c.MetaData.Size, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if c.Flags, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if c.EntryPointToken, err = r.ReadU32(); err != nil {
		return nil, err
	}
	for _, dd := range []*DataDirectory{&c.Resources, &c.StrongNameSignature, &c.CodeManagerTable, &c.VTableFixups, &c.ExportAddressTableJumps, &c.ManagedNativeHeader} {
		if dd.RVA, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if dd.Size, err = r.ReadU32(); err != nil {
			return nil, err
		}
	}

	return &c, nil
}
