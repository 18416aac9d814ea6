package image

import "encoding/binary"

// Builder assembles a minimal, byte-exact PE/CLI image for tests. It is
// exported (not _test.go) so the metadata and interp packages' tests can
// build fixtures without duplicating this layout knowledge, mirroring how
// the teacher's wasm_test.go hand-assembles WASM module bytes rather than
// relying on a real compiled fixture.
type Builder struct {
	// SectionData is placed inside the single emitted section at RVA
	// SectionVA+CLRHeaderSize, immediately after a synthetic CLR header;
	// it is expected to contain the metadata root itself.
	SectionData  []byte
	MetaDataRVA  uint32 // RVA of the metadata root relative to SectionData
	MetaDataSize uint32
	EntryPoint   uint32
	StackReserve uint64
}

// NewBuilder returns a Builder with a 1MiB stack reserve; the caller sets
// SectionData/MetaDataRVA/MetaDataSize/EntryPoint before calling Build.
func NewBuilder() *Builder {
	return &Builder{StackReserve: 1 << 20}
}

// SectionVA is the fixed virtual address Build() places its single .text
// section at. Exported so callers can compute the absolute RVA of bytes
// they appended into SectionData themselves (e.g. method bodies placed
// after the metadata root).
const SectionVA = 0x2000

type byteWriter struct{ b []byte }

func (w *byteWriter) u8(v byte)    { w.b = append(w.b, v) }
func (w *byteWriter) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *byteWriter) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *byteWriter) u64(v uint64) { w.b = binary.LittleEndian.AppendUint64(w.b, v) }
func (w *byteWriter) bytes(v []byte) { w.b = append(w.b, v...) }
func (w *byteWriter) zeros(n int)    { w.b = append(w.b, make([]byte, n)...) }
func (w *byteWriter) cstr(n int, s string) {
	b := make([]byte, n)
	copy(b, s)
	w.b = append(w.b, b...)
}

// Build emits the full image: DOS stub, COFF header, PE32+ optional header
// with CLRRuntimeHeaderDirectory populated, one ".text" section containing
// a synthetic CLR header followed by the caller's SectionData (which is
// expected to itself contain a metadata root at offset MetaDataRVA).
func (b *Builder) Build() []byte {
	clrHeader := &byteWriter{}
	clrHeader.u32(CLRHeaderSizeField)
	clrHeader.u16(2) // MajorRuntimeVersion
	clrHeader.u16(5) // MinorRuntimeVersion
	metaDataRVAAbs := SectionVA + uint32(CLRHeaderSize) + b.MetaDataRVA
	clrHeader.u32(metaDataRVAAbs)
	clrHeader.u32(b.MetaDataSize)
	clrHeader.u32(0) // Flags
	clrHeader.u32(b.EntryPoint)
	clrHeader.zeros(8 * 6) // Resources..ManagedNativeHeader directories

	body := append(clrHeader.b, b.SectionData...)

	numDirs := uint32(CLRRuntimeHeaderDirectory + 1)

	opt := &byteWriter{}
	opt.u16(OptionalHeaderMagicPE32Plus)
	opt.u8(0) // MajorLinkerVersion
	opt.u8(0) // MinorLinkerVersion
	opt.u32(0) // SizeOfCode
	opt.u32(0) // SizeOfInitializedData
	opt.u32(0) // SizeOfUninitializedData
	opt.u32(0) // AddressOfEntryPoint
	opt.u32(0) // BaseOfCode
	opt.u64(0x400000) // ImageBase
	opt.u32(0x2000)   // SectionAlignment
	opt.u32(0x200)    // FileAlignment
	opt.u16(0) // MajorOperatingSystemVersion
	opt.u16(0) // MinorOperatingSystemVersion
	opt.u16(0) // MajorImageVersion
	opt.u16(0) // MinorImageVersion
	opt.u16(4) // MajorSubsystemVersion
	opt.u16(0) // MinorSubsystemVersion
	opt.u32(0) // Win32VersionValue
	opt.u32(0) // SizeOfImage
	opt.u32(0) // SizeOfHeaders
	opt.u32(0) // CheckSum
	opt.u16(3) // Subsystem: console
	opt.u16(0) // DllCharacteristics
	opt.u64(b.StackReserve) // SizeOfStackReserve
	opt.u64(0x1000)         // SizeOfStackCommit
	opt.u64(0x100000)       // SizeOfHeapReserve
	opt.u64(0x1000)         // SizeOfHeapCommit
	opt.u32(0)              // LoaderFlags
	opt.u32(numDirs)        // NumberOfRvaAndSizes

	dataDirStart := len(opt.b)
	for i := uint32(0); i < numDirs; i++ {
		opt.u32(0)
		opt.u32(0)
	}
	clrDirOff := dataDirStart + CLRRuntimeHeaderDirectory*8
	binary.LittleEndian.PutUint32(opt.b[clrDirOff:], SectionVA)
	binary.LittleEndian.PutUint32(opt.b[clrDirOff+4:], uint32(len(body)))

	coff := &byteWriter{}
	coff.u16(0x8664) // Machine: x64
	coff.u16(1)      // NumberOfSections
	coff.u32(0)      // TimeDateStamp
	coff.u32(0)      // PointerToSymbolTable
	coff.u32(0)      // NumberOfSymbols
	coff.u16(uint16(len(opt.b))) // SizeOfOptionalHeader
	coff.u16(0x0002)             // Characteristics: executable

	section := &byteWriter{}
	section.cstr(8, ".text")
	section.u32(uint32(len(body))) // VirtualSize
	section.u32(SectionVA)         // VirtualAddress
	section.u32(uint32(len(body))) // SizeOfRawData
	pointerToRawDataPos := len(section.b)
	section.u32(0) // PointerToRawData, patched below
	section.u32(0) // PointerToRelocations
	section.u32(0) // PointerToLinenumbers
	section.u16(0) // NumberOfRelocations
	section.u16(0) // NumberOfLinenumbers
	section.u32(0) // Characteristics

	out := &byteWriter{}
	out.zeros(DOSHeaderSize)
	binary.LittleEndian.PutUint16(out.b[0:], DOSSignature)
	binary.LittleEndian.PutUint32(out.b[CoffHeaderOffsetField:], DOSHeaderSize)

	out.u32(PESignature)
	out.bytes(coff.b)
	out.bytes(opt.b)
	out.bytes(section.b)

	for len(out.b)%0x200 != 0 {
		out.u8(0)
	}
	pointerToRawData := uint32(len(out.b))
	sectionHeaderAbs := DOSHeaderSize + 4 + len(coff.b) + len(opt.b)
	binary.LittleEndian.PutUint32(out.b[sectionHeaderAbs+pointerToRawDataPos:], pointerToRawData)

	out.bytes(body)

	return out.b
}
