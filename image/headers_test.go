package image

import "testing"

func TestParseHeaders_MinimalImage(t *testing.T) {
	b := NewBuilder()
	b.EntryPoint = 0x06000001
	b.StackReserve = 2 << 20
	data := b.Build()

	h, err := ParseHeaders(data)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	if h.Optional.SizeOfStackReserve != 2<<20 {
		t.Errorf("SizeOfStackReserve = %d, want %d", h.Optional.SizeOfStackReserve, 2<<20)
	}
	if h.CLR.EntryPointToken != 0x06000001 {
		t.Errorf("EntryPointToken = 0x%x, want 0x06000001", h.CLR.EntryPointToken)
	}
	if len(h.Sections) != 1 {
		t.Fatalf("len(Sections) = %d, want 1", len(h.Sections))
	}
	if h.Sections[0].Name != ".text" {
		t.Errorf("section name = %q", h.Sections[0].Name)
	}
}

func TestParseHeaders_BadDOSSignature(t *testing.T) {
	b := NewBuilder()
	data := b.Build()
	data[0] = 0 // corrupt "MZ"

	if _, err := ParseHeaders(data); err == nil {
		t.Fatal("expected error for bad DOS signature")
	}
}

func TestParseHeaders_TruncatedImage(t *testing.T) {
	b := NewBuilder()
	data := b.Build()

	if _, err := ParseHeaders(data[:10]); err == nil {
		t.Fatal("expected error for truncated image")
	}
}

func TestRVAMapper_VirtualSection(t *testing.T) {
	sd := make([]byte, 256)
	b := NewBuilder()
	b.SectionData = sd
	data := b.Build()

	h, err := ParseHeaders(data)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}

	mapper := NewRVAMapper(h.Sections, data)

	// Every rva in [VA, VA+size) must map back to the same section
	// (spec.md §8's universally quantified section invariant).
	sec := h.Sections[0]
	for _, rva := range []uint32{sec.VirtualAddress, sec.VirtualAddress + sec.VirtualSize - 1} {
		got, ok := mapper.VirtualSection(rva)
		if !ok {
			t.Fatalf("VirtualSection(0x%x) not found", rva)
		}
		if got.Header.VirtualAddress != sec.VirtualAddress {
			t.Errorf("VirtualSection(0x%x) = %+v, want section at 0x%x", rva, got.Header, sec.VirtualAddress)
		}
	}

	if _, ok := mapper.VirtualSection(sec.VirtualAddress + sec.VirtualSize); ok {
		t.Error("VirtualSection should not find a section past its end")
	}
}

func TestSection_BytesAt_EscapesSection(t *testing.T) {
	sd := make([]byte, 16)
	b := NewBuilder()
	b.SectionData = sd
	data := b.Build()

	h, err := ParseHeaders(data)
	if err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	mapper := NewRVAMapper(h.Sections, data)
	sec := h.Sections[0]

	if _, err := mapper.BytesAt(sec.VirtualAddress, int(sec.VirtualSize)); err != nil {
		t.Errorf("reading the full section should succeed: %v", err)
	}
	if _, err := mapper.BytesAt(sec.VirtualAddress, int(sec.VirtualSize)+1); err == nil {
		t.Error("reading past the section end should fail")
	}
}
