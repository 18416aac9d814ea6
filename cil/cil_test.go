package cil

import "testing"

func TestDecodeHeader_Tiny(t *testing.T) {
	// CodeSize=3 tiny header: (3<<2)|corILMethodTinyFormat = 0x0E.
	body := []byte{0x0E, byte(Ret)}
	h, err := DecodeHeader(body)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.CodeOffset != 1 || h.CodeSize != 3 || h.MaxStack != 8 {
		t.Errorf("got %+v", h)
	}
}

func TestDecodeHeader_Fat(t *testing.T) {
	body := []byte{
		0x03, 0x30, // flags=0, size=3 dwords, format=fat
		0x08, 0x00, // MaxStack=8
		0x01, 0x00, 0x00, 0x00, // CodeSize=1
		0x00, 0x00, 0x00, 0x00, // LocalVarSigTok=0
		byte(Ret),
	}
	h, err := DecodeHeader(body)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.CodeOffset != 12 || h.CodeSize != 1 || h.MaxStack != 8 {
		t.Errorf("got %+v", h)
	}
}

func TestDecode_RetOnly(t *testing.T) {
	code := []byte{byte(Ret)}
	ins, err := Decode(code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ins.Opcode != Ret || ins.Size != 1 {
		t.Errorf("got %+v", ins)
	}
}

func TestDecode_ConstantRoundTrip(t *testing.T) {
	// ldc.i4.s 99 ; stloc.0 ; ldloc.0 ; pop ; ret
	code := []byte{byte(LdcI4S), 99, byte(StLoc0), byte(LdLoc0), byte(Pop), byte(Ret)}
	offset := 0
	var ops []Opcode
	for offset < len(code) {
		ins, err := Decode(code, offset)
		if err != nil {
			t.Fatalf("Decode at %d: %v", offset, err)
		}
		ops = append(ops, ins.Opcode)
		if ins.Opcode == LdcI4S && ins.Int != 99 {
			t.Errorf("ldc.i4.s operand = %d, want 99", ins.Int)
		}
		offset = ins.NextOffset()
	}
	want := []Opcode{LdcI4S, StLoc0, LdLoc0, Pop, Ret}
	if len(ops) != len(want) {
		t.Fatalf("decoded %d instructions, want %d", len(ops), len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op[%d] = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestDecode_BranchSkipsInstruction(t *testing.T) {
	// br.s +5 ; ldc.i4 99 (skipped, 5 bytes) ; ret
	code := []byte{byte(BrS), 5, byte(LdcI4), 99, 0, 0, 0, byte(Ret)}
	ins, err := Decode(code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	target := ins.BranchTarget()
	if target != 7 {
		t.Fatalf("BranchTarget() = %d, want 7", target)
	}
	next, err := Decode(code, target)
	if err != nil {
		t.Fatalf("Decode at target: %v", err)
	}
	if next.Opcode != Ret {
		t.Errorf("instruction at branch target = %s, want ret", next.Opcode)
	}
}

func TestDecode_UnimplementedOpcode(t *testing.T) {
	code := []byte{0xFF}
	_, err := Decode(code, 0)
	if err == nil {
		t.Fatal("expected Unimplemented error for opcode 0xFF")
	}
}

func TestDisassemble_ListsEveryInstruction(t *testing.T) {
	code := []byte{byte(Nop), byte(LdcI40), byte(Pop), byte(Ret)}
	out := Disassemble(code)
	for _, want := range []string{"nop", "ldc.i4.0", "pop", "ret"} {
		if !contains(out, want) {
			t.Errorf("Disassemble output missing %q:\n%s", want, out)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
