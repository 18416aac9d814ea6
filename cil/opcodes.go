package cil

// Opcode is a single-byte CIL instruction opcode. Only the normative
// subset named in spec.md §6.4 has a named constant; any other byte value
// decodes to Unimplemented.
type Opcode byte

const (
	Nop     Opcode = 0x00
	Brk     Opcode = 0x01
	LdArg0  Opcode = 0x02
	LdArg1  Opcode = 0x03
	LdArg2  Opcode = 0x04
	LdArg3  Opcode = 0x05
	LdLoc0  Opcode = 0x06
	LdLoc1  Opcode = 0x07
	LdLoc2  Opcode = 0x08
	LdLoc3  Opcode = 0x09
	StLoc0  Opcode = 0x0A
	StLoc1  Opcode = 0x0B
	StLoc2  Opcode = 0x0C
	StLoc3  Opcode = 0x0D
	LdArgS  Opcode = 0x0E
	LdLocS  Opcode = 0x11
	LdLocaS Opcode = 0x12
	StLocS  Opcode = 0x13
	LdcI4M1 Opcode = 0x15
	LdcI40  Opcode = 0x16
	LdcI41  Opcode = 0x17
	LdcI42  Opcode = 0x18
	LdcI43  Opcode = 0x19
	LdcI44  Opcode = 0x1A
	LdcI45  Opcode = 0x1B
	LdcI46  Opcode = 0x1C
	LdcI47  Opcode = 0x1D
	LdcI48  Opcode = 0x1E
	LdcI4S  Opcode = 0x1F
	LdcI4   Opcode = 0x20
	LdcI8   Opcode = 0x21
	LdcR4   Opcode = 0x22
	LdcR8   Opcode = 0x23
	Pop     Opcode = 0x26
	Call    Opcode = 0x28
	Ret     Opcode = 0x2A
	BrS     Opcode = 0x2B
	Br      Opcode = 0x38
	Ldstr   Opcode = 0x72
	Newobj  Opcode = 0x73
	Ldsfld  Opcode = 0x7E
	Ldsflda Opcode = 0x7F
	Stsfld  Opcode = 0x80
)

var mnemonics = map[Opcode]string{
	Nop: "nop", Brk: "break",
	LdArg0: "ldarg.0", LdArg1: "ldarg.1", LdArg2: "ldarg.2", LdArg3: "ldarg.3", LdArgS: "ldarg.s",
	LdLoc0: "ldloc.0", LdLoc1: "ldloc.1", LdLoc2: "ldloc.2", LdLoc3: "ldloc.3", LdLocS: "ldloc.s",
	StLoc0: "stloc.0", StLoc1: "stloc.1", StLoc2: "stloc.2", StLoc3: "stloc.3", StLocS: "stloc.s",
	LdLocaS: "ldloca.s",
	LdcI4M1: "ldc.i4.m1", LdcI40: "ldc.i4.0", LdcI41: "ldc.i4.1", LdcI42: "ldc.i4.2",
	LdcI43: "ldc.i4.3", LdcI44: "ldc.i4.4", LdcI45: "ldc.i4.5", LdcI46: "ldc.i4.6",
	LdcI47: "ldc.i4.7", LdcI48: "ldc.i4.8", LdcI4S: "ldc.i4.s", LdcI4: "ldc.i4",
	LdcI8: "ldc.i8", LdcR4: "ldc.r4", LdcR8: "ldc.r8",
	Pop: "pop", Call: "call", Ret: "ret", BrS: "br.s", Br: "br",
	Ldstr: "ldstr", Newobj: "newobj",
	Ldsfld: "ldsfld", Ldsflda: "ldsflda", Stsfld: "stsfld",
}

func (op Opcode) String() string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return "unimplemented"
}

// ArgLocal maps the fixed-slot ldarg/ldloc/stloc opcodes to their implied
// local/argument index; it returns (0, false) for opcodes without an
// implied index (including the .s forms, whose index is an operand).
func (op Opcode) ArgLocal() (int, bool) {
	switch op {
	case LdArg0, LdLoc0, StLoc0:
		return 0, true
	case LdArg1, LdLoc1, StLoc1:
		return 1, true
	case LdArg2, LdLoc2, StLoc2:
		return 2, true
	case LdArg3, LdLoc3, StLoc3:
		return 3, true
	default:
		return 0, false
	}
}

// Int4Const maps the fixed ldc.i4.* opcodes to their implied constant.
func (op Opcode) Int4Const() (int32, bool) {
	switch op {
	case LdcI4M1:
		return -1, true
	case LdcI40:
		return 0, true
	case LdcI41:
		return 1, true
	case LdcI42:
		return 2, true
	case LdcI43:
		return 3, true
	case LdcI44:
		return 4, true
	case LdcI45:
		return 5, true
	case LdcI46:
		return 6, true
	case LdcI47:
		return 7, true
	case LdcI48:
		return 8, true
	default:
		return 0, false
	}
}
