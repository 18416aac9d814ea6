package cil

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/wippyai/clrvm/errors"
)

// Instruction is one decoded CIL instruction. Only the field relevant to
// its opcode is populated; which one that is follows directly from
// Opcode (spec.md §6.4 names exactly one operand shape per opcode).
type Instruction struct {
	Offset int
	Opcode Opcode
	Size   int // total encoded length, including the opcode byte itself

	Int   int64   // local/argument index, branch delta, or ldc.i4/ldc.i8 constant
	Float float64 // ldc.r4/ldc.r8 constant
	Token uint32  // metadata token operand (call, ldstr, newobj, ldsfld*, stsfld)
}

// NextOffset is the offset of the instruction immediately following this
// one in sequential (non-branch) control flow.
func (ins Instruction) NextOffset() int { return ins.Offset + ins.Size }

// Decode reads one instruction from code starting at offset. On an opcode
// outside the normative subset, it returns both a best-effort Instruction
// (Size 1, so a caller that only wants to list bytes can still advance)
// and an Unimplemented error; callers that execute rather than merely
// list instructions must treat a non-nil error as fatal.
func Decode(code []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, errors.New(errors.PhaseDispatch, errors.KindBadCall).
			Detail("instruction offset out of range").Offset(int64(offset)).Build()
	}

	op := Opcode(code[offset])
	ins := Instruction{Offset: offset, Opcode: op}

	need := func(n int) error {
		if offset+1+n > len(code) {
			return errors.New(errors.PhaseDispatch, errors.KindBadImage).
				Detail("truncated operand for %s", op).Offset(int64(offset)).Build()
		}
		return nil
	}

	switch op {
	case Nop, Brk, Pop, Ret,
		LdArg0, LdArg1, LdArg2, LdArg3,
		LdLoc0, LdLoc1, LdLoc2, LdLoc3,
		StLoc0, StLoc1, StLoc2, StLoc3:
		ins.Size = 1

	case LdArgS, LdLocS, LdLocaS, StLocS:
		if err := need(1); err != nil {
			return ins, err
		}
		ins.Int = int64(code[offset+1])
		ins.Size = 2

	case LdcI4M1, LdcI40, LdcI41, LdcI42, LdcI43, LdcI44, LdcI45, LdcI46, LdcI47, LdcI48:
		ins.Size = 1

	case LdcI4S:
		if err := need(1); err != nil {
			return ins, err
		}
		ins.Int = int64(int8(code[offset+1]))
		ins.Size = 2

	case BrS:
		if err := need(1); err != nil {
			return ins, err
		}
		ins.Int = int64(int8(code[offset+1]))
		ins.Size = 2

	case LdcI4:
		if err := need(4); err != nil {
			return ins, err
		}
		ins.Int = int64(int32(binary.LittleEndian.Uint32(code[offset+1:])))
		ins.Size = 5

	case Br:
		if err := need(4); err != nil {
			return ins, err
		}
		ins.Int = int64(int32(binary.LittleEndian.Uint32(code[offset+1:])))
		ins.Size = 5

	case LdcI8:
		if err := need(8); err != nil {
			return ins, err
		}
		ins.Int = int64(binary.LittleEndian.Uint64(code[offset+1:]))
		ins.Size = 9

	case LdcR4:
		if err := need(4); err != nil {
			return ins, err
		}
		ins.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(code[offset+1:])))
		ins.Size = 5

	case LdcR8:
		if err := need(8); err != nil {
			return ins, err
		}
		ins.Float = math.Float64frombits(binary.LittleEndian.Uint64(code[offset+1:]))
		ins.Size = 9

	case Call, Ldstr, Newobj, Ldsfld, Ldsflda, Stsfld:
		if err := need(4); err != nil {
			return ins, err
		}
		ins.Token = binary.LittleEndian.Uint32(code[offset+1:])
		ins.Size = 5

	default:
		ins.Size = 1
		return ins, errors.Unimplemented(byte(op), int64(offset))
	}

	return ins, nil
}

// BranchTarget computes the absolute offset a br/br.s instruction jumps
// to: the offset immediately after the branch instruction, plus its
// signed delta.
func (ins Instruction) BranchTarget() int {
	return ins.NextOffset() + int(ins.Int)
}

func (ins Instruction) String() string {
	switch ins.Opcode {
	case LdArgS, LdLocS, LdLocaS, StLocS:
		return fmt.Sprintf("%04x: %-10s %d", ins.Offset, ins.Opcode, ins.Int)
	case LdcI4S, LdcI4, LdcI8, BrS, Br:
		return fmt.Sprintf("%04x: %-10s %d", ins.Offset, ins.Opcode, ins.Int)
	case LdcR4, LdcR8:
		return fmt.Sprintf("%04x: %-10s %g", ins.Offset, ins.Opcode, ins.Float)
	case Call, Ldstr, Newobj, Ldsfld, Ldsflda, Stsfld:
		return fmt.Sprintf("%04x: %-10s 0x%08x", ins.Offset, ins.Opcode, ins.Token)
	default:
		return fmt.Sprintf("%04x: %s", ins.Offset, ins.Opcode)
	}
}

// Disassemble decodes every instruction in code from offset 0 to len(code)
// and renders a listing, one instruction per line. Decode failures are
// rendered inline rather than aborting the listing, since disassembly is a
// diagnostic aid, not an execution path.
func Disassemble(code []byte) string {
	var b strings.Builder
	offset := 0
	for offset < len(code) {
		ins, err := Decode(code, offset)
		if err != nil {
			fmt.Fprintf(&b, "%04x: <%v>\n", offset, err)
			if ins.Size == 0 {
				// A truncated operand runs to the end of code, so there is
				// nothing further to list.
				break
			}
			offset += ins.Size
			continue
		}
		b.WriteString(ins.String())
		b.WriteByte('\n')
		offset = ins.NextOffset()
	}
	return b.String()
}
