package metadata

import (
	"fmt"

	"github.com/wippyai/clrvm/errors"
)

// Token is a 32-bit metadata token: the high byte names a TableID, the low
// 24 bits a 1-based row index into that table (spec.md §3).
type Token uint32

// NewToken builds a token from a table ID and a 1-based row index.
func NewToken(table TableID, index uint32) Token {
	return Token(uint32(table)<<24 | (index & 0x00FFFFFF))
}

// Table returns the token's table ID.
func (t Token) Table() TableID { return TableID(t >> 24) }

// Index returns the token's 1-based row index.
func (t Token) Index() uint32 { return uint32(t) & 0x00FFFFFF }

func (t Token) String() string { return fmt.Sprintf("0x%08X", uint32(t)) }

// Tables holds the #~ stream's parsed table directory: row counts and raw,
// undecoded row bytes for every table position with a nonzero row count.
// Row structs are decoded on demand by the typed accessor methods below.
type Tables struct {
	valid     uint64
	sorted    uint64
	rowCounts [64]uint32
	rows      [64][][]byte
}

// RowCount returns the number of rows in the given table.
func (t *Tables) RowCount(id TableID) uint32 { return t.rowCounts[id] }

// row returns the raw bytes for the 1-based row index in table id, failing
// with MissingRow if the index is out of range. This is the sole place
// that enforces spec.md §8's token-validity invariant:
// getTableEntry(token) ≠ none ⇔ 1 ≤ token.index ≤ rowCount(token.tableId).
func (t *Tables) row(id TableID, index uint32) ([]byte, error) {
	if index < 1 || index > t.rowCounts[id] {
		return nil, errors.MissingRow(errors.PhaseMetadata, uint32(NewToken(id, index)))
	}
	return t.rows[id][index-1], nil
}

// ModuleRow is row 1 of the Module table: the assembly's own module.
type ModuleRow struct {
	Generation    uint16
	NameIndex     uint16
	MvidIndex     uint16
	EncIdIndex    uint16
	EncBaseIdIndex uint16
}

// Module returns the sole Module table row (row index 1 always).
func (t *Tables) Module() (*ModuleRow, error) {
	b, err := t.row(TableModule, 1)
	if err != nil {
		return nil, err
	}
	return &ModuleRow{
		Generation:     le16(b, 0),
		NameIndex:      le16(b, 2),
		MvidIndex:      le16(b, 4),
		EncIdIndex:     le16(b, 6),
		EncBaseIdIndex: le16(b, 8),
	}, nil
}

// TypeRefRow is one TypeRef table row.
type TypeRefRow struct {
	ResolutionScope uint16 // coded index: tag in low 2 bits
	NameIndex       uint16
	NamespaceIndex  uint16
}

// Coded-index tags for TypeRef.ResolutionScope (ECMA-335 §II.24.2.6).
const (
	ResolutionScopeModule TableID = iota
	resolutionScopeModuleRef
	ResolutionScopeAssemblyRef
	resolutionScopeTypeRef
)

func (r TypeRefRow) ScopeTag() TableID { return TableID(r.ResolutionScope & 0x3) }
func (r TypeRefRow) ScopeIndex() uint32 { return uint32(r.ResolutionScope >> 2) }

// TypeRef decodes the TypeRef row at tok.
func (t *Tables) TypeRef(tok Token) (*TypeRefRow, error) {
	if tok.Table() != TableTypeRef {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableTypeRef, tok.Index())
	if err != nil {
		return nil, err
	}
	return &TypeRefRow{
		ResolutionScope: le16(b, 0),
		NameIndex:       le16(b, 2),
		NamespaceIndex:  le16(b, 4),
	}, nil
}

// TypeDefRow is one TypeDef table row.
type TypeDefRow struct {
	Flags           uint32
	NameIndex       uint16
	NamespaceIndex  uint16
	Extends         uint16
	FieldListIndex  uint16
	MethodListIndex uint16
}

// TypeDef decodes the TypeDef row at tok.
func (t *Tables) TypeDef(tok Token) (*TypeDefRow, error) {
	if tok.Table() != TableTypeDef {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableTypeDef, tok.Index())
	if err != nil {
		return nil, err
	}
	return &TypeDefRow{
		Flags:           le32(b, 0),
		NameIndex:       le16(b, 4),
		NamespaceIndex:  le16(b, 6),
		Extends:         le16(b, 8),
		FieldListIndex:  le16(b, 10),
		MethodListIndex: le16(b, 12),
	}, nil
}

// FieldRow is one Field table row.
type FieldRow struct {
	Flags          uint16
	NameIndex      uint16
	SignatureIndex uint16
}

// Field decodes the Field row at tok.
func (t *Tables) Field(tok Token) (*FieldRow, error) {
	if tok.Table() != TableField {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableField, tok.Index())
	if err != nil {
		return nil, err
	}
	return &FieldRow{Flags: le16(b, 0), NameIndex: le16(b, 2), SignatureIndex: le16(b, 4)}, nil
}

// MethodDefRow is one MethodDef table row.
type MethodDefRow struct {
	RVA             uint32
	ImplFlags       uint16
	Flags           uint16
	NameIndex       uint16
	SignatureIndex  uint16
	ParamListIndex  uint16
}

// MethodDef decodes the MethodDef row at tok.
func (t *Tables) MethodDef(tok Token) (*MethodDefRow, error) {
	if tok.Table() != TableMethodDef {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableMethodDef, tok.Index())
	if err != nil {
		return nil, err
	}
	return &MethodDefRow{
		RVA:            le32(b, 0),
		ImplFlags:      le16(b, 4),
		Flags:          le16(b, 6),
		NameIndex:      le16(b, 8),
		SignatureIndex: le16(b, 10),
		ParamListIndex: le16(b, 12),
	}, nil
}

// MemberRefRow is one MemberRef table row: a reference to a member
// (here, always a method) owned by some TypeRef.
type MemberRefRow struct {
	Class          uint16 // coded index: tag in low 3 bits (MemberRefParent)
	NameIndex      uint16
	SignatureIndex uint16
}

// MemberRefParent coded-index tags (ECMA-335 §II.24.2.6). This interpreter
// only ever resolves the TypeRef case (spec.md §4.G's call-resolution path);
// the others are named for completeness.
const (
	MemberRefParentTypeDef TableID = iota
	MemberRefParentTypeRef
	memberRefParentModuleRef
	memberRefParentMethodDef
	memberRefParentTypeSpec
)

func (r MemberRefRow) ClassTag() TableID  { return TableID(r.Class & 0x7) }
func (r MemberRefRow) ClassIndex() uint32 { return uint32(r.Class >> 3) }

// MemberRef decodes the MemberRef row at tok.
func (t *Tables) MemberRef(tok Token) (*MemberRefRow, error) {
	if tok.Table() != TableMemberRef {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableMemberRef, tok.Index())
	if err != nil {
		return nil, err
	}
	return &MemberRefRow{Class: le16(b, 0), NameIndex: le16(b, 2), SignatureIndex: le16(b, 4)}, nil
}

// AssemblyRow is the sole Assembly table row (this assembly's own identity).
type AssemblyRow struct {
	HashAlgId      uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKeyIndex uint16
	NameIndex      uint16
	CultureIndex   uint16
}

// Assembly decodes the sole Assembly table row, if present.
func (t *Tables) Assembly() (*AssemblyRow, error) {
	b, err := t.row(TableAssembly, 1)
	if err != nil {
		return nil, err
	}
	return &AssemblyRow{
		HashAlgId:      le32(b, 0),
		MajorVersion:   le16(b, 4),
		MinorVersion:   le16(b, 6),
		BuildNumber:    le16(b, 8),
		RevisionNumber: le16(b, 10),
		Flags:          le32(b, 12),
		PublicKeyIndex: le16(b, 16),
		NameIndex:      le16(b, 18),
		CultureIndex:   le16(b, 20),
	}, nil
}

// AssemblyRefRow is one AssemblyRef table row: an external assembly
// dependency resolved through a loader callback (spec.md §4.G).
type AssemblyRefRow struct {
	MajorVersion         uint16
	MinorVersion         uint16
	BuildNumber          uint16
	RevisionNumber       uint16
	Flags                uint32
	PublicKeyOrTokenIndex uint16
	NameIndex            uint16
	CultureIndex         uint16
	HashValueIndex       uint16
}

// AssemblyRef decodes the AssemblyRef row at tok.
func (t *Tables) AssemblyRef(tok Token) (*AssemblyRefRow, error) {
	if tok.Table() != TableAssemblyRef {
		return nil, errors.BadCall(uint32(tok))
	}
	b, err := t.row(TableAssemblyRef, tok.Index())
	if err != nil {
		return nil, err
	}
	return &AssemblyRefRow{
		MajorVersion:          le16(b, 0),
		MinorVersion:          le16(b, 2),
		BuildNumber:           le16(b, 4),
		RevisionNumber:        le16(b, 6),
		Flags:                 le32(b, 8),
		PublicKeyOrTokenIndex: le16(b, 12),
		NameIndex:             le16(b, 14),
		CultureIndex:          le16(b, 16),
		HashValueIndex:        le16(b, 18),
	}, nil
}

// ClassLayoutOfType always reports "not found": this implementation's
// RowWidths fixes the ClassLayout table's row width at zero, so a well
// formed image can never carry ClassLayout rows. newobj instead sizes
// objects by counting owned Field rows (see interp's instance sizing).
func (t *Tables) ClassLayoutOfType(typeDef Token) (packingSize uint16, classSize uint32, ok bool) {
	return 0, 0, false
}

// memberRange resolves the CLI range-list convention shared by MethodList
// and FieldList: a TypeDef's member range runs from its own list index up
// to (but not including) the next TypeDef's list index, or the owning
// table's row count + 1 for the last TypeDef (spec.md §4.D).
func (t *Tables) memberRange(typeDefIndex uint32, list func(*TypeDefRow) uint32, ownerRowCount uint32) (start, end uint32, err error) {
	count := t.rowCounts[TableTypeDef]
	td, err := t.TypeDef(NewToken(TableTypeDef, typeDefIndex))
	if err != nil {
		return 0, 0, err
	}
	start = list(td)
	end = ownerRowCount + 1
	if typeDefIndex < count {
		next, err := t.TypeDef(NewToken(TableTypeDef, typeDefIndex+1))
		if err != nil {
			return 0, 0, err
		}
		end = list(next)
	}
	return start, end, nil
}

// MethodRange returns the half-open MethodDef index range owned by the
// TypeDef at the given 1-based index.
func (t *Tables) MethodRange(typeDefIndex uint32) (start, end uint32, err error) {
	return t.memberRange(typeDefIndex, func(td *TypeDefRow) uint32 { return uint32(td.MethodListIndex) }, t.rowCounts[TableMethodDef])
}

// FieldRange returns the half-open Field index range owned by the TypeDef
// at the given 1-based index.
func (t *Tables) FieldRange(typeDefIndex uint32) (start, end uint32, err error) {
	return t.memberRange(typeDefIndex, func(td *TypeDefRow) uint32 { return uint32(td.FieldListIndex) }, t.rowCounts[TableField])
}

// typeDefOfMember finds the TypeDef owning the given 1-based row index in
// the member table identified by rangeOf, per the CLI range-list
// convention (spec.md §4.D / §9's Open Question: the last TypeDef's range
// extends through the end of the owning table, never off by one). notFound
// builds the error for a member index that no TypeDef's range covers, so
// each caller can report its own taxonomy category (spec.md §7).
func (t *Tables) typeDefOfMember(memberIndex uint32, rangeOf func(uint32) (uint32, uint32, error), notFound func() error) (Token, error) {
	count := t.rowCounts[TableTypeDef]
	for i := uint32(1); i <= count; i++ {
		start, end, err := rangeOf(i)
		if err != nil {
			return 0, err
		}
		if memberIndex >= start && memberIndex < end {
			return NewToken(TableTypeDef, i), nil
		}
	}
	return 0, notFound()
}

// TypeDefOfMethod finds the TypeDef whose MethodList range contains
// methodTok.
func (t *Tables) TypeDefOfMethod(methodTok Token) (Token, error) {
	if methodTok.Table() != TableMethodDef {
		return 0, errors.BadCall(uint32(methodTok))
	}
	return t.typeDefOfMember(methodTok.Index(), t.MethodRange, func() error {
		return errors.MissingRow(errors.PhaseMetadata, uint32(methodTok))
	})
}

// TypeDefOfField finds the TypeDef whose FieldList range contains
// fieldTok.
func (t *Tables) TypeDefOfField(fieldTok Token) (Token, error) {
	if fieldTok.Table() != TableField {
		return 0, errors.BadCall(uint32(fieldTok))
	}
	return t.typeDefOfMember(fieldTok.Index(), t.FieldRange, func() error {
		return errors.FieldNotFound(uint32(fieldTok))
	})
}
