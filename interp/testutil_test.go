package interp

import (
	"encoding/binary"
	"testing"

	"github.com/wippyai/clrvm/image"
	"github.com/wippyai/clrvm/metadata"
)

// tinyBody wraps code in a tiny method header (spec.md §4.E): low 2 bits
// 0b10, high 6 bits the code size in bytes. Every fixture method body in
// this package's tests is short enough to fit the tiny format.
func tinyBody(code []byte) []byte {
	return append([]byte{byte(len(code)<<2) | 0x2}, code...)
}

// methodRVA computes the absolute RVA a method body placed at tailOffset
// bytes into the image's SectionData tail (immediately after the
// rootLen-byte metadata root) will land at, given image.Builder always
// places the metadata root at MetaDataRVA=0 relative to SectionData.
func methodRVA(rootLen, tailOffset int) uint32 {
	return uint32(image.SectionVA) + uint32(image.CLRHeaderSize) + uint32(rootLen) + uint32(tailOffset)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildSimpleAssembly builds a one-type fixture: Module moduleName, a
// single TypeDef (typeNS.typeName) owning fieldNames (all static, no
// signature decoding) and methods (name -> CIL body, tiny-header wrapped
// automatically). entryMethod names which method is the CLR entry point.
// Returns the loaded assembly and the token of the Field row for each
// field name, and of the MethodDef row for each method name.
func buildSimpleAssembly(t *testing.T, moduleName, typeNS, typeName string, fieldNames []string, methods []struct {
	name string
	code []byte
}, entryMethod string) (*metadata.Assembly, map[string]metadata.Token, map[string]metadata.Token) {
	t.Helper()

	s := metadata.NewStrBuilder()
	modNameOff := s.Add(moduleName)
	nsOff := s.Add(typeNS)
	typeNameOff := s.Add(typeName)

	fieldRows := make([][]byte, len(fieldNames))
	fieldToks := make(map[string]metadata.Token)
	for i, fn := range fieldNames {
		nameOff := s.Add(fn)
		fieldRows[i] = metadata.U16Row(0, nameOff, 0)
		fieldToks[fn] = metadata.NewToken(metadata.TableField, uint32(i+1))
	}

	var tail []byte
	methodRows := make([][]byte, len(methods))
	methodToks := make(map[string]metadata.Token)
	methodBodyRVAs := make([]uint32, len(methods))

	// Row byte width doesn't depend on the RVA's value, so rows are built
	// with a placeholder RVA of 0 first; the real RVA is patched in once
	// the metadata root's length (and therefore the method body tail's
	// base RVA) is known below.
	for i, m := range methods {
		methodToks[m.name] = metadata.NewToken(metadata.TableMethodDef, uint32(i+1))
		nameOff := s.Add(m.name)
		body := tinyBody(m.code)
		methodBodyRVAs[i] = uint32(len(tail))
		tail = append(tail, body...)
		methodRows[i] = append(le32(0), metadata.U16Row(0, 0, nameOff, 0, 1)...)
	}

	typeDefRow := append(le32(0), metadata.U16Row(typeNameOff, nsOff, 0, 1, 1)...)

	tilde := metadata.BuildTilde(map[metadata.TableID][][]byte{
		metadata.TableModule:    {metadata.U16Row(0, modNameOff, 0, 0, 0)},
		metadata.TableTypeDef:   {typeDefRow},
		metadata.TableField:     fieldRows,
		metadata.TableMethodDef: methodRows,
	})
	root := metadata.BuildRoot([]metadata.RootStream{
		{Name: "#~", Data: tilde},
		{Name: "#Strings", Data: s.Bytes()},
	})

	for i := range methodRows {
		rva := methodRVA(len(root), int(methodBodyRVAs[i]))
		binary.LittleEndian.PutUint32(methodRows[i][0:4], rva)
	}
	// Rebuild the #~ stream now that RVAs are patched (row slices are
	// shared backing arrays, but BuildTilde copies bytes, so rebuild it).
	tilde = metadata.BuildTilde(map[metadata.TableID][][]byte{
		metadata.TableModule:    {metadata.U16Row(0, modNameOff, 0, 0, 0)},
		metadata.TableTypeDef:   {typeDefRow},
		metadata.TableField:     fieldRows,
		metadata.TableMethodDef: methodRows,
	})
	root = metadata.BuildRoot([]metadata.RootStream{
		{Name: "#~", Data: tilde},
		{Name: "#Strings", Data: s.Bytes()},
	})

	sectionData := append(append([]byte(nil), root...), tail...)

	b := image.NewBuilder()
	b.SectionData = sectionData
	b.MetaDataRVA = 0
	b.MetaDataSize = uint32(len(root))
	b.EntryPoint = uint32(methodToks[entryMethod])
	data := b.Build()

	asm, err := metadata.Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return asm, fieldToks, methodToks
}
