package metadata

import (
	"fmt"

	"github.com/wippyai/clrvm/errors"
	"github.com/wippyai/clrvm/image"
)

// Assembly is one loaded PE/CLI image: its headers, RVA mapper, metadata
// streams, and a qualified-name index built over its TypeDef/MethodDef
// rows (spec.md §3's Assembly entity).
type Assembly struct {
	Data    []byte
	Headers *image.Headers
	Mapper  *image.RVAMapper
	Root    *MetadataRoot
	Tables  *Tables
	Strings *StringsHeap
	US      *USHeap
	Blob    *BlobHeap
	GUID    *GUIDHeap

	name string

	// MethodIndex maps "Namespace.TypeName::MethodName" to the method's
	// token, built once at load time by walking TypeDef method ranges.
	MethodIndex map[string]Token
}

// Load parses a full PE/CLI image end to end: headers, section table, the
// CLR metadata root, the #~ table directory, and the four standard heaps.
func Load(data []byte) (*Assembly, error) {
	headers, err := image.ParseHeaders(data)
	if err != nil {
		return nil, err
	}
	mapper := image.NewRVAMapper(headers.Sections, data)

	rootBytes, err := mapper.BytesAt(headers.CLR.MetaData.RVA, int(headers.CLR.MetaData.Size))
	if err != nil {
		return nil, err
	}
	root, err := ParseMetadataRoot(rootBytes)
	if err != nil {
		return nil, err
	}

	tildeHdr, ok := root.Streams[streamTilde]
	if !ok {
		return nil, errors.BadImage("metadata root has no #~ stream", 0)
	}
	tildeBytes, err := tildeHdr.Bytes(root)
	if err != nil {
		return nil, err
	}
	tables, err := parseTilde(tildeBytes)
	if err != nil {
		return nil, err
	}

	a := &Assembly{Data: data, Headers: headers, Mapper: mapper, Root: root, Tables: tables}

	if h, ok := root.Streams[streamStrings]; ok {
		b, err := h.Bytes(root)
		if err != nil {
			return nil, err
		}
		a.Strings = &StringsHeap{data: b}
	}
	if h, ok := root.Streams[streamUS]; ok {
		b, err := h.Bytes(root)
		if err != nil {
			return nil, err
		}
		a.US = &USHeap{data: b}
	}
	if h, ok := root.Streams[streamBlob]; ok {
		b, err := h.Bytes(root)
		if err != nil {
			return nil, err
		}
		a.Blob = &BlobHeap{data: b}
	}
	if h, ok := root.Streams[streamGUID]; ok {
		b, err := h.Bytes(root)
		if err != nil {
			return nil, err
		}
		a.GUID = &GUIDHeap{data: b}
	}

	mod, err := tables.Module()
	if err == nil {
		if name, err := a.Strings.String(uint32(mod.NameIndex)); err == nil {
			a.name = name
		}
	}

	if err := a.buildMethodIndex(); err != nil {
		return nil, err
	}

	return a, nil
}

// Name returns the module name recorded in the Module table.
func (a *Assembly) Name() string { return a.name }

func (a *Assembly) buildMethodIndex() error {
	a.MethodIndex = make(map[string]Token)
	count := a.Tables.RowCount(TableTypeDef)
	for i := uint32(1); i <= count; i++ {
		tdTok := NewToken(TableTypeDef, i)
		td, err := a.Tables.TypeDef(tdTok)
		if err != nil {
			return err
		}
		namespace, err := a.Strings.String(uint32(td.NamespaceIndex))
		if err != nil {
			namespace = ""
		}
		typeName, err := a.Strings.String(uint32(td.NameIndex))
		if err != nil {
			return err
		}

		start := uint32(td.MethodListIndex)
		end := a.Tables.RowCount(TableMethodDef) + 1
		if i < count {
			next, err := a.Tables.TypeDef(NewToken(TableTypeDef, i+1))
			if err != nil {
				return err
			}
			end = uint32(next.MethodListIndex)
		}

		for m := start; m < end; m++ {
			mTok := NewToken(TableMethodDef, m)
			md, err := a.Tables.MethodDef(mTok)
			if err != nil {
				return err
			}
			methodName, err := a.Strings.String(uint32(md.NameIndex))
			if err != nil {
				return err
			}
			a.MethodIndex[qualifiedName(namespace, typeName, methodName)] = mTok
		}
	}
	return nil
}

func qualifiedName(namespace, typeName, method string) string {
	if namespace == "" {
		return fmt.Sprintf("%s::%s", typeName, method)
	}
	return fmt.Sprintf("%s.%s::%s", namespace, typeName, method)
}

// GetMethodByName looks up a method token by its fully qualified name,
// per spec.md §4.D / §4.G.
func (a *Assembly) GetMethodByName(namespace, typeName, method string) (Token, error) {
	tok, ok := a.MethodIndex[qualifiedName(namespace, typeName, method)]
	if !ok {
		return 0, errors.MethodNotFound(namespace, typeName, method)
	}
	return tok, nil
}

// GetTypeDefOfMethod is a thin forwarder to Tables.TypeDefOfMethod,
// exposed at the Assembly level since callers hold an *Assembly, not the
// raw *Tables.
func (a *Assembly) GetTypeDefOfMethod(methodTok Token) (Token, error) {
	return a.Tables.TypeDefOfMethod(methodTok)
}

// GetTypeDefOfField is a thin forwarder to Tables.TypeDefOfField, used by
// ldsfld/ldsflda/stsfld to find the field's owning type for lazy cctor
// triggering.
func (a *Assembly) GetTypeDefOfField(fieldTok Token) (Token, error) {
	return a.Tables.TypeDefOfField(fieldTok)
}

// ResolvedMember is the result of chasing a MemberRef through its owning
// TypeRef to the AssemblyRef that must supply the definition.
type ResolvedMember struct {
	AssemblyName string
	Namespace    string
	TypeName     string
	MethodName   string
}

// ResolveMemberRef decodes a MemberRef row and follows its Class field to
// a TypeRef, then that TypeRef's ResolutionScope to an AssemblyRef,
// producing the qualified name a loader callback resolves against
// (spec.md §4.G). Only the TypeRef/AssemblyRef scope chain is supported;
// any other shape yields BadCall.
func (a *Assembly) ResolveMemberRef(tok Token) (*ResolvedMember, error) {
	mr, err := a.Tables.MemberRef(tok)
	if err != nil {
		return nil, err
	}
	if mr.ClassTag() != MemberRefParentTypeRef {
		return nil, errors.BadCall(uint32(tok))
	}
	typeRefTok := NewToken(TableTypeRef, mr.ClassIndex())
	tr, err := a.Tables.TypeRef(typeRefTok)
	if err != nil {
		return nil, err
	}
	if tr.ScopeTag() != ResolutionScopeAssemblyRef {
		return nil, errors.BadCall(uint32(typeRefTok))
	}
	asmRefTok := NewToken(TableAssemblyRef, tr.ScopeIndex())
	ar, err := a.Tables.AssemblyRef(asmRefTok)
	if err != nil {
		return nil, err
	}

	asmName, err := a.Strings.String(uint32(ar.NameIndex))
	if err != nil {
		return nil, err
	}
	namespace, err := a.Strings.String(uint32(tr.NamespaceIndex))
	if err != nil {
		namespace = ""
	}
	typeName, err := a.Strings.String(uint32(tr.NameIndex))
	if err != nil {
		return nil, err
	}
	methodName, err := a.Strings.String(uint32(mr.NameIndex))
	if err != nil {
		return nil, err
	}

	return &ResolvedMember{AssemblyName: asmName, Namespace: namespace, TypeName: typeName, MethodName: methodName}, nil
}
