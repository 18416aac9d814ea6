package metadata

import "fmt"

// Lint runs a handful of cheap structural sanity checks over an already
// loaded Assembly and returns one human-readable finding per problem. It
// never mutates the assembly and never fails the load itself; Load already
// rejects anything that would make later dispatch unsafe, so Lint exists
// to surface suspicious-but-technically-valid metadata (spec.md §9).
func Lint(a *Assembly) []string {
	var findings []string

	methodRows := a.Tables.RowCount(TableMethodDef)
	typeCount := a.Tables.RowCount(TableTypeDef)
	var prevMethodList uint32
	for i := uint32(1); i <= typeCount; i++ {
		td, err := a.Tables.TypeDef(NewToken(TableTypeDef, i))
		if err != nil {
			findings = append(findings, fmt.Sprintf("TypeDef[%d]: %v", i, err))
			continue
		}
		methodList := uint32(td.MethodListIndex)
		if methodList > methodRows+1 {
			findings = append(findings, fmt.Sprintf(
				"TypeDef[%d]: MethodList index %d exceeds MethodDef row count %d",
				i, td.MethodListIndex, methodRows))
		}
		if i > 1 && methodList < prevMethodList {
			findings = append(findings, fmt.Sprintf(
				"TypeDef[%d]: MethodList index %d is less than TypeDef[%d]'s %d (ranges must be monotonic and non-overlapping)",
				i, methodList, i-1, prevMethodList))
		}
		prevMethodList = methodList
	}

	for i := uint32(1); i <= methodRows; i++ {
		md, err := a.Tables.MethodDef(NewToken(TableMethodDef, i))
		if err != nil {
			findings = append(findings, fmt.Sprintf("MethodDef[%d]: %v", i, err))
			continue
		}
		if _, ok := a.Mapper.VirtualSection(md.RVA); !ok {
			findings = append(findings, fmt.Sprintf(
				"MethodDef[%d]: rva 0x%x does not fall inside any section", i, md.RVA))
		}
	}

	memberRefRows := a.Tables.RowCount(TableMemberRef)
	for i := uint32(1); i <= memberRefRows; i++ {
		tok := NewToken(TableMemberRef, i)
		mr, err := a.Tables.MemberRef(tok)
		if err != nil {
			findings = append(findings, fmt.Sprintf("MemberRef[%d]: %v", i, err))
			continue
		}
		if mr.ClassTag() != MemberRefParentTypeRef {
			continue
		}
		if _, err := a.Tables.TypeRef(NewToken(TableTypeRef, mr.ClassIndex())); err != nil {
			findings = append(findings, fmt.Sprintf("MemberRef[%d]: Class does not resolve: %v", i, err))
		}
	}

	if a.Strings != nil {
		if _, err := a.Strings.String(0); err != nil {
			findings = append(findings, "#Strings heap does not start with an empty string at index 0")
		}
	}

	return findings
}
