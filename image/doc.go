// Package image implements components A and B of the interpreter core:
// the byte reader / RVA mapper and the PE/CLI header parser.
//
// ParseHeaders validates, in order, the DOS header, COFF header, PE32+
// optional header, data directories, section table, and the CLR runtime
// header, failing with a errors.KindBadImage error that names the byte
// offset of the first structural mismatch (spec.md §4.B).
//
// RVAMapper (built from the parsed section table) translates a relative
// virtual address into a byte span within the image, per spec.md §4.A:
// bytesAt(section, rva, n) fails if rva+n escapes the owning section's
// virtual size.
package image
