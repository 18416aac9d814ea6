// Package metadata implements components C and D of the interpreter core:
// the metadata root / stream table parser and the typed, token-indexed
// table accessor.
//
// Load takes a raw PE/CLI image, runs it through the image package to
// locate the CLR metadata root, then parses the #~ (tilde) stream's table
// directory and the #Strings/#US/#Blob/#GUID heaps. Table rows are kept as
// raw byte slices and decoded on each access, per spec.md §4.C.
//
// Assembly.GetTypeDefOfMethod, Tables.ClassLayoutOfType and
// Assembly.GetMethodByName implement spec.md §4.D's derived lookups on top
// of the raw tables.
package metadata
