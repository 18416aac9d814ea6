// Package cil decodes component E: method headers (tiny and fat formats,
// ECMA-335 §II.25.4) and the normative CIL opcode subset named in
// spec.md §6.4.
//
// Decode reads one instruction starting at a byte offset and returns it;
// the instruction's NextOffset gives the offset to advance to. It never loops over
// a whole method body itself; that is interp's job, since interp is what
// knows when a Ret or a branch ends the current walk.
package cil
