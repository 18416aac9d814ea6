// Package stack implements component F: the CIL evaluation stack.
//
// Every slot carries a Tag alongside its bytes (spec.md §4.F): 4 bytes for
// Int32, 8 bytes for every other tag. Pop requires an exact tag match —
// there is no widening or implicit conversion between tags, matching the
// CIL execution model's stack typing rules for this subset of opcodes.
package stack
