package interp

import (
	"sync/atomic"

	"github.com/wippyai/clrvm/cil"
	"github.com/wippyai/clrvm/metadata"
	"github.com/wippyai/clrvm/stack"
)

// frameState is the per-frame state machine of spec.md §4.G: Fetching
// decodes the next instruction, Executing applies it, Returned is
// terminal. Branches stay within Fetching.
type frameState int

const (
	stateFetching frameState = iota
	stateExecuting
	stateReturned
)

// localSlot is one entry of a frame's local-variable array. An empty slot
// (has == false) reads as TypeMismatch, never as a zero value, so a slot
// that was never written or was cleared by ldloc stays distinguishable
// from one holding a zero (spec.md §9).
type localSlot struct {
	has   bool
	tag   stack.Tag
	bytes []byte
}

// Frame is one active method activation (spec.md §3's Method frame). The
// evaluation stack itself is NOT part of the frame; it is shared across
// the whole call stack at the Runtime level.
type Frame struct {
	Assembly   *metadata.Assembly
	MethodTok  metadata.Token
	ID         uint64
	code       []byte
	offset     int
	locals     [255]localSlot
	state      frameState
	cur        cil.Instruction
}

var frameSeq uint64

func nextFrameID() uint64 {
	return atomic.AddUint64(&frameSeq, 1)
}

// Offset returns the frame's current instruction offset, for diagnostics
// and the step debugger.
func (f *Frame) Offset() int { return f.offset }

// Current returns the instruction currently being executed.
func (f *Frame) Current() cil.Instruction { return f.cur }

// Code returns the method body's raw instruction bytes, for disassembly.
func (f *Frame) Code() []byte { return f.code }

// LocalSlot is a read-only view of one local variable slot, for the step
// debugger's display. Has is false for a never-written or freshly-cleared
// slot.
type LocalSlot struct {
	Has bool
	Tag stack.Tag
}

// Locals returns the state of every local slot up to the highest index
// currently holding a value, for display. Trailing empty slots (never
// written, or cleared by ldloc) are omitted.
func (f *Frame) Locals() []LocalSlot {
	last := -1
	for i, s := range f.locals {
		if s.has {
			last = i
		}
	}
	out := make([]LocalSlot, last+1)
	for i := range out {
		out[i] = LocalSlot{Has: f.locals[i].has, Tag: f.locals[i].tag}
	}
	return out
}
