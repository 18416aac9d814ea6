package stack

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/clrvm/errors"
)

// Tag identifies the runtime type of one evaluation-stack slot.
type Tag byte

const (
	TagInt32 Tag = iota
	TagInt64
	TagNativeInt
	TagNativeUnsignedInt
	TagFloat
	TagManagedPointer
	TagUnmanagedPointer
)

func (t Tag) String() string {
	switch t {
	case TagInt32:
		return "int32"
	case TagInt64:
		return "int64"
	case TagNativeInt:
		return "native int"
	case TagNativeUnsignedInt:
		return "native unsigned int"
	case TagFloat:
		return "float"
	case TagManagedPointer:
		return "managed pointer"
	case TagUnmanagedPointer:
		return "unmanaged pointer"
	default:
		return "unknown tag"
	}
}

// Size is the slot width in bytes for this tag: 4 for Int32, 8 for
// everything else (spec.md §4.F).
func (t Tag) Size() int {
	if t == TagInt32 {
		return 4
	}
	return 8
}

// Stack is a byte-buffer-backed, tag-tracked evaluation stack with a
// fixed byte capacity (spec.md §4.F). interp's Runtime.Run sizes the
// capacity from the image's optional-header SizeOfStackReserve.
type Stack struct {
	buf      []byte
	tags     []Tag
	capacity int
}

// New returns an empty Stack with the given byte capacity.
func New(capacity int) *Stack {
	return &Stack{capacity: capacity}
}

// Depth returns the number of values currently on the stack.
func (s *Stack) Depth() int { return len(s.tags) }

// Used returns the number of bytes currently occupied.
func (s *Stack) Used() int { return len(s.buf) }

// PeekTag returns the tag of the top-of-stack value without popping it.
func (s *Stack) PeekTag() (Tag, bool) {
	if len(s.tags) == 0 {
		return 0, false
	}
	return s.tags[len(s.tags)-1], true
}

func (s *Stack) pushRaw(tag Tag, b []byte) error {
	if s.Used()+len(b) > s.capacity {
		return errors.StackOverflow(s.capacity, s.Used(), len(b))
	}
	s.buf = append(s.buf, b...)
	s.tags = append(s.tags, tag)
	return nil
}

func (s *Stack) popRaw(want Tag) ([]byte, error) {
	if len(s.tags) == 0 {
		return nil, errors.StackUnderflow()
	}
	top := s.tags[len(s.tags)-1]
	if top != want {
		return nil, errors.TypeMismatch(want, top)
	}
	size := top.Size()
	start := len(s.buf) - size
	val := append([]byte(nil), s.buf[start:]...)
	s.buf = s.buf[:start]
	s.tags = s.tags[:len(s.tags)-1]
	return val, nil
}

// PushInt32 pushes a 32-bit signed integer.
func (s *Stack) PushInt32(v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return s.pushRaw(TagInt32, b[:])
}

// PopInt32 pops a 32-bit signed integer, failing on tag mismatch.
func (s *Stack) PopInt32() (int32, error) {
	b, err := s.popRaw(TagInt32)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// PushInt64 pushes a 64-bit signed integer.
func (s *Stack) PushInt64(v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return s.pushRaw(TagInt64, b[:])
}

// PopInt64 pops a 64-bit signed integer.
func (s *Stack) PopInt64() (int64, error) {
	b, err := s.popRaw(TagInt64)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// PushNativeInt pushes a pointer-sized signed integer.
func (s *Stack) PushNativeInt(v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return s.pushRaw(TagNativeInt, b[:])
}

// PopNativeInt pops a pointer-sized signed integer.
func (s *Stack) PopNativeInt() (int64, error) {
	b, err := s.popRaw(TagNativeInt)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// PushNativeUnsignedInt pushes a pointer-sized unsigned integer.
func (s *Stack) PushNativeUnsignedInt(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.pushRaw(TagNativeUnsignedInt, b[:])
}

// PopNativeUnsignedInt pops a pointer-sized unsigned integer.
func (s *Stack) PopNativeUnsignedInt() (uint64, error) {
	b, err := s.popRaw(TagNativeUnsignedInt)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PushFloat pushes a 64-bit floating point value.
func (s *Stack) PushFloat(v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return s.pushRaw(TagFloat, b[:])
}

// PopFloat pops a 64-bit floating point value.
func (s *Stack) PopFloat() (float64, error) {
	b, err := s.popRaw(TagFloat)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// PushManagedPointer pushes a heap handle (spec.md §4's managed heap key).
func (s *Stack) PushManagedPointer(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.pushRaw(TagManagedPointer, b[:])
}

// PopManagedPointer pops a heap handle.
func (s *Stack) PopManagedPointer() (uint64, error) {
	b, err := s.popRaw(TagManagedPointer)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PushRaw pushes a value under an explicit tag with already-encoded bytes.
// len(b) must equal tag.Size(). It exists for callers (local/static
// storage) that move a value of whatever tag is currently on top of the
// stack without needing a type switch over every tag.
func (s *Stack) PushRaw(tag Tag, b []byte) error {
	return s.pushRaw(tag, b)
}

// PopAny pops the top-of-stack value regardless of its tag, returning the
// tag alongside the raw bytes. Used by `pop` (which discards any type) and
// by `stloc` (which must capture whatever tag is on top).
func (s *Stack) PopAny() (Tag, []byte, error) {
	tag, ok := s.PeekTag()
	if !ok {
		return 0, nil, errors.StackUnderflow()
	}
	b, err := s.popRaw(tag)
	return tag, b, err
}

// PushUnmanagedPointer pushes a raw, non-heap-tracked address (used by
// ldloca.s: a pointer to a local slot, not to heap storage). ldsflda pushes
// a managed pointer instead, since static-field slots are tracked the same
// way heap references are.
func (s *Stack) PushUnmanagedPointer(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.pushRaw(TagUnmanagedPointer, b[:])
}

// PopUnmanagedPointer pops a raw address.
func (s *Stack) PopUnmanagedPointer() (uint64, error) {
	b, err := s.popRaw(TagUnmanagedPointer)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Tags returns the tag of every slot, bottom to top, without disturbing
// the stack. Used by the step debugger to render the evaluation stack.
func (s *Stack) Tags() []Tag {
	out := make([]Tag, len(s.tags))
	copy(out, s.tags)
	return out
}
