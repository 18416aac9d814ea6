package interp

import (
	"sync"

	"github.com/wippyai/clrvm/metadata"
	"github.com/wippyai/clrvm/stack"
)

// staticKey identifies a static field uniquely at the runtime level: the
// static-field map is per-runtime, not per-assembly (spec.md §3), so the
// owning assembly's module name is part of the key alongside the field's
// own token (tokens are only unique within one assembly).
type staticKey struct {
	assembly string
	field    metadata.Token
}

type slotValue struct {
	tag   stack.Tag
	bytes []byte
}

// StaticStore holds every static field's current value plus the set of
// types whose .cctor has already run, keyed the same way.
type StaticStore struct {
	mu          sync.Mutex
	values      map[staticKey]slotValue
	initialized map[staticKey]bool
}

// NewStaticStore returns an empty store.
func NewStaticStore() *StaticStore {
	return &StaticStore{
		values:      make(map[staticKey]slotValue),
		initialized: make(map[staticKey]bool),
	}
}

// Get returns a field's stored value, or ok=false (and nil bytes) if it
// was never set. ldsfld reads such an unset field as a zeroed Int32.
func (s *StaticStore) Get(assembly string, field metadata.Token) (stack.Tag, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[staticKey{assembly, field}]
	if !ok {
		return 0, nil, false
	}
	return v.tag, v.bytes, true
}

// Set stores a field's value.
func (s *StaticStore) Set(assembly string, field metadata.Token, tag stack.Tag, bytes []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[staticKey{assembly, field}] = slotValue{tag: tag, bytes: append([]byte(nil), bytes...)}
}

// IsInitialized reports whether typeDef's .cctor has already run.
func (s *StaticStore) IsInitialized(assembly string, typeDef metadata.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized[staticKey{assembly, typeDef}]
}

// MarkInitialized records typeDef as initialized. Callers must call this
// before running .cctor, not after: the cctor body may itself write the
// type's own static fields, which must not re-trigger initialization
// (spec.md §8 concrete scenario 3).
func (s *StaticStore) MarkInitialized(assembly string, typeDef metadata.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized[staticKey{assembly, typeDef}] = true
}
