package container

// setMember is the constant value every Set entry maps to.
const setMember uint64 = 1

// Set is a Dict whose value slot is always setMember, exposing
// membership operations instead of key/value ones.
type Set struct {
	dict *Dict
}

// NewSet wraps dict as a Set.
func NewSet(dict *Dict) *Set { return &Set{dict: dict} }

// Offset returns the underlying dict's table header offset.
func (s *Set) Offset() uint64 { return s.dict.Offset() }

// Add inserts ptr into the set. A repeat Add is a no-op.
func (s *Set) Add(ptr uint64) error {
	return s.dict.Set(ptr, setMember)
}

// Contains reports whether ptr is a member.
func (s *Set) Contains(ptr uint64) bool {
	return s.dict.Contains(ptr)
}

// Remove removes ptr, failing with [ErrKeyNotFound] if absent.
func (s *Set) Remove(ptr uint64) error {
	if !s.dict.Delete(ptr) {
		return ErrKeyNotFound
	}

	return nil
}

// Discard removes ptr if present; unlike Remove, absence is not an
// error.
func (s *Set) Discard(ptr uint64) {
	s.dict.Delete(ptr)
}

// Iter returns a snapshot array of every member.
func (s *Set) Iter() []uint64 { return s.dict.Keys() }

// Len returns the number of members.
func (s *Set) Len() int { return s.dict.Len() }
