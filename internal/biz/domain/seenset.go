package domain

// DefaultSeenCapacity is the number of message ids remembered by default
const DefaultSeenCapacity = 100

// SeenSet is a bounded set of processed message ids.
// Insertion order is kept; when the set exceeds its capacity the oldest ids
// are evicted first. Not safe for concurrent use.
type SeenSet struct {
	capacity int
	order    []string
	index    map[string]struct{}
}

// NewSeenSet creates an empty set holding at most capacity ids
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &SeenSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id has been marked
func (s *SeenSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add marks id as seen. Re-adding a known id is a no-op.
func (s *SeenSet) Add(id string) {
	if id == "" || s.Contains(id) {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	s.Trim()
}

// Trim evicts the oldest ids until the set fits its capacity
func (s *SeenSet) Trim() {
	excess := len(s.order) - s.capacity
	if excess <= 0 {
		return
	}
	for _, id := range s.order[:excess] {
		delete(s.index, id)
	}
	// Copy so the backing array does not keep growing
	kept := make([]string, len(s.order)-excess, s.capacity)
	copy(kept, s.order[excess:])
	s.order = kept
}

// Len returns the number of remembered ids
func (s *SeenSet) Len() int {
	return len(s.order)
}

// Capacity returns the maximum number of remembered ids
func (s *SeenSet) Capacity() int {
	return s.capacity
}

// IDs returns remembered ids, oldest first
func (s *SeenSet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
