package dctype

import "sort"

// frozenMap is the immutable lookup structure a domain serves from once
// frozen. Construction is the only point entries are rearranged; afterwards
// the slice is never written again, which is what makes the lock-free
// concurrent reads in Domain safe.
type frozenMap[E any] struct {
	entries []entry[E]
}

// newFrozenMap consumes the builder's entries and produces a sorted,
// binary-searchable snapshot. The builder guarantees distinct keys, so no
// de-duplication happens here.
func newFrozenMap[E any](entries []entry[E]) *frozenMap[E] {
	sorted := make([]entry[E], len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].key < sorted[j].key
	})
	return &frozenMap[E]{entries: sorted}
}

// lookup binary-searches for key.
func (m *frozenMap[E]) lookup(key TypeKey) (E, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].key >= key
	})
	if i < len(m.entries) && m.entries[i].key == key {
		return m.entries[i].value, true
	}
	var zero E
	return zero, false
}

// len reports the number of entries in the snapshot.
func (m *frozenMap[E]) len() int {
	return len(m.entries)
}
