package dctype

// entry is one (TypeKey, value) registration inside a domain.
type entry[E any] struct {
	key   TypeKey
	value E
}

// builder is the mutable registration-phase store: an append-mostly list
// where a duplicate key overwrites in place. It carries no lock of its own;
// the owning domain serializes access during the building phase.
//
// Registration sets are small and short-lived, so a linear scan beats map
// overhead here and the entries hand off directly to the sorted frozen form.
type builder[E any] struct {
	entries []entry[E]
}

// insert adds or overwrites the value for key. Last write wins. Reports
// whether an existing entry was replaced so the caller can surface the
// duplicate.
func (b *builder[E]) insert(key TypeKey, value E) (replaced bool) {
	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries[i].value = value
			return true
		}
	}
	b.entries = append(b.entries, entry[E]{key: key, value: value})
	return false
}

// lookup scans for key. Only used before the domain freezes.
func (b *builder[E]) lookup(key TypeKey) (E, bool) {
	for i := range b.entries {
		if b.entries[i].key == key {
			return b.entries[i].value, true
		}
	}
	var zero E
	return zero, false
}

// len reports the number of distinct keys registered so far.
func (b *builder[E]) len() int {
	return len(b.entries)
}
