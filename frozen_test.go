package dctype

import "testing"

func TestBuilder_InsertAndLookup(t *testing.T) {
	b := &builder[int]{}

	if replaced := b.insert(7, 70); replaced {
		t.Error("Expected first insert not to replace")
	}
	if replaced := b.insert(3, 30); replaced {
		t.Error("Expected first insert not to replace")
	}

	v, ok := b.lookup(7)
	if !ok || v != 70 {
		t.Errorf("Expected (70, true), got (%d, %t)", v, ok)
	}
	if _, ok := b.lookup(99); ok {
		t.Error("Expected miss for unregistered key")
	}
	if b.len() != 2 {
		t.Errorf("Expected 2 entries, got %d", b.len())
	}
}

func TestBuilder_LastWriteWins(t *testing.T) {
	b := &builder[string]{}

	b.insert(1, "first")
	if replaced := b.insert(1, "second"); !replaced {
		t.Error("Expected duplicate insert to report replacement")
	}

	v, _ := b.lookup(1)
	if v != "second" {
		t.Errorf("Expected last write to win, got %q", v)
	}
	if b.len() != 1 {
		t.Errorf("Expected 1 entry after overwrite, got %d", b.len())
	}
}

func TestFrozenMap_Lookup(t *testing.T) {
	b := &builder[string]{}
	b.insert(40, "forty")
	b.insert(10, "ten")
	b.insert(30, "thirty")
	b.insert(20, "twenty")

	fm := newFrozenMap(b.entries)

	// First, last, and middle keys all resolve after sorting.
	for key, want := range map[TypeKey]string{10: "ten", 20: "twenty", 30: "thirty", 40: "forty"} {
		got, ok := fm.lookup(key)
		if !ok || got != want {
			t.Errorf("Expected (%q, true) for key %d, got (%q, %t)", want, key, got, ok)
		}
	}

	// Misses below, between, and above the key range.
	for _, key := range []TypeKey{5, 25, 50} {
		if _, ok := fm.lookup(key); ok {
			t.Errorf("Expected miss for key %d", key)
		}
	}

	if fm.len() != 4 {
		t.Errorf("Expected 4 entries, got %d", fm.len())
	}
}

func TestFrozenMap_Empty(t *testing.T) {
	fm := newFrozenMap[int](nil)

	if _, ok := fm.lookup(1); ok {
		t.Error("Expected miss on empty map")
	}
	if fm.len() != 0 {
		t.Errorf("Expected 0 entries, got %d", fm.len())
	}
}

func TestFrozenMap_DoesNotAliasBuilder(t *testing.T) {
	b := &builder[int]{}
	b.insert(2, 20)
	b.insert(1, 10)

	fm := newFrozenMap(b.entries)
	// Mutating the builder after the snapshot must not bleed through.
	b.insert(2, 999)

	v, _ := fm.lookup(2)
	if v != 20 {
		t.Errorf("Expected snapshot value 20, got %d", v)
	}
}
