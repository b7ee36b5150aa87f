package dctype

import (
	"reflect"
	"sync"
	"testing"
)

type anchoredGizmo struct{}

var gizmoAnchor Anchor

func (anchoredGizmo) TypeAnchor() *Anchor { return &gizmoAnchor }

// anchoredWidget declares its anchor on the pointer receiver, the shape the
// static derivation path has to reach through a nil receiver.
type anchoredWidget struct{}

var widgetAnchor Anchor

func (*anchoredWidget) TypeAnchor() *Anchor { return &widgetAnchor }

type plainThing struct{}

type otherThing struct{}

func TestIdentityKeys_StaticDynamicAgree(t *testing.T) {
	static := KeyOf[plainThing](IdentityKeys)
	dynamic := IdentityKeys.KeyFor(plainThing{})

	if static == 0 {
		t.Error("Expected nonzero key for plainThing")
	}
	if static != dynamic {
		t.Errorf("Expected static and dynamic keys to agree, got %#x and %#x", static, dynamic)
	}
}

func TestIdentityKeys_DistinctTypes(t *testing.T) {
	a := KeyOf[plainThing](IdentityKeys)
	b := KeyOf[otherThing](IdentityKeys)

	if a == b {
		t.Errorf("Expected distinct keys for distinct types, both got %#x", a)
	}
}

func TestIdentityKeys_Memoized(t *testing.T) {
	first := IdentityKeys.KeyOf(reflect.TypeOf(plainThing{}))
	second := IdentityKeys.KeyOf(reflect.TypeOf(plainThing{}))

	if first != second {
		t.Errorf("Expected stable key across derivations, got %#x then %#x", first, second)
	}
}

func TestIdentityKeys_NilYieldsInvalidKey(t *testing.T) {
	if k := IdentityKeys.KeyOf(nil); k != 0 {
		t.Errorf("Expected invalid key for nil type, got %#x", k)
	}
	if k := IdentityKeys.KeyFor(nil); k != 0 {
		t.Errorf("Expected invalid key for nil value, got %#x", k)
	}
}

func TestAnchorKeys_DeclaredAnchor(t *testing.T) {
	static := KeyOf[anchoredGizmo](AnchorKeys)
	dynamic := AnchorKeys.KeyFor(anchoredGizmo{})

	if static != gizmoAnchor.Key() {
		t.Errorf("Expected static key %#x from the declared anchor, got %#x", gizmoAnchor.Key(), static)
	}
	if static != dynamic {
		t.Errorf("Expected static and dynamic keys to agree, got %#x and %#x", static, dynamic)
	}
}

func TestAnchorKeys_PointerReceiverAnchor(t *testing.T) {
	static := KeyOf[anchoredWidget](AnchorKeys)
	byPointer := AnchorKeys.KeyFor(&anchoredWidget{})
	byValue := AnchorKeys.KeyFor(anchoredWidget{})

	if static != widgetAnchor.Key() {
		t.Errorf("Expected static key %#x from the declared anchor, got %#x", widgetAnchor.Key(), static)
	}
	if byPointer != static {
		t.Errorf("Expected pointer instance key %#x, got %#x", static, byPointer)
	}
	// A value instance does not implement Anchored, so derivation falls
	// back to the static path - which still reaches the declared anchor.
	if byValue != static {
		t.Errorf("Expected value instance key %#x, got %#x", static, byValue)
	}
}

func TestAnchorKeys_ImplicitCell(t *testing.T) {
	static := KeyOf[plainThing](AnchorKeys)
	dynamic := AnchorKeys.KeyFor(plainThing{})

	if static == 0 {
		t.Error("Expected nonzero implicit anchor key")
	}
	if static != dynamic {
		t.Errorf("Expected static and dynamic keys to agree, got %#x and %#x", static, dynamic)
	}
	if other := KeyOf[otherThing](AnchorKeys); other == static {
		t.Errorf("Expected distinct implicit cells for distinct types, both got %#x", static)
	}
}

func TestAnchorKeys_IndependentFromIdentityKeys(t *testing.T) {
	// Not a strict invariant (a hash could collide with a sequence
	// number), but the two strategies must not be derived from each other.
	idKey := KeyOf[anchoredGizmo](IdentityKeys)
	anchorKey := KeyOf[anchoredGizmo](AnchorKeys)

	if idKey == anchorKey {
		t.Errorf("Expected identity and anchor strategies to derive independently, both got %#x", idKey)
	}
}

func TestAnchor_ConcurrentFirstUse(t *testing.T) {
	var cell Anchor
	const goroutines = 50

	keys := make(chan TypeKey, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys <- cell.Key()
		}()
	}
	wg.Wait()
	close(keys)

	first := <-keys
	if first == 0 {
		t.Fatal("Expected nonzero anchor key")
	}
	for k := range keys {
		if k != first {
			t.Errorf("Expected all concurrent first uses to observe %#x, got %#x", first, k)
		}
	}
}
