package dctype

import (
	"hash/fnv"
	"reflect"
	"sync"
	"sync/atomic"
)

// TypeKey is an opaque, comparable identifier for a concrete type within one
// domain. The zero value is reserved as the invalid key and never matches a
// registration. Stability of keys across independently built binaries depends
// on the strategy that produced them; within one process a strategy always
// yields the same key for the same concrete type.
type TypeKey uint64

// KeyStrategy derives TypeKeys from types. Both derivation paths must agree:
// KeyOf on a concrete type and KeyFor on an instance of that type return the
// same key. Registration uses the static path, queries use the dynamic path,
// and the registry is only correct if the two meet.
//
// Implementations must be safe for concurrent use.
type KeyStrategy interface {
	// Name identifies the strategy. It is part of the domain identity:
	// domains with different strategy names are fully independent.
	Name() string

	// KeyOf derives a key from a type known statically. A nil type
	// yields the invalid key.
	KeyOf(t reflect.Type) TypeKey

	// KeyFor derives a key from the dynamic type of v. A nil v yields
	// the invalid key.
	KeyFor(v any) TypeKey
}

// KeyOf derives the key for type T under strategy s. This is the static-type
// entry point used by Register.
func KeyOf[T any](s KeyStrategy) TypeKey {
	return s.KeyOf(typeOf[T]())
}

// typeOf returns the reflect.Type of T without allocating a value of T.
// Unlike reflect.TypeOf on a zero value, this also works when T is an
// interface type.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// IdentityKeys derives keys from the runtime's type identity: a 64-bit FNV-1a
// hash of the type's canonical name. This is the default strategy. Keys are
// stable within a process; they are stable across processes only as far as
// type names are, so renaming a type or its package changes its key.
var IdentityKeys KeyStrategy = identityStrategy{}

type identityStrategy struct{}

func (identityStrategy) Name() string { return "identity" }

func (identityStrategy) KeyOf(t reflect.Type) TypeKey {
	return identityKey(t)
}

func (identityStrategy) KeyFor(v any) TypeKey {
	return identityKey(reflect.TypeOf(v))
}

var (
	// identityCache memoizes the hash per reflect.Type so repeated
	// derivations skip both the name construction and the hashing.
	identityCache = make(map[reflect.Type]TypeKey)
	identityMu    sync.RWMutex
)

// identityKey returns the cached identity hash for t, computing and caching
// it on first use. Safe for concurrent use.
func identityKey(t reflect.Type) TypeKey {
	if t == nil {
		return 0
	}

	identityMu.RLock()
	if k, ok := identityCache[t]; ok {
		identityMu.RUnlock()
		return k
	}
	identityMu.RUnlock()

	identityMu.Lock()
	defer identityMu.Unlock()

	// Double-check after acquiring write lock
	if k, ok := identityCache[t]; ok {
		return k
	}

	k := hashTypeName(t)
	identityCache[t] = k
	return k
}

// hashTypeName hashes the canonical name of t. Named types hash as
// "pkgpath.Name" so two same-named types in different packages stay distinct;
// unnamed types fall back to the reflect string form.
func hashTypeName(t reflect.Type) TypeKey {
	name := t.String()
	if t.Name() != "" && t.PkgPath() != "" {
		name = t.PkgPath() + "." + t.Name()
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(name)) //nolint:errcheck // fnv never fails
	k := TypeKey(h.Sum64())
	if k == 0 {
		k = 1 // zero is reserved as the invalid key
	}
	return k
}

// Anchor is a per-type storage cell for the anchor strategy. The first use of
// a cell claims a process-unique key; every later use returns the same key.
// Declare one package-level Anchor per participating type and return its
// address from TypeAnchor:
//
//	var widgetAnchor dctype.Anchor
//
//	func (Widget) TypeAnchor() *dctype.Anchor { return &widgetAnchor }
//
// The cell plays the role a per-type static variable address plays in
// environments without reliable runtime type identity: the key comes from
// the cell, not from the type's name or layout.
type Anchor struct {
	key atomic.Uint64
}

// anchorSeq hands out process-unique anchor keys, starting at 1 so the zero
// key stays invalid.
var anchorSeq atomic.Uint64

// Key returns the cell's key, assigning one on first use. Safe for
// concurrent use; concurrent first calls all observe the same key.
func (a *Anchor) Key() TypeKey {
	if k := a.key.Load(); k != 0 {
		return TypeKey(k)
	}
	next := anchorSeq.Add(1)
	if a.key.CompareAndSwap(0, next) {
		return TypeKey(next)
	}
	return TypeKey(a.key.Load())
}

// Anchored is implemented by types that carry their own anchor cell.
// TypeAnchor must return the same package-level Anchor for every instance of
// the type, and must be callable on a zero value (including a nil pointer
// receiver) since the static derivation path has no live instance.
type Anchored interface {
	TypeAnchor() *Anchor
}

// AnchorKeys derives keys from per-type anchor cells rather than from type
// identity. Types that implement Anchored use their declared cell on both
// derivation paths. Types that do not are assigned an implicit cell on first
// use, so the static/dynamic equivalence holds for every type, anchored or
// not.
var AnchorKeys KeyStrategy = anchorStrategy{}

type anchorStrategy struct{}

var anchoredType = reflect.TypeOf((*Anchored)(nil)).Elem()

func (anchorStrategy) Name() string { return "anchor" }

func (anchorStrategy) KeyOf(t reflect.Type) TypeKey {
	if t == nil {
		return 0
	}
	if t.Implements(anchoredType) && t.Kind() != reflect.Interface {
		return reflect.Zero(t).Interface().(Anchored).TypeAnchor().Key()
	}
	if pt := reflect.PointerTo(t); pt.Implements(anchoredType) {
		// Anchored on the pointer receiver; a nil receiver is fine
		// because TypeAnchor returns a package-level cell.
		return reflect.Zero(pt).Interface().(Anchored).TypeAnchor().Key()
	}
	return implicitAnchor(t).Key()
}

func (s anchorStrategy) KeyFor(v any) TypeKey {
	if v == nil {
		return 0
	}
	if a, ok := v.(Anchored); ok {
		return a.TypeAnchor().Key()
	}
	return s.KeyOf(reflect.TypeOf(v))
}

var (
	// implicitAnchors holds the cells allocated for types that never
	// declared one. One cell per reflect.Type for the process lifetime.
	implicitAnchors = make(map[reflect.Type]*Anchor)
	implicitMu      sync.RWMutex
)

// implicitAnchor returns the cell for t, allocating it on first use.
func implicitAnchor(t reflect.Type) *Anchor {
	implicitMu.RLock()
	if a, ok := implicitAnchors[t]; ok {
		implicitMu.RUnlock()
		return a
	}
	implicitMu.RUnlock()

	implicitMu.Lock()
	defer implicitMu.Unlock()

	if a, ok := implicitAnchors[t]; ok {
		return a
	}
	a := new(Anchor)
	implicitAnchors[t] = a
	return a
}
