// Package dctype classifies concrete runtime types into values of a closed
// enumeration, without the classified types carrying that information
// themselves. Unrelated call sites agree on "what kind of thing is this
// instance" by consulting a shared table built once at startup - a dispatch
// tag, a serialization kind, a category - replacing chains of type switches
// with a single lookup.
//
// # Overview
//
// The package is built around three pieces:
//
//   - Registry: an index of independent domains, created lazily on first use.
//   - Domain[B, E]: one mapping from concrete types of a base type B to
//     values of an enumeration type E, with a two-phase lifecycle.
//   - KeyStrategy: the policy that turns a type into an opaque TypeKey, from
//     a static type at registration time and from an instance's dynamic type
//     at query time. The two derivations always agree for the same type.
//
// A domain starts mutable: registrations are accepted under a lock, and a
// duplicate registration overwrites (last write wins) while firing a
// diagnostic. Freezing is a one-way transition that converts the mapping into
// an immutable sorted array; from then on queries are lock-free binary
// searches and late registrations are rejected with a boolean failure. The
// intended lifecycle is register at startup, freeze once, query forever.
//
// # Quick Start
//
//	package main
//
//	import dctype "github.com/suzvka/DCtype"
//
//	type Shape interface{ Area() float64 }
//	type Circle struct{ R float64 }
//	type Square struct{ S float64 }
//
//	type Kind int
//
//	const (
//	    KindUnknown Kind = iota
//	    KindCircle
//	    KindSquare
//	)
//
//	func main() {
//	    reg := dctype.New()
//	    shapes := dctype.DomainOf[Shape, Kind](reg)
//
//	    dctype.Register[Circle](shapes, KindCircle)
//	    dctype.Register[Square](shapes, KindSquare)
//	    _ = shapes.SetFallback(KindUnknown)
//	    reg.FreezeAll()
//
//	    var s Shape = Circle{R: 2}
//	    _ = shapes.Query(s) // KindCircle
//	}
//
// # Domains
//
// A domain is identified by the triple (base type, enum type, strategy).
// Domains sharing base and enum types but differing in strategy are fully
// independent; registrations in one are invisible to the other. The
// *Domain[B, E] value returned by DomainOf binds the base and enum types
// once, so call sites never repeat both type parameters.
//
// Registration by static type and query by dynamic type meet through the
// domain's KeyStrategy. Register, QueryType and friends are free functions
// because Go methods cannot introduce type parameters.
//
// # Key Strategies
//
// IdentityKeys (the default) hashes the type's canonical name. AnchorKeys
// derives keys from per-type Anchor cells instead, for environments where
// name-derived identity is not stable; types opt in by implementing Anchored,
// and types that don't get an implicit cell so both derivation paths still
// agree. When neither derivation is trustworthy, RegisterKey accepts an
// explicit caller-chosen key that round-trips through TryQueryKey.
//
// # Miss Handling
//
// On a lookup miss the resolution order is: the per-call fallback of QueryOr,
// else the domain fallback configured with SetFallback, else the zero value
// of the enum type. TryQuery reports the miss as absence instead of
// substituting anything. The fallback must be configured before the freeze;
// afterwards SetFallback returns ErrFrozen.
//
// # Concurrency
//
// Every operation is synchronous and safe for concurrent use. Pre-freeze
// registrations and queries serialize on a per-domain mutex; the frozen map
// is published atomically, so once a goroutine observes the domain as frozen
// it sees the complete mapping and reads without locking. Freezing never
// loses a registration that completed before the freeze began.
//
// # Observability
//
// Domains and the Registry expose metricz counters and gauges (Metrics()),
// tracez spans (Tracer()), and hookz events for the three diagnostics:
// duplicate registration, lookup miss, and freeze-after-query. Handlers run
// asynchronously and never change the outcome of the operation that fired
// them:
//
//	shapes.OnDuplicate(func(ctx context.Context, ev dctype.DomainEvent) error {
//	    log.Printf("re-registered key %#x in %s", ev.Key, ev.Domain)
//	    return nil
//	})
package dctype
