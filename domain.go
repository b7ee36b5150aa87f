package dctype

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for Domain observability.
const (
	DomainRegistrationsTotal = metricz.Key("dctype.domain.registrations.total")
	DomainDuplicatesTotal    = metricz.Key("dctype.domain.duplicates.total")
	DomainRejectedTotal      = metricz.Key("dctype.domain.rejected.total")
	DomainQueriesTotal       = metricz.Key("dctype.domain.queries.total")
	DomainMissesTotal        = metricz.Key("dctype.domain.misses.total")
	DomainLateFreezesTotal   = metricz.Key("dctype.domain.late_freezes.total")
	DomainEntries            = metricz.Key("dctype.domain.entries")
)

// Span names for Domain operations.
const (
	DomainRegisterSpan = tracez.Key("dctype.domain.register")
	DomainQuerySpan    = tracez.Key("dctype.domain.query")
	DomainFreezeSpan   = tracez.Key("dctype.domain.freeze")
)

// Span tags for Domain operations.
const (
	DomainTagName     = tracez.Tag("dctype.domain")
	DomainTagKey      = tracez.Tag("dctype.key")
	DomainTagHit      = tracez.Tag("dctype.hit")
	DomainTagAccepted = tracez.Tag("dctype.accepted")

	// Hook event keys.
	DomainEventDuplicate  = hookz.Key("dctype.domain.duplicate")
	DomainEventMiss       = hookz.Key("dctype.domain.miss")
	DomainEventLateFreeze = hookz.Key("dctype.domain.late_freeze")
)

// DomainEvent is the payload of every domain diagnostic. It is emitted via
// hookz when a registration overwrites an existing entry, when a query
// misses, and when a domain is frozen after it already served queries.
//
// Diagnostics are pure notifications: handlers run asynchronously, their
// errors are discarded, and nothing they do changes the outcome of the
// operation that fired them.
type DomainEvent struct {
	Domain    string    // Domain name
	Key       TypeKey   // Key involved (zero for late_freeze)
	Frozen    bool      // Whether the domain was frozen when the event fired
	Entries   int       // Number of distinct registrations at event time
	Timestamp time.Time // When the event occurred
}

// Domain maps concrete types of a base type B to values of an enumeration
// type E. It is the per-(base, enum, strategy) storage of a Registry and is
// only created through DomainOf or DomainWith; holding the returned pointer
// binds the base and enum types once, so call sites never repeat them.
//
// A domain has two phases. While building, registrations are accepted under
// the domain lock and duplicate keys overwrite (last write wins). Freeze is a
// one-way transition that converts the registration list into an immutable
// sorted array; from then on registrations are rejected and every query is a
// lock-free binary search. The intended lifecycle is: register everything at
// startup, freeze, then query from any number of goroutines.
//
// Example:
//
//	reg := dctype.New()
//	shapes := dctype.DomainOf[Shape, Kind](reg)
//
//	dctype.Register[Circle](shapes, KindCircle)
//	dctype.Register[Square](shapes, KindSquare)
//	shapes.Freeze()
//
//	var s Shape = Circle{R: 2}
//	kind := shapes.Query(s) // KindCircle
//
// # Observability
//
// Metrics:
//   - dctype.domain.registrations.total: Counter of accepted registrations
//   - dctype.domain.duplicates.total: Counter of overwriting registrations
//   - dctype.domain.rejected.total: Counter of registrations refused after freeze
//   - dctype.domain.queries.total: Counter of queries
//   - dctype.domain.misses.total: Counter of queries that found no mapping
//   - dctype.domain.late_freezes.total: Counter of freezes that happened after a query
//   - dctype.domain.entries: Gauge of distinct registered keys
//
// Traces:
//   - dctype.domain.register: Span per registration attempt
//   - dctype.domain.query: Span per fallback-resolving query
//   - dctype.domain.freeze: Span per freeze call
//
// Events (via hooks):
//   - dctype.domain.duplicate: Fired when a registration overwrites an entry
//   - dctype.domain.miss: Fired when Query or QueryOr finds no mapping
//   - dctype.domain.late_freeze: Fired when Freeze runs after queries were served
//
// Example with hooks:
//
//	shapes.OnMiss(func(ctx context.Context, ev dctype.DomainEvent) error {
//	    log.Printf("unclassified type in %s (key %#x)", ev.Domain, ev.Key)
//	    return nil
//	})
type Domain[B any, E any] struct {
	name     string
	strategy KeyStrategy

	mu          sync.Mutex
	reg         *builder[E]
	queried     bool
	autoFreeze  bool
	fallback    E
	hasFallback bool

	// frozen is nil while building. Storing the pointer is the freeze:
	// the atomic store publishes the fully built map (release), and the
	// lock-free load on the query path observes it (acquire).
	frozen atomic.Pointer[frozenMap[E]]

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[DomainEvent]
}

// newDomain creates a building-phase domain. Only the Registry calls this.
func newDomain[B any, E any](strategy KeyStrategy) *Domain[B, E] {
	metrics := metricz.New()
	metrics.Counter(DomainRegistrationsTotal)
	metrics.Counter(DomainDuplicatesTotal)
	metrics.Counter(DomainRejectedTotal)
	metrics.Counter(DomainQueriesTotal)
	metrics.Counter(DomainMissesTotal)
	metrics.Counter(DomainLateFreezesTotal)
	metrics.Gauge(DomainEntries)

	return &Domain[B, E]{
		name:     fmt.Sprintf("%s:%s:%s", typeOf[B]().String(), typeOf[E]().String(), strategy.Name()),
		strategy: strategy,
		reg:      &builder[E]{},
		clock:    clockz.RealClock,
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[DomainEvent](),
	}
}

// Register registers concrete type T in the domain under the static-type
// derivation path of the domain's strategy. Returns false iff the domain is
// already frozen, in which case nothing is mutated. Registering a type twice
// overwrites the previous value and fires the duplicate diagnostic.
//
// This is a free function because the type parameter T cannot live on a
// method.
func Register[T any, B any, E any](d *Domain[B, E], value E) bool {
	return d.RegisterKey(KeyOf[T](d.strategy), value)
}

// RegisterKey registers an explicit caller-chosen key. This is the escape
// hatch for environments where derived type identity is not stable across
// independently built modules: the caller supplies a key it controls and
// queries it back with QueryKeyOr or TryQueryKey. Returns false if the domain
// is frozen or key is the invalid zero key.
func (d *Domain[B, E]) RegisterKey(key TypeKey, value E) bool {
	_, span := d.tracer.StartSpan(context.Background(), DomainRegisterSpan)
	defer span.Finish()
	span.SetTag(DomainTagName, d.name)
	span.SetTag(DomainTagKey, strconv.FormatUint(uint64(key), 16))

	if key == 0 {
		span.SetTag(DomainTagAccepted, "false")
		return false
	}

	// Fast path: a frozen domain rejects without taking the lock.
	if d.frozen.Load() != nil {
		d.metrics.Counter(DomainRejectedTotal).Inc()
		span.SetTag(DomainTagAccepted, "false")
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check: freeze may have won the race between the fast check and
	// the lock.
	if d.frozen.Load() != nil {
		d.metrics.Counter(DomainRejectedTotal).Inc()
		span.SetTag(DomainTagAccepted, "false")
		return false
	}

	replaced := d.reg.insert(key, value)
	d.metrics.Counter(DomainRegistrationsTotal).Inc()
	d.metrics.Gauge(DomainEntries).Set(float64(d.reg.len()))
	span.SetTag(DomainTagAccepted, "true")

	if replaced {
		d.metrics.Counter(DomainDuplicatesTotal).Inc()
		_ = d.hooks.Emit(context.Background(), DomainEventDuplicate, DomainEvent{ //nolint:errcheck
			Domain:    d.name,
			Key:       key,
			Entries:   d.reg.len(),
			Timestamp: d.getClock().Now(),
		})
	}
	return true
}

// SetFallback configures the value returned by Query when no mapping exists.
// The fallback must be configured before the domain freezes; afterwards
// SetFallback returns ErrFrozen and changes nothing.
func (d *Domain[B, E]) SetFallback(value E) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen.Load() != nil {
		return ErrFrozen
	}
	d.fallback = value
	d.hasFallback = true
	return nil
}

// SetAutoFreeze makes the first query freeze the domain, so a late
// registration can never land in a mapping that queries already observed.
// Off by default: the default contract is an explicit Freeze, with the
// late_freeze diagnostic flagging queries that preceded it.
func (d *Domain[B, E]) SetAutoFreeze(on bool) *Domain[B, E] {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoFreeze = on
	return d
}

// Freeze transitions the domain to the immutable phase. Idempotent: repeated
// calls change nothing. If any query was already served from the mutable
// phase, the late_freeze diagnostic fires - the freeze still succeeds, but
// those earlier queries may have observed an incomplete mapping.
func (d *Domain[B, E]) Freeze() {
	_, span := d.tracer.StartSpan(context.Background(), DomainFreezeSpan)
	defer span.Finish()
	span.SetTag(DomainTagName, d.name)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.freezeLocked()
}

// freezeLocked performs the phase transition. Caller holds d.mu.
func (d *Domain[B, E]) freezeLocked() {
	if d.frozen.Load() != nil {
		return
	}

	if d.queried {
		d.metrics.Counter(DomainLateFreezesTotal).Inc()
		_ = d.hooks.Emit(context.Background(), DomainEventLateFreeze, DomainEvent{ //nolint:errcheck
			Domain:    d.name,
			Entries:   d.reg.len(),
			Timestamp: d.getClock().Now(),
		})
	}

	fm := newFrozenMap(d.reg.entries)
	d.reg = nil
	d.frozen.Store(fm)
}

// Frozen reports whether the domain has been frozen.
func (d *Domain[B, E]) Frozen() bool {
	return d.frozen.Load() != nil
}

// Query classifies obj by its dynamic type. Returns the mapped value; on a
// miss it returns the configured fallback if one was set, else the zero value
// of E, and fires the miss diagnostic.
func (d *Domain[B, E]) Query(obj B) E {
	if v, ok := d.resolve(d.strategy.KeyFor(obj)); ok {
		return v
	}
	if fb, ok := d.fallbackValue(); ok {
		return fb
	}
	var zero E
	return zero
}

// QueryOr classifies obj by its dynamic type, returning fallback on a miss.
// The explicit fallback always wins over the domain's configured one. A miss
// fires the miss diagnostic.
func (d *Domain[B, E]) QueryOr(obj B, fallback E) E {
	if v, ok := d.resolve(d.strategy.KeyFor(obj)); ok {
		return v
	}
	return fallback
}

// TryQuery classifies obj by its dynamic type, reporting a miss as absence
// instead of substituting any fallback. Absence is the expected outcome of
// the try form, so no miss diagnostic fires.
func (d *Domain[B, E]) TryQuery(obj B) (E, bool) {
	d.metrics.Counter(DomainQueriesTotal).Inc()
	return d.lookup(d.strategy.KeyFor(obj))
}

// QueryType classifies by static type instead of by instance, with Query's
// fallback behavior. The counterpart of Register for lookups.
func QueryType[T any, B any, E any](d *Domain[B, E]) E {
	if v, ok := d.resolve(KeyOf[T](d.strategy)); ok {
		return v
	}
	if fb, ok := d.fallbackValue(); ok {
		return fb
	}
	var zero E
	return zero
}

// QueryTypeOr classifies by static type, returning fallback on a miss.
func QueryTypeOr[T any, B any, E any](d *Domain[B, E], fallback E) E {
	if v, ok := d.resolve(KeyOf[T](d.strategy)); ok {
		return v
	}
	return fallback
}

// TryQueryType classifies by static type, reporting a miss as absence.
func TryQueryType[T any, B any, E any](d *Domain[B, E]) (E, bool) {
	d.metrics.Counter(DomainQueriesTotal).Inc()
	return d.lookup(KeyOf[T](d.strategy))
}

// QueryKeyOr looks up an explicit key, returning fallback on a miss. The
// counterpart of RegisterKey.
func (d *Domain[B, E]) QueryKeyOr(key TypeKey, fallback E) E {
	if v, ok := d.resolve(key); ok {
		return v
	}
	return fallback
}

// TryQueryKey looks up an explicit key, reporting a miss as absence.
func (d *Domain[B, E]) TryQueryKey(key TypeKey) (E, bool) {
	d.metrics.Counter(DomainQueriesTotal).Inc()
	return d.lookup(key)
}

// resolve is the diagnostic-bearing lookup behind Query and QueryOr: it
// traces the query, counts it, and fires the miss diagnostic when the key has
// no mapping.
func (d *Domain[B, E]) resolve(key TypeKey) (E, bool) {
	_, span := d.tracer.StartSpan(context.Background(), DomainQuerySpan)
	defer span.Finish()
	span.SetTag(DomainTagName, d.name)
	span.SetTag(DomainTagKey, strconv.FormatUint(uint64(key), 16))

	d.metrics.Counter(DomainQueriesTotal).Inc()

	v, ok := d.lookup(key)
	span.SetTag(DomainTagHit, fmt.Sprintf("%t", ok))
	if !ok {
		d.metrics.Counter(DomainMissesTotal).Inc()
		_ = d.hooks.Emit(context.Background(), DomainEventMiss, DomainEvent{ //nolint:errcheck
			Domain:    d.name,
			Key:       key,
			Frozen:    d.Frozen(),
			Entries:   d.Len(),
			Timestamp: d.getClock().Now(),
		})
	}
	return v, ok
}

// lookup routes to the structure for the current phase. Frozen: lock-free
// binary search. Building: linear scan under the lock, marking the domain as
// queried (or freezing it first when auto-freeze is on).
func (d *Domain[B, E]) lookup(key TypeKey) (E, bool) {
	if fm := d.frozen.Load(); fm != nil {
		return fm.lookup(key)
	}

	d.mu.Lock()
	// Freeze may have completed between the fast check and the lock.
	if fm := d.frozen.Load(); fm != nil {
		d.mu.Unlock()
		return fm.lookup(key)
	}
	if d.autoFreeze {
		d.freezeLocked()
		fm := d.frozen.Load()
		d.mu.Unlock()
		return fm.lookup(key)
	}
	d.queried = true
	v, ok := d.reg.lookup(key)
	d.mu.Unlock()
	return v, ok
}

// fallbackValue returns the configured fallback, if any. After freeze the
// read is lock-free: the fallback can only change before the freeze, and the
// frozen-map publication orders those writes before any lock-free reader.
func (d *Domain[B, E]) fallbackValue() (E, bool) {
	if d.frozen.Load() != nil {
		return d.fallback, d.hasFallback
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fallback, d.hasFallback
}

// Len reports the number of distinct registered keys.
func (d *Domain[B, E]) Len() int {
	if fm := d.frozen.Load(); fm != nil {
		return fm.len()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if fm := d.frozen.Load(); fm != nil {
		return fm.len()
	}
	return d.reg.len()
}

// Name returns the domain's name: "base:enum:strategy".
func (d *Domain[B, E]) Name() string {
	return d.name
}

// Strategy returns the key strategy this domain was created with.
func (d *Domain[B, E]) Strategy() KeyStrategy {
	return d.strategy
}

// WithClock sets a custom clock for event timestamps. For testing.
func (d *Domain[B, E]) WithClock(clock clockz.Clock) *Domain[B, E] {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = clock
	return d
}

// getClock returns the clock to use.
func (d *Domain[B, E]) getClock() clockz.Clock {
	if d.clock == nil {
		return clockz.RealClock
	}
	return d.clock
}

// Metrics returns the metrics registry for this domain.
func (d *Domain[B, E]) Metrics() *metricz.Registry {
	return d.metrics
}

// Tracer returns the tracer for this domain.
func (d *Domain[B, E]) Tracer() *tracez.Tracer {
	return d.tracer
}

// OnDuplicate registers a handler for overwriting registrations.
// The handler is called asynchronously after the registration completes.
func (d *Domain[B, E]) OnDuplicate(handler func(context.Context, DomainEvent) error) error {
	_, err := d.hooks.Hook(DomainEventDuplicate, handler)
	return err
}

// OnMiss registers a handler for queries that found no mapping.
// The handler is called asynchronously after the query returns.
func (d *Domain[B, E]) OnMiss(handler func(context.Context, DomainEvent) error) error {
	_, err := d.hooks.Hook(DomainEventMiss, handler)
	return err
}

// OnLateFreeze registers a handler for freezes that ran after the domain
// already served queries from the mutable phase.
func (d *Domain[B, E]) OnLateFreeze(handler func(context.Context, DomainEvent) error) error {
	_, err := d.hooks.Hook(DomainEventLateFreeze, handler)
	return err
}

// Close shuts down the domain's observability components.
func (d *Domain[B, E]) Close() error {
	if d.tracer != nil {
		d.tracer.Close()
	}
	d.hooks.Close()
	return nil
}
