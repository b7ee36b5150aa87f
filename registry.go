package dctype

import (
	"context"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for Registry observability.
const (
	RegistryDomains      = metricz.Key("dctype.registry.domains")
	RegistryFreezesTotal = metricz.Key("dctype.registry.freezes.total")
)

// Span names for Registry operations.
const (
	RegistryFreezeAllSpan = tracez.Key("dctype.registry.freeze_all")
)

// Span tags for Registry operations.
const (
	RegistryTagDomains = tracez.Tag("dctype.registry.domains")

	// Hook event keys.
	RegistryEventDomainCreated = hookz.Key("dctype.registry.domain_created")
	RegistryEventFrozen        = hookz.Key("dctype.registry.frozen")
)

// RegistryEvent is emitted via hookz when a domain is lazily created and when
// FreezeAll completes.
type RegistryEvent struct {
	Domain    string    // Name of the domain involved (empty for frozen)
	Domains   int       // Number of domains in the registry at event time
	Timestamp time.Time // When the event occurred
}

// domainID is the identity a domain is indexed under. Domains that share base
// and enum types but use different strategies get distinct identities and
// never observe each other's registrations.
type domainID struct {
	base     reflect.Type
	enum     reflect.Type
	strategy string
}

// domainHandle is the type-erased view the Registry keeps of each domain, so
// one index can hold Domain instantiations of arbitrary base and enum types.
// Freeze-all and listing need nothing beyond this surface.
type domainHandle interface {
	Name() string
	Frozen() bool
	Freeze()
	Close() error
}

// Registry indexes domains by their (base type, enum type, strategy)
// identity and creates them lazily on first use. Construct one explicitly
// with New and hand it to the call sites that need it; there is no hidden
// package-level instance, so initialization order between packages never
// matters.
//
// All methods are safe for concurrent use. Existing domains are fetched under
// a shared lock; only first-time creation takes the exclusive lock.
//
// Example:
//
//	reg := dctype.New()
//
//	shapes := dctype.DomainOf[Shape, Kind](reg)
//	dctype.Register[Circle](shapes, KindCircle)
//	dctype.Register[Square](shapes, KindSquare)
//
//	reg.FreezeAll()
//
// # Observability
//
// Metrics:
//   - dctype.registry.domains: Gauge of domains in the index
//   - dctype.registry.freezes.total: Counter of FreezeAll calls
//
// Traces:
//   - dctype.registry.freeze_all: Span per FreezeAll call
//
// Events (via hooks):
//   - dctype.registry.domain_created: Fired when a domain is lazily created
//   - dctype.registry.frozen: Fired when FreezeAll completes
type Registry struct {
	mu      sync.RWMutex
	domains map[domainID]domainHandle

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[RegistryEvent]
}

// New creates an empty registry.
func New() *Registry {
	metrics := metricz.New()
	metrics.Gauge(RegistryDomains)
	metrics.Counter(RegistryFreezesTotal)

	return &Registry{
		domains: make(map[domainID]domainHandle),
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[RegistryEvent](),
	}
}

// DomainOf returns the registry's domain for base type B and enum type E
// under the default identity strategy, creating it on first use. Every call
// with the same type arguments returns the same domain.
func DomainOf[B any, E any](r *Registry) *Domain[B, E] {
	return DomainWith[B, E](r, IdentityKeys)
}

// DomainWith returns the registry's domain for base type B and enum type E
// under an explicit strategy, creating it on first use. The strategy is part
// of the domain's identity: DomainWith[B, E](r, AnchorKeys) and
// DomainOf[B, E](r) address two independent domains.
func DomainWith[B any, E any](r *Registry, strategy KeyStrategy) *Domain[B, E] {
	id := domainID{
		base:     typeOf[B](),
		enum:     typeOf[E](),
		strategy: strategy.Name(),
	}

	// Shared-lock probe: the common case is a domain that already exists.
	r.mu.RLock()
	h, ok := r.domains[id]
	r.mu.RUnlock()
	if ok {
		return h.(*Domain[B, E])
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-probe: another goroutine may have created the domain between the
	// shared probe and the exclusive lock.
	if h, ok := r.domains[id]; ok {
		return h.(*Domain[B, E])
	}

	d := newDomain[B, E](strategy)
	r.domains[id] = d
	r.metrics.Gauge(RegistryDomains).Set(float64(len(r.domains)))

	_ = r.hooks.Emit(context.Background(), RegistryEventDomainCreated, RegistryEvent{ //nolint:errcheck
		Domain:    d.Name(),
		Domains:   len(r.domains),
		Timestamp: r.getClock().Now(),
	})
	return d
}

// FreezeAll freezes every domain in the registry. The order domains freeze
// in is unspecified; domains are independent, so no ordering may be relied
// upon. Idempotent, like Freeze on each domain.
func (r *Registry) FreezeAll() {
	_, span := r.tracer.StartSpan(context.Background(), RegistryFreezeAllSpan)
	defer span.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.domains {
		h.Freeze()
	}
	span.SetTag(RegistryTagDomains, strconv.Itoa(len(r.domains)))
	r.metrics.Counter(RegistryFreezesTotal).Inc()

	_ = r.hooks.Emit(context.Background(), RegistryEventFrozen, RegistryEvent{ //nolint:errcheck
		Domains:   len(r.domains),
		Timestamp: r.getClock().Now(),
	})
}

// Frozen reports whether every domain in the registry is frozen. An empty
// registry is trivially frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.domains {
		if !h.Frozen() {
			return false
		}
	}
	return true
}

// Len reports the number of domains in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.domains)
}

// Domains returns the names of all domains in deterministic (lexicographic)
// order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.domains))
	for _, h := range r.domains {
		names = append(names, h.Name())
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// WithClock sets a custom clock for event timestamps. For testing.
func (r *Registry) WithClock(clock clockz.Clock) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

// getClock returns the clock to use.
func (r *Registry) getClock() clockz.Clock {
	if r.clock == nil {
		return clockz.RealClock
	}
	return r.clock
}

// Metrics returns the metrics registry for this registry.
func (r *Registry) Metrics() *metricz.Registry {
	return r.metrics
}

// Tracer returns the tracer for this registry.
func (r *Registry) Tracer() *tracez.Tracer {
	return r.tracer
}

// OnDomainCreated registers a handler for lazy domain creation.
// The handler is called asynchronously after the domain is inserted.
func (r *Registry) OnDomainCreated(handler func(context.Context, RegistryEvent) error) error {
	_, err := r.hooks.Hook(RegistryEventDomainCreated, handler)
	return err
}

// OnFrozen registers a handler for FreezeAll completion.
func (r *Registry) OnFrozen(handler func(context.Context, RegistryEvent) error) error {
	_, err := r.hooks.Hook(RegistryEventFrozen, handler)
	return err
}

// Close shuts down the registry's observability components and those of
// every domain it owns.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.domains {
		_ = h.Close() //nolint:errcheck // domain Close never fails
	}
	if r.tracer != nil {
		r.tracer.Close()
	}
	r.hooks.Close()
	return nil
}
