package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/partlinq/partsearch/pkg/metrics"
)

// Namespace bounds one logical cache region. Keys are stored as
// "<name>:<key>" in both tiers.
type Namespace struct {
	Name     string
	Capacity int
	TTL      time.Duration
}

// Default namespaces for the search pipeline.
const (
	NSIntent = "intent"
	NSParts  = "parts"
	NSSearch = "search"
)

// DefaultNamespaces sizes the three pipeline regions: parsed intents, per-part
// lookups, and full search responses.
var DefaultNamespaces = []Namespace{
	{Name: NSIntent, Capacity: 200, TTL: 10 * time.Minute},
	{Name: NSParts, Capacity: 500, TTL: 5 * time.Minute},
	{Name: NSSearch, Capacity: 100, TTL: 2 * time.Minute},
}

type namespaceState struct {
	l1  *LRU
	ttl time.Duration
}

// Tiered is the L1+L2 cache facade. L1 is always present; L2 is optional and
// every L2 failure is logged and swallowed so the pipeline degrades to
// L1-only rather than erroring.
type Tiered struct {
	namespaces map[string]*namespaceState
	l2         KV
	log        *slog.Logger

	l1Hits   *metrics.Counter
	l2Hits   *metrics.Counter
	misses   *metrics.Counter
	l2Errors *metrics.Counter
}

// NewTiered builds the facade. l2 may be nil. reg may be nil, in which case a
// private registry absorbs the counters.
func NewTiered(namespaces []Namespace, l2 KV, reg *metrics.Registry, log *slog.Logger) *Tiered {
	if len(namespaces) == 0 {
		namespaces = DefaultNamespaces
	}
	if reg == nil {
		reg = metrics.New()
	}
	if log == nil {
		log = slog.Default()
	}
	t := &Tiered{
		namespaces: make(map[string]*namespaceState, len(namespaces)),
		l2:         l2,
		log:        log,
		l1Hits:     reg.Counter(metrics.WithLabels("cache_hits_total", "tier", "l1"), "Cache hits by tier"),
		l2Hits:     reg.Counter(metrics.WithLabels("cache_hits_total", "tier", "l2"), ""),
		misses:     reg.Counter("cache_misses_total", "Cache misses across both tiers"),
		l2Errors:   reg.Counter("cache_l2_errors_total", "Swallowed distributed-cache failures"),
	}
	for _, ns := range namespaces {
		t.namespaces[ns.Name] = &namespaceState{l1: NewLRU(ns.Capacity, ns.TTL), ttl: ns.TTL}
	}
	return t
}

func (t *Tiered) namespace(name string) *namespaceState {
	ns, ok := t.namespaces[name]
	if !ok {
		t.log.Warn("cache: unknown namespace", "namespace", name)
		return nil
	}
	return ns
}

// Get probes L1 then L2. An L2 hit is promoted into L1 so repeat reads stay
// in-process.
func (t *Tiered) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	ns := t.namespace(namespace)
	if ns == nil {
		return nil, false
	}
	full := namespace + ":" + key
	if v, ok := ns.l1.Get(full); ok {
		t.l1Hits.Inc()
		return v, true
	}
	if t.l2 != nil {
		v, err := t.l2.Get(ctx, full)
		switch {
		case err == nil:
			ns.l1.Set(full, v)
			t.l2Hits.Inc()
			return v, true
		case !errors.Is(err, ErrMiss):
			t.l2Errors.Inc()
			t.log.Warn("cache: l2 get failed", "key", full, "error", err)
		}
	}
	t.misses.Inc()
	return nil, false
}

// Set writes both tiers.
func (t *Tiered) Set(ctx context.Context, namespace, key string, value []byte) {
	ns := t.namespace(namespace)
	if ns == nil {
		return
	}
	full := namespace + ":" + key
	ns.l1.Set(full, value)
	if t.l2 != nil {
		if err := t.l2.SetEx(ctx, full, value, ns.ttl); err != nil {
			t.l2Errors.Inc()
			t.log.Warn("cache: l2 set failed", "key", full, "error", err)
		}
	}
}

// Delete removes the key from both tiers.
func (t *Tiered) Delete(ctx context.Context, namespace, key string) {
	ns := t.namespace(namespace)
	if ns == nil {
		return
	}
	full := namespace + ":" + key
	ns.l1.Delete(full)
	if t.l2 != nil {
		if err := t.l2.Del(ctx, full); err != nil {
			t.l2Errors.Inc()
			t.log.Warn("cache: l2 del failed", "key", full, "error", err)
		}
	}
}

// GetJSON decodes a cached JSON value into out.
func (t *Tiered) GetJSON(ctx context.Context, namespace, key string, out any) bool {
	raw, ok := t.Get(ctx, namespace, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.log.Warn("cache: corrupt entry dropped", "namespace", namespace, "key", key, "error", err)
		t.Delete(ctx, namespace, key)
		return false
	}
	return true
}

// SetJSON encodes v and writes both tiers; encode failures are logged and
// skipped.
func (t *Tiered) SetJSON(ctx context.Context, namespace, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.log.Warn("cache: encode failed", "namespace", namespace, "key", key, "error", err)
		return
	}
	t.Set(ctx, namespace, key, raw)
}

// Ping reports L2 health. A nil L2 is healthy by definition.
func (t *Tiered) Ping(ctx context.Context) error {
	if t.l2 == nil {
		return nil
	}
	return t.l2.Ping(ctx)
}

// Stats is a point-in-time view for the stats endpoint.
type Stats struct {
	L1Hits   int64          `json:"l1Hits"`
	L2Hits   int64          `json:"l2Hits"`
	Misses   int64          `json:"misses"`
	L2Errors int64          `json:"l2Errors"`
	HitRate  float64        `json:"hitRate"`
	Entries  map[string]int `json:"entries"`
}

// Snapshot returns current counters and per-namespace entry counts.
func (t *Tiered) Snapshot() Stats {
	s := Stats{
		L1Hits:   t.l1Hits.Value(),
		L2Hits:   t.l2Hits.Value(),
		Misses:   t.misses.Value(),
		L2Errors: t.l2Errors.Value(),
		Entries:  make(map[string]int, len(t.namespaces)),
	}
	total := s.L1Hits + s.L2Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.L1Hits+s.L2Hits) / float64(total)
	}
	for name, ns := range t.namespaces {
		s.Entries[name] = ns.l1.Len()
	}
	return s
}
