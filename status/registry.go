// Package status provides lock-free telemetry counters for the navigation engine
package status

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Navigation metric keys
const (
	KeyPortals        = "nav.portals"
	KeyChunksRebuilt  = "nav.chunks_rebuilt"
	KeyCacheHits      = "nav.cache_hits"
	KeyCacheMisses    = "nav.cache_misses"
	KeyCacheEntries   = "nav.cache_entries"
	KeyRouteFailures  = "nav.route_failures"
	KeyRepaths        = "nav.repaths"
	KeyChunksSolved   = "nav.chunks_solved"
	KeyPaths          = "nav.paths"
	KeyLastUpdateMs   = "nav.last_update_ms"
	KeyLastRepathMs   = "nav.last_repath_ms"
	KeyLastError      = "nav.last_error"
	KeyLastRouteState = "nav.last_route_state"
)

// Registry is the central metrics facade
// Components cache pointers at construction; hot paths write directly to atomics
type Registry struct {
	Ints    *MetricMap[atomic.Int64]
	Floats  *MetricMap[AtomicFloat]
	Strings *MetricMap[AtomicString]
}

// NewRegistry creates an initialized Registry
func NewRegistry() *Registry {
	return &Registry{
		Ints:    NewMetricMap[atomic.Int64](),
		Floats:  NewMetricMap[AtomicFloat](),
		Strings: NewMetricMap[AtomicString](),
	}
}

// TotalCount returns total metrics across all types
func (r *Registry) TotalCount() int {
	return r.Ints.Count() + r.Floats.Count() + r.Strings.Count()
}

// Dump writes every metric as "key value" lines in sorted order per type
func (r *Registry) Dump(w io.Writer) {
	r.Ints.Range(func(key string, v *atomic.Int64) {
		fmt.Fprintf(w, "%-24s %d\n", key, v.Load())
	})
	r.Floats.Range(func(key string, v *AtomicFloat) {
		fmt.Fprintf(w, "%-24s %.3f\n", key, v.Get())
	})
	r.Strings.Range(func(key string, v *AtomicString) {
		fmt.Fprintf(w, "%-24s %s\n", key, v.Load())
	})
}
