package status

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// MetricMap hands out one stable *T per key
// Lookups after the first are a sync.Map load; values are updated through the pointer
type MetricMap[T any] struct {
	items sync.Map // string -> *T
	count atomic.Int32
}

// NewMetricMap creates an empty MetricMap
func NewMetricMap[T any]() *MetricMap[T] {
	return &MetricMap[T]{}
}

// Get returns the metric for key, registering it on first use
func (m *MetricMap[T]) Get(key string) *T {
	if v, ok := m.items.Load(key); ok {
		return v.(*T)
	}
	v, loaded := m.items.LoadOrStore(key, new(T))
	if !loaded {
		m.count.Add(1)
	}
	return v.(*T)
}

// Has reports whether key was registered
func (m *MetricMap[T]) Has(key string) bool {
	_, ok := m.items.Load(key)
	return ok
}

// Range visits metrics in key order
func (m *MetricMap[T]) Range(fn func(key string, ptr *T)) {
	var keys []string
	m.items.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	slices.Sort(keys)
	for _, k := range keys {
		v, _ := m.items.Load(k)
		fn(k, v.(*T))
	}
}

// Count returns the number of registered keys
func (m *MetricMap[T]) Count() int { return int(m.count.Load()) }

// AtomicFloat is a float64 gauge; the zero value reads 0
type AtomicFloat struct {
	bits atomic.Uint64
}

func (f *AtomicFloat) Set(val float64) { f.bits.Store(math.Float64bits(val)) }

func (f *AtomicFloat) Get() float64 { return math.Float64frombits(f.bits.Load()) }

// Add accumulates delta and returns the new total
func (f *AtomicFloat) Add(delta float64) float64 {
	return f.update(func(cur float64) (float64, bool) { return cur + delta, true })
}

// Max keeps the larger of the stored value and val
func (f *AtomicFloat) Max(val float64) float64 {
	return f.update(func(cur float64) (float64, bool) { return val, val > cur })
}

func (f *AtomicFloat) update(next func(cur float64) (float64, bool)) float64 {
	for {
		old := f.bits.Load()
		cur := math.Float64frombits(old)
		val, ok := next(cur)
		if !ok {
			return cur
		}
		if f.bits.CompareAndSwap(old, math.Float64bits(val)) {
			return val
		}
	}
}

// MaxStringLen bounds stored strings in bytes
const MaxStringLen = 64

// AtomicString holds a short label such as the last route state or error
type AtomicString struct {
	ptr atomic.Pointer[string]
}

// Store keeps at most MaxStringLen bytes of val, cut on a rune boundary
func (s *AtomicString) Store(val string) {
	if len(val) > MaxStringLen {
		cut := MaxStringLen
		for cut > 0 && !utf8.RuneStart(val[cut]) {
			cut--
		}
		val = val[:cut]
	}
	s.ptr.Store(&val)
}

// Load returns the stored string, empty for the zero value
func (s *AtomicString) Load() string {
	if p := s.ptr.Load(); p != nil {
		return *p
	}
	return ""
}
