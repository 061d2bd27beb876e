package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type PersistStats struct {
	Op          string  `json:"op"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type PersistOutcome struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PersistSnapshot summarises the most recent adapter calls per operation.
type PersistSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Ops         []PersistStats   `json:"ops"`
	Outcomes    []PersistOutcome `json:"outcomes,omitempty"`
}

type persistWindow struct {
	mu         sync.RWMutex
	maxSamples int
	ops        map[string]*latencyRing
	outcomes   map[string]int
}

type latencyRing struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newPersistWindow(maxSamples int) *persistWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &persistWindow{
		maxSamples: maxSamples,
		ops:        make(map[string]*latencyRing),
		outcomes:   make(map[string]int),
	}
}

func (w *persistWindow) Observe(op string, ms float64) {
	if op == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.ops[op]
	if !ok {
		ring = &latencyRing{
			values: make([]float64, w.maxSamples),
		}
		w.ops[op] = ring
	}
	ring.values[ring.next] = ms
	ring.last = ms
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *persistWindow) ObserveOutcome(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[name]++
}

func (w *persistWindow) Snapshot() PersistSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.ops))
	for op := range w.ops {
		keys = append(keys, op)
	}
	sort.Strings(keys)

	ops := make([]PersistStats, 0, len(keys))
	for _, op := range keys {
		ring := w.ops[op]
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n <= 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, ring.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}

		ops = append(ops, PersistStats{
			Op:          op,
			Samples:     n,
			LastMS:      round2(ring.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: opTargetP95MS(op),
		})
	}

	names := make([]string, 0, len(w.outcomes))
	for name := range w.outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	outcomes := make([]PersistOutcome, 0, len(names))
	for _, name := range names {
		outcomes = append(outcomes, PersistOutcome{Name: name, Count: w.outcomes[name]})
	}

	return PersistSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Ops:         ops,
		Outcomes:    outcomes,
	}
}

func (w *persistWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ops = make(map[string]*latencyRing)
	w.outcomes = make(map[string]int)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Loads happen once at startup and may cross the network; saves sit behind
// every mutation.
func opTargetP95MS(op string) float64 {
	switch op {
	case "save":
		return 50
	case "load":
		return 250
	default:
		return 0
	}
}
