package observability

import (
	"fmt"
	"testing"
	"time"
)

func TestPersistWindowSnapshot(t *testing.T) {
	w := newPersistWindow(8)
	w.Observe("save", 5)
	w.Observe("save", 7)
	w.Observe("save", 9)
	w.ObserveOutcome("save_ok")
	w.ObserveOutcome("save_ok")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Ops) != 1 {
		t.Fatalf("len(Ops) = %d, want 1", len(snap.Ops))
	}
	s := snap.Ops[0]
	if s.Op != "save" {
		t.Fatalf("Op = %q, want %q", s.Op, "save")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 9 {
		t.Fatalf("LastMS = %.2f, want 9", s.LastMS)
	}
	if s.P50MS != 7 {
		t.Fatalf("P50MS = %.2f, want 7", s.P50MS)
	}
	if s.P95MS <= 7 || s.P95MS > 9 {
		t.Fatalf("P95MS = %.2f, want (7,9]", s.P95MS)
	}
	if s.TargetP95MS != 50 {
		t.Fatalf("TargetP95MS = %.2f, want 50", s.TargetP95MS)
	}
	if len(snap.Outcomes) != 1 {
		t.Fatalf("len(Outcomes) = %d, want 1", len(snap.Outcomes))
	}
	if snap.Outcomes[0].Name != "save_ok" || snap.Outcomes[0].Count != 2 {
		t.Fatalf("Outcomes[0] = %+v, want save_ok x2", snap.Outcomes[0])
	}
}

func TestPersistWindowWrapsAround(t *testing.T) {
	w := newPersistWindow(4)
	for i := 1; i <= 10; i++ {
		w.Observe("save", float64(i))
	}
	w.Observe("", 1)
	w.Observe("load", -1)

	snap := w.Snapshot()
	if len(snap.Ops) != 1 {
		t.Fatalf("len(Ops) = %d, want 1", len(snap.Ops))
	}
	s := snap.Ops[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.AvgMS != 8.5 {
		t.Fatalf("AvgMS = %.2f, want 8.5", s.AvgMS)
	}

	w.Reset()
	if got := len(w.Snapshot().Ops); got != 0 {
		t.Fatalf("len(Ops) after Reset = %d, want 0", got)
	}
}

func TestMetricsObservePersist(t *testing.T) {
	m := NewMetrics(fmt.Sprintf("test_observability_%d", time.Now().UnixNano()))
	m.ObservePersist("load", "ok", 3*time.Millisecond)
	m.ObservePersist("save", "error", 1500*time.Microsecond)

	snap := m.SnapshotPersistence()
	if len(snap.Ops) != 2 {
		t.Fatalf("len(Ops) = %d, want 2", len(snap.Ops))
	}
	if snap.Ops[0].Op != "load" || snap.Ops[0].LastMS != 3 {
		t.Fatalf("Ops[0] = %+v, want load at 3ms", snap.Ops[0])
	}
	if snap.Ops[1].LastMS != 1.5 {
		t.Fatalf("Ops[1].LastMS = %.2f, want 1.5", snap.Ops[1].LastMS)
	}
	if len(snap.Outcomes) != 2 || snap.Outcomes[1].Name != "save_error" {
		t.Fatalf("Outcomes = %+v, want load_ok and save_error", snap.Outcomes)
	}

	var nilMetrics *Metrics
	nilMetrics.ObservePersist("save", "ok", time.Millisecond)
	nilMetrics.ObserveTaskCounts(1, 0)
}
