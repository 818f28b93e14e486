package observability

import (
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(3)
	for _, ms := range []int{100, 500, 700, 900} {
		w.observe(StageLiveConnect, time.Duration(ms)*time.Millisecond)
	}
	w.count("interrupted")
	w.count("interrupted")

	snap := w.snapshot()
	if snap.WindowSize != 3 {
		t.Fatalf("WindowSize = %d, want 3", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageLiveConnect || s.Samples != 3 {
		t.Fatalf("stage = %+v, want 3 live_connect samples", s)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700 (oldest sample evicted)", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1200 {
		t.Fatalf("TargetP95MS = %.2f, want 1200", s.TargetP95MS)
	}
	if snap.Events["interrupted"] != 2 {
		t.Fatalf("Events = %+v", snap.Events)
	}
}

func TestMetricsSnapshotNilSafe(t *testing.T) {
	var m *Metrics
	if snap := m.SnapshotLatency(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}
