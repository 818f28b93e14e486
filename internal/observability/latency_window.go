package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Latency stages kept in the rolling window.
const (
	StageLiveConnect = "live_connect"
	StageReply       = "reply"
)

type LatencyStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []LatencyStats   `json:"stages"`
	Events      map[string]int64 `json:"events,omitempty"`
}

// latencyWindow keeps the last size samples per stage, for the perf endpoint.
// Prometheus histograms cover the long-term view.
type latencyWindow struct {
	mu      sync.Mutex
	size    int
	samples map[string][]float64
	events  map[string]int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:    size,
		samples: make(map[string][]float64),
		events:  make(map[string]int64),
	}
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if w == nil || stage == "" || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	w.mu.Lock()
	defer w.mu.Unlock()
	vals := append(w.samples[stage], ms)
	if len(vals) > w.size {
		vals = vals[len(vals)-w.size:]
	}
	w.samples[stage] = vals
}

func (w *latencyWindow) count(event string) {
	if w == nil || event == "" {
		return
	}
	w.mu.Lock()
	w.events[event]++
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]LatencyStats, 0, len(w.samples)),
	}
	for stage, vals := range w.samples {
		if len(vals) == 0 {
			continue
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		snap.Stages = append(snap.Stages, LatencyStats{
			Stage:       stage,
			Samples:     len(sorted),
			LastMS:      round2(vals[len(vals)-1]),
			AvgMS:       round2(sum / float64(len(sorted))),
			P50MS:       round2(percentile(sorted, 0.50)),
			P95MS:       round2(percentile(sorted, 0.95)),
			TargetP95MS: targetP95MS(stage),
		})
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })
	if len(w.events) > 0 {
		snap.Events = make(map[string]int64, len(w.events))
		for k, v := range w.events {
			snap.Events[k] = v
		}
	}
	return snap
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func targetP95MS(stage string) float64 {
	switch stage {
	case StageLiveConnect:
		return 1200
	case StageReply:
		return 4000
	default:
		return 0
	}
}
