package audio

// Windower re-slices an arbitrary sequence of sample frames into fixed-size
// capture windows. It is not safe for concurrent use.
type Windower struct {
	size    int
	pending []float32
}

func NewWindower(size int) *Windower {
	if size <= 0 {
		size = 4096
	}
	return &Windower{size: size, pending: make([]float32, 0, size*2)}
}

func (w *Windower) Size() int { return w.size }

// Push appends samples and returns every complete window now available.
// Returned windows are freshly allocated and owned by the caller.
func (w *Windower) Push(samples []float32) [][]float32 {
	w.pending = append(w.pending, samples...)
	if len(w.pending) < w.size {
		return nil
	}
	out := make([][]float32, 0, len(w.pending)/w.size)
	for len(w.pending) >= w.size {
		win := make([]float32, w.size)
		copy(win, w.pending[:w.size])
		out = append(out, win)
		w.pending = w.pending[w.size:]
	}
	// Compact so the backing array does not grow without bound.
	rest := make([]float32, len(w.pending), w.size*2)
	copy(rest, w.pending)
	w.pending = rest
	return out
}

// Buffered reports how many samples are waiting for a full window.
func (w *Windower) Buffered() int { return len(w.pending) }

func (w *Windower) Reset() { w.pending = w.pending[:0] }
