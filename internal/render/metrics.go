package render

import "time"

// window is a fixed-size ring of duration samples.
type window struct {
	samples []time.Duration
	next    int
	full    bool
	sum     time.Duration
}

func newWindow(size int) *window {
	return &window{samples: make([]time.Duration, size)}
}

func (w *window) add(d time.Duration) {
	if w.full {
		w.sum -= w.samples[w.next]
	}
	w.samples[w.next] = d
	w.sum += d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *window) average() time.Duration {
	n := w.len()
	if n == 0 {
		return 0
	}
	return w.sum / time.Duration(n)
}
