package warn

import "sync"

// Rolling history depths per symbol.
const (
	volumeHistoryLen = 20
	rsiHistoryLen    = 10
	emaGapHistoryLen = 5
	spreadHistoryLen = 10
)

// rollingWindow is a fixed-depth FIFO of float samples, oldest first.
type rollingWindow struct {
	values []float64
	depth  int
}

func newRollingWindow(depth int) *rollingWindow {
	return &rollingWindow{values: make([]float64, 0, depth), depth: depth}
}

func (w *rollingWindow) push(v float64) {
	if len(w.values) == w.depth {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.depth-1]
	}
	w.values = append(w.values, v)
}

func (w *rollingWindow) len() int {
	return len(w.values)
}

// last returns the i-th newest value (0 = newest).
func (w *rollingWindow) last(i int) (float64, bool) {
	n := len(w.values)
	if i < 0 || i >= n {
		return 0, false
	}
	return w.values[n-1-i], true
}

// mean averages the whole window.
func (w *rollingWindow) mean() float64 {
	if len(w.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values {
		sum += v
	}
	return sum / float64(len(w.values))
}

// meanExcludingNewest averages everything but the most recent sample, the
// baseline a spike is measured against.
func (w *rollingWindow) meanExcludingNewest() float64 {
	n := len(w.values)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range w.values[:n-1] {
		sum += v
	}
	return sum / float64(n-1)
}

// min returns the smallest sample in the window.
func (w *rollingWindow) min() (float64, bool) {
	if len(w.values) == 0 {
		return 0, false
	}
	m := w.values[0]
	for _, v := range w.values[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

// max returns the largest sample in the window.
func (w *rollingWindow) max() (float64, bool) {
	if len(w.values) == 0 {
		return 0, false
	}
	m := w.values[0]
	for _, v := range w.values[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// symbolHistory carries the rolling state one symbol accumulates across
// sweeps. mu serializes the phase scorers for this symbol only; other
// symbols evaluate in parallel.
type symbolHistory struct {
	mu sync.Mutex

	volume *rollingWindow // 1m candle volume
	rsi    *rollingWindow // 1m RSI
	emaGap *rollingWindow // 5m EMA20/EMA50 gap, percent
	spread *rollingWindow // order book spread
}

func newSymbolHistory() *symbolHistory {
	return &symbolHistory{
		volume: newRollingWindow(volumeHistoryLen),
		rsi:    newRollingWindow(rsiHistoryLen),
		emaGap: newRollingWindow(emaGapHistoryLen),
		spread: newRollingWindow(spreadHistoryLen),
	}
}
