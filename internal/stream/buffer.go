package stream

import (
	"github.com/sawpanic/surgewatch/internal/models"
)

// CandleBuffer is a fixed-capacity, append-only candle series for one
// (symbol, timeframe) key. The newest candle may be replaced in place while
// its bucket is open; a closed candle is appended and the oldest entry is
// evicted once capacity is exceeded. Not safe for concurrent use; the owning
// Manager serializes writers per key.
type CandleBuffer struct {
	candles []models.Candle
	cap     int
}

// NewCandleBuffer creates a buffer holding at most capacity candles.
func NewCandleBuffer(capacity int) *CandleBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &CandleBuffer{
		candles: make([]models.Candle, 0, capacity),
		cap:     capacity,
	}
}

// DefaultBufferCap bounds per-key memory while covering the longest
// indicator lookback with margin.
const DefaultBufferCap = 500

// Apply folds one kline update into the buffer. An update for the bucket
// already at the tail (an open candle, or its closing frame) replaces the
// last element in place; a new bucket is appended with oldest-first
// eviction. Bucket identity is OpenTime.
func (b *CandleBuffer) Apply(c models.Candle) {
	if n := len(b.candles); n > 0 && b.candles[n-1].OpenTime.Equal(c.OpenTime) {
		b.candles[n-1] = c
		return
	}
	b.append(c)
}

// Seed replaces the buffer contents with a backfilled series, trimming from
// the front if the series exceeds capacity.
func (b *CandleBuffer) Seed(candles []models.Candle) {
	if len(candles) > b.cap {
		candles = candles[len(candles)-b.cap:]
	}
	b.candles = b.candles[:0]
	b.candles = append(b.candles, candles...)
}

// Tail returns a copy of the newest limit candles in chronological order.
// limit <= 0 returns the full series.
func (b *CandleBuffer) Tail(limit int) []models.Candle {
	n := len(b.candles)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Candle, limit)
	copy(out, b.candles[n-limit:])
	return out
}

// Len returns the number of buffered candles.
func (b *CandleBuffer) Len() int {
	return len(b.candles)
}

func (b *CandleBuffer) append(c models.Candle) {
	if len(b.candles) == b.cap {
		copy(b.candles, b.candles[1:])
		b.candles = b.candles[:b.cap-1]
	}
	b.candles = append(b.candles, c)
}
