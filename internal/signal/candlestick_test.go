package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/surgewatch/internal/models"
)

func ohlc(open, high, low, close float64) models.Candle {
	return models.Candle{Open: open, High: high, Low: low, Close: close, Volume: 10}
}

func TestDetectCandlestickPatterns_EmptyWindow(t *testing.T) {
	assert.Nil(t, DetectCandlestickPatterns(nil))
}

func TestDetectCandlestickPatterns_Doji(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(100, 105, 95, 100.2),
	})

	p, found := findPattern(patterns, "Doji")
	require.True(t, found)
	assert.Equal(t, models.Neutral, p.Direction)
	assert.Equal(t, 50.0, p.Confidence)
}

func TestDetectCandlestickPatterns_Hammer(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(100, 101.3, 97, 101),
	})

	p, found := findPattern(patterns, "Hammer")
	require.True(t, found)
	assert.Equal(t, models.Bullish, p.Direction)
	assert.Equal(t, 60.0, p.Confidence)
}

func TestDetectCandlestickPatterns_BullishEngulfing(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(101, 101.5, 99.8, 100),    // bearish
		ohlc(99.5, 102, 99.3, 101.5),   // bullish, engulfs the prior body
	})

	p, found := findPattern(patterns, "Bullish Engulfing")
	require.True(t, found)
	assert.Equal(t, models.Bullish, p.Direction)
	assert.Equal(t, 70.0, p.Confidence)
}

func TestDetectCandlestickPatterns_BearishEngulfing(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(100, 101.2, 99.8, 101),    // bullish
		ohlc(101.5, 101.8, 99.3, 99.5), // bearish, engulfs the prior body
	})

	_, found := findPattern(patterns, "Bearish Engulfing")
	assert.True(t, found)
}

func TestDetectCandlestickPatterns_SameDirectionNeverEngulfs(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(100, 102, 99, 101),
		ohlc(99, 104, 98, 103),
	})

	_, foundBull := findPattern(patterns, "Bullish Engulfing")
	_, foundBear := findPattern(patterns, "Bearish Engulfing")
	assert.False(t, foundBull || foundBear)
}

func TestDetectCandlestickPatterns_MorningStar(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(102, 102.5, 99.8, 100),      // bearish drop
		ohlc(99.9, 100.5, 99.4, 100),     // small-bodied pause
		ohlc(100, 102.4, 99.9, 102),      // bullish reversal
	})

	p, found := findPattern(patterns, "Morning Star")
	require.True(t, found)
	assert.Equal(t, models.Bullish, p.Direction)
	assert.Equal(t, 65.0, p.Confidence)
}

func TestDetectCandlestickPatterns_EveningStar(t *testing.T) {
	patterns := DetectCandlestickPatterns([]models.Candle{
		ohlc(100, 102.4, 99.9, 102),      // bullish run
		ohlc(102.1, 102.6, 101.6, 102.2), // small-bodied pause
		ohlc(102, 102.2, 99.7, 100),      // bearish reversal
	})

	_, found := findPattern(patterns, "Evening Star")
	assert.True(t, found)
}
