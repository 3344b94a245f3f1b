package signal

import (
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Candlestick thresholds, expressed as body/range or shadow/body ratios.
const (
	dojiBodyRatio    = 0.1
	hammerLowerRatio = 2.0
	hammerUpperRatio = 0.5
	starMiddleRatio  = 0.3
)

// DetectCandlestickPatterns inspects the last one to three candles for
// short-horizon reversal formations. Fewer candles than a heuristic needs
// simply skips that heuristic.
func DetectCandlestickPatterns(candles []models.Candle) []Pattern {
	if len(candles) == 0 {
		return nil
	}

	var patterns []Pattern
	last := candles[len(candles)-1]

	if p, ok := detectDoji(last); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectHammer(last); ok {
		patterns = append(patterns, p)
	}
	if len(candles) >= 2 {
		if p, ok := detectEngulfing(candles[len(candles)-2], last); ok {
			patterns = append(patterns, p)
		}
	}
	if len(candles) >= 3 {
		if p, ok := detectStar(candles[len(candles)-3], candles[len(candles)-2], last); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func body(c models.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func candleRange(c models.Candle) float64 {
	return c.High - c.Low
}

func bullishCandle(c models.Candle) bool {
	return c.Close > c.Open
}

// detectDoji flags a candle whose body is under 10% of its range.
func detectDoji(c models.Candle) (Pattern, bool) {
	r := candleRange(c)
	if r <= 0 || body(c)/r >= dojiBodyRatio {
		return Pattern{}, false
	}
	return Pattern{
		Name:        "Doji",
		Direction:   models.Neutral,
		Confidence:  50,
		Description: "open and close nearly equal, indecision",
	}, true
}

// detectHammer flags a long lower shadow (>2x body) with a short upper
// shadow (<0.5x body).
func detectHammer(c models.Candle) (Pattern, bool) {
	b := body(c)
	if b <= 0 {
		return Pattern{}, false
	}
	lower := math.Min(c.Open, c.Close) - c.Low
	upper := c.High - math.Max(c.Open, c.Close)
	if lower <= hammerLowerRatio*b || upper >= hammerUpperRatio*b {
		return Pattern{}, false
	}
	return Pattern{
		Name:        "Hammer",
		Direction:   models.Bullish,
		Confidence:  60,
		Description: "long lower shadow after selling pressure",
	}, true
}

// detectEngulfing flags a candle whose body engulfs the prior candle's body
// in the opposite direction.
func detectEngulfing(prev, cur models.Candle) (Pattern, bool) {
	if bullishCandle(prev) == bullishCandle(cur) {
		return Pattern{}, false
	}
	if body(cur) <= body(prev) || body(prev) == 0 {
		return Pattern{}, false
	}

	curLow := math.Min(cur.Open, cur.Close)
	curHigh := math.Max(cur.Open, cur.Close)
	prevLow := math.Min(prev.Open, prev.Close)
	prevHigh := math.Max(prev.Open, prev.Close)
	if curLow > prevLow || curHigh < prevHigh {
		return Pattern{}, false
	}

	if bullishCandle(cur) {
		return Pattern{
			Name:        "Bullish Engulfing",
			Direction:   models.Bullish,
			Confidence:  70,
			Description: "buyers reversed and engulfed the prior candle",
		}, true
	}
	return Pattern{
		Name:        "Bearish Engulfing",
		Direction:   models.Bearish,
		Confidence:  70,
		Description: "sellers reversed and engulfed the prior candle",
	}, true
}

// detectStar flags morning/evening stars: opposite-direction outer candles
// around a small-bodied middle candle (body under 30% of its range).
func detectStar(first, middle, last models.Candle) (Pattern, bool) {
	if bullishCandle(first) == bullishCandle(last) {
		return Pattern{}, false
	}

	r := candleRange(middle)
	if r <= 0 || body(middle)/r >= starMiddleRatio {
		return Pattern{}, false
	}

	if bullishCandle(last) {
		return Pattern{
			Name:        "Morning Star",
			Direction:   models.Bullish,
			Confidence:  65,
			Description: "downtrend pause followed by a bullish reversal",
		}, true
	}
	return Pattern{
		Name:        "Evening Star",
		Direction:   models.Bearish,
		Confidence:  65,
		Description: "uptrend pause followed by a bearish reversal",
	}, true
}
