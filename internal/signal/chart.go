package signal

import (
	"fmt"
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Pattern is one detected chart or candlestick formation. Patterns are
// ephemeral analysis output, never stored.
type Pattern struct {
	Name        string           `json:"name"`
	Direction   models.Direction `json:"direction"`
	Confidence  float64          `json:"confidence"` // 0-100
	Description string           `json:"description"`
}

// Chart pattern windows.
const (
	MinPatternCandles = 20

	headShouldersWindow = 20
	doubleWindow        = 15
	triangleWindow      = 10

	shoulderMaxRatio = 0.98  // both shoulders stay at or below 98% of the head
	doubleTolerance  = 0.02  // two extremes within 2% of each other
	flatSlopeEps     = 0.001 // |normalized slope| below this counts as flat
)

// DetectChartPatterns runs the independent chart heuristics over candles
// (oldest first). It requires at least MinPatternCandles entries; each
// heuristic looks at its own trailing window.
func DetectChartPatterns(candles []models.Candle, ind Indicators) ([]Pattern, error) {
	if len(candles) < MinPatternCandles {
		return nil, ErrInsufficientData
	}

	var patterns []Pattern
	if p, ok := detectHeadAndShoulders(candles); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectDoubleTop(candles); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectDoubleBottom(candles); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectTriangle(candles); ok {
		patterns = append(patterns, p)
	}
	if p, ok := detectBollingerBreak(candles, ind.Bollinger); ok {
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// detectHeadAndShoulders looks for a local maximum near the middle of the
// 20-candle window with both flanking peaks at or below 98% of it.
func detectHeadAndShoulders(candles []models.Candle) (Pattern, bool) {
	window := candles[len(candles)-headShouldersWindow:]

	headIdx := 0
	for i, c := range window {
		if c.High > window[headIdx].High {
			headIdx = i
		}
	}

	// The head has to sit in the middle third so both shoulders have room.
	third := headShouldersWindow / 3
	if headIdx < third || headIdx >= headShouldersWindow-third {
		return Pattern{}, false
	}
	head := window[headIdx].High

	leftShoulder := maxHigh(window[:headIdx-1])
	rightShoulder := maxHigh(window[headIdx+2:])
	if leftShoulder <= 0 || rightShoulder <= 0 {
		return Pattern{}, false
	}
	if leftShoulder > head*shoulderMaxRatio || rightShoulder > head*shoulderMaxRatio {
		return Pattern{}, false
	}

	return Pattern{
		Name:        "Head and Shoulders",
		Direction:   models.Bearish,
		Confidence:  70,
		Description: fmt.Sprintf("head %.4f flanked by lower shoulders %.4f / %.4f", head, leftShoulder, rightShoulder),
	}, true
}

// detectDoubleTop finds two distinct highs within 2% of each other inside
// the 15-candle window.
func detectDoubleTop(candles []models.Candle) (Pattern, bool) {
	window := candles[len(candles)-doubleWindow:]

	first, second := twoExtremes(window, true)
	if first < 0 || second < 0 {
		return Pattern{}, false
	}
	a, b := window[first].High, window[second].High
	if math.Abs(a-b)/math.Max(a, b) > doubleTolerance {
		return Pattern{}, false
	}

	return Pattern{
		Name:        "Double Top",
		Direction:   models.Bearish,
		Confidence:  65,
		Description: fmt.Sprintf("matched highs %.4f and %.4f", a, b),
	}, true
}

// detectDoubleBottom mirrors detectDoubleTop on the lows.
func detectDoubleBottom(candles []models.Candle) (Pattern, bool) {
	window := candles[len(candles)-doubleWindow:]

	first, second := twoExtremes(window, false)
	if first < 0 || second < 0 {
		return Pattern{}, false
	}
	a, b := window[first].Low, window[second].Low
	if math.Abs(a-b)/math.Max(a, b) > doubleTolerance {
		return Pattern{}, false
	}

	return Pattern{
		Name:        "Double Bottom",
		Direction:   models.Bullish,
		Confidence:  65,
		Description: fmt.Sprintf("matched lows %.4f and %.4f", a, b),
	}, true
}

// detectTriangle fits the highs and lows of the 10-candle window; one side
// near flat with the other converging toward it forms a triangle. A flat
// top with rising lows is an ascending (bullish) triangle and vice versa.
func detectTriangle(candles []models.Candle) (Pattern, bool) {
	window := candles[len(candles)-triangleWindow:]

	highSlope := normalizedSlope(window, true)
	lowSlope := normalizedSlope(window, false)

	flatHigh := math.Abs(highSlope) < flatSlopeEps
	flatLow := math.Abs(lowSlope) < flatSlopeEps

	switch {
	case flatHigh && lowSlope >= flatSlopeEps:
		return Pattern{
			Name:        "Ascending Triangle",
			Direction:   models.Bullish,
			Confidence:  60,
			Description: "flat resistance with rising support",
		}, true
	case flatLow && highSlope <= -flatSlopeEps:
		return Pattern{
			Name:        "Descending Triangle",
			Direction:   models.Bearish,
			Confidence:  60,
			Description: "flat support with falling resistance",
		}, true
	}
	return Pattern{}, false
}

// detectBollingerBreak flags a close beyond either band edge.
func detectBollingerBreak(candles []models.Candle, bands Bollinger) (Pattern, bool) {
	if !validBand(bands.Upper) || !validBand(bands.Lower) {
		return Pattern{}, false
	}

	last := candles[len(candles)-1].Close
	switch {
	case last > bands.Upper:
		return Pattern{
			Name:        "Bollinger Band Breakout",
			Direction:   models.Bullish,
			Confidence:  70,
			Description: fmt.Sprintf("close %.4f above upper band %.4f", last, bands.Upper),
		}, true
	case last < bands.Lower:
		return Pattern{
			Name:        "Bollinger Band Breakdown",
			Direction:   models.Bearish,
			Confidence:  70,
			Description: fmt.Sprintf("close %.4f below lower band %.4f", last, bands.Lower),
		}, true
	}
	return Pattern{}, false
}

func validBand(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxHigh(candles []models.Candle) float64 {
	var max float64
	for _, c := range candles {
		if c.High > max {
			max = c.High
		}
	}
	return max
}

// twoExtremes returns the indices of the two most extreme highs (or lows)
// that are at least two candles apart, or -1 when the window is degenerate.
func twoExtremes(window []models.Candle, highs bool) (int, int) {
	value := func(c models.Candle) float64 {
		if highs {
			return c.High
		}
		return -c.Low
	}

	first := 0
	for i := range window {
		if value(window[i]) > value(window[first]) {
			first = i
		}
	}

	second := -1
	for i := range window {
		if abs(i-first) < 2 {
			continue
		}
		if second < 0 || value(window[i]) > value(window[second]) {
			second = i
		}
	}
	if second < 0 {
		return -1, -1
	}
	return first, second
}

// normalizedSlope fits a least-squares line over the window's highs or lows
// and normalizes by the mean price, so the flatness threshold is
// price-scale independent.
func normalizedSlope(window []models.Candle, highs bool) float64 {
	n := float64(len(window))
	var sumX, sumY, sumXY, sumXX float64
	for i, c := range window {
		y := c.Low
		if highs {
			y = c.High
		}
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom

	mean := sumY / n
	if mean == 0 {
		return 0
	}
	return slope / mean
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
