// Package signal computes technical indicators, chart and candlestick
// patterns, and the composite trading signal. Everything here is pure and
// deterministic: candle window in, values out, no I/O.
package signal

import (
	"errors"
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// ErrInsufficientData is returned when a candle window is too short for the
// requested computation. Callers treat it as "skip this cycle".
var ErrInsufficientData = errors.New("insufficient candle data")

// Indicator parameters.
const (
	MinIndicatorCandles = 50

	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	bollingerStdDev  = 2.0
	emaFastPeriod    = 20
	emaSlowPeriod    = 50
)

// MACD holds the MACD line, its signal line, and their difference.
type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds the 20-period, 2-sigma band edges.
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Indicators is the bundle computed fresh per request; nothing here is
// cached or persisted.
type Indicators struct {
	RSI       float64   `json:"rsi"`
	MACD      MACD      `json:"macd"`
	Bollinger Bollinger `json:"bollinger"`
	EMA20     float64   `json:"ema_20"`
	EMA50     float64   `json:"ema_50"`
}

// ComputeIndicators calculates the indicator bundle over candles (oldest
// first). It requires at least MinIndicatorCandles entries and never
// returns NaN fields: an EMA that has not warmed up is substituted with the
// latest close.
func ComputeIndicators(candles []models.Candle) (Indicators, error) {
	if len(candles) < MinIndicatorCandles {
		return Indicators{}, ErrInsufficientData
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	latest := closes[len(closes)-1]

	macdLine, signalLine := macdSeries(closes)

	ind := Indicators{
		RSI: rsi(closes, rsiPeriod),
		MACD: MACD{
			Value:     macdLine,
			Signal:    signalLine,
			Histogram: macdLine - signalLine,
		},
		Bollinger: bollinger(closes, bollingerPeriod, bollingerStdDev),
		EMA20:     emaLast(closes, emaFastPeriod),
		EMA50:     emaLast(closes, emaSlowPeriod),
	}

	// Warm-up guard: a zero or NaN EMA would poison every downstream
	// comparison, so fall back to the latest close.
	ind.EMA20 = sanitizeEMA(ind.EMA20, latest)
	ind.EMA50 = sanitizeEMA(ind.EMA50, latest)
	ind.RSI = sanitize(ind.RSI, 50)
	ind.MACD.Value = sanitize(ind.MACD.Value, 0)
	ind.MACD.Signal = sanitize(ind.MACD.Signal, 0)
	ind.MACD.Histogram = sanitize(ind.MACD.Histogram, 0)
	ind.Bollinger.Upper = sanitize(ind.Bollinger.Upper, latest)
	ind.Bollinger.Middle = sanitize(ind.Bollinger.Middle, latest)
	ind.Bollinger.Lower = sanitize(ind.Bollinger.Lower, latest)

	return ind, nil
}

// sanitize replaces NaN/Inf values with the fallback.
func sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// sanitizeEMA additionally treats zero as "not warmed up": a real EMA over
// positive prices is never zero.
func sanitizeEMA(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return sanitize(v, fallback)
}

// rsi computes the Wilder-smoothed relative strength index over the full
// series, returning the latest value.
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if delta > 0 {
			up = delta
		} else {
			down = -delta
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ema computes the exponential moving average series for the given period.
// The first period-1 entries carry the seed SMA warm-up.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if len(values) < period {
		// Not enough data to seed; degrade to a running average.
		sum := 0.0
		for i, v := range values {
			sum += v
			out[i] = sum / float64(i+1)
		}
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func emaLast(values []float64, period int) float64 {
	series := ema(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// macdSeries returns the latest MACD line and signal line values.
func macdSeries(closes []float64) (macdLine, signalLine float64) {
	fast := ema(closes, macdFastPeriod)
	slow := ema(closes, macdSlowPeriod)

	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}

	signal := ema(diff, macdSignalPeriod)
	return diff[len(diff)-1], signal[len(signal)-1]
}

// bollinger computes the latest band edges: middle is the period SMA, the
// edges sit stdDev standard deviations away.
func bollinger(closes []float64, period int, stdDev float64) Bollinger {
	if len(closes) < period {
		last := closes[len(closes)-1]
		return Bollinger{Upper: last, Middle: last, Lower: last}
	}

	window := closes[len(closes)-period:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sigma := math.Sqrt(variance / float64(period))

	return Bollinger{
		Upper:  mean + stdDev*sigma,
		Middle: mean,
		Lower:  mean - stdDev*sigma,
	}
}
