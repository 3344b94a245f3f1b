package signal

import (
	"fmt"
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Action is the trade recommendation of a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Scoring weights. Pattern contributions scale with each pattern's own
// confidence.
const (
	rsiWeight          = 25
	macdWeight         = 20
	emaTrendWeight     = 15
	chartPatternScale  = 0.3
	candlePatternScale = 0.2
	actionThreshold    = 20 // strict >/<; net of exactly 20 holds
	rsiOversold        = 30
	rsiOverbought      = 70
)

// Price level offsets from the current price.
const (
	takeProfit1Pct = 0.02
	takeProfit2Pct = 0.04
	takeProfit3Pct = 0.06
	stopLossPct    = 0.03
)

// TradingSignal is a deterministic function of price, indicators, and
// detected patterns.
type TradingSignal struct {
	Action      Action   `json:"action"`
	Confidence  float64  `json:"confidence"` // 0-100
	Strength    float64  `json:"strength"`   // |bullish - bearish|
	Entry       float64  `json:"entry"`
	StopLoss    float64  `json:"stop_loss"`
	TakeProfit1 float64  `json:"take_profit_1"`
	TakeProfit2 float64  `json:"take_profit_2"`
	TakeProfit3 float64  `json:"take_profit_3"`
	Reasoning   []string `json:"reasoning"`
}

// GenerateTradingSignal combines the indicator bundle and detected patterns
// into a weighted vote. Missing or invalid indicator values contribute zero
// rather than failing; the function always returns a signal for a valid
// bundle.
func GenerateTradingSignal(price float64, ind Indicators, chartPatterns, candlePatterns []Pattern) TradingSignal {
	var bullish, bearish float64
	var reasoning []string

	// RSI extremes.
	switch {
	case validValue(ind.RSI) && ind.RSI < rsiOversold:
		bullish += rsiWeight
		reasoning = append(reasoning, fmt.Sprintf("RSI %.1f oversold", ind.RSI))
	case validValue(ind.RSI) && ind.RSI > rsiOverbought:
		bearish += rsiWeight
		reasoning = append(reasoning, fmt.Sprintf("RSI %.1f overbought", ind.RSI))
	}

	// MACD crossover, read from the histogram sign.
	if validValue(ind.MACD.Histogram) {
		if ind.MACD.Histogram > 0 {
			bullish += macdWeight
			reasoning = append(reasoning, "MACD above signal line")
		} else if ind.MACD.Histogram < 0 {
			bearish += macdWeight
			reasoning = append(reasoning, "MACD below signal line")
		}
	}

	// EMA trend alignment.
	if validValue(ind.EMA20) && validValue(ind.EMA50) && ind.EMA20 != ind.EMA50 {
		if ind.EMA20 > ind.EMA50 {
			bullish += emaTrendWeight
			reasoning = append(reasoning, "EMA20 above EMA50, uptrend")
		} else {
			bearish += emaTrendWeight
			reasoning = append(reasoning, "EMA20 below EMA50, downtrend")
		}
	}

	// Pattern votes.
	for _, p := range chartPatterns {
		contribution := p.Confidence * chartPatternScale
		switch p.Direction {
		case models.Bullish:
			bullish += contribution
			reasoning = append(reasoning, "chart: "+p.Name)
		case models.Bearish:
			bearish += contribution
			reasoning = append(reasoning, "chart: "+p.Name)
		}
	}
	for _, p := range candlePatterns {
		contribution := p.Confidence * candlePatternScale
		switch p.Direction {
		case models.Bullish:
			bullish += contribution
			reasoning = append(reasoning, "candle: "+p.Name)
		case models.Bearish:
			bearish += contribution
			reasoning = append(reasoning, "candle: "+p.Name)
		}
	}

	net := bullish - bearish
	strength := math.Abs(net)

	var action Action
	var confidence float64
	switch {
	case net > actionThreshold:
		action = ActionBuy
		confidence = clamp(strength/50*100, 60, 100)
	case net < -actionThreshold:
		action = ActionSell
		confidence = clamp(strength/50*100, 60, 100)
	default:
		action = ActionHold
		// A balanced tape is the strongest HOLD; conviction either way
		// erodes it.
		confidence = clamp(70-2*strength, 30, 65)
	}

	sig := TradingSignal{
		Action:     action,
		Confidence: confidence,
		Strength:   strength,
		Entry:      price,
		Reasoning:  reasoning,
	}
	sig.applyPriceLevels(price, ind.Bollinger)
	return sig
}

// applyPriceLevels sets stop and take-profit levels at fixed offsets from
// price, clamped to the Bollinger edges when those are valid so targets
// stay within observed volatility.
func (s *TradingSignal) applyPriceLevels(price float64, bands Bollinger) {
	upperValid := validValue(bands.Upper) && bands.Upper > 0
	lowerValid := validValue(bands.Lower) && bands.Lower > 0

	switch s.Action {
	case ActionSell:
		s.TakeProfit1 = price * (1 - takeProfit1Pct)
		s.TakeProfit2 = price * (1 - takeProfit2Pct)
		s.TakeProfit3 = price * (1 - takeProfit3Pct)
		s.StopLoss = price * (1 + stopLossPct)
		if lowerValid {
			s.TakeProfit1 = math.Max(s.TakeProfit1, bands.Lower)
			s.TakeProfit2 = math.Max(s.TakeProfit2, bands.Lower)
			s.TakeProfit3 = math.Max(s.TakeProfit3, bands.Lower)
		}
		if upperValid {
			s.StopLoss = math.Min(s.StopLoss, bands.Upper)
		}
	default: // BUY levels; HOLD carries them for reference
		s.TakeProfit1 = price * (1 + takeProfit1Pct)
		s.TakeProfit2 = price * (1 + takeProfit2Pct)
		s.TakeProfit3 = price * (1 + takeProfit3Pct)
		s.StopLoss = price * (1 - stopLossPct)
		if upperValid {
			s.TakeProfit1 = math.Min(s.TakeProfit1, bands.Upper)
			s.TakeProfit2 = math.Min(s.TakeProfit2, bands.Upper)
			s.TakeProfit3 = math.Min(s.TakeProfit3, bands.Upper)
		}
		if lowerValid {
			s.StopLoss = math.Max(s.StopLoss, bands.Lower)
		}
	}
}

func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
