package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/surgewatch/internal/models"
)

// neutralIndicators returns a bundle that contributes no votes: RSI in the
// middle band, zero MACD histogram, equal EMAs.
func neutralIndicators() Indicators {
	return Indicators{
		RSI:   50,
		EMA20: 100,
		EMA50: 100,
	}
}

func TestGenerateTradingSignal_NetAboveThresholdBuys(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 25 // oversold, +25 bullish

	sig := GenerateTradingSignal(100, ind, nil, nil)

	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, 25.0, sig.Strength)
	assert.Equal(t, 60.0, sig.Confidence, "confidence floor for an action signal")
	assert.Contains(t, sig.Reasoning[0], "oversold")
}

func TestGenerateTradingSignal_NetExactlyAtThresholdHolds(t *testing.T) {
	ind := neutralIndicators()
	ind.MACD.Histogram = 1 // +20 bullish, nothing else

	sig := GenerateTradingSignal(100, ind, nil, nil)

	assert.Equal(t, ActionHold, sig.Action, "the threshold is strict; a net of exactly 20 holds")
	assert.Equal(t, 20.0, sig.Strength)
	assert.Equal(t, 30.0, sig.Confidence)
}

func TestGenerateTradingSignal_NetBelowNegativeThresholdSells(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 75 // overbought, +25 bearish

	sig := GenerateTradingSignal(100, ind, nil, nil)

	assert.Equal(t, ActionSell, sig.Action)
	assert.Equal(t, 60.0, sig.Confidence)
}

func TestGenerateTradingSignal_BalancedTapeIsStrongestHold(t *testing.T) {
	sig := GenerateTradingSignal(100, neutralIndicators(), nil, nil)

	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.0, sig.Strength)
	assert.Equal(t, 65.0, sig.Confidence, "hold confidence caps at 65")
}

func TestGenerateTradingSignal_ConvergingEvidenceBuys(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 28
	ind.MACD.Histogram = 0.8

	candle := []Pattern{{Name: "Bullish Engulfing", Direction: models.Bullish, Confidence: 70}}
	sig := GenerateTradingSignal(100, ind, nil, candle)

	// 25 + 20 + 70*0.2 = 59 net.
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, 59.0, sig.Strength)
	assert.GreaterOrEqual(t, sig.Confidence, 60.0)
	assert.Len(t, sig.Reasoning, 3)
}

func TestGenerateTradingSignal_ChartPatternsScaleByConfidence(t *testing.T) {
	chart := []Pattern{{Name: "Head and Shoulders", Direction: models.Bearish, Confidence: 70}}
	sig := GenerateTradingSignal(100, neutralIndicators(), chart, nil)

	// 70 * 0.3 = 21 net bearish, strictly past the threshold.
	assert.Equal(t, ActionSell, sig.Action)
	assert.Equal(t, 21.0, sig.Strength)
}

func TestGenerateTradingSignal_NeutralPatternsDoNotVote(t *testing.T) {
	candle := []Pattern{{Name: "Doji", Direction: models.Neutral, Confidence: 50}}
	sig := GenerateTradingSignal(100, neutralIndicators(), nil, candle)

	assert.Equal(t, ActionHold, sig.Action)
	assert.Equal(t, 0.0, sig.Strength)
}

func TestGenerateTradingSignal_BuyLevels(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 25

	sig := GenerateTradingSignal(100, ind, nil, nil)

	assert.Equal(t, 100.0, sig.Entry)
	assert.InDelta(t, 102.0, sig.TakeProfit1, 1e-9)
	assert.InDelta(t, 104.0, sig.TakeProfit2, 1e-9)
	assert.InDelta(t, 106.0, sig.TakeProfit3, 1e-9)
	assert.InDelta(t, 97.0, sig.StopLoss, 1e-9)
}

func TestGenerateTradingSignal_LevelsClampToBollinger(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 25
	ind.Bollinger = Bollinger{Upper: 103, Middle: 100, Lower: 98}

	sig := GenerateTradingSignal(100, ind, nil, nil)

	require.Equal(t, ActionBuy, sig.Action)
	assert.InDelta(t, 102.0, sig.TakeProfit1, 1e-9, "inside the band stays put")
	assert.InDelta(t, 103.0, sig.TakeProfit2, 1e-9, "clamped to the upper band")
	assert.InDelta(t, 103.0, sig.TakeProfit3, 1e-9)
	assert.InDelta(t, 98.0, sig.StopLoss, 1e-9, "stop pulled up to the lower band")
}

func TestGenerateTradingSignal_SellLevelsMirror(t *testing.T) {
	ind := neutralIndicators()
	ind.RSI = 75
	ind.Bollinger = Bollinger{Upper: 102, Middle: 100, Lower: 97}

	sig := GenerateTradingSignal(100, ind, nil, nil)

	require.Equal(t, ActionSell, sig.Action)
	assert.InDelta(t, 98.0, sig.TakeProfit1, 1e-9)
	assert.InDelta(t, 97.0, sig.TakeProfit2, 1e-9, "clamped to the lower band")
	assert.InDelta(t, 102.0, sig.StopLoss, 1e-9, "stop capped at the upper band")
}
