package warn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/surgewatch/internal/models"
)

func quietInputs() phase1Inputs {
	return phase1Inputs{
		volume1m:  100,
		rsi1m:     50,
		emaGapPct: math.Inf(1),
		pct24h:    0,
	}
}

func TestScorePhase1_VolumeSpikeScoresWithDirection(t *testing.T) {
	h := newSymbolHistory()
	scorePhase1(h, quietInputs()) // establish the baseline

	in := quietInputs()
	in.volume1m = 300
	in.pct24h = 4.2

	res, ratio := scorePhase1(h, in)

	assert.Equal(t, 30.0, res.score)
	assert.Equal(t, models.Bullish, res.direction)
	assert.Equal(t, []string{"volume_spike"}, res.triggeredBy)
	assert.Equal(t, 3.0, ratio)
}

func TestScorePhase1_VolumeSpikeWithoutPriceMoveIsChurn(t *testing.T) {
	h := newSymbolHistory()
	scorePhase1(h, quietInputs())

	in := quietInputs()
	in.volume1m = 300
	in.pct24h = 0.5 // below the 1% move floor

	res, _ := scorePhase1(h, in)
	assert.Equal(t, 0.0, res.score)
	assert.Equal(t, models.Neutral, res.direction)
}

func TestScorePhase1_FirstSampleHasNoBaseline(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.volume1m = 1000
	in.pct24h = 10

	res, ratio := scorePhase1(h, in)
	assert.Equal(t, 0.0, res.score)
	assert.Equal(t, 0.0, ratio)
}

func TestScorePhase1_RSICenterlineCrossUp(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.rsi1m = 35 // below the recent-oversold floor
	scorePhase1(h, in)

	in.rsi1m = 44
	scorePhase1(h, in)

	in.rsi1m = 55 // +11 velocity, crossing 50 from below
	res, _ := scorePhase1(h, in)

	assert.Equal(t, 25.0, res.score)
	assert.Equal(t, models.Bullish, res.direction)
	assert.Contains(t, res.triggeredBy, "rsi_momentum")
}

func TestScorePhase1_RSICenterlineCrossDown(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.rsi1m = 68 // above the recent-overbought ceiling
	scorePhase1(h, in)

	in.rsi1m = 56
	scorePhase1(h, in)

	in.rsi1m = 45
	res, _ := scorePhase1(h, in)

	assert.Equal(t, 25.0, res.score)
	assert.Equal(t, models.Bearish, res.direction)
}

func TestScorePhase1_SlowRSIDriftDoesNotScore(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.rsi1m = 47
	scorePhase1(h, in)

	in.rsi1m = 51 // crosses the centerline but velocity is only 4
	res, _ := scorePhase1(h, in)
	assert.Equal(t, 0.0, res.score)
}

func TestScorePhase1_EMAConvergenceIsDirectionless(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.emaGapPct = 0.8
	scorePhase1(h, in)

	in.emaGapPct = 0.3 // tight and narrowing
	res, _ := scorePhase1(h, in)

	assert.Equal(t, 20.0, res.score)
	assert.Equal(t, models.Neutral, res.direction)
	assert.Equal(t, []string{"ema_convergence"}, res.triggeredBy)
}

func TestScorePhase1_WideningGapDoesNotScore(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.emaGapPct = 0.2
	scorePhase1(h, in)

	in.emaGapPct = 0.4 // still tight but widening
	res, _ := scorePhase1(h, in)
	assert.Equal(t, 0.0, res.score)
}

func TestScorePhase1_ScoreCaps(t *testing.T) {
	h := newSymbolHistory()

	in := quietInputs()
	in.rsi1m = 35
	in.emaGapPct = 0.8
	scorePhase1(h, in)

	in.volume1m = 500
	in.pct24h = 6
	in.rsi1m = 55
	in.emaGapPct = 0.2
	res, _ := scorePhase1(h, in)

	require.LessOrEqual(t, res.score, float64(phase1Cap))
	assert.Equal(t, 75.0, res.score, "all three heuristics together hit the cap")
	assert.ElementsMatch(t, []string{"volume_spike", "rsi_momentum", "ema_convergence"}, res.triggeredBy)
}

func TestVote_ConflictCancelsToNeutral(t *testing.T) {
	res := phaseResult{direction: models.Neutral}

	vote(&res, models.Bullish)
	assert.Equal(t, models.Bullish, res.direction)

	vote(&res, models.Bullish)
	assert.Equal(t, models.Bullish, res.direction)

	vote(&res, models.Bearish)
	assert.Equal(t, models.Neutral, res.direction, "opposing evidence cancels instead of averaging")
}
