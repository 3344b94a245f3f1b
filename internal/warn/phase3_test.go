package warn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/surgewatch/internal/models"
)

type stubWhales struct {
	result WhaleResult
	err    error
	calls  int
}

func (s *stubWhales) DetectWhaleActivity(_ context.Context, _ string) (WhaleResult, error) {
	s.calls++
	return s.result, s.err
}

func TestScorePhase3_NilDetectorDisablesPhase(t *testing.T) {
	res := scorePhase3(context.Background(), nil, "BTCUSDT")

	assert.Equal(t, 0.0, res.score)
	assert.Equal(t, models.Neutral, res.direction)
}

func TestScorePhase3_ErrorDegradesToZero(t *testing.T) {
	whales := &stubWhales{err: errors.New("upstream timeout")}

	res := scorePhase3(context.Background(), whales, "BTCUSDT")

	assert.Equal(t, 0.0, res.score)
	assert.Equal(t, 1, whales.calls)
}

func TestScorePhase3_AccumulationWeightsScore(t *testing.T) {
	whales := &stubWhales{result: WhaleResult{
		Detected:  true,
		Direction: Accumulation,
		Score:     60,
	}}

	res := scorePhase3(context.Background(), whales, "BTCUSDT")

	assert.Equal(t, 24.0, res.score, "collaborator score folds in at 40% weight")
	assert.Equal(t, models.Bullish, res.direction)
	assert.Equal(t, []string{"whale_activity"}, res.triggeredBy)
}

func TestScorePhase3_DistributionIsBearish(t *testing.T) {
	whales := &stubWhales{result: WhaleResult{
		Detected:  true,
		Direction: Distribution,
		Score:     100,
	}}

	res := scorePhase3(context.Background(), whales, "BTCUSDT")

	assert.Equal(t, 40.0, res.score, "weighted score caps at the phase ceiling")
	assert.Equal(t, models.Bearish, res.direction)
}

func TestScorePhase3_NotDetectedIsQuiet(t *testing.T) {
	whales := &stubWhales{result: WhaleResult{Detected: false, Score: 90}}

	res := scorePhase3(context.Background(), whales, "BTCUSDT")
	assert.Equal(t, 0.0, res.score)
}
