package warn

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Phase 3 delegates to the whale-activity collaborator and folds its 0-100
// score into the composite at 40% weight.
const (
	phase3Cap    = 40
	phase3Weight = 0.4
)

// scorePhase3 queries the collaborator. Errors degrade to a zero
// contribution; the detector never fails a sweep on a collaborator fault.
func scorePhase3(ctx context.Context, whales WhaleDetector, symbol string) phaseResult {
	res := phaseResult{direction: models.Neutral}
	if whales == nil {
		return res
	}

	result, err := whales.DetectWhaleActivity(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("whale detection unavailable")
		return res
	}
	if !result.Detected {
		return res
	}

	res.score = math.Round(result.Score * phase3Weight)
	if res.score > phase3Cap {
		res.score = phase3Cap
	}
	res.triggeredBy = append(res.triggeredBy, "whale_activity")

	switch result.Direction {
	case Accumulation:
		res.direction = models.Bullish
	case Distribution:
		res.direction = models.Bearish
	}
	return res
}
