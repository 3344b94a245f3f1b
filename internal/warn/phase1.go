package warn

import (
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Phase 1 scores stream-cache momentum: volume spikes, RSI velocity, and
// EMA convergence on the fast timeframes.
const (
	phase1Cap = 75

	volumeSpikeScore = 30
	volumeSpikeRatio = 2.0
	volumeMinPctMove = 1.0 // |24h change| below this is churn, not a move

	rsiMomentumScore    = 25
	rsiVelocityMin      = 5.0
	rsiCenterline       = 50.0
	rsiRecentOversold   = 40.0
	rsiRecentOverbought = 60.0

	emaConvergenceScore  = 20
	emaConvergenceGapPct = 0.5
)

// phase1Inputs carries the fresh samples for one sweep, pushed into the
// symbol's rolling history before scoring.
type phase1Inputs struct {
	volume1m  float64 // latest closed 1m candle volume
	rsi1m     float64 // RSI over the 1m window
	emaGapPct float64 // |EMA20-EMA50|/EMA50 on 5m, percent
	pct24h    float64 // ticker 24h change, percent
}

// scorePhase1 pushes the new samples and evaluates the momentum heuristics
// against the updated history. It also reports the volume ratio for the
// time-estimate narrowing rule.
func scorePhase1(h *symbolHistory, in phase1Inputs) (phaseResult, float64) {
	h.volume.push(in.volume1m)
	h.rsi.push(in.rsi1m)
	h.emaGap.push(in.emaGapPct)

	res := phaseResult{direction: models.Neutral}
	volumeRatio := 0.0

	// Volume spike against the 20-sample baseline.
	if baseline := h.volume.meanExcludingNewest(); baseline > 0 {
		volumeRatio = in.volume1m / baseline
		if volumeRatio > volumeSpikeRatio && math.Abs(in.pct24h) > volumeMinPctMove {
			res.score += volumeSpikeScore
			res.triggeredBy = append(res.triggeredBy, "volume_spike")
			if in.pct24h > 0 {
				vote(&res, models.Bullish)
			} else {
				vote(&res, models.Bearish)
			}
		}
	}

	// RSI velocity crossing the centerline.
	if prev, ok := h.rsi.last(1); ok {
		velocity := in.rsi1m - prev
		if math.Abs(velocity) > rsiVelocityMin {
			crossedUp := prev < rsiCenterline && in.rsi1m >= rsiCenterline
			crossedDown := prev > rsiCenterline && in.rsi1m <= rsiCenterline

			if low, hasLow := h.rsi.min(); crossedUp && hasLow && low < rsiRecentOversold {
				res.score += rsiMomentumScore
				res.triggeredBy = append(res.triggeredBy, "rsi_momentum")
				vote(&res, models.Bullish)
			} else if high, hasHigh := h.rsi.max(); crossedDown && hasHigh && high > rsiRecentOverbought {
				res.score += rsiMomentumScore
				res.triggeredBy = append(res.triggeredBy, "rsi_momentum")
				vote(&res, models.Bearish)
			}
		}
	}

	// EMA convergence: a tight, still-narrowing 5m gap precedes a cross.
	if prev, ok := h.emaGap.last(1); ok {
		if in.emaGapPct < emaConvergenceGapPct && in.emaGapPct < prev {
			res.score += emaConvergenceScore
			res.triggeredBy = append(res.triggeredBy, "ema_convergence")
		}
	}

	if res.score > phase1Cap {
		res.score = phase1Cap
	}
	return res, volumeRatio
}

// vote applies the phase-local direction update: first vote sets the lean,
// a conflicting vote inside the same phase cancels it.
func vote(res *phaseResult, d models.Direction) {
	switch res.direction {
	case models.Neutral:
		res.direction = d
	case d:
	default:
		res.direction = models.Neutral
	}
}
