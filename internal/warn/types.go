// Package warn implements the three-phase early pump/dump detector. Phase 1
// scores stream-cache momentum, Phase 2 scores order book structure, Phase 3
// delegates to an external whale-activity collaborator. Each phase is
// best-effort: missing data for a later phase never discards the earlier
// scores.
package warn

import (
	"context"
	"time"

	"github.com/sawpanic/surgewatch/internal/models"
)

// AlertType classifies an early-warning alert.
type AlertType string

const (
	PumpLikely AlertType = "PUMP_LIKELY"
	DumpLikely AlertType = "DUMP_LIKELY"
	NoAlert    AlertType = "NEUTRAL"
)

// Alert is one emitted early warning. NEUTRAL results never become alerts.
type Alert struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Type            AlertType `json:"alert_type"`
	Confidence      float64   `json:"confidence"`        // 0-100, min(sum of phases, 100)
	TimeEstimateMin float64   `json:"time_estimate_min"` // minutes
	TimeEstimateMax float64   `json:"time_estimate_max"` // minutes
	TriggeredBy     []string  `json:"triggered_by"`
	Phase1Score     float64   `json:"phase1_score"`
	Phase2Score     float64   `json:"phase2_score"`
	Phase3Score     float64   `json:"phase3_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// WhaleDirection is the lean reported by the whale collaborator.
type WhaleDirection string

const (
	Accumulation WhaleDirection = "ACCUMULATION"
	Distribution WhaleDirection = "DISTRIBUTION"
)

// WhaleResult is the collaborator's verdict for one symbol.
type WhaleResult struct {
	Detected   bool           `json:"detected"`
	Confidence float64        `json:"confidence"`
	Direction  WhaleDirection `json:"direction"`
	Score      float64        `json:"score"` // 0-100
	Subsignals []string       `json:"subsignals"`
}

// WhaleDetector is the external whale-activity collaborator consumed by
// Phase 3. A nil detector disables the phase.
type WhaleDetector interface {
	DetectWhaleActivity(ctx context.Context, symbol string) (WhaleResult, error)
}

// MarketData is the read surface the detector needs from the stream
// manager.
type MarketData interface {
	GetTicker(symbol string) (models.Ticker, bool)
	GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error)
	OrderBook(ctx context.Context, symbol string) (*models.OrderBookSnapshot, error)
}

// phaseResult is one phase's contribution before reconciliation.
type phaseResult struct {
	score       float64
	direction   models.Direction
	triggeredBy []string
}
