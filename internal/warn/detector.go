package warn

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/models"
	"github.com/sawpanic/surgewatch/internal/signal"
)

// Candle windows the detector reads per sweep.
const (
	fastWindow  = 60 // 1m candles for volume/RSI sampling
	trendWindow = 60 // 5m candles for the EMA gap
)

// Config holds detector settings.
type Config struct {
	Cooldown      time.Duration // per (symbol, alertType)
	MinConfidence float64       // emission floor
}

// DefaultConfig returns production detector settings.
func DefaultConfig() Config {
	return Config{
		Cooldown:      DefaultCooldown,
		MinConfidence: 30,
	}
}

// Detector runs the three-phase scoring pipeline over the stream caches.
// Histories and cooldowns live in memory and are rebuilt from the exchange
// after a restart.
type Detector struct {
	cfg    Config
	market MarketData
	whales WhaleDetector

	mu        sync.Mutex
	histories map[string]*symbolHistory
	cooldown  *cooldownMap
}

// NewDetector creates a detector reading market data through market and
// optionally consulting whales for Phase 3.
func NewDetector(cfg Config, market MarketData, whales WhaleDetector) *Detector {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Detector{
		cfg:       cfg,
		market:    market,
		whales:    whales,
		histories: make(map[string]*symbolHistory),
		cooldown:  newCooldownMap(cfg.Cooldown),
	}
}

// Evaluate runs one full pass for symbol. It returns a nil alert when
// nothing qualifies: missing data, a NEUTRAL composite, or a confidence
// below the floor. suppressed reports the case where a qualifying alert
// was silenced by the per (symbol, type) cooldown. Missing Phase 2/3
// inputs never abort the Phase 1 score.
func (d *Detector) Evaluate(ctx context.Context, symbol string) (alert *Alert, suppressed bool) {
	ticker, ok := d.market.GetTicker(symbol)
	if !ok {
		return nil, false
	}

	inputs, ok := d.collectPhase1Inputs(ctx, symbol, ticker)
	if !ok {
		return nil, false
	}

	// The depth snapshot is fetched before any detector lock so a slow
	// order-book call stalls only this symbol's evaluation.
	book, err := d.market.OrderBook(ctx, symbol)
	if err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("order book unavailable, skipping phase 2")
		book = nil
	}

	history := d.historyFor(symbol)

	history.mu.Lock()
	p1, volumeRatio := scorePhase1(history, inputs)

	var p2 phaseResult
	if book != nil {
		p2 = scorePhase2(history, book)
	}
	history.mu.Unlock()

	p3 := scorePhase3(ctx, d.whales, symbol)

	confidence := math.Min(p1.score+p2.score+p3.score, 100)

	// Directional reconciliation across phases: last writer wins, and an
	// opposite vote from a later phase cancels to NEUTRAL instead of
	// averaging.
	composite := phaseResult{direction: models.Neutral}
	for _, phase := range []phaseResult{p1, p2, p3} {
		if phase.direction != models.Neutral {
			vote(&composite, phase.direction)
		}
	}

	alertType := NoAlert
	switch composite.direction {
	case models.Bullish:
		alertType = PumpLikely
	case models.Bearish:
		alertType = DumpLikely
	}

	if alertType == NoAlert || confidence < d.cfg.MinConfidence {
		return nil, false
	}
	if !d.cooldown.Allow(symbol, alertType) {
		return nil, true
	}

	estMin, estMax := timeEstimate(volumeRatio, p2.score, p3.score)

	triggeredBy := append([]string{}, p1.triggeredBy...)
	triggeredBy = append(triggeredBy, p2.triggeredBy...)
	triggeredBy = append(triggeredBy, p3.triggeredBy...)

	return &Alert{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		Type:            alertType,
		Confidence:      confidence,
		TimeEstimateMin: estMin,
		TimeEstimateMax: estMax,
		TriggeredBy:     triggeredBy,
		Phase1Score:     p1.score,
		Phase2Score:     p2.score,
		Phase3Score:     p3.score,
		CreatedAt:       time.Now(),
	}, false
}

// historyFor returns the rolling state for symbol, creating it on first
// sight. The detector lock covers only the map; the history carries its
// own lock.
func (d *Detector) historyFor(symbol string) *symbolHistory {
	d.mu.Lock()
	defer d.mu.Unlock()
	history := d.histories[symbol]
	if history == nil {
		history = newSymbolHistory()
		d.histories[symbol] = history
	}
	return history
}

// ClearCooldowns drops all suppression state, letting the next qualifying
// evaluation alert immediately. Intended for operator resets.
func (d *Detector) ClearCooldowns() {
	d.cooldown.Clear()
}

// collectPhase1Inputs derives the fresh momentum samples from the candle
// caches. A short window is a valid skip, not an error.
func (d *Detector) collectPhase1Inputs(ctx context.Context, symbol string, ticker models.Ticker) (phase1Inputs, bool) {
	fast, err := d.market.GetCandles(ctx, symbol, models.TF1m, fastWindow)
	if err != nil || len(fast) < signal.MinIndicatorCandles {
		return phase1Inputs{}, false
	}

	fastInd, err := signal.ComputeIndicators(fast)
	if err != nil {
		return phase1Inputs{}, false
	}

	inputs := phase1Inputs{
		volume1m: fast[len(fast)-1].Volume,
		rsi1m:    fastInd.RSI,
		pct24h:   ticker.PctChange24,
	}

	// The 5m EMA gap is best-effort; without it the convergence heuristic
	// simply stays quiet.
	inputs.emaGapPct = math.Inf(1)
	if trend, err := d.market.GetCandles(ctx, symbol, models.TF5m, trendWindow); err == nil {
		if trendInd, err := signal.ComputeIndicators(trend); err == nil && trendInd.EMA50 != 0 {
			inputs.emaGapPct = math.Abs(trendInd.EMA20-trendInd.EMA50) / trendInd.EMA50 * 100
		}
	}

	return inputs, true
}

// timeEstimate narrows the expected move window as evidence deepens.
func timeEstimate(volumeRatio, phase2Score, phase3Score float64) (min, max float64) {
	min, max = 3, 8
	if volumeRatio > 3 {
		min, max = 2, 5
	}
	if phase2Score > 0 {
		min, max = 1, 3
	}
	if phase3Score > 0 {
		min, max = 0.5, 2
	}
	return min, max
}
