package warn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/metrics"
)

// RunnerConfig holds sweep scheduling settings.
type RunnerConfig struct {
	Interval    time.Duration // fixed sweep period
	Concurrency int           // symbols evaluated in parallel
}

// DefaultRunnerConfig returns production sweep settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:    30 * time.Second,
		Concurrency: 8,
	}
}

// AlertFunc receives each emitted alert. It runs on a sweep worker
// goroutine and must not block.
type AlertFunc func(Alert)

// Runner sweeps the tracked symbols on a fixed interval. A tick that fires
// while the previous sweep is still running is skipped, never queued, so a
// slow exchange cannot pile up concurrent sweeps.
type Runner struct {
	cfg      RunnerConfig
	detector *Detector
	symbols  func() []string
	onAlert  AlertFunc
	mtr      *metrics.Registry

	sweeping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRunner creates a runner. symbols is called at the start of every sweep
// so tracking changes take effect on the next tick. onAlert may be nil.
func NewRunner(cfg RunnerConfig, detector *Detector, symbols func() []string, onAlert AlertFunc, mtr *metrics.Registry) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRunnerConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultRunnerConfig().Concurrency
	}
	return &Runner{
		cfg:      cfg,
		detector: detector,
		symbols:  symbols,
		onAlert:  onAlert,
		mtr:      mtr,
	}
}

// Start launches the sweep loop. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Sweeps run off the tick goroutine so a tick landing mid-sweep hits
	// the overlap guard instead of queueing behind it.
	var wg sync.WaitGroup
	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.trySweep(ctx)
		}()
	}

	// First sweep fires immediately rather than one interval in.
	launch()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			launch()
		}
	}
}

func (r *Runner) trySweep(ctx context.Context) {
	if !r.sweeping.CompareAndSwap(false, true) {
		r.mtr.SweepSkips.Inc()
		log.Warn().Msg("previous sweep still running, skipping tick")
		return
	}
	defer r.sweeping.Store(false)
	r.sweep(ctx)
}

// Sweep runs one evaluation pass synchronously. Exposed for on-demand
// scans; the periodic loop goes through the overlap guard instead.
func (r *Runner) Sweep(ctx context.Context) {
	r.sweep(ctx)
}

func (r *Runner) sweep(ctx context.Context) {
	symbols := r.symbols()
	if len(symbols) == 0 {
		return
	}

	started := time.Now()
	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			r.evaluate(ctx, symbol)
		}(symbol)
	}
	wg.Wait()
	r.mtr.SweepDuration.Observe(time.Since(started).Seconds())
}

func (r *Runner) evaluate(ctx context.Context, symbol string) {
	alert, suppressed := r.detector.Evaluate(ctx, symbol)
	if suppressed {
		r.mtr.AlertsSuppressed.Inc()
	}
	if alert == nil {
		return
	}
	r.mtr.AlertsEmitted.WithLabelValues(string(alert.Type)).Inc()
	log.Info().
		Str("symbol", alert.Symbol).
		Str("type", string(alert.Type)).
		Float64("confidence", alert.Confidence).
		Float64("eta_min", alert.TimeEstimateMin).
		Float64("eta_max", alert.TimeEstimateMax).
		Msg("early warning alert")
	if r.onAlert != nil {
		r.onAlert(*alert)
	}
}
