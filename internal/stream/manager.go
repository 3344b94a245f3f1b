// Package stream owns the exchange connections and the market data caches
// built from them. A small fixed set of multiplexed WebSocket connections
// feeds a latest-wins ticker cache and per-(symbol, timeframe) candle ring
// buffers; everything else in the process reads through the Manager's
// non-blocking cache API.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/bus"
	"github.com/sawpanic/surgewatch/internal/exchange"
	"github.com/sawpanic/surgewatch/internal/metrics"
	"github.com/sawpanic/surgewatch/internal/models"
)

// Bus topics published by the Manager. Payloads are models.Ticker and
// CandleUpdate respectively.
const (
	TopicTicker = "ticker"
	TopicKline  = "kline"
)

// CandleUpdate is the bus payload published for every kline frame.
type CandleUpdate struct {
	Symbol    string
	Timeframe models.Timeframe
	Candle    models.Candle
	Closed    bool
}

// Config holds stream manager settings.
type Config struct {
	WSBaseURL     string
	BufferCap     int           // candles kept per (symbol, timeframe)
	BackfillLimit int           // REST candles fetched on subscribe
	DebounceDelay time.Duration // ticker restart debounce
	DepthLevels   int           // levels per side for book snapshots
}

// DefaultConfig returns production stream settings.
func DefaultConfig() Config {
	return Config{
		WSBaseURL:     "wss://stream.binance.com:9443",
		BufferCap:     DefaultBufferCap,
		BackfillLimit: 200,
		DebounceDelay: 500 * time.Millisecond,
		DepthLevels:   20,
	}
}

type bufferKey struct {
	symbol string
	tf     models.Timeframe
}

func (k bufferKey) connKey() string {
	return fmt.Sprintf("kline_%s_%s", k.symbol, k.tf)
}

const tickerConnKey = "combined_ticker"

// subscription tracks one live kline stream and its consumer count. The
// entry is inserted before the backfill runs so concurrent subscribers
// for the same key wait on ready instead of repeating the REST call;
// subscribers for other keys proceed untouched. conn stays nil until
// ready is closed, and err records a failed setup.
type subscription struct {
	refs  int
	conn  *streamConn
	ready chan struct{}
	err   error
}

// Manager multiplexes exchange connections and owns the market data caches.
// All mutable state is private to the Manager; collaborators read through
// GetTicker/TryGetCached/GetCandles.
type Manager struct {
	cfg  Config
	rest *exchange.Client
	bus  *bus.Bus
	mtr  *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	backoff *backoffTracker

	tickerMu sync.RWMutex
	tickers  map[string]models.Ticker

	bufMu   sync.RWMutex
	buffers map[bufferKey]*CandleBuffer

	subMu sync.Mutex
	subs  map[bufferKey]*subscription

	trackMu       sync.Mutex
	tracked       map[string]bool
	tickerConn    *streamConn
	debounceTimer *time.Timer
}

// NewManager creates a stream manager. Call Close to release connections.
func NewManager(cfg Config, rest *exchange.Client, b *bus.Bus, mtr *metrics.Registry) *Manager {
	def := DefaultConfig()
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = def.WSBaseURL
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = def.BufferCap
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = def.BackfillLimit
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = def.DepthLevels
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		rest:    rest,
		bus:     b,
		mtr:     mtr,
		ctx:     ctx,
		cancel:  cancel,
		backoff: newBackoffTracker(),
		tickers: make(map[string]models.Ticker),
		buffers: make(map[bufferKey]*CandleBuffer),
		subs:    make(map[bufferKey]*subscription),
		tracked: make(map[string]bool),
	}
}

// TrackSymbols adds symbols to the multiplexed ticker subscription. The add
// is idempotent; the shared connection restart is debounced so a burst of
// calls causes one reconnect. Tracking also re-arms a ticker stream that
// went dormant after exhausting its retry budget.
func (m *Manager) TrackSymbols(symbols []string) {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()

	changed := false
	for _, s := range symbols {
		s = strings.ToUpper(s)
		if !m.tracked[s] {
			m.tracked[s] = true
			changed = true
		}
	}
	if !changed && m.tickerConn != nil {
		return
	}

	if m.mtr != nil {
		m.mtr.TrackedSymbols.Set(float64(len(m.tracked)))
	}

	m.backoff.Reset(tickerConnKey)
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(m.cfg.DebounceDelay, m.restartTickerStream)
}

// restartTickerStream rebuilds the combined ticker connection for the
// current tracked set.
func (m *Manager) restartTickerStream() {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()

	if m.ctx.Err() != nil {
		return
	}

	topics := make([]string, 0, len(m.tracked))
	for s := range m.tracked {
		topics = append(topics, strings.ToLower(s)+"@ticker")
	}
	if len(topics) == 0 {
		return
	}

	if m.tickerConn != nil {
		m.tickerConn.stop()
		m.tickerConn = nil
	}

	url := m.cfg.WSBaseURL + "/stream?streams=" + strings.Join(topics, "/")
	conn := newStreamConn(tickerConnKey, url, m.backoff, m.handleTickerMessage)
	conn.onDown = m.markStreamDown
	conn.start(m.ctx)
	m.tickerConn = conn

	log.Info().Int("symbols", len(topics)).Msg("ticker stream restarted")
}

// GetTicker returns the cached ticker snapshot for symbol. A missing entry
// is a valid state, never fabricated.
func (m *Manager) GetTicker(symbol string) (models.Ticker, bool) {
	m.tickerMu.RLock()
	defer m.tickerMu.RUnlock()
	t, ok := m.tickers[strings.ToUpper(symbol)]
	return t, ok
}

// TrackedSymbols returns the currently tracked symbol set.
func (m *Manager) TrackedSymbols() []string {
	m.trackMu.Lock()
	defer m.trackMu.Unlock()
	out := make([]string, 0, len(m.tracked))
	for s := range m.tracked {
		out = append(out, s)
	}
	return out
}

// TryGetCached is the pure read half of GetCandles: it never subscribes and
// never touches the network.
func (m *Manager) TryGetCached(symbol string, tf models.Timeframe, limit int) ([]models.Candle, bool) {
	key := bufferKey{symbol: strings.ToUpper(symbol), tf: tf}

	m.bufMu.RLock()
	buf, ok := m.buffers[key]
	if !ok || buf.Len() == 0 {
		m.bufMu.RUnlock()
		return nil, false
	}
	candles := buf.Tail(limit)
	m.bufMu.RUnlock()
	return candles, true
}

// GetCandles reads the candle cache. An untracked key is subscribed on the
// way through; if the cache is still cold after the subscribe (a race with
// the backfill), one metered REST call covers the gap.
func (m *Manager) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	if candles, ok := m.TryGetCached(symbol, tf, limit); ok {
		return candles, nil
	}

	if err := m.EnsureSubscribed(ctx, symbol, tf); err != nil {
		return nil, err
	}

	if candles, ok := m.TryGetCached(symbol, tf, limit); ok {
		return candles, nil
	}

	// Cold-cache race: serve this one call straight from REST.
	candles, err := m.rest.Klines(ctx, strings.ToUpper(symbol), tf, limit)
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// EnsureSubscribed is the effectful half of GetCandles: it guarantees a live
// subscription for the key without reading anything.
func (m *Manager) EnsureSubscribed(ctx context.Context, symbol string, tf models.Timeframe) error {
	key := bufferKey{symbol: strings.ToUpper(symbol), tf: tf}

	m.subMu.Lock()
	sub, exists := m.subs[key]
	m.subMu.Unlock()
	if exists {
		<-sub.ready
		return sub.err
	}
	return m.Subscribe(ctx, symbol, tf)
}

// Subscribe backfills the candle buffer over REST and opens (or reuses) the
// live kline stream for the key, bumping its reference count.
func (m *Manager) Subscribe(ctx context.Context, symbol string, tf models.Timeframe) error {
	key := bufferKey{symbol: strings.ToUpper(symbol), tf: tf}

	m.subMu.Lock()
	if sub, ok := m.subs[key]; ok {
		sub.refs++
		m.subMu.Unlock()
		<-sub.ready
		return sub.err
	}

	// Reserve the key before backfilling so the lock never spans the
	// REST call. Same-key subscribers wait on ready; other keys are free.
	sub := &subscription{refs: 1, ready: make(chan struct{})}
	m.subs[key] = sub
	m.subMu.Unlock()

	candles, err := m.rest.Klines(ctx, key.symbol, tf, m.cfg.BackfillLimit)
	if err != nil {
		sub.err = fmt.Errorf("backfill %s %s: %w", key.symbol, tf, err)
		m.subMu.Lock()
		if m.subs[key] == sub {
			delete(m.subs, key)
		}
		m.subMu.Unlock()
		close(sub.ready)
		return sub.err
	}

	m.bufMu.Lock()
	buf, ok := m.buffers[key]
	if !ok {
		buf = NewCandleBuffer(m.cfg.BufferCap)
		m.buffers[key] = buf
	}
	buf.Seed(candles)
	m.bufMu.Unlock()

	m.subMu.Lock()
	if m.subs[key] != sub {
		// Every consumer unsubscribed while the backfill was in flight;
		// leave the stream closed.
		m.subMu.Unlock()
		close(sub.ready)
		return nil
	}

	m.backoff.Reset(key.connKey())

	url := m.cfg.WSBaseURL + "/ws/" + strings.ToLower(key.symbol) + "@kline_" + string(tf)
	conn := newStreamConn(key.connKey(), url, m.backoff, func(msg []byte) {
		m.handleKlineMessage(key, msg)
	})
	conn.onDown = m.markStreamDown
	conn.start(m.ctx)
	sub.conn = conn
	m.subMu.Unlock()
	close(sub.ready)

	log.Info().
		Str("symbol", key.symbol).
		Str("timeframe", string(tf)).
		Int("backfilled", len(candles)).
		Msg("subscribed to kline stream")
	return nil
}

// Unsubscribe drops one consumer reference; the stream closes and the
// buffer is released only when the count reaches zero.
func (m *Manager) Unsubscribe(symbol string, tf models.Timeframe) {
	key := bufferKey{symbol: strings.ToUpper(symbol), tf: tf}

	m.subMu.Lock()
	sub, ok := m.subs[key]
	if !ok {
		m.subMu.Unlock()
		return
	}
	sub.refs--
	if sub.refs > 0 {
		m.subMu.Unlock()
		return
	}
	delete(m.subs, key)
	m.subMu.Unlock()

	<-sub.ready
	if sub.conn != nil {
		sub.conn.stop()
	}

	m.bufMu.Lock()
	delete(m.buffers, key)
	m.bufMu.Unlock()

	log.Info().
		Str("symbol", key.symbol).
		Str("timeframe", string(tf)).
		Msg("unsubscribed from kline stream")
}

// OrderBook fetches a fresh depth snapshot through the shared REST budget.
// Depth is pull-only; it is not cached.
func (m *Manager) OrderBook(ctx context.Context, symbol string) (*models.OrderBookSnapshot, error) {
	return m.rest.Depth(ctx, strings.ToUpper(symbol), m.cfg.DepthLevels)
}

// ConnectionState reports the reconnect state for a connection key.
func (m *Manager) ConnectionState(key string) (BackoffState, bool) {
	return m.backoff.State(key)
}

// ConnectionStates reports the reconnect state of every connection key.
func (m *Manager) ConnectionStates() map[string]BackoffState {
	return m.backoff.States()
}

// Close stops all connections. The Manager is unusable afterwards.
func (m *Manager) Close() {
	m.cancel()

	m.trackMu.Lock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	if m.tickerConn != nil {
		m.tickerConn.stop()
		m.tickerConn = nil
	}
	m.trackMu.Unlock()

	m.subMu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for key, sub := range m.subs {
		subs = append(subs, sub)
		delete(m.subs, key)
	}
	m.subMu.Unlock()

	for _, sub := range subs {
		<-sub.ready
		if sub.conn != nil {
			sub.conn.stop()
		}
	}
}

// handleTickerMessage applies one combined-stream ticker frame to the cache.
func (m *Manager) handleTickerMessage(message []byte) {
	ticker, err := parseTickerEvent(unwrapFrame(message))
	if err != nil {
		log.Debug().Err(err).Msg("skipping unparseable ticker frame")
		return
	}

	m.tickerMu.Lock()
	m.tickers[ticker.Symbol] = ticker
	m.tickerMu.Unlock()

	if m.mtr != nil {
		m.mtr.WSMessages.WithLabelValues("ticker").Inc()
	}
	if m.bus != nil {
		m.bus.Publish(TopicTicker+":"+ticker.Symbol, ticker)
	}
}

// handleKlineMessage applies one kline frame to the key's buffer, strictly
// in arrival order.
func (m *Manager) handleKlineMessage(key bufferKey, message []byte) {
	symbol, tf, candle, closed, err := parseKlineEvent(unwrapFrame(message))
	if err != nil {
		log.Debug().Err(err).Msg("skipping unparseable kline frame")
		return
	}
	if symbol != key.symbol || tf != key.tf {
		return
	}

	m.bufMu.Lock()
	buf, ok := m.buffers[key]
	if !ok {
		buf = NewCandleBuffer(m.cfg.BufferCap)
		m.buffers[key] = buf
	}
	buf.Apply(candle)
	m.bufMu.Unlock()

	if m.mtr != nil {
		m.mtr.WSMessages.WithLabelValues("kline").Inc()
	}
	if m.bus != nil {
		m.bus.Publish(TopicKline+":"+key.symbol+":"+string(tf), CandleUpdate{
			Symbol:    key.symbol,
			Timeframe: tf,
			Candle:    candle,
			Closed:    closed,
		})
	}
}

func (m *Manager) markStreamDown(key string) {
	if m.mtr != nil {
		m.mtr.StreamsDown.Inc()
		m.mtr.WSReconnects.WithLabelValues(key).Inc()
	}
}
