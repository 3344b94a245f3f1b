// Package exchange provides the REST client used for candle backfill and
// cold-cache fallback. All callers share one rate limiter so backfill bursts
// and cache misses draw from the same request budget.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/surgewatch/internal/metrics"
	"github.com/sawpanic/surgewatch/internal/models"
)

// ErrIngestion marks REST failures that exhausted the retry budget. Callers
// match it with errors.Is; the wrapped cause carries the detail.
var ErrIngestion = errors.New("exchange ingestion failed")

// Retry schedule for HTTP 429 responses.
var throttleBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Config holds REST client settings.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration // per-call bound, backfill included
	MinCallGap     time.Duration // shared minimum inter-call delay
	UserAgent      string
}

// DefaultConfig returns production REST settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.binance.com",
		RequestTimeout: 15 * time.Second,
		MinCallGap:     250 * time.Millisecond,
		UserAgent:      "surgewatch/1.0",
	}
}

// Client is a rate-limited, circuit-broken REST client for the exchange
// market data endpoints.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	mtr     *metrics.Registry
}

// NewClient creates a REST client from cfg, filling zero values with
// defaults. mtr may be nil.
func NewClient(cfg Config, mtr *metrics.Registry) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MinCallGap <= 0 {
		cfg.MinCallGap = def.MinCallGap
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	st := gobreaker.Settings{Name: "exchange-rest"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(cfg.MinCallGap), 1),
		breaker: gobreaker.NewCircuitBreaker(st),
		mtr:     mtr,
	}
}

// Klines fetches up to limit closed candles for symbol/interval, oldest
// first.
func (c *Client) Klines(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse kline row: %w", err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Ticker24h fetches the rolling 24h ticker for symbol.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (models.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return models.Ticker{}, err
	}

	var raw ticker24hResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	return raw.toTicker(), nil
}

// Depth fetches an order book snapshot limited to the given number of levels
// per side.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (*models.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/depth", params)
	if err != nil {
		return nil, err
	}

	var raw depthResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	return raw.toSnapshot(symbol), nil
}

// Symbols fetches the tradable symbol list from exchangeInfo.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode exchangeInfo: %w", err)
	}

	symbols := make([]string, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// get performs one metered GET with 429 retry and circuit breaking. The
// limiter wait suspends only the calling goroutine.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	apiURL := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrIngestion, err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doGet(ctx, apiURL)
		})
		if err == nil {
			c.countCall(endpoint, "ok")
			return result.([]byte), nil
		}
		lastErr = err

		var throttled *throttledError
		if errors.As(err, &throttled) {
			c.countCall(endpoint, "throttled")
			if c.mtr != nil {
				c.mtr.RESTThrottles.Inc()
			}
		} else {
			c.countCall(endpoint, "error")
		}
		if throttled == nil || attempt >= len(throttleBackoff) {
			break
		}

		delay := throttleBackoff[attempt]
		log.Warn().
			Str("endpoint", endpoint).
			Dur("delay", delay).
			Int("attempt", attempt+1).
			Msg("exchange throttled request, backing off")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrIngestion, ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%w: GET %s: %v", ErrIngestion, endpoint, lastErr)
}

func (c *Client) countCall(endpoint, result string) {
	if c.mtr != nil {
		c.mtr.RESTCalls.WithLabelValues(endpoint, result).Inc()
	}
}

func (c *Client) doGet(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &throttledError{retryAfter: resp.Header.Get("Retry-After")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// throttledError marks an HTTP 429 so get can distinguish it from other
// failures for retry purposes.
type throttledError struct {
	retryAfter string
}

func (e *throttledError) Error() string {
	if e.retryAfter != "" {
		return "throttled (retry-after " + e.retryAfter + ")"
	}
	return "throttled"
}
