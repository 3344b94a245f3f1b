package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/surgewatch/internal/metrics"
	"github.com/sawpanic/surgewatch/internal/models"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		MinCallGap:     time.Millisecond,
	}, nil)
}

func TestClient_Klines_ParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1717200000000,"100.0","101.0","99.0","100.5","12.3",1717200059999,"0",10,"0","0","0"],
			[1717200060000,"100.5","102.0","100.0","101.8","8.4",1717200119999,"0",7,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).Klines(context.Background(), "BTCUSDT", models.TF1m, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.UnixMilli(1717200000000), candles[0].OpenTime)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 12.3, candles[0].Volume)
	assert.Equal(t, 101.8, candles[1].Close)
}

func TestClient_Ticker24h_MapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"3000.5","priceChangePercent":"-1.2","volume":"5000","highPrice":"3100","lowPrice":"2950"}`))
	}))
	defer srv.Close()

	ticker, err := newTestClient(srv.URL).Ticker24h(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", ticker.Symbol)
	assert.Equal(t, 3000.5, ticker.Price)
	assert.Equal(t, -1.2, ticker.PctChange24)
	assert.Equal(t, 5000.0, ticker.Volume)
}

func TestClient_Depth_BuildsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		w.Write([]byte(`{"bids":[["100.0","5.0"],["99.5","3.0"]],"asks":[["100.5","2.0"]]}`))
	}))
	defer srv.Close()

	book, err := newTestClient(srv.URL).Depth(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", book.Symbol)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 100.0, book.Bids[0].Price)
	assert.Equal(t, 5.0, book.Bids[0].Quantity)
	assert.Equal(t, 0.5, book.Spread())
}

func TestClient_Symbols_FiltersNonTrading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING"},{"symbol":"OLDUSDT","status":"BREAK"}]}`))
	}))
	defer srv.Close()

	symbols, err := newTestClient(srv.URL).Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, symbols)
}

func TestClient_Get_RetriesOnThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).Klines(context.Background(), "BTCUSDT", models.TF1m, 1)
	require.NoError(t, err)
	assert.Empty(t, candles)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Get_CountsCallsAndThrottles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	mtr := metrics.NewRegistry()
	client := NewClient(Config{
		BaseURL:    srv.URL,
		MinCallGap: time.Millisecond,
	}, mtr)

	_, err := client.Klines(context.Background(), "BTCUSDT", models.TF1m, 1)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(mtr.RESTThrottles))
	assert.Equal(t, float64(1), testutil.ToFloat64(mtr.RESTCalls.WithLabelValues("/api/v3/klines", "throttled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(mtr.RESTCalls.WithLabelValues("/api/v3/klines", "ok")))
}

func TestClient_Get_ThrottleBudgetExhausted(t *testing.T) {
	if testing.Short() {
		t.Skip("walks the full 429 retry schedule")
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Klines(context.Background(), "BTCUSDT", models.TF1m, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestion)
	assert.Equal(t, int32(4), calls.Load(), "initial call plus three scheduled retries")
}

func TestClient_Get_ServerErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Klines(context.Background(), "BTCUSDT", models.TF1m, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestion)
	assert.Equal(t, int32(1), calls.Load(), "only 429 responses are retried")
}

func TestClient_Get_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Klines(ctx, "BTCUSDT", models.TF1m, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIngestion)
}
