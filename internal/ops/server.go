// Package ops serves the operational HTTP surface: health and metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/metrics"
	"github.com/sawpanic/surgewatch/internal/models"
	"github.com/sawpanic/surgewatch/internal/signal"
	"github.com/sawpanic/surgewatch/internal/stream"
)

// Config holds ops server settings.
type Config struct {
	Addr            string        // listen address
	ReadTimeout     time.Duration // per-request read deadline
	WriteTimeout    time.Duration // per-request write deadline
	ShutdownTimeout time.Duration // graceful drain window
}

// DefaultConfig returns production ops server settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// signalWindow is the candle count fetched for on-demand signal requests.
const signalWindow = 100

// Server exposes /health, /streams, /signal/{symbol}, and /metrics.
type Server struct {
	cfg     Config
	manager *stream.Manager
	srv     *http.Server
}

// NewServer builds the ops server around the stream manager and metrics
// registry.
func NewServer(cfg Config, manager *stream.Manager, mtr *metrics.Registry) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	s := &Server{cfg: cfg, manager: manager}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/streams", s.handleStreams).Methods(http.MethodGet)
	r.HandleFunc("/signal/{symbol}", s.handleSignal).Methods(http.MethodGet)
	r.Handle("/metrics", mtr.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops server failed")
		}
	}()
}

// Shutdown drains in-flight requests within the configured window.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStreams reports the reconnection state of every websocket stream.
func (s *Server) handleStreams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ConnectionStates())
}

// handleSignal runs the indicator pipeline for one symbol on 1h candles
// and returns the resulting trading signal.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	candles, err := s.manager.GetCandles(r.Context(), symbol, models.TF1h, signalWindow)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	ind, err := signal.ComputeIndicators(candles)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, signal.ErrInsufficientData) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	chartPatterns, err := signal.DetectChartPatterns(candles, ind)
	if err != nil {
		chartPatterns = nil
	}
	candlePatterns := signal.DetectCandlestickPatterns(candles)

	price := candles[len(candles)-1].Close
	writeJSON(w, http.StatusOK, signal.GenerateTradingSignal(price, ind, chartPatterns, candlePatterns))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("ops response encode failed")
	}
}
