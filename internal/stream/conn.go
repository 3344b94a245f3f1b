package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	writeTimeout     = 5 * time.Second
)

// streamConn owns one WebSocket connection identified by a stable key
// ("combined_ticker", "kline_BTCUSDT_5m", ...). It dials, pumps messages to
// its handler in arrival order, and reconnects with the per-key backoff
// policy. Once the retry budget is exhausted the connection goes dormant
// until a TrackSymbols/Subscribe call re-arms the key.
type streamConn struct {
	key     string
	url     string
	handler func(message []byte)
	backoff *backoffTracker
	onDown  func(key string)

	cancel context.CancelFunc
	done   chan struct{}
}

func newStreamConn(key, url string, backoff *backoffTracker, handler func([]byte)) *streamConn {
	return &streamConn{
		key:     key,
		url:     url,
		handler: handler,
		backoff: backoff,
		done:    make(chan struct{}),
	}
}

// start launches the connection loop. The connection stops when stop is
// called or the parent context ends.
func (sc *streamConn) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	sc.cancel = cancel
	go sc.run(ctx)
}

// stop tears the connection down and waits for the loop to exit.
func (sc *streamConn) stop() {
	if sc.cancel != nil {
		sc.cancel()
	}
	<-sc.done
}

func (sc *streamConn) run(ctx context.Context) {
	defer close(sc.done)

	for {
		if err := sc.connectAndRead(ctx); err == nil || ctx.Err() != nil {
			return
		}

		delay, ok := sc.backoff.Next(sc.key)
		if !ok {
			log.Error().
				Str("key", sc.key).
				Int("attempts", maxAttempts).
				Msg("stream down, retry budget exhausted")
			if sc.onDown != nil {
				sc.onDown(sc.key)
			}
			return
		}

		log.Warn().
			Str("key", sc.key).
			Dur("retry_in", delay).
			Msg("stream disconnected, scheduling reconnect")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connectAndRead dials once and reads until the connection drops. A nil
// return means the context ended; any error triggers the backoff path.
func (sc *streamConn) connectAndRead(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, sc.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sc.backoff.Success(sc.key)
	log.Info().Str("key", sc.key).Msg("stream connected")

	// Close the socket when the context ends so ReadMessage unblocks.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-readCtx.Done()
		conn.Close()
	}()

	go sc.pingLoop(readCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		sc.handler(message)
	}
}

func (sc *streamConn) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
