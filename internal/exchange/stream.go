package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	readLimit    = 8 << 20
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
	writeWait    = 5 * time.Second
)

// session runs one connection until it fails. connected reports whether the
// connection was established, which resets the reconnect backoff.
type session func(ctx context.Context) (connected bool, err error)

func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 16 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// runWithReconnect keeps running fn until ctx is done, waiting 1s, 2s, 4s ...
// up to 16s between failed attempts.
func runWithReconnect(ctx context.Context, logger *slog.Logger, name string, fn session) error {
	bo := newReconnectBackOff()
	for {
		if ctx.Err() != nil {
			logger.Info(name + ": context cancelled, shutting down")
			return nil
		}

		connected, err := fn(ctx)
		if ctx.Err() != nil {
			logger.Info(name + ": context cancelled, shutting down")
			return nil
		}
		if connected {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		logger.Error(name+": stream interrupted, reconnecting", "error", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// dial connects and installs ping/pong read deadlines. The returned stop func
// ends the ping loop and closes the connection.
func dial(ctx context.Context, logger *slog.Logger, name, url string, handshakeTimeout time.Duration) (*websocket.Conn, func(), error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Binance pings the client; answering resets our own read deadline too.
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	pingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					logger.Warn(name+": ping failed", "error", err)
					return
				}
			}
		}
	}()

	// Unblock ReadMessage when ctx ends.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	return conn, cancel, nil
}
