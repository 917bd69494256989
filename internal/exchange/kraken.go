package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"watcher/internal/config"
	"watcher/internal/model"
)

// KrakenStreamURL is Kraken's public websocket endpoint.
const KrakenStreamURL = "wss://ws.kraken.com"

// KrakenClient implements the FeedClient interface for Kraken spot tickers.
// The 24h rolling volume stands in for the cumulative counter.
type KrakenClient struct {
	logger           *slog.Logger
	url              string
	pairs            []string
	handshakeTimeout time.Duration
	now              func() time.Time
}

// NewKrakenClient creates a new KrakenClient.
func NewKrakenClient(logger *slog.Logger, cfg config.FeedConfig) (*KrakenClient, error) {
	if len(cfg.Pairs) == 0 {
		return nil, errors.New("kraken feed requires at least one pair")
	}
	url := cfg.URL
	if url == "" {
		url = KrakenStreamURL
	}
	return &KrakenClient{
		logger:           logger,
		url:              url,
		pairs:            cfg.Pairs,
		handshakeTimeout: cfg.HandshakeTimeout,
		now:              time.Now,
	}, nil
}

func (k *KrakenClient) GetName() string {
	return "kraken"
}

type krakenTicker struct {
	Close  []string `json:"c"`
	Volume []string `json:"v"`
}

// StartStream connects to the Kraken WebSocket API and streams ticker updates.
func (k *KrakenClient) StartStream(ctx context.Context, tickChan chan<- []model.Tick) error {
	return runWithReconnect(ctx, k.logger, "KrakenClient", func(ctx context.Context) (bool, error) {
		k.logger.Info("KrakenClient: connecting to WebSocket", "url", k.url)
		conn, stop, err := dial(ctx, k.logger, "KrakenClient", k.url, k.handshakeTimeout)
		if err != nil {
			return false, fmt.Errorf("dial: %w", err)
		}
		defer stop()

		subscription := map[string]any{
			"event":        "subscribe",
			"pair":         k.pairs,
			"subscription": map[string]string{"name": "ticker"},
		}
		if err := conn.WriteJSON(subscription); err != nil {
			return true, fmt.Errorf("subscribe: %w", err)
		}
		k.logger.Info("KrakenClient: subscription sent successfully", "pairs", k.pairs)

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return true, fmt.Errorf("read: %w", err)
			}

			tick, ok, err := parseKrakenTicker(message, k.now())
			if err != nil {
				k.logger.Warn("KrakenClient: failed to parse message", "error", err)
				continue
			}
			if !ok {
				continue
			}

			select {
			case tickChan <- []model.Tick{tick}:
				k.logger.Debug("KrakenClient: sent tick", "symbol", tick.Symbol, "price", tick.Price)
			case <-ctx.Done():
				return true, ctx.Err()
			}
		}
	})
}

// parseKrakenTicker decodes [channelID, {ticker}, "ticker", "XBT/USD"].
// Event objects (heartbeats, subscription status) report ok == false.
func parseKrakenTicker(data []byte, now time.Time) (model.Tick, bool, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return model.Tick{}, false, nil
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return model.Tick{}, false, err
	}
	if len(frame) < 4 {
		return model.Tick{}, false, fmt.Errorf("unexpected frame length %d", len(frame))
	}

	var channel, pair string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil {
		return model.Tick{}, false, fmt.Errorf("decode channel name: %w", err)
	}
	if channel != "ticker" {
		return model.Tick{}, false, nil
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil {
		return model.Tick{}, false, fmt.Errorf("decode pair: %w", err)
	}

	var t krakenTicker
	if err := json.Unmarshal(frame[1], &t); err != nil {
		return model.Tick{}, false, fmt.Errorf("decode ticker: %w", err)
	}

	tick := model.Tick{
		Symbol:    strings.ReplaceAll(pair, "/", ""),
		EventTime: now.UnixMilli(),
	}
	if len(t.Close) > 0 {
		tick.Price = model.ParseNumber(t.Close[0])
	}
	if len(t.Volume) > 1 {
		tick.CumulativeVolume = model.ParseNumber(t.Volume[1])
	}
	return tick, true, nil
}
