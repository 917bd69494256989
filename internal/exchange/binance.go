package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"watcher/internal/config"
	"watcher/internal/model"
)

// BinanceFuturesStreamURL is the all-symbols 24h ticker stream.
const BinanceFuturesStreamURL = "wss://fstream.binance.com/ws/!ticker@arr"

// BinanceClient implements the FeedClient interface for Binance USDⓈ-M futures.
type BinanceClient struct {
	logger           *slog.Logger
	url              string
	handshakeTimeout time.Duration
}

// NewBinanceClient creates a new BinanceClient.
func NewBinanceClient(logger *slog.Logger, cfg config.FeedConfig) *BinanceClient {
	url := cfg.URL
	if url == "" {
		url = BinanceFuturesStreamURL
	}
	return &BinanceClient{logger: logger, url: url, handshakeTimeout: cfg.HandshakeTimeout}
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

// binanceTicker is one element of a !ticker@arr frame. Fields that differ only
// in case ("e"/"E", "c"/"C", "q"/"Q") are all declared so encoding/json's
// case-insensitive matching cannot cross-assign them.
type binanceTicker struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	CloseTime   int64  `json:"C"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	LastQty     string `json:"Q"`
}

// StartStream connects to the Binance WebSocket API and streams ticker batches.
func (b *BinanceClient) StartStream(ctx context.Context, tickChan chan<- []model.Tick) error {
	return runWithReconnect(ctx, b.logger, "BinanceClient", func(ctx context.Context) (bool, error) {
		b.logger.Info("BinanceClient: connecting to WebSocket", "url", b.url)
		conn, stop, err := dial(ctx, b.logger, "BinanceClient", b.url, b.handshakeTimeout)
		if err != nil {
			return false, fmt.Errorf("dial: %w", err)
		}
		defer stop()
		b.logger.Info("BinanceClient: connected successfully")

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return true, fmt.Errorf("read: %w", err)
			}

			ticks, err := parseTickerBatch(message)
			if err != nil {
				b.logger.Warn("BinanceClient: failed to parse message", "error", err)
				continue
			}
			if len(ticks) == 0 {
				continue
			}

			select {
			case tickChan <- ticks:
				b.logger.Debug("BinanceClient: sent tick batch", "size", len(ticks))
			case <-ctx.Done():
				return true, ctx.Err()
			}
		}
	})
}

// parseTickerBatch decodes a ticker array. Unparseable numbers become 0; a
// frame that is not a ticker array is an error. The ticker stream carries no
// taker-buy split, so TakerBuyVolume is 0.
func parseTickerBatch(data []byte) ([]model.Tick, error) {
	var raw []binanceTicker
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	ticks := make([]model.Tick, 0, len(raw))
	for _, t := range raw {
		if t.Symbol == "" {
			continue
		}
		ticks = append(ticks, model.Tick{
			Symbol:           t.Symbol,
			Price:            model.ParseNumber(t.LastPrice),
			CumulativeVolume: model.ParseNumber(t.Volume),
			EventTime:        t.EventTime,
		})
	}
	return ticks, nil
}
