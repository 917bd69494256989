package exchange

import (
	"fmt"
	"log/slog"

	"watcher/internal/config"
)

// NewClient creates a new feed client based on the configured exchange.
func NewClient(logger *slog.Logger, cfg config.FeedConfig) (FeedClient, error) {
	switch cfg.Exchange {
	case "binance":
		return NewBinanceClient(logger, cfg), nil
	case "kraken":
		client, err := NewKrakenClient(logger, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "stub":
		return NewStubClient(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", cfg.Exchange)
	}
}
