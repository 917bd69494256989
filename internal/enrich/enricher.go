package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"watcher/internal/config"
	"watcher/internal/metrics"
	"watcher/internal/model"
)

// Enricher appends market context to a signal's reason.
// Lookups are best effort: failures are logged and skipped.
type Enricher struct {
	client          MarketDataClient
	logger          *slog.Logger
	metrics         *metrics.Metrics
	depthLimit      int
	strongWallRatio float64
	whaleNotional   float64
}

// NewEnricher creates an Enricher backed by client.
func NewEnricher(client MarketDataClient, cfg config.EnrichmentConfig, logger *slog.Logger, m *metrics.Metrics) *Enricher {
	return &Enricher{
		client:          client,
		logger:          logger,
		metrics:         m,
		depthLimit:      cfg.DepthLimit,
		strongWallRatio: cfg.StrongWallRatio,
		whaleNotional:   cfg.WhaleNotional,
	}
}

// Enrich annotates the signal in place. It always returns true: enrichment
// never suppresses a signal.
func (e *Enricher) Enrich(ctx context.Context, signal *model.Signal) bool {
	if book, err := e.client.Depth(ctx, signal.Symbol, e.depthLimit); err != nil {
		e.logger.Warn("Enricher: failed to fetch depth", "symbol", signal.Symbol, "error", err)
		e.metrics.RecordEnrichmentFailure("depth")
	} else {
		bidWall, askWall := Wall(book.Bids), Wall(book.Asks)
		e.logger.Info("Enricher: order book walls", "symbol", signal.Symbol, "bidWall", bidWall, "askWall", askWall)
		signal.Reason += e.wallAnnotation(signal.SignalType, bidWall, askWall)
	}

	if oi, err := e.client.OpenInterest(ctx, signal.Symbol); err != nil {
		e.logger.Warn("Enricher: failed to fetch open interest", "symbol", signal.Symbol, "error", err)
		e.metrics.RecordEnrichmentFailure("open_interest")
	} else {
		notionalM := oi.Value * signal.Price / 1_000_000
		signal.Reason += fmt.Sprintf(" | OI: $%.1fM", notionalM)
		e.logger.Info("Enricher: open interest", "symbol", signal.Symbol, "notionalMillions", notionalM)
	}

	if signal.Volume*signal.Price > e.whaleNotional {
		signal.Reason += " | 🐋 Whale Active"
	}

	return true
}

// wallAnnotation compares the wall on the signal's side with the opposing one.
func (e *Enricher) wallAnnotation(dir model.Direction, bidWall, askWall float64) string {
	var ratio float64
	label := "Strong Sell Wall"
	if dir == model.Long {
		label = "Strong Buy Wall"
		if askWall > 0 {
			ratio = bidWall / askWall
		}
	} else if bidWall > 0 {
		ratio = askWall / bidWall
	}

	if ratio > e.strongWallRatio {
		return fmt.Sprintf(" | %s (x%.1f)", label, ratio)
	}
	return fmt.Sprintf(" | Moderate Wall (x%.1f)", ratio)
}

// Wall sums the resting quantity across levels.
func Wall(levels []model.PriceQty) float64 {
	var sum float64
	for _, lvl := range levels {
		sum += lvl.Qty
	}
	return sum
}
