package exchange

import (
	"context"

	"watcher/internal/model"
)

// FeedClient defines the standard interface for all market data feeds.
// StartStream blocks, reconnecting as needed, until ctx is cancelled.
type FeedClient interface {
	GetName() string
	StartStream(ctx context.Context, tickChan chan<- []model.Tick) error
}
