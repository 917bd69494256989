package exchange

import (
	"context"
	"log/slog"
	"time"

	"watcher/internal/config"
	"watcher/internal/model"
)

var defaultStubSymbols = []string{"BTCUSDT", "ETHUSDT", "XYZUSDT"}

// StubClient emits deterministic synthetic tickers for offline runs. Every
// symbol trades a steady volume per interval; once every spikeEvery intervals
// a single interval carries four minutes' worth of volume at an unchanged price.
type StubClient struct {
	logger     *slog.Logger
	symbols    []string
	interval   time.Duration
	spikeEvery int
	now        func() time.Time
}

// NewStubClient creates a new StubClient.
func NewStubClient(logger *slog.Logger, cfg config.FeedConfig) *StubClient {
	symbols := cfg.Pairs
	if len(symbols) == 0 {
		symbols = defaultStubSymbols
	}
	interval := cfg.StubInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &StubClient{
		logger:     logger,
		symbols:    symbols,
		interval:   interval,
		spikeEvery: 600,
		now:        time.Now,
	}
}

func (s *StubClient) GetName() string {
	return "stub"
}

// StartStream pushes one batch per interval until ctx is cancelled.
func (s *StubClient) StartStream(ctx context.Context, tickChan chan<- []model.Tick) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cumulative := make([]float64, len(s.symbols))
	s.logger.Info("StubClient: streaming synthetic tickers", "symbols", s.symbols, "interval", s.interval)

	for step := 1; ; step++ {
		select {
		case <-ctx.Done():
			s.logger.Info("StubClient: context cancelled, shutting down")
			return nil
		case <-ticker.C:
		}

		batch := s.batch(step, cumulative)
		select {
		case tickChan <- batch:
		case <-ctx.Done():
			s.logger.Info("StubClient: context cancelled while sending batch")
			return nil
		}
	}
}

func (s *StubClient) batch(step int, cumulative []float64) []model.Tick {
	ts := s.now().UnixMilli()
	batch := make([]model.Tick, len(s.symbols))
	for i, sym := range s.symbols {
		price := 50.0 + float64(i)*10
		volume := 1000.0 + float64(i)*100
		if s.spikeEvery > 0 && step%s.spikeEvery == 0 {
			volume *= 4 * s.intervalsPerMinute()
		}
		cumulative[i] += volume
		batch[i] = model.Tick{
			Symbol:           sym,
			Price:            price,
			CumulativeVolume: cumulative[i],
			EventTime:        ts,
		}
	}
	return batch
}

func (s *StubClient) intervalsPerMinute() float64 {
	n := float64(time.Minute / s.interval)
	if n < 1 {
		return 1
	}
	return n
}
