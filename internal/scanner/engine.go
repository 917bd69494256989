package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"watcher/internal/config"
	"watcher/internal/detector"
	"watcher/internal/metrics"
	"watcher/internal/model"
	"watcher/internal/store"
)

const minuteMs = int64(time.Minute / time.Millisecond)

// Enricher augments a signal before it is published. Returning false
// suppresses the signal.
type Enricher interface {
	Enrich(ctx context.Context, signal *model.Signal) bool
}

// Publisher delivers messages to subscribers.
type Publisher interface {
	Publish(msg model.Message) int
}

type baseline struct {
	volume float64
	minute int64
}

// Engine turns raw ticks into minute buckets and runs live detection on the
// in-progress minute. ProcessTick must be called from a single goroutine;
// enrichment runs on its own goroutines.
type Engine struct {
	logger    *slog.Logger
	store     *store.Store
	detector  *detector.Detector
	enricher  Enricher
	publisher Publisher
	metrics   *metrics.Metrics

	cooldownMs     int64
	updateThrottle int64
	updateWindow   int64
	enrichTimeout  time.Duration
	newID          func() string

	baselines  map[string]baseline
	lastUpdate map[string]int64

	wg sync.WaitGroup
}

// NewEngine creates a new Engine. A nil enricher publishes signals unchanged.
func NewEngine(logger *slog.Logger, st *store.Store, det *detector.Detector, enricher Enricher, pub Publisher, m *metrics.Metrics, cfg *config.Config) *Engine {
	return &Engine{
		logger:         logger,
		store:          st,
		detector:       det,
		enricher:       enricher,
		publisher:      pub,
		metrics:        m,
		cooldownMs:     det.Params().Cooldown.Milliseconds(),
		updateThrottle: cfg.Detector.UpdateThrottle.Milliseconds(),
		updateWindow:   cfg.Detector.UpdateWindow.Milliseconds(),
		enrichTimeout:  cfg.Enrichment.Timeout,
		newID:          uuid.NewString,
		baselines:      make(map[string]baseline),
		lastUpdate:     make(map[string]int64),
	}
}

// Run consumes tick batches until ctx is done or ticks is closed.
func (e *Engine) Run(ctx context.Context, ticks <-chan []model.Tick) error {
	e.logger.Info("Scanner: engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Scanner: engine stopping", "symbols", e.store.Len())
			return nil
		case batch, ok := <-ticks:
			if !ok {
				e.logger.Info("Scanner: tick channel closed")
				return nil
			}
			for _, tick := range batch {
				e.ProcessTick(ctx, tick)
			}
		}
	}
}

// Wait blocks until every in-flight enrichment has published.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ProcessTick folds one tick into the symbol's minute bucket.
func (e *Engine) ProcessTick(ctx context.Context, tick model.Tick) {
	e.metrics.RecordTick()

	minute := tick.EventTime / minuteMs
	base, ok := e.baselines[tick.Symbol]
	if !ok {
		e.baselines[tick.Symbol] = baseline{volume: tick.CumulativeVolume, minute: minute}
		e.store.Ensure(tick.Symbol)
		return
	}

	point := model.BucketPoint{
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Volume:    VolumeDelta(tick.CumulativeVolume, base.volume),
		Timestamp: tick.EventTime,
	}

	if minute > base.minute {
		if e.store.Append(point) {
			e.metrics.RecordBucket()
		}
		e.baselines[tick.Symbol] = baseline{volume: tick.CumulativeVolume, minute: minute}
		return
	}

	state, _ := e.store.Get(tick.Symbol)
	if signal := e.detector.Detect(state, point, tick.TakerBuyVolume); signal != nil {
		e.dispatch(ctx, *signal)
		return
	}
	e.maybeUpdate(state, point)
}

// VolumeDelta is the volume traded since the baseline snapshot. A counter that
// went backwards was reset, so the whole current value counts.
func VolumeDelta(cumulative, base float64) float64 {
	if cumulative >= base {
		return cumulative - base
	}
	return cumulative
}

func (e *Engine) dispatch(ctx context.Context, signal model.Signal) {
	// A signal enriching on another goroutine may already hold the cooldown.
	if !e.store.ClaimSignal(signal.Symbol, signal.Timestamp, e.cooldownMs) {
		return
	}

	signal.ID = e.newID()
	e.metrics.RecordSignalDetected(string(signal.SignalType))
	e.logger.Info("Scanner: silent watcher signal detected",
		"id", signal.ID,
		"symbol", signal.Symbol,
		"direction", signal.SignalType,
		"price", signal.Price,
		"volume", signal.Volume,
		"avgVolume", signal.AvgVolume,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		enrichCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.enrichTimeout)
		defer cancel()

		if e.enricher != nil && !e.enricher.Enrich(enrichCtx, &signal) {
			e.logger.Info("Scanner: signal suppressed by enrichment", "id", signal.ID, "symbol", signal.Symbol)
			return
		}

		delivered := e.publisher.Publish(model.NewSignalMessage(signal))
		e.metrics.RecordSignalPublished()
		e.logger.Debug("Scanner: signal published", "id", signal.ID, "subscribers", delivered)
	}()
}

func (e *Engine) maybeUpdate(state store.SymbolState, point model.BucketPoint) {
	if !state.HasSignal || point.Timestamp-state.LastSignalTime >= e.updateWindow {
		return
	}
	if point.Timestamp-e.lastUpdate[point.Symbol] <= e.updateThrottle {
		return
	}

	e.publisher.Publish(model.NewUpdateMessage(model.SignalUpdate{
		Symbol:    point.Symbol,
		Price:     point.Price,
		Volume:    point.Volume,
		Timestamp: point.Timestamp,
	}))
	e.lastUpdate[point.Symbol] = point.Timestamp
	e.metrics.RecordUpdatePublished()
}
