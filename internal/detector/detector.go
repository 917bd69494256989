// Package detector decides whether a symbol's current activity is an
// unusual, price-stable volume spike.
package detector

import (
	"fmt"
	"math"
	"time"

	"watcher/internal/config"
	"watcher/internal/model"
	"watcher/internal/store"
)

// Params are the detection thresholds. Notional values are in quote currency.
type Params struct {
	MinNotional        float64
	MinAvgNotional     float64
	DormantAvgNotional float64
	DormantRatio       float64
	SpikeRatio         float64
	MaxPriceChange     float64
	Cooldown           time.Duration
}

// DefaultParams returns the production thresholds.
func DefaultParams() Params {
	return Params{
		MinNotional:        10_000,
		MinAvgNotional:     50_000,
		DormantAvgNotional: 100_000,
		DormantRatio:       5,
		SpikeRatio:         3,
		MaxPriceChange:     0.008,
		Cooldown:           30 * time.Minute,
	}
}

// ParamsFromConfig maps the detector config section onto Params.
func ParamsFromConfig(cfg config.DetectorConfig) Params {
	return Params{
		MinNotional:        cfg.MinNotional,
		MinAvgNotional:     cfg.MinAvgNotional,
		DormantAvgNotional: cfg.DormantAvgNotional,
		DormantRatio:       cfg.DormantRatio,
		SpikeRatio:         cfg.SpikeRatio,
		MaxPriceChange:     cfg.MaxPriceChange,
		Cooldown:           cfg.Cooldown,
	}
}

// Detector evaluates candidates against a symbol's window. It has no side
// effects: recording the signal time and re-checking the cooldown under
// concurrency is the caller's job.
type Detector struct {
	params Params
}

// New creates a Detector.
func New(params Params) *Detector {
	return &Detector{params: params}
}

// Params returns the thresholds in use.
func (d *Detector) Params() Params {
	return d.params
}

// Detect returns a signal when candidate qualifies, nil otherwise.
// takerBuyVolume is the aggressive-buy share of candidate.Volume.
func (d *Detector) Detect(state store.SymbolState, candidate model.BucketPoint, takerBuyVolume float64) *model.Signal {
	p := d.params

	avgVolume := state.AverageVolume()

	currentValue := candidate.Volume * candidate.Price
	if currentValue < p.MinNotional {
		return nil
	}

	avgValue := avgVolume * candidate.Price
	if avgValue < p.MinAvgNotional {
		return nil
	}

	if state.HasSignal && candidate.Timestamp-state.LastSignalTime < p.Cooldown.Milliseconds() {
		return nil
	}

	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = candidate.Volume / avgVolume
	}

	lastClose := candidate.Price
	if last, ok := state.Last(); ok {
		lastClose = last.Price
	}
	priceChange := 0.0
	if lastClose != 0 {
		priceChange = math.Abs(candidate.Price-lastClose) / lastClose
	}

	dormantWakeup := avgValue < p.DormantAvgNotional && volumeRatio > p.DormantRatio
	activeSpike := volumeRatio > p.SpikeRatio
	if !(dormantWakeup || activeSpike) || priceChange >= p.MaxPriceChange {
		return nil
	}

	direction := model.Short
	if takerBuyVolume > candidate.Volume-takerBuyVolume {
		direction = model.Long
	}

	return &model.Signal{
		Symbol:     candidate.Symbol,
		SignalType: direction,
		Price:      candidate.Price,
		Volume:     candidate.Volume,
		AvgVolume:  avgVolume,
		Timestamp:  candidate.Timestamp,
		Reason: fmt.Sprintf("Silent Alert! Vol: %.1fx (Avg $%.0fk), Price stable (%.2f%%)",
			volumeRatio, avgValue/1000, priceChange*100),
	}
}
