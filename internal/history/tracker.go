// Package history keeps the ledger of emitted signals and tracks how price
// moved after each one.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"watcher/internal/config"
	"watcher/internal/metrics"
	"watcher/internal/model"
)

// Milestones after which the then-current price is frozen into the outcome.
const (
	milestone15m = 15
	milestone30m = 30
	milestone60m = 60
)

// PriceSource returns the latest known price for a symbol.
type PriceSource interface {
	LatestPrice(symbol string) (float64, bool)
}

// Publisher delivers messages to subscribers.
type Publisher interface {
	Publish(msg model.Message) int
}

// Tracker owns the in-memory ledger. The slice is guarded by mu; saveMu
// orders writes so an older snapshot never lands after a newer one.
type Tracker struct {
	logger  *slog.Logger
	ledger  LedgerStore
	prices  PriceSource
	metrics *metrics.Metrics

	interval     time.Duration
	recentWindow time.Duration
	winThreshold float64
	now          func() time.Time

	mu      sync.Mutex
	records []model.SignalRecord

	saveMu sync.Mutex
}

// NewTracker loads the ledger and returns a Tracker. A ledger that cannot be
// read is logged and the tracker starts empty.
func NewTracker(logger *slog.Logger, ledger LedgerStore, prices PriceSource, m *metrics.Metrics, cfg config.HistoryConfig) *Tracker {
	t := &Tracker{
		logger:       logger,
		ledger:       ledger,
		prices:       prices,
		metrics:      m,
		interval:     cfg.Interval,
		recentWindow: cfg.RecentWindow,
		winThreshold: cfg.WinThreshold,
		now:          time.Now,
	}

	records, err := ledger.Load()
	if err != nil {
		logger.Error("Tracker: failed to load signal ledger, starting empty", "error", err)
	}
	t.records = records
	logger.Info("Tracker: signal ledger loaded", "records", len(records))
	return t
}

// AddSignal appends a record with an empty outcome and persists the ledger.
func (t *Tracker) AddSignal(signal model.Signal) {
	t.mu.Lock()
	t.records = append(t.records, model.SignalRecord{
		Signal:     signal,
		RecordedAt: t.now().Unix(),
	})
	t.mu.Unlock()

	t.persist()
}

// UpdateOutcomes refreshes every open record against the latest price and
// persists the ledger if anything changed. It reports whether it did.
func (t *Tracker) UpdateOutcomes() bool {
	nowMs := t.now().UnixMilli()
	changed := false

	t.mu.Lock()
	for i := range t.records {
		r := &t.records[i]
		if r.Outcome.PriceAt60m != nil {
			continue
		}
		price, ok := t.prices.LatestPrice(r.Signal.Symbol)
		if !ok {
			continue
		}
		if updateOutcome(r, price, nowMs, t.winThreshold) {
			changed = true
		}
	}
	t.mu.Unlock()

	if changed {
		t.persist()
	}
	return changed
}

// updateOutcome applies one observation. Milestone prices are set once,
// success only goes false to true and the max gain only grows.
func updateOutcome(r *model.SignalRecord, price float64, nowMs int64, winThreshold float64) bool {
	entry := r.Signal.Price
	if entry == 0 {
		return false
	}

	gain := (price - entry) / entry
	if r.Signal.SignalType == model.Short {
		gain = (entry - price) / entry
	}

	changed := false
	out := &r.Outcome
	if gain > out.MaxGainPercent {
		out.MaxGainPercent = gain
		changed = true
	}
	if gain > winThreshold && !out.Success {
		out.Success = true
		changed = true
	}

	elapsedMins := (nowMs - r.Signal.Timestamp) / 60_000
	for _, m := range []struct {
		after int64
		field **float64
	}{
		{milestone15m, &out.PriceAt15m},
		{milestone30m, &out.PriceAt30m},
		{milestone60m, &out.PriceAt60m},
	} {
		if elapsedMins >= m.after && *m.field == nil {
			p := price
			*m.field = &p
			changed = true
		}
	}
	return changed
}

// Stats summarises the whole ledger.
func (t *Tracker) Stats() model.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := len(t.records)
	if total == 0 {
		return model.Stats{TopGainer: "None"}
	}

	// Ties go to the latest record.
	wins := 0
	best := 0
	for i, r := range t.records {
		if r.Outcome.Success {
			wins++
		}
		if r.Outcome.MaxGainPercent >= t.records[best].Outcome.MaxGainPercent {
			best = i
		}
	}

	top := t.records[best]
	return model.Stats{
		TotalSignals: total,
		WinRate:      float64(wins) / float64(total) * 100,
		TopGainer:    fmt.Sprintf("%s %+.1f%%", top.Signal.Symbol, top.Outcome.MaxGainPercent*100),
	}
}

// RecentSignals returns the signals fired within the recent window, oldest first.
func (t *Tracker) RecentSignals() []model.Signal {
	cutoff := t.now().UnixMilli() - t.recentWindow.Milliseconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := make([]model.Signal, 0)
	for _, r := range t.records {
		if r.Signal.Timestamp > cutoff {
			recent = append(recent, r.Signal)
		}
	}
	return recent
}

// Records returns a copy of the full ledger.
func (t *Tracker) Records() []model.SignalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.records)
}

// Run records signals arriving on msgs and reconciles outcomes every interval,
// publishing fresh stats after a pass that changed the ledger. It saves once
// more before returning.
func (t *Tracker) Run(ctx context.Context, msgs <-chan model.Message, pub Publisher) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.reconcile(pub)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Tracker: stopping")
			t.persist()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				t.persist()
				return nil
			}
			if msg.Type == model.MessageSignal && msg.Signal != nil {
				t.AddSignal(*msg.Signal)
			}
		case <-ticker.C:
			t.reconcile(pub)
		}
	}
}

func (t *Tracker) reconcile(pub Publisher) {
	if t.UpdateOutcomes() {
		pub.Publish(model.NewStatsMessage(t.Stats()))
	}
}

func (t *Tracker) persist() {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	snapshot := t.Records()
	err := t.ledger.Save(snapshot)
	t.metrics.RecordLedgerWrite(err)
	if err != nil {
		t.logger.Error("Tracker: failed to persist signal ledger", "records", len(snapshot), "error", err)
	}
}
