// Package sink forwards bus messages to external systems.
package sink

import (
	"context"
	"log/slog"
	"time"

	"watcher/internal/metrics"
	"watcher/internal/model"
)

const defaultHandleTimeout = 5 * time.Second

// Sink receives every message published on the bus and keeps the ones it
// cares about.
type Sink interface {
	Name() string
	Handle(ctx context.Context, msg model.Message) error
}

// Dispatcher feeds bus messages to a set of sinks. A failing sink is logged
// and counted; it never stops the others.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	sinks   []Sink
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		metrics: m,
		sinks:   sinks,
		timeout: defaultHandleTimeout,
	}
}

// Len returns the number of sinks.
func (d *Dispatcher) Len() int {
	return len(d.sinks)
}

// Run delivers messages until ctx is done or msgs is closed.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan model.Message) error {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	d.logger.Info("Dispatcher: started", "sinks", names)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			d.dispatch(ctx, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg model.Message) {
	for _, s := range d.sinks {
		hctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Handle(hctx, msg)
		cancel()
		if err != nil {
			d.metrics.RecordSinkError(s.Name())
			d.logger.Warn("Dispatcher: sink failed to handle message", "sink", s.Name(), "type", msg.Type, "error", err)
		}
	}
}
