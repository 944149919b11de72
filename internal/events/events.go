// Package events delivers committed pool events to journals and observers.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pegpool/internal/model"
	"pegpool/internal/storage"
)

// FailureObserver is told when a sink drops a batch.
type FailureObserver interface {
	ObserveSinkFailure()
}

// Fanout forwards each batch to every sink in order. A failing sink is logged
// and skipped; the call that produced the events has already committed.
type Fanout struct {
	sinks    []storage.EventSink
	logger   *zap.Logger
	failures FailureObserver
}

func NewFanout(logger *zap.Logger, failures FailureObserver, sinks ...storage.EventSink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger, failures: failures}
}

func (f *Fanout) Emit(ctx context.Context, events []model.Event) {
	for _, event := range events {
		f.logger.Debug("event", zap.String("name", event.Name), zap.Uint64("ts", event.Timestamp), zap.Any("data", event.Data))
	}
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(events); err != nil {
			f.logger.Warn("event sink failed", zap.Int("events", len(events)), zap.Error(err))
			if f.failures != nil {
				f.failures.ObserveSinkFailure()
			}
		}
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *Recorder) Emit(ctx context.Context, events []model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *Recorder) PutEvents(events []model.Event) error {
	r.Emit(context.Background(), events)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names lists recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Name)
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
