// Package history exports supervisor lifecycle events to external sinks.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventAdded     EventType = "added"
	EventStarted   EventType = "started"
	EventStopped   EventType = "stopped"
	EventRestarted EventType = "restarted"
	EventExited    EventType = "exited"
	EventErrored   EventType = "errored"
	EventUpdated   EventType = "updated"
	EventDeleted   EventType = "deleted"
)

// Event is one lifecycle transition of a supervised process.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	ProcessID  int64     `json:"processId"`
	Name       string    `json:"name"`
	PID        int       `json:"pid,omitempty"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exitCode,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType, processID int64, name string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ProcessID:  processID,
		Name:       name,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Exporter forwards events to sinks from a single background goroutine so
// a slow sink never blocks the supervisor. When the buffer is full new
// events are dropped and counted.
type Exporter struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
	ch      chan Event

	mu      sync.Mutex
	dropped int
	closed  bool
	done    chan struct{}
}

func NewExporter(log *slog.Logger, buffer int, sinks ...Sink) *Exporter {
	if buffer <= 0 {
		buffer = 256
	}
	x := &Exporter{
		sinks:   sinks,
		log:     log.With("component", "history"),
		timeout: 5 * time.Second,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go x.run()
	return x
}

// Export queues e for every sink.
func (x *Exporter) Export(e Event) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || len(x.sinks) == 0 {
		return
	}
	select {
	case x.ch <- e:
	default:
		x.dropped++
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (x *Exporter) Dropped() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.dropped
}

func (x *Exporter) run() {
	defer close(x.done)
	for e := range x.ch {
		for _, s := range x.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
			if err := s.Send(ctx, e); err != nil {
				x.log.Warn("history sink send failed", "event", e.Type, "id", e.ProcessID, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events, waiting until ctx is done, then closes every
// sink that implements io.Closer.
func (x *Exporter) Close(ctx context.Context) error {
	x.mu.Lock()
	if !x.closed {
		x.closed = true
		close(x.ch)
	}
	x.mu.Unlock()
	select {
	case <-x.done:
	case <-ctx.Done():
	}
	for _, s := range x.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	return ctx.Err()
}
