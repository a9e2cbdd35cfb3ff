package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies run events
type EventType string

const (
	EventNodeEnter     EventType = "node_enter"
	EventNodeExit      EventType = "node_exit"
	EventNodeRecovered EventType = "node_recovered"
	EventNodeSkipped   EventType = "node_skipped"
	EventRoute         EventType = "route"
	EventStepComplete  EventType = "step_complete"
	EventCheckpoint    EventType = "checkpoint"
	EventRunComplete   EventType = "run_complete"
	EventRunError      EventType = "run_error"
)

// Event is a single observation from a graph run
type Event struct {
	Type    EventType
	Node    string
	Step    int
	Route   string
	Elapsed time.Duration
	Error   error
	// Metadata carries anything event specific, e.g. evidence counts
	Metadata map[string]any
}

// Observer receives run events. Implementations must be safe for
// concurrent use: node events are emitted from worker goroutines
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// MultiObserver fans events out to several observers
type MultiObserver []Observer

func (m MultiObserver) OnEvent(e Event) {
	for _, obs := range m {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

// LogObserver writes events as structured slog lines
type LogObserver struct {
	Logger *slog.Logger
}

func (o *LogObserver) OnEvent(e Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.Int("step", e.Step),
	}
	if e.Node != "" {
		attrs = append(attrs, slog.String("node", e.Node))
	}
	if e.Route != "" {
		attrs = append(attrs, slog.String("route", e.Route))
	}
	if e.Elapsed > 0 {
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	level := slog.LevelDebug
	switch e.Type {
	case EventRoute, EventRunComplete:
		level = slog.LevelInfo
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
		level = slog.LevelWarn
	}

	logger.LogAttrs(context.Background(), level, "graph", attrs...)
}

// TraceCollector keeps events in memory for inspection after a run
type TraceCollector struct {
	mu     sync.Mutex
	events []Event
}

func (t *TraceCollector) OnEvent(e Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Events returns a copy of all collected events
func (t *TraceCollector) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// EventsOfType returns only events matching typ
func (t *TraceCollector) EventsOfType(typ EventType) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Event
	for _, e := range t.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Visited returns the names of nodes that exited, in event order
func (t *TraceCollector) Visited() []string {
	var out []string
	for _, e := range t.EventsOfType(EventNodeExit) {
		out = append(out, e.Node)
	}
	return out
}

func emit(obs Observer, e Event) {
	if obs != nil {
		obs.OnEvent(e)
	}
}
