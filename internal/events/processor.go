// Package events dispatches knowledge events read from the stream and runs
// the background re-embed sweeper.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deskmate/internal/audit"
	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/pkg/models"
)

// EventHandler reacts to one knowledge event
type EventHandler interface {
	Handle(ctx context.Context, event models.KnowledgeEvent) error
	GetName() string
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(ctx context.Context, event models.KnowledgeEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event models.KnowledgeEvent) error {
	return f(ctx, event)
}

func (f EventHandlerFunc) GetName() string { return "func" }

// ProcessorMetrics counts dispatched events
type ProcessorMetrics struct {
	EventsProcessed int64                      `json:"eventsProcessed"`
	EventsFailed    int64                      `json:"eventsFailed"`
	EventsIgnored   int64                      `json:"eventsIgnored"`
	EventsByType    map[models.EventType]int64 `json:"eventsByType"`
	LastProcessed   time.Time                  `json:"lastProcessed"`
}

// Processor routes knowledge events to the handlers registered for their
// type. Events without a handler are counted and dropped.
type Processor struct {
	handlers map[models.EventType][]EventHandler
	mu       sync.RWMutex

	metricsMu sync.Mutex
	metrics   ProcessorMetrics

	logger *slog.Logger
}

func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		handlers: make(map[models.EventType][]EventHandler),
		metrics:  ProcessorMetrics{EventsByType: make(map[models.EventType]int64)},
		logger:   logger.With("component", "event-processor"),
	}
}

// RegisterHandler registers a handler for an event type
func (p *Processor) RegisterHandler(eventType models.EventType, handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], handler)
}

// HandleMessage decodes a stream message and dispatches it. It matches
// kafka.HandlerFunc.
func (p *Processor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	event, err := audit.DecodeKnowledgeEvent(msg)
	if err != nil {
		p.recordEvent("", errors.New("undecodable"))
		return err
	}
	return p.HandleEvent(ctx, event)
}

// HandleEvent runs every handler for the event's type. All handlers run
// even when one fails.
func (p *Processor) HandleEvent(ctx context.Context, event models.KnowledgeEvent) error {
	p.mu.RLock()
	handlers := p.handlers[event.Type]
	p.mu.RUnlock()

	if len(handlers) == 0 {
		p.metricsMu.Lock()
		p.metrics.EventsIgnored++
		p.metricsMu.Unlock()
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			p.logger.Warn("event handler failed",
				"handler", handler.GetName(),
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	p.recordEvent(event.Type, err)
	if err != nil {
		return fmt.Errorf("handlers failed for %s: %w", event.Type, err)
	}
	return nil
}

func (p *Processor) recordEvent(eventType models.EventType, err error) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	p.metrics.LastProcessed = time.Now()
	if err != nil {
		p.metrics.EventsFailed++
		return
	}
	p.metrics.EventsProcessed++
	p.metrics.EventsByType[eventType]++
}

// Metrics returns a copy of the counters
func (p *Processor) Metrics() ProcessorMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	m := p.metrics
	m.EventsByType = make(map[models.EventType]int64, len(p.metrics.EventsByType))
	for k, v := range p.metrics.EventsByType {
		m.EventsByType[k] = v
	}
	return m
}
