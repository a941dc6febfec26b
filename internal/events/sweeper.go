package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/pkg/models"
)

const (
	// DefaultMinTriggerGap spaces out event-triggered sweeps; a failing
	// sweep emits the very events that trigger it
	DefaultMinTriggerGap = 30 * time.Second

	// one run stops after this many full batches; the next tick continues
	maxBatchesPerRun = 20
)

// Reembedder embeds chunks whose embedding is missing, failed or stale
type Reembedder interface {
	Reembed(ctx context.Context, limit int) (*knowledgebase.SweepReport, error)
}

// Sweeper re-embeds chunks on a timer and on demand
type Sweeper struct {
	target    Reembedder
	interval  time.Duration
	batchSize int
	minGap    time.Duration
	trigger   chan struct{}
	logger    *slog.Logger

	mu        sync.Mutex
	lastSweep time.Time
}

func NewSweeper(target Reembedder, interval time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = knowledgebase.DefaultConfig().SweepBatchSize
	}
	return &Sweeper{
		target:    target,
		interval:  interval,
		batchSize: batchSize,
		minGap:    DefaultMinTriggerGap,
		trigger:   make(chan struct{}, 1),
		logger:    logger.With("component", "sweeper"),
	}
}

// SetMinTriggerGap overrides DefaultMinTriggerGap
func (s *Sweeper) SetMinTriggerGap(d time.Duration) {
	s.minGap = d
}

// Trigger requests a sweep without blocking. Requests made while one is
// pending are coalesced.
func (s *Sweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// EmbeddingFailedHandler triggers a sweep for each embedding failure event
func (s *Sweeper) EmbeddingFailedHandler() EventHandler {
	return sweepTrigger{s}
}

type sweepTrigger struct{ s *Sweeper }

func (t sweepTrigger) Handle(context.Context, models.KnowledgeEvent) error {
	t.s.Trigger()
	return nil
}

func (sweepTrigger) GetName() string { return "sweep-trigger" }

// Run sweeps once, then on every tick and trigger until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	s.SweepOnce(ctx)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-tick:
			s.SweepOnce(ctx)
		case <-s.trigger:
			if s.sinceLastSweep() < s.minGap {
				s.logger.Debug("sweep trigger ignored, last sweep too recent")
				continue
			}
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs batches until one comes back short or embeds nothing
func (s *Sweeper) SweepOnce(ctx context.Context) knowledgebase.SweepReport {
	defer func() {
		s.mu.Lock()
		s.lastSweep = time.Now()
		s.mu.Unlock()
	}()

	var total knowledgebase.SweepReport
	for i := 0; i < maxBatchesPerRun; i++ {
		report, err := s.target.Reembed(ctx, s.batchSize)
		if report != nil {
			total.Scanned += report.Scanned
			total.Embedded += report.Embedded
			total.Failed += report.Failed
		}
		if err != nil {
			s.logger.Error("re-embed sweep failed", "error", err)
			break
		}
		if report.Scanned < s.batchSize || report.Embedded == 0 {
			break
		}
	}
	return total
}

func (s *Sweeper) sinceLastSweep() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSweep)
}
