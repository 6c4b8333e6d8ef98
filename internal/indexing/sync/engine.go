// Package sync implements the indefinite per-(chain, event) sync loop: ask
// the cursor for the next fetch window, pull and persist the events in it,
// advance the cursor, repeat.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/scraper/internal/core/cursor"
	"github.com/vietddude/scraper/internal/core/domain"
	"github.com/vietddude/scraper/internal/indexing/metrics"
	"github.com/vietddude/scraper/internal/infra/rpc"
)

// Source fetches, decodes, and persists one event category for one chain.
type Source interface {
	// LatestBlock returns the chain tip, used for cursor pacing.
	LatestBlock(ctx context.Context) (uint64, error)

	// FetchRange pulls the events inside r and persists them. It returns the
	// record count and the highest cursor-space position actually stored.
	// Persisting must be idempotent: windows overlap on restart.
	FetchRange(ctx context.Context, r cursor.Range) (stored int, last uint64, err error)
}

// DeadLetter records fetch windows the engine gave up on.
type DeadLetter interface {
	Record(ctx context.Context, chain, event string, r cursor.Range, cause error) error
}

// Config assembles one sync engine. Values are captured at construction time;
// the running task reads no shared mutable state.
type Config struct {
	Domain domain.Domain
	Label  domain.EventLabel
	Source Source
	Cursor cursor.Cursor

	// Interval is the wait between polls when the cursor has nothing to do.
	Interval time.Duration

	Retry rpc.RetryConfig

	// DeadLetter may be nil; without it every exhausted window is fatal.
	DeadLetter DeadLetter

	Logger *slog.Logger
}

// ContractSync runs the sync loop for one (chain, event) stream.
type ContractSync struct {
	cfg Config
	log *slog.Logger
}

// New creates a sync engine. The logger is labeled with the chain name and
// event label so every diagnostic the task emits is attributable.
func New(cfg Config) *ContractSync {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = rpc.DefaultRetryConfig
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &ContractSync{
		cfg: cfg,
		log: log.With("chain", cfg.Domain.Name, "event", string(cfg.Label)),
	}
}

// Run executes the sync loop until the context is cancelled or an
// unrecoverable error occurs. It never returns nil while the context lives.
func (s *ContractSync) Run(ctx context.Context) error {
	s.log.Info("sync task started", "position", s.cfg.Cursor.Position(), "cursor", string(s.cfg.Cursor.Kind()))

	chainLabel := s.cfg.Domain.Name
	eventLabel := string(s.cfg.Label)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tip, err := s.latestBlock(ctx)
		if err != nil {
			return fmt.Errorf("read chain tip: %w", err)
		}

		rng, ready := s.cfg.Cursor.Next(tip)
		if !ready {
			if err := s.wait(ctx); err != nil {
				return err
			}
			continue
		}

		stored, last, err := s.fetchRange(ctx, rng)
		if err != nil {
			metrics.SyncErrors.WithLabelValues(chainLabel, eventLabel).Inc()

			// Rate-limited streams may record the window and move on; a
			// forward-sequential stream can never skip without losing data.
			if s.cfg.DeadLetter != nil && s.cfg.Cursor.Kind() == cursor.KindRateLimited {
				s.log.Error("recording failed window to dead letter",
					"from", rng.From, "to", rng.To, "error", err)
				if dlErr := s.cfg.DeadLetter.Record(ctx, chainLabel, eventLabel, rng, err); dlErr != nil {
					return fmt.Errorf("dead-letter record failed: %w", dlErr)
				}
				metrics.DeadLetteredRanges.WithLabelValues(chainLabel, eventLabel).Inc()
				s.cfg.Cursor.MarkSynced(rng, 0, 0)
				continue
			}
			return fmt.Errorf("sync window [%d, %d]: %w", rng.From, rng.To, err)
		}

		s.cfg.Cursor.MarkSynced(rng, last, stored)
		metrics.CursorPosition.WithLabelValues(chainLabel, eventLabel).Set(float64(s.cfg.Cursor.Position()))

		if stored > 0 {
			metrics.StoredEvents.WithLabelValues(chainLabel, eventLabel).Add(float64(stored))
			s.log.Debug("stored events", "count", stored, "from", rng.From, "to", rng.To)
		}
	}
}

func (s *ContractSync) latestBlock(ctx context.Context) (uint64, error) {
	var tip uint64
	err := rpc.WithRetry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		tip, err = s.cfg.Source.LatestBlock(ctx)
		return err
	})
	return tip, err
}

func (s *ContractSync) fetchRange(ctx context.Context, rng cursor.Range) (int, uint64, error) {
	var stored int
	var last uint64
	err := rpc.WithRetry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		stored, last, err = s.cfg.Source.FetchRange(ctx, rng)
		return err
	})
	return stored, last, err
}

func (s *ContractSync) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Interval):
		return nil
	}
}
