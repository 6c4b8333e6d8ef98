package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/scraper/internal/core/domain"
)

// TipReader exposes the chain tip height, usually backed by the chain's
// shared provider handle.
type TipReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

const defaultUpdateInterval = 10 * time.Second

// Updater periodically reports one chain's health and progress. One updater
// runs per configured chain, in the same supervised group as the chain's sync
// tasks.
type Updater struct {
	domain   domain.Domain
	tip      TipReader
	interval time.Duration
	log      *slog.Logger
}

// NewUpdater creates a metrics updater for one chain.
func NewUpdater(d domain.Domain, tip TipReader, interval time.Duration, log *slog.Logger) *Updater {
	if interval <= 0 {
		interval = defaultUpdateInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Updater{
		domain:   d,
		tip:      tip,
		interval: interval,
		log:      log,
	}
}

// Run publishes chain metrics until the context is cancelled. Transient RPC
// failures are logged and retried on the next tick rather than terminating
// the task.
func (u *Updater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tip, err := u.tip.LatestBlock(ctx)
			if err != nil {
				u.log.Warn("failed to read chain tip", "error", err)
				continue
			}
			ChainLatestBlock.WithLabelValues(u.domain.Name).Set(float64(tip))
			u.log.Debug("updated chain metrics", "tip", tip)
		}
	}
}
