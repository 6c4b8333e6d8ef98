// Package storage defines the persistence interfaces the sync tasks depend on.
package storage

import (
	"context"

	"github.com/vietddude/scraper/internal/core/domain"
)

// EventStore is a database accessor scoped to one chain's mailbox contract.
// All Store methods are idempotent upserts: refetching an already-persisted
// record must not duplicate state downstream.
type EventStore interface {
	// LastMessageNonce returns the highest persisted dispatch nonce for the
	// scoped chain, or nil when no messages exist yet.
	LastMessageNonce(ctx context.Context) (*uint64, error)

	StoreDispatchedMessages(ctx context.Context, msgs []domain.Message) (int, error)
	StoreDeliveries(ctx context.Context, deliveries []domain.Delivery) (int, error)
	StoreGasPayments(ctx context.Context, payments []domain.GasPayment) (int, error)
}
