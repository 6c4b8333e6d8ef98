package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vietddude/scraper/internal/core/domain"
)

// EventStore implements storage.EventStore using PostgreSQL, scoped to one
// chain's mailbox contract. Entries for the same (domain, mailbox) pair share
// the underlying pool; the scope only narrows queries.
type EventStore struct {
	db      *DB
	domain  domain.Domain
	mailbox string
}

// NewEventStore creates a mailbox-scoped event store.
func NewEventStore(db *DB, d domain.Domain, mailbox string) *EventStore {
	return &EventStore{db: db, domain: d, mailbox: mailbox}
}

// LastMessageNonce returns the highest persisted dispatch nonce, or nil when
// the chain has no messages yet.
func (s *EventStore) LastMessageNonce(ctx context.Context) (*uint64, error) {
	query := `
		SELECT MAX(nonce)
		FROM dispatched_messages
		WHERE origin_domain = $1 AND mailbox = $2
	`

	var last sql.NullInt64
	if err := s.db.GetContext(ctx, &last, query, s.domain.ID, s.mailbox); err != nil {
		return nil, fmt.Errorf("failed to get last message nonce: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}

	nonce := uint64(last.Int64)
	return &nonce, nil
}

// StoreDispatchedMessages upserts dispatched messages keyed by (origin_domain, nonce).
func (s *EventStore) StoreDispatchedMessages(ctx context.Context, msgs []domain.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO dispatched_messages
			(origin_domain, nonce, mailbox, sender, recipient, destination_domain, body, block_number, tx_hash, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (origin_domain, nonce) DO UPDATE SET
			sender = EXCLUDED.sender,
			recipient = EXCLUDED.recipient,
			destination_domain = EXCLUDED.destination_domain,
			body = EXCLUDED.body,
			block_number = EXCLUDED.block_number,
			tx_hash = EXCLUDED.tx_hash,
			dispatched_at = EXCLUDED.dispatched_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			m.OriginDomain,
			m.Nonce,
			s.mailbox,
			m.Sender,
			m.Recipient,
			m.DestinationDomain,
			m.Body,
			m.BlockNumber,
			m.TxHash,
			m.DispatchedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to store message nonce %d: %w", m.Nonce, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// StoreDeliveries upserts delivery records keyed by (domain, message_id, tx_hash).
func (s *EventStore) StoreDeliveries(ctx context.Context, deliveries []domain.Delivery) (int, error) {
	if len(deliveries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO deliveries (domain, message_id, block_number, tx_hash, delivered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain, message_id, tx_hash) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			delivered_at = EXCLUDED.delivered_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, d := range deliveries {
		_, err := stmt.ExecContext(ctx, d.Domain, d.MessageID, d.BlockNumber, d.TxHash, d.DeliveredAt)
		if err != nil {
			return 0, fmt.Errorf("failed to store delivery %s: %w", d.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(deliveries), nil
}

// StoreGasPayments upserts gas payment records keyed by (domain, message_id, tx_hash).
func (s *EventStore) StoreGasPayments(ctx context.Context, payments []domain.GasPayment) (int, error) {
	if len(payments) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO gas_payments (domain, message_id, payment, gas_amount, block_number, tx_hash, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (domain, message_id, tx_hash) DO UPDATE SET
			payment = EXCLUDED.payment,
			gas_amount = EXCLUDED.gas_amount,
			block_number = EXCLUDED.block_number,
			paid_at = EXCLUDED.paid_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, p := range payments {
		_, err := stmt.ExecContext(ctx, p.Domain, p.MessageID, p.Payment, p.GasAmount, p.BlockNumber, p.TxHash, p.PaidAt)
		if err != nil {
			return 0, fmt.Errorf("failed to store gas payment %s: %w", p.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(payments), nil
}
