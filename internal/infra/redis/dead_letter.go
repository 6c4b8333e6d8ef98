package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/scraper/internal/core/cursor"
)

const deadLetterTTL = 7 * 24 * time.Hour

// DeadLetterEntry describes a fetch window that exhausted its retries.
type DeadLetterEntry struct {
	ID       string    `json:"id"`
	Chain    string    `json:"chain"`
	Event    string    `json:"event"`
	From     uint64    `json:"from"`
	To       uint64    `json:"to"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// DeadLetterStore persists skipped windows so an operator can replay them.
type DeadLetterStore struct {
	rdb *redis.Client
}

// NewDeadLetterStore creates a Redis-backed dead-letter store.
func NewDeadLetterStore(client *Client) *DeadLetterStore {
	return &DeadLetterStore{rdb: client.rdb}
}

// Key helpers
func queueKey(chain, event string) string {
	return fmt.Sprintf("dead_letter:%s:%s", chain, event)
}

func entryKey(chain, event, id string) string {
	return fmt.Sprintf("dead_letter_entry:%s:%s:%s", chain, event, id)
}

// Record stores a skipped window, keyed to retry lowest ranges first.
func (s *DeadLetterStore) Record(ctx context.Context, chain, event string, r cursor.Range, cause error) error {
	entry := DeadLetterEntry{
		ID:       uuid.NewString(),
		Chain:    chain,
		Event:    event,
		From:     r.From,
		To:       r.To,
		Reason:   cause.Error(),
		FailedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter entry: %w", err)
	}

	if err := s.rdb.Set(ctx, entryKey(chain, event, entry.ID), data, deadLetterTTL).Err(); err != nil {
		return fmt.Errorf("failed to set dead-letter entry: %w", err)
	}

	// Sorted by range start so the oldest gap surfaces first.
	if err := s.rdb.ZAdd(ctx, queueKey(chain, event), redis.Z{
		Score:  float64(r.From),
		Member: entry.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead-letter queue: %w", err)
	}

	return nil
}

// List retrieves all recorded entries for a (chain, event) stream.
func (s *DeadLetterStore) List(ctx context.Context, chain, event string) ([]DeadLetterEntry, error) {
	ids, err := s.rdb.ZRange(ctx, queueKey(chain, event), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	entries := make([]DeadLetterEntry, 0, len(ids))
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, entryKey(chain, event, id)).Bytes()
		if err == redis.Nil {
			// Data expired but ID still in queue, remove it
			s.rdb.ZRem(ctx, queueKey(chain, event), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dead-letter entry: %w", err)
		}

		var entry DeadLetterEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Resolve removes an entry once its window has been replayed.
func (s *DeadLetterStore) Resolve(ctx context.Context, chain, event, id string) error {
	if err := s.rdb.ZRem(ctx, queueKey(chain, event), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from dead-letter queue: %w", err)
	}
	if err := s.rdb.Del(ctx, entryKey(chain, event, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete dead-letter entry: %w", err)
	}
	return nil
}

// Count returns the number of recorded entries for a stream.
func (s *DeadLetterStore) Count(ctx context.Context, chain, event string) (int, error) {
	count, err := s.rdb.ZCard(ctx, queueKey(chain, event)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
