package scraper

import (
	"context"
	"fmt"

	"github.com/vietddude/scraper/internal/core/cursor"
)

// dispatchSource feeds the message-dispatch sync task. Its windows are nonce
// ranges; the highest stored nonce drives the cursor forward.
type dispatchSource struct {
	cs chainScraper
}

func (s *dispatchSource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.cs.client.LatestBlock(ctx)
}

func (s *dispatchSource) FetchRange(ctx context.Context, r cursor.Range) (int, uint64, error) {
	msgs, err := s.cs.client.DispatchedMessages(ctx, r)
	if err != nil {
		return 0, 0, err
	}
	if len(msgs) == 0 {
		return 0, 0, nil
	}

	stored, err := s.cs.store.StoreDispatchedMessages(ctx, msgs)
	if err != nil {
		return 0, 0, fmt.Errorf("store messages: %w", err)
	}

	var last uint64
	for _, m := range msgs {
		if m.Nonce > last {
			last = m.Nonce
		}
	}
	return stored, last, nil
}

// deliverySource feeds the message-delivery sync task over block windows.
type deliverySource struct {
	cs chainScraper
}

func (s *deliverySource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.cs.client.LatestBlock(ctx)
}

func (s *deliverySource) FetchRange(ctx context.Context, r cursor.Range) (int, uint64, error) {
	deliveries, err := s.cs.client.Deliveries(ctx, r)
	if err != nil {
		return 0, 0, err
	}

	stored, err := s.cs.store.StoreDeliveries(ctx, deliveries)
	if err != nil {
		return 0, 0, fmt.Errorf("store deliveries: %w", err)
	}
	return stored, r.To, nil
}

// gasPaymentSource feeds the gas-payment sync task over block windows.
type gasPaymentSource struct {
	cs chainScraper
}

func (s *gasPaymentSource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.cs.client.LatestBlock(ctx)
}

func (s *gasPaymentSource) FetchRange(ctx context.Context, r cursor.Range) (int, uint64, error) {
	payments, err := s.cs.client.GasPayments(ctx, r)
	if err != nil {
		return 0, 0, err
	}

	stored, err := s.cs.store.StoreGasPayments(ctx, payments)
	if err != nil {
		return 0, 0, fmt.Errorf("store gas payments: %w", err)
	}
	return stored, r.To, nil
}
