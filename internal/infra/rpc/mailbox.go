// Package rpc implements the chain-facing client used by the sync tasks,
// speaking JSON-RPC to a mailbox contract through a provider handle.
package rpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/scraper/internal/core/cursor"
	"github.com/vietddude/scraper/internal/core/domain"
	"github.com/vietddude/scraper/internal/infra/rpc/provider"
)

// Event topics emitted by the mailbox contract.
const (
	// Dispatch(uint256 indexed nonce, address indexed sender, uint32 indexed destination)
	// data: recipient word followed by the message body.
	topicDispatch = "0x769f711d20c679153d382254f59892613b58a97cc876b249134ac25c80f9c814"

	// Process(bytes32 indexed messageId)
	topicProcess = "0x0d381c2a574ae8f04e213db7cfb4df8df712cdbd427d9868ffef380660ca6574"

	// GasPayment(bytes32 indexed messageId)
	// data: payment word followed by the gas amount word.
	topicGasPayment = "0x65695c3748edae85a24cc2c60b299b31f463050bc259150d2e5802ec8d11720a"
)

// MailboxClient fetches mailbox contract events for one chain.
type MailboxClient struct {
	domain   domain.Domain
	mailbox  string
	provider provider.Provider
}

// NewMailboxClient creates a client scoped to one chain's mailbox address.
func NewMailboxClient(d domain.Domain, mailbox string, p provider.Provider) *MailboxClient {
	return &MailboxClient{domain: d, mailbox: mailbox, provider: p}
}

// LatestBlock returns the chain tip height.
func (c *MailboxClient) LatestBlock(ctx context.Context) (uint64, error) {
	result, err := c.provider.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}

	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}
	return parseHexUint(blockHex)
}

// DispatchedMessages fetches dispatch events for a nonce window. The nonce is
// an indexed topic, so the window maps to a topic OR-list rather than a block
// range.
func (c *MailboxClient) DispatchedMessages(ctx context.Context, r cursor.Range) ([]domain.Message, error) {
	nonces := make([]string, 0, r.Len())
	for n := r.From; n <= r.To; n++ {
		nonces = append(nonces, topicUint(n))
	}

	logs, err := c.getLogs(ctx, map[string]any{
		"address":   c.mailbox,
		"fromBlock": "0x0",
		"toBlock":   "latest",
		"topics":    []any{topicDispatch, nonces},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch dispatches [%d, %d]: %w", r.From, r.To, err)
	}

	msgs := make([]domain.Message, 0, len(logs))
	for _, raw := range logs {
		msg, err := c.decodeDispatch(raw)
		if err != nil {
			return nil, fmt.Errorf("decode dispatch log: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Deliveries fetches process events for a block window.
func (c *MailboxClient) Deliveries(ctx context.Context, r cursor.Range) ([]domain.Delivery, error) {
	logs, err := c.getLogs(ctx, map[string]any{
		"address":   c.mailbox,
		"fromBlock": topicBlock(r.From),
		"toBlock":   topicBlock(r.To),
		"topics":    []any{topicProcess},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch deliveries [%d, %d]: %w", r.From, r.To, err)
	}

	deliveries := make([]domain.Delivery, 0, len(logs))
	for _, raw := range logs {
		topics := logTopics(raw)
		if len(topics) < 2 {
			return nil, fmt.Errorf("process log missing message id topic")
		}
		blockNumber, _ := parseHexUint(getString(raw["blockNumber"]))
		deliveries = append(deliveries, domain.Delivery{
			Domain:      c.domain.ID,
			MessageID:   topics[1],
			BlockNumber: blockNumber,
			TxHash:      getString(raw["transactionHash"]),
			// Log entries carry no timestamp; record observation time.
			DeliveredAt: time.Now(),
		})
	}
	return deliveries, nil
}

// GasPayments fetches gas payment events for a block window.
func (c *MailboxClient) GasPayments(ctx context.Context, r cursor.Range) ([]domain.GasPayment, error) {
	logs, err := c.getLogs(ctx, map[string]any{
		"address":   c.mailbox,
		"fromBlock": topicBlock(r.From),
		"toBlock":   topicBlock(r.To),
		"topics":    []any{topicGasPayment},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch gas payments [%d, %d]: %w", r.From, r.To, err)
	}

	payments := make([]domain.GasPayment, 0, len(logs))
	for _, raw := range logs {
		topics := logTopics(raw)
		if len(topics) < 2 {
			return nil, fmt.Errorf("gas payment log missing message id topic")
		}

		data := getString(raw["data"])
		payment, ok := dataWordBig(data, 0)
		if !ok {
			return nil, fmt.Errorf("gas payment log missing payment word")
		}
		gasAmount, ok := dataWordBig(data, 1)
		if !ok {
			return nil, fmt.Errorf("gas payment log missing gas amount word")
		}

		blockNumber, _ := parseHexUint(getString(raw["blockNumber"]))
		payments = append(payments, domain.GasPayment{
			Domain:      c.domain.ID,
			MessageID:   topics[1],
			Payment:     payment.String(),
			GasAmount:   gasAmount.String(),
			BlockNumber: blockNumber,
			TxHash:      getString(raw["transactionHash"]),
			PaidAt:      time.Now(),
		})
	}
	return payments, nil
}

func (c *MailboxClient) getLogs(ctx context.Context, filter map[string]any) ([]map[string]any, error) {
	result, err := c.provider.Call(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid logs response")
	}

	logs := make([]map[string]any, 0, len(rawLogs))
	for _, raw := range rawLogs {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid log entry format")
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (c *MailboxClient) decodeDispatch(raw map[string]any) (domain.Message, error) {
	topics := logTopics(raw)
	if len(topics) < 4 {
		return domain.Message{}, fmt.Errorf("dispatch log has %d topics, want 4", len(topics))
	}

	nonce, err := parseHexUint(topics[1])
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid nonce topic: %w", err)
	}
	destination, err := parseHexUint(topics[3])
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid destination topic: %w", err)
	}

	data := getString(raw["data"])
	recipient, ok := dataWord(data, 0)
	if !ok {
		return domain.Message{}, fmt.Errorf("dispatch log missing recipient word")
	}
	body, err := dataTail(data, 1)
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid dispatch body: %w", err)
	}

	blockNumber, _ := parseHexUint(getString(raw["blockNumber"]))
	return domain.Message{
		OriginDomain:      c.domain.ID,
		Nonce:             nonce,
		Sender:            topicAddress(topics[2]),
		Recipient:         recipient,
		DestinationDomain: uint32(destination),
		Body:              body,
		BlockNumber:       blockNumber,
		TxHash:            getString(raw["transactionHash"]),
		DispatchedAt:      time.Now(),
	}, nil
}

// Hex helpers

func getString(v any) string {
	s, _ := v.(string)
	return s
}

func logTopics(raw map[string]any) []string {
	rawTopics, _ := raw["topics"].([]any)
	topics := make([]string, 0, len(rawTopics))
	for _, t := range rawTopics {
		topics = append(topics, getString(t))
	}
	return topics
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex string")
	}
	return strconv.ParseUint(s, 16, 64)
}

func topicUint(v uint64) string {
	return fmt.Sprintf("0x%064x", v)
}

func topicBlock(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// topicAddress extracts the 20-byte address from a 32-byte topic.
func topicAddress(topic string) string {
	s := strings.TrimPrefix(topic, "0x")
	if len(s) != 64 {
		return topic
	}
	return "0x" + s[24:]
}

// dataWord returns the i-th 32-byte word of log data as a hex string.
func dataWord(data string, i int) (string, bool) {
	s := strings.TrimPrefix(data, "0x")
	start := i * 64
	if len(s) < start+64 {
		return "", false
	}
	return "0x" + s[start:start+64], true
}

// dataWordBig returns the i-th 32-byte word of log data as a big integer.
func dataWordBig(data string, i int) (*big.Int, bool) {
	word, ok := dataWord(data, i)
	if !ok {
		return nil, false
	}
	v, ok := new(big.Int).SetString(strings.TrimPrefix(word, "0x"), 16)
	return v, ok
}

// dataTail decodes the raw bytes following the first n words of log data.
func dataTail(data string, n int) ([]byte, error) {
	s := strings.TrimPrefix(data, "0x")
	start := n * 64
	if len(s) <= start {
		return nil, nil
	}
	return hex.DecodeString(s[start:])
}
