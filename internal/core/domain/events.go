package domain

import "time"

// Message is a dispatched cross-chain message as observed on the origin chain.
// (OriginDomain, Nonce) is the identity; re-storing the same message is an upsert.
type Message struct {
	OriginDomain      uint32
	Nonce             uint64
	Sender            string
	Recipient         string
	DestinationDomain uint32
	Body              []byte
	BlockNumber       uint64
	TxHash            string
	DispatchedAt      time.Time
}

// Delivery records a message being processed on its destination chain.
type Delivery struct {
	Domain      uint32
	MessageID   string
	BlockNumber uint64
	TxHash      string
	DeliveredAt time.Time
}

// GasPayment records an interchain gas payment made for a message.
// Amounts are kept as decimal strings so chain-native precision survives storage.
type GasPayment struct {
	Domain      uint32
	MessageID   string
	Payment     string
	GasAmount   string
	BlockNumber uint64
	TxHash      string
	PaidAt      time.Time
}
