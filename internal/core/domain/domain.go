package domain

import (
	"fmt"
	"time"
)

// Domain identifies an independently configured blockchain network.
// Immutable once loaded from configuration.
type Domain struct {
	ID   uint32
	Name string
}

func (d Domain) String() string {
	return fmt.Sprintf("%s:%d", d.Name, d.ID)
}

// EventLabel names one of the on-chain activity categories the agent ingests.
type EventLabel string

const (
	EventMessageDispatch EventLabel = "message_dispatch"
	EventMessageDelivery EventLabel = "message_delivery"
	EventGasPayment      EventLabel = "gas_payment"

	// EventMetrics labels the per-chain metrics reporting task.
	EventMetrics EventLabel = "metrics"
)

// SyncLabels lists the event categories that get a dedicated sync task per chain.
func SyncLabels() []EventLabel {
	return []EventLabel{EventMessageDispatch, EventMessageDelivery, EventGasPayment}
}

// IndexSettings controls cursor pacing for one chain.
// One value per domain, never mutated after load.
type IndexSettings struct {
	From      uint64        `yaml:"from"       mapstructure:"from"`
	ChunkSize uint32        `yaml:"chunk_size" mapstructure:"chunk_size"`
	Interval  time.Duration `yaml:"interval"   mapstructure:"interval"`
}
