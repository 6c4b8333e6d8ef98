package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoredEvents tracks persisted records per chain and event type
	StoredEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_stored_events_total",
			Help: "Total number of events persisted",
		},
		[]string{"chain", "event"},
	)

	// CursorPosition tracks the next position each sync cursor will fetch
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_cursor_position",
			Help: "Next position the sync cursor will fetch",
		},
		[]string{"chain", "event"},
	)

	// SyncErrors tracks fetch/store failures per chain and event type
	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"chain", "event"},
	)

	// DeadLetteredRanges tracks windows skipped after exhausting retries
	DeadLetteredRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_dead_lettered_ranges_total",
			Help: "Total number of fetch windows recorded to the dead-letter store",
		},
		[]string{"chain", "event"},
	)

	// ChainLatestBlock tracks the latest block height of each chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// AgentInfo carries the agent name and instance id as labels
	AgentInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_agent_info",
			Help: "Static agent identity information",
		},
		[]string{"agent", "instance"},
	)
)
