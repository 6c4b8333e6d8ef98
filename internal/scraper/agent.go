// Package scraper is the sync task orchestrator: it binds each configured
// chain to a provider handle and a mailbox-scoped event store, seeds one
// cursor per (chain, event) stream from persisted state, and spawns the whole
// fleet of sync tasks into a single fail-fast supervised group.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/scraper/internal/core/config"
	"github.com/vietddude/scraper/internal/core/cursor"
	"github.com/vietddude/scraper/internal/core/domain"
	"github.com/vietddude/scraper/internal/core/task"
	"github.com/vietddude/scraper/internal/indexing/metrics"
	syncer "github.com/vietddude/scraper/internal/indexing/sync"
	redisclient "github.com/vietddude/scraper/internal/infra/redis"
	"github.com/vietddude/scraper/internal/infra/rpc"
	"github.com/vietddude/scraper/internal/infra/rpc/provider"
	"github.com/vietddude/scraper/internal/infra/storage"
	"github.com/vietddude/scraper/internal/infra/storage/postgres"
)

const providerTimeout = 10 * time.Second

// Client is the chain-facing handle a sync task reads events through.
type Client interface {
	LatestBlock(ctx context.Context) (uint64, error)
	DispatchedMessages(ctx context.Context, r cursor.Range) ([]domain.Message, error)
	Deliveries(ctx context.Context, r cursor.Range) ([]domain.Delivery, error)
	GasPayments(ctx context.Context, r cursor.Range) ([]domain.GasPayment, error)
}

// Factory builds the per-chain collaborators. Any failure here is a startup
// error for the whole agent; there is no partial-chain degraded mode.
type Factory interface {
	BuildClient(ctx context.Context, chain config.ChainConfig) (Client, error)
	BuildStore(chain config.ChainConfig) (storage.EventStore, error)
}

// chainScraper binds one chain's identity, pacing settings, and shared
// resource handles. Created once at startup and never mutated.
type chainScraper struct {
	domain domain.Domain
	index  domain.IndexSettings
	store  storage.EventStore
	client Client
}

// Scraper is the top-level agent.
type Scraper struct {
	cfg        config.AppConfig
	db         *postgres.DB
	scrapers   map[uint32]chainScraper
	deadLetter syncer.DeadLetter
	instanceID string
	log        *slog.Logger
}

// New builds the agent from configuration: database, migrations, optional
// dead-letter store, and one registry entry per configured chain.
func New(ctx context.Context, cfg config.AppConfig) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate("migrations"); err != nil {
		db.Close()
		return nil, err
	}

	// The dead-letter store is an optional collaborator; without it the sync
	// engine simply treats every exhausted window as fatal.
	var deadLetter syncer.DeadLetter
	if cfg.Redis.URL != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, dead-letter store disabled", "error", err)
		} else {
			deadLetter = redisclient.NewDeadLetterStore(redisClient)
		}
	}

	s, err := newScraper(ctx, cfg, &defaultFactory{db: db}, deadLetter, slog.Default())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

// newScraper builds the chain registry through the given factory.
func newScraper(
	ctx context.Context,
	cfg config.AppConfig,
	factory Factory,
	deadLetter syncer.DeadLetter,
	log *slog.Logger,
) (*Scraper, error) {
	if log == nil {
		log = slog.Default()
	}

	scrapers := make(map[uint32]chainScraper, len(cfg.Chains))
	for _, chainCfg := range cfg.Chains {
		client, err := factory.BuildClient(ctx, chainCfg)
		if err != nil {
			return nil, fmt.Errorf("chain %s: build provider: %w", chainCfg.Name, err)
		}
		store, err := factory.BuildStore(chainCfg)
		if err != nil {
			return nil, fmt.Errorf("chain %s: build store: %w", chainCfg.Name, err)
		}
		scrapers[chainCfg.ID] = chainScraper{
			domain: chainCfg.Domain(),
			index:  chainCfg.Index,
			store:  store,
			client: client,
		}
	}

	log.Debug("created chain scrapers", "count", len(scrapers))

	return &Scraper{
		cfg:        cfg,
		scrapers:   scrapers,
		deadLetter: deadLetter,
		instanceID: uuid.NewString(),
		log:        log,
	}, nil
}

// InstanceID returns the unique id of this agent process.
func (s *Scraper) InstanceID() string { return s.instanceID }

// Run constructs every task for every chain, spawns them, and returns the
// aggregated supervisor handle. The group resolves as soon as any member task
// exits, for any reason; that is the agent's externally observed lifecycle.
//
// All tasks are fully constructed before any is spawned: a cursor-seeding or
// construction failure for one chain aborts the run with zero tasks started.
func (s *Scraper) Run(ctx context.Context) (*task.Group, error) {
	metrics.AgentInfo.WithLabelValues(s.cfg.Agent.Name, s.instanceID).Set(1)
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	type pendingTask struct {
		chain string
		event string
		run   func(context.Context) error
	}

	pending := make([]pendingTask, 0, len(s.scrapers)*4)
	for _, chainCfg := range s.cfg.Chains {
		cs := s.scrapers[chainCfg.ID]

		for _, label := range domain.SyncLabels() {
			run, err := s.buildSyncTask(ctx, cs, label)
			if err != nil {
				return nil, fmt.Errorf("chain %s: build %s task: %w", cs.domain.Name, label, err)
			}
			pending = append(pending, pendingTask{cs.domain.Name, string(label), run})
		}

		updater := metrics.NewUpdater(cs.domain, cs.client, cs.index.Interval,
			s.log.With("chain", cs.domain.Name, "event", string(domain.EventMetrics)))
		pending = append(pending, pendingTask{cs.domain.Name, string(domain.EventMetrics), updater.Run})
	}

	handles := make([]*task.Handle, 0, len(pending))
	for _, p := range pending {
		handles = append(handles, task.Spawn(ctx, p.chain, p.event, p.run))
	}

	s.log.Info("spawned sync tasks", "tasks", len(handles), "chains", len(s.scrapers))
	return task.RunAll(handles), nil
}

// buildSyncTask is the single parameterized builder for all three event sync
// kinds. The message-dispatch stream gets a sequence cursor seeded from the
// highest persisted nonce; the other two pace block ranges against the tip.
func (s *Scraper) buildSyncTask(
	ctx context.Context,
	cs chainScraper,
	label domain.EventLabel,
) (func(context.Context) error, error) {
	var cur cursor.Cursor
	var source syncer.Source

	switch label {
	case domain.EventMessageDispatch:
		last, err := cs.store.LastMessageNonce(ctx)
		if err != nil {
			return nil, fmt.Errorf("last message nonce: %w", err)
		}
		cur = cursor.NewForwardSequential(cs.index, cursor.SeedFromLast(last))
		source = &dispatchSource{cs: cs}
	case domain.EventMessageDelivery:
		cur = cursor.NewRateLimited(cs.index)
		source = &deliverySource{cs: cs}
	case domain.EventGasPayment:
		cur = cursor.NewRateLimited(cs.index)
		source = &gasPaymentSource{cs: cs}
	default:
		return nil, fmt.Errorf("unknown event label %q", label)
	}

	engine := syncer.New(syncer.Config{
		Domain:     cs.domain,
		Label:      label,
		Source:     source,
		Cursor:     cur,
		Interval:   cs.index.Interval,
		DeadLetter: s.deadLetter,
		Logger:     s.log,
	})
	return engine.Run, nil
}

// Close releases the shared database handle.
func (s *Scraper) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// defaultFactory wires the production collaborators: an HTTP JSON-RPC
// provider per chain and a postgres event store scoped to its mailbox.
type defaultFactory struct {
	db *postgres.DB
}

func (f *defaultFactory) BuildClient(ctx context.Context, chain config.ChainConfig) (Client, error) {
	primary := chain.Providers[0]
	p := provider.NewHTTPProvider(primary.Name, primary.URL, providerTimeout)
	return rpc.NewMailboxClient(chain.Domain(), chain.Mailbox, p), nil
}

func (f *defaultFactory) BuildStore(chain config.ChainConfig) (storage.EventStore, error) {
	return postgres.NewEventStore(f.db, chain.Domain(), chain.Mailbox), nil
}
