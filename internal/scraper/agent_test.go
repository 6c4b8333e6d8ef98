package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/scraper/internal/core/config"
	"github.com/vietddude/scraper/internal/core/cursor"
	"github.com/vietddude/scraper/internal/core/domain"
	"github.com/vietddude/scraper/internal/infra/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	lastNonce *uint64
	nonceErr  error
	messages  map[uint64]domain.Message
}

func newFakeStore(lastNonce *uint64) *fakeStore {
	return &fakeStore{lastNonce: lastNonce, messages: make(map[uint64]domain.Message)}
}

func (s *fakeStore) LastMessageNonce(ctx context.Context) (*uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nonceErr != nil {
		return nil, s.nonceErr
	}
	return s.lastNonce, nil
}

// StoreDispatchedMessages is keyed by nonce like the real upsert, so
// refetching an overlapping window never inflates the stored count.
func (s *fakeStore) StoreDispatchedMessages(ctx context.Context, msgs []domain.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.Nonce] = m
	}
	return len(msgs), nil
}

func (s *fakeStore) StoreDeliveries(ctx context.Context, deliveries []domain.Delivery) (int, error) {
	return len(deliveries), nil
}

func (s *fakeStore) StoreGasPayments(ctx context.Context, payments []domain.GasPayment) (int, error) {
	return len(payments), nil
}

type fakeClient struct {
	mu             sync.Mutex
	tip            uint64
	calls          int
	dispatchErr    error
	dispatchRanges []cursor.Range
}

func (c *fakeClient) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.tip, nil
}

func (c *fakeClient) DispatchedMessages(ctx context.Context, r cursor.Range) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.dispatchRanges = append(c.dispatchRanges, r)
	return nil, c.dispatchErr
}

func (c *fakeClient) Deliveries(ctx context.Context, r cursor.Range) ([]domain.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *fakeClient) GasPayments(ctx context.Context, r cursor.Range) ([]domain.GasPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, nil
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeClient) firstDispatchRange() (cursor.Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dispatchRanges) == 0 {
		return cursor.Range{}, false
	}
	return c.dispatchRanges[0], true
}

type fakeFactory struct {
	clients   map[string]*fakeClient
	stores    map[string]*fakeStore
	clientErr map[string]error
}

func newFakeFactory(chains ...string) *fakeFactory {
	f := &fakeFactory{
		clients:   make(map[string]*fakeClient),
		stores:    make(map[string]*fakeStore),
		clientErr: make(map[string]error),
	}
	for _, name := range chains {
		f.clients[name] = &fakeClient{tip: 1_000_000}
		f.stores[name] = newFakeStore(nil)
	}
	return f
}

func (f *fakeFactory) BuildClient(_ context.Context, chain config.ChainConfig) (Client, error) {
	if err := f.clientErr[chain.Name]; err != nil {
		return nil, err
	}
	return f.clients[chain.Name], nil
}

func (f *fakeFactory) BuildStore(chain config.ChainConfig) (storage.EventStore, error) {
	return f.stores[chain.Name], nil
}

func testConfig(chains ...string) config.AppConfig {
	cfg := config.AppConfig{Agent: config.AgentConfig{Name: "scraper-test"}}
	for i, name := range chains {
		cfg.Chains = append(cfg.Chains, config.ChainConfig{
			ID:        uint32(i + 1),
			Name:      name,
			Mailbox:   "0x000000000000000000000000000000000000beef",
			Providers: []config.ProviderConfig{{Name: "primary", URL: "http://localhost:8545"}},
			Index:     domain.IndexSettings{From: 1, ChunkSize: 10, Interval: time.Millisecond},
		})
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunSpawnsFourTasksPerChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("alpha", "beta")
	agent, err := newScraper(ctx, cfg, newFakeFactory("alpha", "beta"), nil, slog.Default())
	if err != nil {
		t.Fatalf("newScraper() error: %v", err)
	}

	group, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := group.Size(); got != 8 {
		t.Errorf("group size = %d, want 8 (4 per chain)", got)
	}

	cancel()
	outcome := group.Wait(context.Background())
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("outcome error = %v, want context.Canceled", outcome.Err)
	}
}

func TestDispatchCursorSeededFromStore(t *testing.T) {
	nonce := func(n uint64) *uint64 { return &n }

	tests := []struct {
		name     string
		last     *uint64
		wantFrom uint64
	}{
		{"empty store", nil, 0},
		{"nonce zero", nonce(0), 0},
		{"nonce one", nonce(1), 0},
		{"nonce one thousand", nonce(1000), 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			factory := newFakeFactory("alpha")
			factory.stores["alpha"] = newFakeStore(tt.last)
			client := factory.clients["alpha"]

			agent, err := newScraper(ctx, testConfig("alpha"), factory, nil, slog.Default())
			if err != nil {
				t.Fatalf("newScraper() error: %v", err)
			}
			if _, err := agent.Run(ctx); err != nil {
				t.Fatalf("Run() error: %v", err)
			}

			waitFor(t, "first dispatch fetch", func() bool {
				_, ok := client.firstDispatchRange()
				return ok
			})
			cancel()

			r, _ := client.firstDispatchRange()
			if r.From != tt.wantFrom {
				t.Errorf("first window starts at %d, want %d", r.From, tt.wantFrom)
			}
			if want := tt.wantFrom + 9; r.To != want {
				t.Errorf("first window ends at %d, want %d", r.To, want)
			}
		})
	}
}

func TestConstructionFailureSpawnsNoTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("client build failure", func(t *testing.T) {
		factory := newFakeFactory("alpha", "beta")
		factory.clientErr["beta"] = errors.New("no reachable provider")

		_, err := newScraper(ctx, testConfig("alpha", "beta"), factory, nil, slog.Default())
		if err == nil || !strings.Contains(err.Error(), "chain beta") {
			t.Fatalf("newScraper() = %v, want chain beta build error", err)
		}
		if got := factory.clients["alpha"].callCount(); got != 0 {
			t.Errorf("healthy chain client saw %d calls, want 0", got)
		}
	})

	t.Run("cursor seed failure", func(t *testing.T) {
		factory := newFakeFactory("alpha", "beta")
		factory.stores["beta"].nonceErr = errors.New("relation does not exist")

		agent, err := newScraper(ctx, testConfig("alpha", "beta"), factory, nil, slog.Default())
		if err != nil {
			t.Fatalf("newScraper() error: %v", err)
		}

		_, err = agent.Run(ctx)
		if err == nil || !strings.Contains(err.Error(), "chain beta") {
			t.Fatalf("Run() = %v, want chain beta seed error", err)
		}
		if got := factory.clients["alpha"].callCount(); got != 0 {
			t.Errorf("healthy chain client saw %d calls, want 0 (no task may start)", got)
		}
	})
}

func TestFirstTaskFailureResolvesGroupWithLabels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := newFakeFactory("alpha")
	// Fatal-classified error: the dispatch task dies on its first window.
	factory.clients["alpha"].dispatchErr = errors.New("rpc error -32602: invalid params")

	agent, err := newScraper(ctx, testConfig("alpha"), factory, nil, slog.Default())
	if err != nil {
		t.Fatalf("newScraper() error: %v", err)
	}
	group, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	outcome := group.Wait(context.Background())
	if outcome.Chain != "alpha" || outcome.Event != string(domain.EventMessageDispatch) {
		t.Errorf("outcome labeled (%s, %s), want (alpha, message_dispatch)", outcome.Chain, outcome.Event)
	}
	if outcome.Err == nil || errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("outcome error = %v, want dispatch failure", outcome.Err)
	}
}

type logCapture struct {
	mu      sync.Mutex
	entries []map[string]string
}

func (c *logCapture) pairs(msg string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool)
	for _, e := range c.entries {
		if e["msg"] == msg {
			out[fmt.Sprintf("%s/%s", e["chain"], e["event"])] = true
		}
	}
	return out
}

type captureHandler struct {
	cap   *logCapture
	attrs map[string]string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := make(map[string]string, len(h.attrs)+1)
	for k, v := range h.attrs {
		entry[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		entry[a.Key] = a.Value.String()
		return true
	})
	entry["msg"] = r.Message
	h.cap.mu.Lock()
	h.cap.entries = append(h.cap.entries, entry)
	h.cap.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(map[string]string, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		next[k] = v
	}
	for _, a := range attrs {
		next[a.Key] = a.Value.String()
	}
	return &captureHandler{cap: h.cap, attrs: next}
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestSyncTaskLogsCarryChainAndEventLabels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capt := &logCapture{}
	log := slog.New(&captureHandler{cap: capt, attrs: map[string]string{}})

	agent, err := newScraper(ctx, testConfig("alpha", "beta"), newFakeFactory("alpha", "beta"), nil, log)
	if err != nil {
		t.Fatalf("newScraper() error: %v", err)
	}
	if _, err := agent.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []string{
		"alpha/message_dispatch", "alpha/message_delivery", "alpha/gas_payment",
		"beta/message_dispatch", "beta/message_delivery", "beta/gas_payment",
	}
	waitFor(t, "all sync tasks to announce themselves", func() bool {
		pairs := capt.pairs("sync task started")
		for _, p := range want {
			if !pairs[p] {
				return false
			}
		}
		return true
	})
	cancel()

	pairs := capt.pairs("sync task started")
	if len(pairs) != len(want) {
		t.Errorf("got %d labeled startup records, want %d: %v", len(pairs), len(want), pairs)
	}
}

// scriptedClient overrides DispatchedMessages with a fixed result set.
type scriptedClient struct {
	*fakeClient
	msgs []domain.Message
}

func (c *scriptedClient) DispatchedMessages(ctx context.Context, r cursor.Range) ([]domain.Message, error) {
	return c.msgs, nil
}

func TestDispatchSourceReportsHighestStoredNonce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(nil)

	// Out-of-order results within the window still advance to the max nonce.
	msgs := []domain.Message{
		{OriginDomain: 1, Nonce: 5, TxHash: "0xa"},
		{OriginDomain: 1, Nonce: 7, TxHash: "0xb"},
		{OriginDomain: 1, Nonce: 6, TxHash: "0xc"},
	}
	src := &dispatchSource{cs: chainScraper{
		domain: domain.Domain{ID: 1, Name: "alpha"},
		store:  store,
		client: &scriptedClient{fakeClient: &fakeClient{tip: 100}, msgs: msgs},
	}}

	stored, last, err := src.FetchRange(ctx, cursor.Range{From: 5, To: 14})
	if err != nil {
		t.Fatalf("FetchRange() error: %v", err)
	}
	if stored != 3 || last != 7 {
		t.Errorf("FetchRange() = (%d, %d), want (3, 7)", stored, last)
	}

	// Overlapping refetch does not duplicate stored records.
	if _, _, err := src.FetchRange(ctx, cursor.Range{From: 5, To: 14}); err != nil {
		t.Fatalf("FetchRange() refetch error: %v", err)
	}
	store.mu.Lock()
	unique := len(store.messages)
	store.mu.Unlock()
	if unique != 3 {
		t.Errorf("stored %d unique messages after refetch, want 3", unique)
	}

	// Empty window: nothing stored, position reported as zero.
	empty := &dispatchSource{cs: chainScraper{store: store, client: &fakeClient{tip: 100}}}
	stored, last, err = empty.FetchRange(ctx, cursor.Range{From: 20, To: 29})
	if err != nil {
		t.Fatalf("FetchRange() error: %v", err)
	}
	if stored != 0 || last != 0 {
		t.Errorf("FetchRange() = (%d, %d), want (0, 0)", stored, last)
	}
}
