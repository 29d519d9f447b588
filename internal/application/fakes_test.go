package application

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/repository/memory"
	"archie-core-sync-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	sourceShop = "brand.myshopify.com"
	destShop   = "retail.myshopify.com"
)

type fakeEncryption struct{}

func (fakeEncryption) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (fakeEncryption) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", fmt.Errorf("not sealed")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

// fakeStore is an in-memory catalog with scripted failures.
type fakeStore struct {
	mu       sync.Mutex
	platform domain.Platform
	caps     ports.Capabilities
	items    map[string]domain.CatalogItem
	order    []string
	failures map[string][]error
	levels   map[string]int
	calls    []string
	afterOp  func(op, sku string)
}

func newFakeStore(platform domain.Platform, items ...domain.CatalogItem) *fakeStore {
	s := &fakeStore{
		platform: platform,
		items:    make(map[string]domain.CatalogItem),
		failures: make(map[string][]error),
		levels:   make(map[string]int),
	}
	for _, it := range items {
		s.put(it)
	}
	return s
}

func (s *fakeStore) put(it domain.CatalogItem) {
	if _, ok := s.items[it.SKU]; !ok {
		s.order = append(s.order, it.SKU)
	}
	s.items[it.SKU] = it
}

// fail queues errors returned by op ("list", "create", "update", "level")
// for sku before the call succeeds.
func (s *fakeStore) fail(op, sku string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + ":" + sku
	s.failures[key] = append(s.failures[key], errs...)
}

func (s *fakeStore) next(op, sku string) error {
	key := op + ":" + sku
	if errs := s.failures[key]; len(errs) > 0 {
		s.failures[key] = errs[1:]
		return errs[0]
	}
	return nil
}

func (s *fakeStore) record(op, sku string) {
	s.calls = append(s.calls, op+":"+sku)
}

func (s *fakeStore) remove(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sku)
	for i, k := range s.order {
		if k == sku {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *fakeStore) get(sku string) (domain.CatalogItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[sku]
	return it, ok
}

func (s *fakeStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) Platform() domain.Platform        { return s.platform }
func (s *fakeStore) Capabilities() ports.Capabilities { return s.caps }

func (s *fakeStore) ListItems(_ context.Context, cursor string, opts ports.ListOptions) (*domain.ItemPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.next("list", cursor); err != nil {
		return nil, err
	}
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	size := opts.PageSize
	if size <= 0 {
		size = 2
	}
	page := &domain.ItemPage{}
	end := start + size
	if end > len(s.order) {
		end = len(s.order)
	}
	for _, sku := range s.order[start:end] {
		page.Items = append(page.Items, s.items[sku])
	}
	if end < len(s.order) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (s *fakeStore) CreateItem(_ context.Context, item domain.CatalogItem, deltas domain.ItemDeltas) error {
	s.mu.Lock()
	s.record("create", item.SKU)
	err := s.next("create", item.SKU)
	if err == nil {
		if _, ok := s.items[item.SKU]; ok {
			err = domain.NewConnectorError(domain.KindAlreadyExists, "create", 422, nil)
		} else {
			s.put(deltas.ApplyTo(domain.CatalogItem{SKU: item.SKU}))
		}
	}
	hook := s.afterOp
	s.mu.Unlock()
	if hook != nil {
		hook("create", item.SKU)
	}
	return err
}

func (s *fakeStore) UpdateItem(_ context.Context, sku string, deltas domain.ItemDeltas) error {
	s.mu.Lock()
	s.record("update", sku)
	err := s.next("update", sku)
	if err == nil {
		it, ok := s.items[sku]
		if !ok {
			err = domain.NewConnectorError(domain.KindNotFound, "update", 404, nil)
		} else {
			s.items[sku] = deltas.ApplyTo(it)
		}
	}
	hook := s.afterOp
	s.mu.Unlock()
	if hook != nil {
		hook("update", sku)
	}
	return err
}

func (s *fakeStore) SetInventoryLevel(_ context.Context, locationID, sku string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("level", sku)
	if err := s.next("level", sku); err != nil {
		return err
	}
	s.levels[locationID+"/"+sku] = quantity
	if it, ok := s.items[sku]; ok {
		it.Stock = quantity
		s.items[sku] = it
	}
	return nil
}

// fakeFactory serves destination stores by base URL, falling back to the
// shared destination.
type fakeFactory struct {
	mu          sync.Mutex
	source      *fakeStore
	destination *fakeStore
	routes      map[string]*fakeStore
}

func (f *fakeFactory) Source(context.Context, string, string) (ports.StoreConnector, error) {
	return f.source, nil
}

func (f *fakeFactory) Destination(_ context.Context, _ *domain.Connection, creds domain.DestinationCredentials) (ports.StoreConnector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.routes[creds.BaseURL]; ok {
		return s, nil
	}
	return f.destination, nil
}

type fakeOAuth struct {
	mu        sync.Mutex
	validSig  bool
	grant     *ports.AccessGrant
	err       error
	exchanges int
}

func (f *fakeOAuth) AuthorizeURL(shop, state string, scopes []string) (string, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("scope", strings.Join(scopes, ","))
	return "https://" + shop + "/admin/oauth/authorize?" + q.Encode(), nil
}

func (f *fakeOAuth) VerifySignature(url.Values) bool { return f.validSig }

func (f *fakeOAuth) ExchangeCode(context.Context, string, string) (*ports.AccessGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if f.err != nil {
		return nil, f.err
	}
	return f.grant, nil
}

type fakeWebhooks struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWebhooks) Register(context.Context, string, string, []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeLocations struct{ id string }

func (f fakeLocations) PrimaryLocation(context.Context, string, string) (string, error) {
	return f.id, nil
}

type fakeSigner struct{ now func() time.Time }

func (f fakeSigner) Sign(c ports.InviteClaims) (string, error) {
	return strings.Join([]string{c.InviteID, c.InvitingShop, c.DestinationShop, strconv.FormatInt(c.ExpiresAt.Unix(), 10)}, "|"), nil
}

func (f fakeSigner) Verify(token string) (ports.InviteClaims, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 4 {
		return ports.InviteClaims{}, fmt.Errorf("malformed token")
	}
	exp, _ := strconv.ParseInt(parts[3], 10, 64)
	c := ports.InviteClaims{InviteID: parts[0], InvitingShop: parts[1], DestinationShop: parts[2], ExpiresAt: time.Unix(exp, 0)}
	if f.now != nil && !f.now().Before(c.ExpiresAt) {
		return ports.InviteClaims{}, fmt.Errorf("token expired")
	}
	return c, nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	finished map[domain.JobState]int
	retried  int
}

func (m *fakeMetrics) JobFinished(_ domain.JobType, state domain.JobState, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = make(map[domain.JobState]int)
	}
	m.finished[state]++
}

func (m *fakeMetrics) ItemApplied(domain.PlanAction, bool) {}

func (m *fakeMetrics) ItemRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *fakeMetrics) ActiveJobs(int) {}

// harness wires the application services over memory adapters.
type harness struct {
	t             *testing.T
	installations *memory.InstallationRepository
	states        *memory.OAuthStateRepository
	connections   *memory.ConnectionRepository
	jobs          *memory.JobRepository
	logs          *memory.LogRepository
	claims        *memory.ClaimStore
	source        *fakeStore
	destination   *fakeStore
	factory       *fakeFactory
	vault         *CredentialVault
	activity      *ActivityLog
	planner       *Planner
	executor      *Executor
	scheduler     *Scheduler
	connSvc       *ConnectionService
	metrics       *fakeMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	h := &harness{
		t:             t,
		installations: memory.NewInstallationRepository(),
		states:        memory.NewOAuthStateRepository(),
		connections:   memory.NewConnectionRepository(),
		jobs:          memory.NewJobRepository(),
		logs:          memory.NewLogRepository(),
		claims:        memory.NewClaimStore(),
		source:        newFakeStore(domain.PlatformShopify),
		destination:   newFakeStore(domain.PlatformWooCommerce),
		metrics:       &fakeMetrics{},
	}
	h.vault = NewCredentialVault(fakeEncryption{}, logger)
	h.activity = NewActivityLog(h.logs, logger)
	retry := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	h.factory = &fakeFactory{source: h.source, destination: h.destination, routes: make(map[string]*fakeStore)}
	h.planner = NewPlanner(h.installations, h.factory, h.vault, retry, 2, logger)
	h.executor = NewExecutor(ExecutorConfig{
		ItemConcurrency:     1,
		ItemRetry:           retry,
		PartialFailureRatio: 0.2,
		LeaseTTL:            time.Minute,
		HeartbeatInterval:   time.Second,
	}, h.connections, h.installations, h.jobs, h.claims, h.planner, h.activity, h.metrics, nil, logger)
	h.scheduler = NewScheduler(SchedulerConfig{
		Workers:         2,
		MaxJobAttempts:  2,
		JobRetry:        RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		LeaseTTL:        time.Minute,
		LivenessTimeout: 2 * time.Minute,
	}, h.connections, h.installations, h.jobs, h.claims, h.executor, h.activity, h.metrics, nil, logger)
	h.connSvc = NewConnectionService(h.connections, h.installations, h.jobs, h.vault, h.scheduler, h.activity, logger)
	return h
}

func (h *harness) install(shop string) {
	h.t.Helper()
	require.NoError(h.t, h.installations.Upsert(context.Background(), &domain.Installation{
		Shop:        shop,
		AccessToken: "enc:shpat_source",
		Scopes:      []string{"read_products"},
		InstalledAt: time.Now(),
	}))
}

func (h *harness) connection(rules domain.SyncRules) *domain.Connection {
	h.t.Helper()
	h.install(sourceShop)
	conn, err := h.connSvc.Create(context.Background(), CreateConnectionInput{
		InstallationShop: sourceShop,
		Name:             "Retail",
		Platform:         domain.PlatformWooCommerce,
		Destination: domain.DestinationCredentials{
			BaseURL:        "https://woo.example.com",
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
		},
		Rules: rules,
	})
	require.NoError(h.t, err)
	return conn
}

// connectionTo creates a WooCommerce connection backed by its own store.
func (h *harness) connectionTo(baseURL string, rules domain.SyncRules) (*domain.Connection, *fakeStore) {
	h.t.Helper()
	h.install(sourceShop)
	conn, err := h.connSvc.Create(context.Background(), CreateConnectionInput{
		InstallationShop: sourceShop,
		Name:             baseURL,
		Platform:         domain.PlatformWooCommerce,
		Destination: domain.DestinationCredentials{
			BaseURL:        baseURL,
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
		},
		Rules: rules,
	})
	require.NoError(h.t, err)
	store := newFakeStore(domain.PlatformWooCommerce)
	h.factory.mu.Lock()
	h.factory.routes[baseURL] = store
	h.factory.mu.Unlock()
	return conn, store
}

// waitForState blocks until the stored job reaches state.
func (h *harness) waitForState(jobID string, state domain.JobState, within time.Duration) *domain.SyncJob {
	h.t.Helper()
	var stored *domain.SyncJob
	require.Eventually(h.t, func() bool {
		var err error
		stored, err = h.jobs.Get(context.Background(), jobID)
		return err == nil && stored != nil && stored.State == state
	}, within, 2*time.Millisecond)
	return stored
}

// runningJob stores a job already in running state, as a worker would.
func (h *harness) runningJob(conn *domain.Connection, jobType domain.JobType, opts ...func(*domain.SyncJob)) *domain.SyncJob {
	h.t.Helper()
	now := time.Now()
	job := &domain.SyncJob{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		Type:         jobType,
		State:        domain.JobQueued,
		Attempt:      1,
		CreatedAt:    now,
		HeartbeatAt:  now,
	}
	for _, opt := range opts {
		opt(job)
	}
	require.NoError(h.t, h.jobs.Create(context.Background(), job))
	ok, err := h.claims.Acquire(context.Background(), claimKey(conn.ID), job.ID, time.Minute)
	require.NoError(h.t, err)
	require.True(h.t, ok)
	require.NoError(h.t, job.Transition(domain.JobRunning, now))
	ok, err = h.jobs.TransitionState(context.Background(), job.ID, domain.JobQueued, domain.JobRunning, job)
	require.NoError(h.t, err)
	require.True(h.t, ok)
	return job
}

func (h *harness) logCodes(connectionID string) []domain.Code {
	entries, err := h.logs.ListAll(context.Background(), connectionID)
	require.NoError(h.t, err)
	var codes []domain.Code
	for _, e := range entries {
		if e.Code != "" {
			codes = append(codes, e.Code)
		}
	}
	sort.Slice(codes, func(i, k int) bool { return codes[i] < codes[k] })
	return codes
}

func item(sku string, price string, stock int) domain.CatalogItem {
	return domain.CatalogItem{SKU: sku, Title: "Item " + sku, Price: decimal.RequireFromString(price), Stock: stock}
}

func rateLimited(after time.Duration) error {
	return &domain.ConnectorError{Kind: domain.KindRateLimited, Op: "update", Status: 429, RetryAfter: after}
}
