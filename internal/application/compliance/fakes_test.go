package compliance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/redis"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

// ---------------------------------------------------------------------------
// In-memory data providers
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu       sync.Mutex
	statuses []domain.StatusDefinition
	entities map[string]domain.Entity
	subs     map[string][]domain.ServiceSubscription
	tasks    []domain.ComplianceTask
	triggers []domain.WorkflowTrigger

	subsErr  error
	tasksErr error

	statusCalls int
	taskCalls   int
}

func (f *fakeStore) ListStatuses(_ context.Context, _ string) ([]domain.StatusDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return f.statuses, nil
}

func (f *fakeStore) GetEntity(_ context.Context, _, entityID string) (*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[entityID]
	if !ok {
		return nil, errors.New(errors.ErrCodeEntityNotFound, "entity not found")
	}
	return &e, nil
}

func (f *fakeStore) ListEntities(_ context.Context, _ string) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Entity, 0, len(f.entities))
	for _, e := range f.entities {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, _, entityID string) ([]domain.ServiceSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subsErr != nil {
		return nil, f.subsErr
	}
	return f.subs[entityID], nil
}

func (f *fakeStore) ListTasksByEntity(_ context.Context, _, entityID string) ([]domain.ComplianceTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCalls++
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	var out []domain.ComplianceTask
	for _, t := range f.tasks {
		if t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTasks(_ context.Context, _ string) ([]domain.ComplianceTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCalls++
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	return f.tasks, nil
}

func (f *fakeStore) ListActiveTriggers(_ context.Context, _ string) ([]domain.WorkflowTrigger, error) {
	return f.triggers, nil
}

func (f *fakeStore) calls() (statuses, tasks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.taskCalls
}

// newFakeStore returns one entity with four services as of testNow:
//
//	AUDIT   completed yearly on 2024-06-01, compliant
//	LATE    deadline five days ago, overdue
//	PAYROLL required but not subscribed
//	VAT     deadline in ten days, upcoming
func newFakeStore() *fakeStore {
	sub := func(id, name string, subscribed bool) domain.ServiceSubscription {
		return domain.ServiceSubscription{EntityID: "ent-1", ServiceTypeID: id, ServiceName: name, IsRequired: true, IsSubscribed: subscribed}
	}
	return &fakeStore{
		statuses: []domain.StatusDefinition{{ID: 1, Name: "Open"}, {ID: 2, Name: "Completed"}},
		entities: map[string]domain.Entity{
			"ent-1": {ID: "ent-1", Name: "Acme GmbH", Jurisdiction: "DE"},
			"ent-2": {ID: "ent-2", Name: "Acme SARL", Jurisdiction: "FR"},
		},
		subs: map[string][]domain.ServiceSubscription{
			"ent-1": {
				sub("VAT", "VAT Return", true),
				sub("AUDIT", "Annual Audit", true),
				sub("LATE", "Late Filing", true),
				sub("PAYROLL", "Payroll", false),
			},
			"ent-2": {
				{EntityID: "ent-2", ServiceTypeID: "VAT", ServiceName: "VAT Return", IsRequired: true, IsSubscribed: true},
			},
		},
		tasks: []domain.ComplianceTask{
			{ID: "t1", EntityID: "ent-1", ServiceTypeID: "VAT", StatusID: 1, AssigneeID: "alice",
				CreatedAt: testNow.AddDate(0, 0, -20), ComplianceDeadline: at(testNow.AddDate(0, 0, 10)), ComplianceFrequency: "Monthly"},
			{ID: "t2", EntityID: "ent-1", ServiceTypeID: "AUDIT", StatusID: 2, AssigneeID: "bob",
				CreatedAt: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), ComplianceFrequency: "Yearly"},
			{ID: "t3", EntityID: "ent-1", ServiceTypeID: "LATE", StatusID: 1, AssigneeID: "alice",
				CreatedAt: testNow.AddDate(0, 0, -40), ComplianceDeadline: at(testNow.AddDate(0, 0, -5)), ComplianceFrequency: "Quarterly"},
			{ID: "t4", EntityID: "ent-2", ServiceTypeID: "VAT", StatusID: 2, AssigneeID: "bob",
				CreatedAt: testNow.AddDate(0, 0, -3), ComplianceDeadline: at(testNow.AddDate(0, 1, 0))},
		},
		triggers: []domain.WorkflowTrigger{
			{ID: "trg-overdue", Name: "Overdue escalation", Event: domain.EventTaskOverdue, Active: true},
			{ID: "trg-soon", Name: "Two week reminder", Event: domain.EventDeadlineApproaching, Active: true, DaysBefore: 14},
			{ID: "trg-off", Name: "Disabled", Event: domain.EventTaskOverdue, Active: false},
		},
	}
}

// ---------------------------------------------------------------------------
// Cache, publisher, archive and locks
// ---------------------------------------------------------------------------

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	err     error
	lastTTL time.Duration
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	c.mu.Lock()
	c.lastTTL = ttl
	raw, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		v, err := loader(ctx)
		if err != nil {
			return err
		}
		if raw, err = json.Marshal(v); err != nil {
			return err
		}
		c.mu.Lock()
		c.data[key] = raw
		c.mu.Unlock()
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	var n int64
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func (c *fakeCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	return out
}

type fakePublisher struct {
	tenant string
	sent   []domain.AlertEvent
	err    error
}

func (p *fakePublisher) PublishAlerts(_ context.Context, tenantID string, alerts []domain.AlertEvent) error {
	if p.err != nil {
		return p.err
	}
	p.tenant = tenantID
	p.sent = append(p.sent, alerts...)
	return nil
}

type fakeArchive struct {
	reports []domain.EntityReport
	err     error
}

func (a *fakeArchive) ArchiveReport(_ context.Context, tenantID string, report domain.EntityReport) (*minio.SnapshotInfo, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.reports = append(a.reports, report)
	return &minio.SnapshotInfo{
		Key:         minio.SnapshotKey(tenantID, report.EntityID, report.GeneratedAt),
		TenantID:    tenantID,
		EntityID:    report.EntityID,
		GeneratedAt: report.GeneratedAt,
	}, nil
}

func (a *fakeArchive) ListSnapshots(_ context.Context, tenantID, entityID string, _ int) ([]minio.SnapshotInfo, error) {
	out := make([]minio.SnapshotInfo, 0, len(a.reports))
	for i := len(a.reports) - 1; i >= 0; i-- {
		out = append(out, minio.SnapshotInfo{TenantID: tenantID, EntityID: entityID, GeneratedAt: a.reports[i].GeneratedAt})
	}
	return out, nil
}

type fakeLock struct {
	factory *fakeLockFactory
	name    string
}

func (l *fakeLock) Lock(context.Context) error {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()
	if l.factory.lockErr != nil {
		return l.factory.lockErr
	}
	l.factory.locked = append(l.factory.locked, l.name)
	return nil
}

func (l *fakeLock) TryLock(ctx context.Context) (bool, error) { return true, l.Lock(ctx) }

func (l *fakeLock) Unlock(context.Context) error {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()
	l.factory.unlocked = append(l.factory.unlocked, l.name)
	return nil
}

func (l *fakeLock) Extend(context.Context, time.Duration) (bool, error) {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()
	l.factory.extends++
	return !l.factory.lost, nil
}

type fakeLockFactory struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	lockErr  error
	extends  int
	lost     bool
}

func (f *fakeLockFactory) extendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extends
}

func (f *fakeLockFactory) NewMutex(name string, _ ...redis.LockOption) redis.DistributedLock {
	return &fakeLock{factory: f, name: name}
}

// ---------------------------------------------------------------------------
// Service construction
// ---------------------------------------------------------------------------

type fixture struct {
	store   *fakeStore
	cache   *fakeCache
	pub     *fakePublisher
	archive *fakeArchive
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newFakeStore(),
		cache:   newFakeCache(),
		pub:     &fakePublisher{},
		archive: &fakeArchive{},
	}
	f.svc = f.build(t, Options{Policy: domain.DefaultPolicy()})
	return f
}

func (f *fixture) build(t *testing.T, opts Options) *Service {
	t.Helper()
	svc, err := NewService(Dependencies{
		Subscriptions: f.store,
		Tasks:         f.store,
		Statuses:      f.store,
		Entities:      f.store,
		Triggers:      f.store,
		Cache:         f.cache,
		Alerts:        f.pub,
		Archive:       f.archive,
		Clock:         func() time.Time { return testNow },
	}, opts)
	require.NoError(t, err)
	return svc
}

func (c *fakeCache) clear() error {
	_, err := c.DeleteByPrefix(context.Background(), "")
	return err
}
