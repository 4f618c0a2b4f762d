// Package compliance is the application layer of the compliance engine. It
// loads consistent input snapshots from the data providers, runs the pure
// domain engine against one evaluation instant and hands the results to the
// cache, the alert publisher and the snapshot archive.
package compliance

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// Cache is the part of the Redis cache the service uses.
type Cache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// AlertPublisher delivers fired triggers to the notification system.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, tenantID string, alerts []domain.AlertEvent) error
}

// SnapshotArchiver stores computed reports for audit and history.
type SnapshotArchiver interface {
	ArchiveReport(ctx context.Context, tenantID string, report domain.EntityReport) (*minio.SnapshotInfo, error)
	ListSnapshots(ctx context.Context, tenantID, entityID string, limit int) ([]minio.SnapshotInfo, error)
}

// Dependencies wires the service. The five readers are required; Cache,
// Alerts and Archive are optional and their features are skipped when nil.
type Dependencies struct {
	Subscriptions domain.SubscriptionReader
	Tasks         domain.TaskReader
	Statuses      domain.StatusTaxonomyReader
	Entities      domain.EntityReader
	Triggers      domain.TriggerReader

	Cache   Cache
	Alerts  AlertPublisher
	Archive SnapshotArchiver

	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	// Clock supplies the evaluation instant. Defaults to time.Now.
	Clock func() time.Time
}

// Options are the tunables of the service, normally taken from
// config.ComplianceConfig.
type Options struct {
	Policy              domain.Policy
	CompletedStatusName string
	CompletedStatusID   int64
	FetchTimeout        time.Duration
	FetchConcurrency    int
	CacheTTL            time.Duration
}

const (
	defaultFetchTimeout     = 10 * time.Second
	defaultFetchConcurrency = 8
	defaultCacheTTL         = 5 * time.Minute
)

// Service is safe for concurrent use.
type Service struct {
	subs     domain.SubscriptionReader
	tasks    domain.TaskReader
	statuses domain.StatusTaxonomyReader
	entities domain.EntityReader
	triggers domain.TriggerReader

	cache   Cache
	alerts  AlertPublisher
	archive SnapshotArchiver

	logger  logging.Logger
	metrics *prometheus.AppMetrics
	clock   func() time.Time

	opts Options

	mu      sync.RWMutex
	policy  domain.Policy
	engines map[string]*domain.Engine // by tenant
}

// NewService validates deps and opts. Zero-valued timing options get
// defaults.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Subscriptions == nil || deps.Tasks == nil || deps.Statuses == nil || deps.Entities == nil || deps.Triggers == nil {
		return nil, errors.New(errors.ErrCodeInternal, "compliance service requires all data providers")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}

	s := &Service{
		subs:     deps.Subscriptions,
		tasks:    deps.Tasks,
		statuses: deps.Statuses,
		entities: deps.Entities,
		triggers: deps.Triggers,
		cache:    deps.Cache,
		alerts:   deps.Alerts,
		archive:  deps.Archive,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		opts:     opts,
		policy:   opts.Policy,
		engines:  make(map[string]*domain.Engine),
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewNoopAppMetrics()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.logger = s.logger.With(logging.Component("compliance-service"))
	return s, nil
}

// UpdatePolicy swaps the engine thresholds, for configuration hot reload.
// Cached engines are dropped; the completed status ids are re-resolved on
// next use.
func (s *Service) UpdatePolicy(p domain.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.policy = p
	s.engines = make(map[string]*domain.Engine)
	s.mu.Unlock()
	s.logger.Info("Compliance policy updated",
		logging.Int("upcoming_window_days", p.UpcomingWindowDays),
		logging.Int("horizon_months", p.HorizonMonths))
	return nil
}

// Policy returns the policy currently in effect.
func (s *Service) Policy() domain.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// CompletedStatusID resolves the tenant's completed status id once and
// memoizes it. An inconsistent taxonomy is returned as an
// ErrCodeStatusTaxonomyInconsistent error and never cached.
func (s *Service) CompletedStatusID(ctx context.Context, tenantID string) (int64, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return e.CompletedID(), nil
}

func (s *Service) engine(ctx context.Context, tenantID string) (*domain.Engine, error) {
	if err := requireID("tenant id", tenantID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	e, ok := s.engines[tenantID]
	policy := s.policy
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	statuses, err := s.statuses.ListStatuses(fetchCtx, tenantID)
	if err != nil {
		return nil, s.fetchError("statuses", err)
	}
	id, err := domain.ResolveCompletedID(statuses, s.opts.CompletedStatusName, s.opts.CompletedStatusID)
	if err != nil {
		s.logger.Error("Cannot resolve completed status", logging.TenantID(tenantID), logging.Err(err))
		return nil, err
	}
	e, err = domain.NewEngine(id, policy)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// A concurrent UpdatePolicy wins; the next call rebuilds with the new policy.
	if s.policy == policy {
		s.engines[tenantID] = e
	}
	s.mu.Unlock()

	s.logger.Info("Resolved completed status", logging.TenantID(tenantID), logging.Int64("status_id", id))
	return e, nil
}

// fetchError records a provider failure. Not-found and validation errors pass
// through; everything else becomes ErrCodeSnapshotIncomplete so no partial
// report is ever produced.
func (s *Service) fetchError(source string, err error) error {
	prometheus.RecordFetchError(s.metrics, source)
	if errors.IsNotFound(err) || errors.IsCode(err, errors.CodeInvalidParam) {
		return err
	}
	return errors.Wrap(err, errors.ErrCodeSnapshotIncomplete, "failed to load "+source)
}

func requireID(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New(errors.CodeInvalidParam, name+" is required")
	}
	return nil
}

func (s *Service) horizon(months int) int {
	if months > 0 {
		return months
	}
	return s.Policy().HorizonMonths
}
