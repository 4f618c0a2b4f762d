package compliance

import (
	"context"
	"fmt"
	"time"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const reportCache = "entity_report"

// reportKey scopes a cached report to the UTC calendar day of the evaluation
// instant. Classification uses the exact instant, so a task can turn overdue
// within the day; a cached report is stale by at most the cache TTL.
func reportKey(tenantID, entityID string, horizon int, now time.Time) string {
	return fmt.Sprintf("%s%d:%s", reportPrefix(tenantID, entityID), horizon, now.UTC().Format("20060102"))
}

func reportPrefix(tenantID, entityID string) string {
	return fmt.Sprintf("report:%s:%s:h", tenantID, entityID)
}

// GetEntityReport returns the scorecard and upcoming deadlines of one entity.
// horizonMonths <= 0 selects the policy horizon. Reports are served from the
// cache when one is configured.
func (s *Service) GetEntityReport(ctx context.Context, tenantID, entityID string, horizonMonths int) (*domain.EntityReport, error) {
	if err := requireID("entity id", entityID); err != nil {
		return nil, err
	}
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	horizon := s.horizon(horizonMonths)
	now := s.clock()

	if s.cache == nil {
		report, err := s.computeReport(ctx, e, tenantID, entityID, horizon, now)
		if err != nil {
			return nil, err
		}
		return &report, nil
	}

	var (
		report domain.EntityReport
		loaded bool
	)
	err = s.cache.GetOrSet(ctx, reportKey(tenantID, entityID, horizon, now), &report, s.opts.CacheTTL,
		func(ctx context.Context) (interface{}, error) {
			loaded = true
			return s.computeReport(ctx, e, tenantID, entityID, horizon, now)
		})
	if err != nil {
		return nil, err
	}
	prometheus.RecordCacheAccess(s.metrics, reportCache, !loaded)
	return &report, nil
}

func (s *Service) computeReport(ctx context.Context, e *domain.Engine, tenantID, entityID string, horizon int, now time.Time) (domain.EntityReport, error) {
	snap, err := s.loadEntity(ctx, tenantID, entityID)
	if err != nil {
		return domain.EntityReport{}, err
	}
	return s.evaluate(e, tenantID, snap, horizon, now)
}

func (s *Service) evaluate(e *domain.Engine, tenantID string, snap domain.EntitySnapshot, horizon int, now time.Time) (domain.EntityReport, error) {
	start := time.Now()
	report, err := e.Evaluate(snap.Entity.ID, snap.Subscriptions, snap.Tasks, now, horizon)
	prometheus.RecordEvaluation(s.metrics, "entity_report", time.Since(start), err)
	if err != nil {
		s.logger.Warn("Entity evaluation failed",
			logging.TenantID(tenantID), logging.EntityID(snap.Entity.ID), logging.Err(err))
		return domain.EntityReport{}, err
	}

	sc := report.Scorecard
	defaulted := 0
	for _, r := range sc.Breakdown {
		if r.RecurrenceDefaulted {
			defaulted++
		}
	}
	prometheus.RecordScorecard(s.metrics, tenantID, sc.OverallScorePct,
		sc.CompliantServices, sc.OverdueServices, sc.UpcomingCount, sc.NotSubscribedServices, defaulted)
	s.logger.Debug("Entity evaluated",
		logging.TenantID(tenantID),
		logging.EntityID(snap.Entity.ID),
		logging.Int("overall_score_pct", sc.OverallScorePct),
		logging.Int("services", sc.TotalServices),
		logging.Int("deadlines", len(report.Deadlines)))
	return report, nil
}

// GetUpcomingDeadlines returns the ranked deadlines of one entity within
// horizonMonths (policy horizon when <= 0).
func (s *Service) GetUpcomingDeadlines(ctx context.Context, tenantID, entityID string, horizonMonths int) ([]domain.UpcomingDeadline, error) {
	report, err := s.GetEntityReport(ctx, tenantID, entityID, horizonMonths)
	if err != nil {
		return nil, err
	}
	return report.Deadlines, nil
}

// GetJurisdictionRisk scores every jurisdiction of the tenant.
func (s *Service) GetJurisdictionRisk(ctx context.Context, tenantID string) ([]domain.RiskProfile, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.loadTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	profiles, err := e.JurisdictionRisk(snaps, s.clock())
	prometheus.RecordEvaluation(s.metrics, "jurisdiction_risk", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Jurisdiction risk computed",
		logging.TenantID(tenantID), logging.Int("entities", len(snaps)), logging.Int("jurisdictions", len(profiles)))
	return profiles, nil
}

// GetTeamEfficiency scores every assignee of the tenant's tasks.
func (s *Service) GetTeamEfficiency(ctx context.Context, tenantID string) ([]domain.TeamMemberEfficiency, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	tasks, err := s.tasks.ListTasks(fetchCtx, tenantID)
	if err != nil {
		return nil, s.fetchError("tasks", err)
	}

	start := time.Now()
	rows := e.TeamEfficiency(tasks, s.clock())
	prometheus.RecordEvaluation(s.metrics, "team_efficiency", time.Since(start), nil)
	return rows, nil
}

// ListSnapshots lists archived reports of one entity, newest first.
func (s *Service) ListSnapshots(ctx context.Context, tenantID, entityID string, limit int) ([]minio.SnapshotInfo, error) {
	if s.archive == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "snapshot archive is not configured")
	}
	if err := requireID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if err := requireID("entity id", entityID); err != nil {
		return nil, err
	}
	return s.archive.ListSnapshots(ctx, tenantID, entityID, limit)
}

// InvalidateEntity drops every cached report of the entity.
func (s *Service) InvalidateEntity(ctx context.Context, tenantID, entityID string) error {
	if s.cache == nil {
		return nil
	}
	n, err := s.cache.DeleteByPrefix(ctx, reportPrefix(tenantID, entityID))
	if err != nil {
		return err
	}
	s.logger.Debug("Entity reports invalidated",
		logging.TenantID(tenantID), logging.EntityID(entityID), logging.Int64("keys", n))
	return nil
}
