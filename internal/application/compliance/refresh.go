package compliance

import (
	"context"
	"time"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/redis"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/messaging/kafka"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
)

// RefreshResult is the outcome of one RefreshEntity call.
type RefreshResult struct {
	Report   domain.EntityReport
	Alerts   []domain.AlertEvent
	Snapshot *minio.SnapshotInfo
}

// RefreshEntity recomputes an entity after its inputs changed. One snapshot
// feeds both the report and the trigger evaluation. The fresh report replaces
// any cached one and is archived; archive failures are logged only. Alert
// publishing failures are returned so the caller can retry.
func (s *Service) RefreshEntity(ctx context.Context, tenantID, entityID string) (*RefreshResult, error) {
	if err := requireID("entity id", entityID); err != nil {
		return nil, err
	}
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	snap, triggers, err := s.loadForAlerts(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	horizon := s.horizon(0)

	report, err := s.evaluate(e, tenantID, snap, horizon, now)
	if err != nil {
		return nil, err
	}
	res := &RefreshResult{
		Report: report,
		Alerts: e.EvaluateTriggers(snap.Entity.ID, report.Scorecard.Breakdown, triggers, now),
	}

	if err := s.InvalidateEntity(ctx, tenantID, entityID); err != nil {
		s.logger.Warn("Failed to invalidate cached reports",
			logging.TenantID(tenantID), logging.EntityID(entityID), logging.Err(err))
	} else if s.cache != nil {
		var cached domain.EntityReport
		err := s.cache.GetOrSet(ctx, reportKey(tenantID, entityID, horizon, now), &cached, s.opts.CacheTTL,
			func(context.Context) (interface{}, error) { return report, nil })
		if err != nil {
			s.logger.Warn("Failed to cache refreshed report",
				logging.TenantID(tenantID), logging.EntityID(entityID), logging.Err(err))
		}
	}

	if s.archive != nil {
		info, err := s.archive.ArchiveReport(ctx, tenantID, report)
		prometheus.RecordSnapshotArchive(s.metrics, err)
		if err != nil {
			s.logger.Warn("Failed to archive report snapshot",
				logging.TenantID(tenantID), logging.EntityID(entityID), logging.Err(err))
		} else {
			res.Snapshot = info
		}
	}

	if err := s.publish(ctx, tenantID, entityID, res.Alerts); err != nil {
		return res, err
	}
	return res, nil
}

// Refresher reacts to task-changed events. Recomputations of the same entity
// are serialised across worker replicas with a Redis mutex.
type Refresher struct {
	svc     *Service
	locks   redis.LockFactory
	lockTTL time.Duration
	logger  logging.Logger
}

// NewRefresher builds a Refresher. locks may be nil for a single worker.
func NewRefresher(svc *Service, locks redis.LockFactory, lockTTL time.Duration, logger logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Refresher{svc: svc, locks: locks, lockTTL: lockTTL, logger: logger}
}

// HandleTaskChanged refreshes the entity named by evt. It has the
// kafka.TaskChangedFunc signature.
func (r *Refresher) HandleTaskChanged(ctx context.Context, evt kafka.TaskChangedPayload) error {
	if r.locks != nil {
		mu := r.locks.NewMutex("entity:"+evt.TenantID+":"+evt.EntityID, redis.WithLockTTL(r.lockTTL))
		if err := mu.Lock(ctx); err != nil {
			return err
		}
		stop := r.keepAlive(ctx, mu, evt.EntityID)
		defer func() {
			stop()
			if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
				r.logger.Debug("Entity lock release failed", logging.EntityID(evt.EntityID), logging.Err(err))
			}
		}()
	}

	res, err := r.svc.RefreshEntity(ctx, evt.TenantID, evt.EntityID)
	if err != nil {
		r.logger.Warn("Entity refresh failed",
			logging.TenantID(evt.TenantID),
			logging.EntityID(evt.EntityID),
			logging.String("task_id", evt.TaskID),
			logging.Err(err))
		return err
	}
	r.logger.Info("Entity refreshed",
		logging.TenantID(evt.TenantID),
		logging.EntityID(evt.EntityID),
		logging.String("change_type", evt.ChangeType),
		logging.Int("overall_score_pct", res.Report.Scorecard.OverallScorePct),
		logging.Int("alerts", len(res.Alerts)))
	return nil
}

// keepAlive extends mu every third of the lock TTL until the returned stop
// func is called. A lost lock is logged; the refresh itself continues since
// recomputation is idempotent.
func (r *Refresher) keepAlive(ctx context.Context, mu redis.DistributedLock, entityID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := mu.Extend(ctx, r.lockTTL)
				if err != nil || !ok {
					r.logger.Warn("Entity lock lost during refresh", logging.EntityID(entityID), logging.Err(err))
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
