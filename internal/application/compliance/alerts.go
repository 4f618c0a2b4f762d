package compliance

import (
	"context"
	"time"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
)

// EvaluateAlerts evaluates the tenant's active triggers against one entity
// and publishes the alerts that fire. The alerts are returned even when
// publishing fails; the error then reports the failed delivery.
func (s *Service) EvaluateAlerts(ctx context.Context, tenantID, entityID string) ([]domain.AlertEvent, error) {
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

	start := time.Now()
	records, err := e.Aggregate(snap.Subscriptions, snap.Tasks, now)
	if err != nil {
		prometheus.RecordEvaluation(s.metrics, "alerts", time.Since(start), err)
		return nil, err
	}
	alerts := e.EvaluateTriggers(snap.Entity.ID, records, triggers, now)
	prometheus.RecordEvaluation(s.metrics, "alerts", time.Since(start), nil)

	return alerts, s.publish(ctx, tenantID, entityID, alerts)
}

func (s *Service) loadForAlerts(ctx context.Context, tenantID, entityID string) (domain.EntitySnapshot, []domain.WorkflowTrigger, error) {
	snap, err := s.loadEntity(ctx, tenantID, entityID)
	if err != nil {
		return domain.EntitySnapshot{}, nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	triggers, err := s.triggers.ListActiveTriggers(fetchCtx, tenantID)
	if err != nil {
		return domain.EntitySnapshot{}, nil, s.fetchError("triggers", err)
	}
	return snap, triggers, nil
}

func (s *Service) publish(ctx context.Context, tenantID, entityID string, alerts []domain.AlertEvent) error {
	counts := make(map[domain.TriggerEvent]int)
	for _, a := range alerts {
		counts[a.Event]++
	}
	for event, n := range counts {
		prometheus.RecordAlerts(s.metrics, string(event), n)
	}

	if len(alerts) == 0 || s.alerts == nil {
		return nil
	}
	err := s.alerts.PublishAlerts(ctx, tenantID, alerts)
	prometheus.RecordAlertPublish(s.metrics, len(alerts), err)
	if err != nil {
		s.logger.Error("Failed to publish alerts",
			logging.TenantID(tenantID), logging.EntityID(entityID),
			logging.Int("alerts", len(alerts)), logging.Err(err))
		return err
	}
	s.logger.Info("Alerts published",
		logging.TenantID(tenantID), logging.EntityID(entityID), logging.Int("alerts", len(alerts)))
	return nil
}
