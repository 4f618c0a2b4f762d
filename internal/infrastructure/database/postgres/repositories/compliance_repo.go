package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// Repositories bundles every compliance reader over one connection.
type Repositories struct {
	Subscriptions *SubscriptionRepo
	Tasks         *TaskRepo
	Statuses      *StatusRepo
	Entities      *EntityRepo
	Triggers      *TriggerRepo
}

// NewRepositories builds all readers. log and metrics may be nil.
func NewRepositories(conn *postgres.Connection, log logging.Logger, metrics *prometheus.AppMetrics) *Repositories {
	base := newBaseRepo(conn, log, metrics)
	return &Repositories{
		Subscriptions: &SubscriptionRepo{baseRepo: base},
		Tasks:         &TaskRepo{baseRepo: base},
		Statuses:      &StatusRepo{baseRepo: base},
		Entities:      &EntityRepo{baseRepo: base},
		Triggers:      &TriggerRepo{baseRepo: base},
	}
}

var (
	_ compliance.SubscriptionReader   = (*SubscriptionRepo)(nil)
	_ compliance.TaskReader           = (*TaskRepo)(nil)
	_ compliance.StatusTaxonomyReader = (*StatusRepo)(nil)
	_ compliance.EntityReader         = (*EntityRepo)(nil)
	_ compliance.TriggerReader        = (*TriggerRepo)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Subscriptions
// ─────────────────────────────────────────────────────────────────────────────

type SubscriptionRepo struct {
	baseRepo
}

const listSubscriptionsSQL = `
	SELECT s.entity_id, s.service_type_id, COALESCE(st.name, ''),
	       s.is_required, s.is_subscribed, COALESCE(st.billing_basis, '')
	FROM entity_service_subscriptions s
	LEFT JOIN service_types st ON st.id = s.service_type_id AND st.tenant_id = s.tenant_id
	WHERE s.tenant_id = $1 AND s.entity_id = $2
	ORDER BY s.service_type_id`

func (r *SubscriptionRepo) ListSubscriptions(ctx context.Context, tenantID, entityID string) (subs []compliance.ServiceSubscription, err error) {
	defer r.observe("list_subscriptions", time.Now(), &err)

	rows, err := r.executor().QueryContext(ctx, listSubscriptionsSQL, tenantID, entityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query subscriptions")
	}
	defer rows.Close()

	subs = []compliance.ServiceSubscription{}
	for rows.Next() {
		var s compliance.ServiceSubscription
		if err = rows.Scan(&s.EntityID, &s.ServiceTypeID, &s.ServiceName, &s.IsRequired, &s.IsSubscribed, &s.BillingBasis); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan subscription")
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate subscriptions")
	}
	return subs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Tasks
// ─────────────────────────────────────────────────────────────────────────────

type TaskRepo struct {
	baseRepo
}

const taskColumns = `
	id, entity_id, service_type_id, status_id, COALESCE(assignee_id, ''),
	created_at, updated_at, compliance_deadline, COALESCE(compliance_frequency, ''),
	compliance_start_date, compliance_end_date, due_date, completed_at`

func (r *TaskRepo) ListTasksByEntity(ctx context.Context, tenantID, entityID string) (tasks []compliance.ComplianceTask, err error) {
	defer r.observe("list_tasks_by_entity", time.Now(), &err)
	query := `SELECT` + taskColumns + `
	FROM tasks
	WHERE tenant_id = $1 AND entity_id = $2 AND service_type_id IS NOT NULL
	ORDER BY created_at, id`
	return r.query(ctx, query, tenantID, entityID)
}

func (r *TaskRepo) ListTasks(ctx context.Context, tenantID string) (tasks []compliance.ComplianceTask, err error) {
	defer r.observe("list_tasks", time.Now(), &err)
	query := `SELECT` + taskColumns + `
	FROM tasks
	WHERE tenant_id = $1
	ORDER BY created_at, id`
	return r.query(ctx, query, tenantID)
}

func (r *TaskRepo) query(ctx context.Context, query string, args ...interface{}) ([]compliance.ComplianceTask, error) {
	rows, err := r.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query tasks")
	}
	defer rows.Close()

	tasks := []compliance.ComplianceTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan task")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate tasks")
	}
	return tasks, nil
}

func scanTask(s scanner) (compliance.ComplianceTask, error) {
	var (
		t                                     compliance.ComplianceTask
		serviceTypeID                         sql.NullString
		deadline, start, end, due, completed sql.NullTime
	)
	// Generic tasks carry no service type; they still count for team efficiency.
	err := s.Scan(
		&t.ID, &t.EntityID, &serviceTypeID, &t.StatusID, &t.AssigneeID,
		&t.CreatedAt, &t.UpdatedAt, &deadline, &t.ComplianceFrequency,
		&start, &end, &due, &completed,
	)
	if err != nil {
		return compliance.ComplianceTask{}, err
	}
	t.ServiceTypeID = serviceTypeID.String
	t.ComplianceDeadline = nullTimePtr(deadline)
	t.ComplianceStartDate = nullTimePtr(start)
	t.ComplianceEndDate = nullTimePtr(end)
	t.DueDate = nullTimePtr(due)
	t.CompletedAt = nullTimePtr(completed)
	return t, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Status taxonomy
// ─────────────────────────────────────────────────────────────────────────────

type StatusRepo struct {
	baseRepo
}

func (r *StatusRepo) ListStatuses(ctx context.Context, tenantID string) (statuses []compliance.StatusDefinition, err error) {
	defer r.observe("list_statuses", time.Now(), &err)

	rows, err := r.executor().QueryContext(ctx,
		`SELECT id, name, rank FROM task_statuses WHERE tenant_id = $1 ORDER BY rank, id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query task statuses")
	}
	defer rows.Close()

	statuses = []compliance.StatusDefinition{}
	for rows.Next() {
		var s compliance.StatusDefinition
		if err = rows.Scan(&s.ID, &s.Name, &s.Rank); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan task status")
		}
		statuses = append(statuses, s)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate task statuses")
	}
	return statuses, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Entities
// ─────────────────────────────────────────────────────────────────────────────

type EntityRepo struct {
	baseRepo
}

const entityColumns = `id, name, COALESCE(client_id, ''), COALESCE(jurisdiction, '')`

func scanEntity(s scanner) (compliance.Entity, error) {
	var e compliance.Entity
	err := s.Scan(&e.ID, &e.Name, &e.ClientID, &e.Jurisdiction)
	return e, err
}

func (r *EntityRepo) GetEntity(ctx context.Context, tenantID, entityID string) (entity *compliance.Entity, err error) {
	defer r.observe("get_entity", time.Now(), &err)

	row := r.executor().QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE tenant_id = $1 AND id = $2`, tenantID, entityID)
	e, err := scanEntity(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeEntityNotFound, "entity not found").WithDetail(entityID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get entity")
	}
	return &e, nil
}

func (r *EntityRepo) ListEntities(ctx context.Context, tenantID string) (entities []compliance.Entity, err error) {
	defer r.observe("list_entities", time.Now(), &err)

	rows, err := r.executor().QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE tenant_id = $1 ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query entities")
	}
	defer rows.Close()

	entities = []compliance.Entity{}
	for rows.Next() {
		e, scanErr := scanEntity(rows)
		if scanErr != nil {
			err = errors.Wrap(scanErr, errors.ErrCodeDatabaseError, "failed to scan entity")
			return nil, err
		}
		entities = append(entities, e)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate entities")
	}
	return entities, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Workflow triggers
// ─────────────────────────────────────────────────────────────────────────────

type TriggerRepo struct {
	baseRepo
}

// ListActiveTriggers returns active triggers for the compliance events only.
// Rows whose actions column is not valid JSON are skipped with a warning.
func (r *TriggerRepo) ListActiveTriggers(ctx context.Context, tenantID string) (triggers []compliance.WorkflowTrigger, err error) {
	defer r.observe("list_active_triggers", time.Now(), &err)

	rows, err := r.executor().QueryContext(ctx, `
	SELECT id, name, event, days_before, actions
	FROM workflow_triggers
	WHERE tenant_id = $1 AND is_active AND event IN ('task_overdue', 'deadline_approaching')
	ORDER BY id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query workflow triggers")
	}
	defer rows.Close()

	triggers = []compliance.WorkflowTrigger{}
	for rows.Next() {
		var (
			t       compliance.WorkflowTrigger
			event   string
			actions []byte
		)
		if err = rows.Scan(&t.ID, &t.Name, &event, &t.DaysBefore, &actions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan workflow trigger")
		}
		t.Event = compliance.TriggerEvent(event)
		t.Active = true
		if len(actions) > 0 {
			if jsonErr := json.Unmarshal(actions, &t.Actions); jsonErr != nil {
				r.log.Warn("skipping trigger with malformed actions",
					logging.String("trigger_id", t.ID), logging.Err(jsonErr))
				continue
			}
		}
		triggers = append(triggers, t)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate workflow triggers")
	}
	return triggers, nil
}
