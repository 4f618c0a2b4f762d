package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// BatchPublisher is the part of Producer the alert publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchPublishResult, error)
}

// AlertPayload is the payload of an EventTypeAlertFired envelope.
type AlertPayload struct {
	TenantID string                `json:"tenant_id"`
	Alert    compliance.AlertEvent `json:"alert"`
}

// AlertPublisher emits fired workflow triggers on the alerts topic. Records
// are keyed by entity so one entity's alerts stay ordered.
type AlertPublisher struct {
	producer BatchPublisher
	topic    string
	source   string
	logger   logging.Logger
}

func NewAlertPublisher(p BatchPublisher, topic, source string, logger logging.Logger) *AlertPublisher {
	if topic == "" {
		topic = TopicComplianceAlerts
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AlertPublisher{producer: p, topic: topic, source: source, logger: logger}
}

// PublishAlerts writes one envelope per alert. The envelope EventID is the
// alert ID so downstream consumers can deduplicate re-evaluations.
func (a *AlertPublisher) PublishAlerts(ctx context.Context, tenantID string, alerts []compliance.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}

	msgs := make([]*ProducerMessage, 0, len(alerts))
	for _, alert := range alerts {
		env, err := NewEventEnvelope(EventTypeAlertFired, a.source, AlertPayload{TenantID: tenantID, Alert: alert})
		if err != nil {
			return err
		}
		env.EventID = alert.ID
		if !alert.EvaluatedAt.IsZero() {
			env.Timestamp = alert.EvaluatedAt.UTC()
		}
		env.Metadata = map[string]string{HeaderTenantID: tenantID, "trigger_id": alert.TriggerID}

		msg, err := env.ToMessage(a.topic, []byte(alert.EntityID))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	res, err := a.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		first := res.Errors[0].Error
		a.logger.Error("Alert publish incomplete",
			logging.TenantID(tenantID),
			logging.Int("failed", res.Failed),
			logging.Int("succeeded", res.Succeeded),
			logging.Err(first))
		return ErrPublishFailed.WithCause(first).WithDetail(fmt.Sprintf("%d of %d alerts failed", res.Failed, len(msgs)))
	}

	a.logger.Info("Alerts published",
		logging.TenantID(tenantID),
		logging.Int("count", res.Succeeded),
		logging.String("topic", a.topic))
	return nil
}

// TaskChangedPayload is the payload of an EventTypeTaskChanged envelope,
// emitted by the task system whenever a task is created, updated or deleted.
type TaskChangedPayload struct {
	TenantID      string    `json:"tenant_id"`
	EntityID      string    `json:"entity_id"`
	TaskID        string    `json:"task_id"`
	ServiceTypeID string    `json:"service_type_id,omitempty"`
	StatusID      int64     `json:"status_id,omitempty"`
	ChangeType    string    `json:"change_type,omitempty"` // created | updated | deleted
	ChangedAt     time.Time `json:"changed_at"`
}

// Validate checks the identifiers the worker keys on.
func (p TaskChangedPayload) Validate() error {
	if p.TenantID == "" || p.EntityID == "" {
		return errors.New(errors.ErrCodeValidation, "task-changed event requires tenant_id and entity_id").WithDetail(p.TaskID)
	}
	return nil
}

// TaskChangedFunc handles one decoded task-changed event.
type TaskChangedFunc func(ctx context.Context, evt TaskChangedPayload) error

// NewTaskChangedHandler adapts fn to a MessageHandler. Records that cannot be
// decoded, or carry another event type, are logged and skipped rather than
// retried.
func NewTaskChangedHandler(fn TaskChangedFunc, logger logging.Logger) MessageHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(ctx context.Context, msg *Message) error {
		env, err := MessageToEventEnvelope(msg)
		if err != nil {
			logger.Warn("Skipping undecodable task event",
				logging.String("topic", msg.Topic), logging.Int64("offset", msg.Offset), logging.Err(err))
			return nil
		}
		if env.EventType != EventTypeTaskChanged {
			logger.Debug("Ignoring event", logging.String("event_type", env.EventType))
			return nil
		}
		var evt TaskChangedPayload
		if err := env.DecodePayload(&evt); err != nil {
			logger.Warn("Skipping task event with bad payload", logging.String("event_id", env.EventID), logging.Err(err))
			return nil
		}
		if err := evt.Validate(); err != nil {
			logger.Warn("Skipping invalid task event", logging.String("event_id", env.EventID), logging.Err(err))
			return nil
		}
		return fn(ctx, evt)
	}
}
