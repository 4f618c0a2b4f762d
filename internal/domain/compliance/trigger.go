package compliance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

// TriggerEvent is the compliance condition a workflow trigger listens for.
type TriggerEvent string

const (
	// EventTaskOverdue fires for every service whose status is overdue.
	EventTaskOverdue TriggerEvent = "task_overdue"

	// EventDeadlineApproaching fires when a service is due within the
	// trigger's DaysBefore window.
	EventDeadlineApproaching TriggerEvent = "deadline_approaching"
)

// TriggerAction is an action record attached to a trigger. The engine passes
// it through untouched; delivery is handled downstream.
type TriggerAction struct {
	Type   string            `json:"type" yaml:"type"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// WorkflowTrigger is a tenant-configured automation rule.
type WorkflowTrigger struct {
	ID     string       `json:"id" yaml:"id"`
	Name   string       `json:"name" yaml:"name"`
	Event  TriggerEvent `json:"event" yaml:"event"`
	Active bool         `json:"active" yaml:"active"`

	// DaysBefore is the approaching window for EventDeadlineApproaching.
	// Zero uses the classifier's upcoming window.
	DaysBefore int `json:"days_before,omitempty" yaml:"days_before,omitempty"`

	Actions []TriggerAction `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Validate checks the trigger is something the engine can evaluate.
func (t WorkflowTrigger) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New(errors.ErrCodeTriggerInvalid, "trigger id is required")
	}
	switch t.Event {
	case EventTaskOverdue, EventDeadlineApproaching:
	default:
		return errors.New(errors.ErrCodeTriggerInvalid, "unsupported trigger event").
			WithDetail(fmt.Sprintf("trigger %s: %q", t.ID, t.Event))
	}
	if t.DaysBefore < 0 {
		return errors.New(errors.ErrCodeTriggerInvalid, "days_before must not be negative").WithDetail(t.ID)
	}
	return nil
}

// AlertEvent is a fired trigger for one service of one entity. ID is derived
// from the trigger, entity, service and due date, so re-evaluating the same
// situation yields the same ID and consumers can deduplicate.
type AlertEvent struct {
	ID           string          `json:"id"`
	TriggerID    string          `json:"trigger_id"`
	TriggerName  string          `json:"trigger_name"`
	Event        TriggerEvent    `json:"event"`
	EntityID     string          `json:"entity_id"`
	ServiceID    string          `json:"service_id"`
	ServiceName  string          `json:"service_name"`
	Status       Status          `json:"status"`
	DueDate      time.Time       `json:"due_date"`
	DaysUntilDue int             `json:"days_until_due"`
	Actions      []TriggerAction `json:"actions,omitempty"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
}

// EvaluateTriggers decides which active triggers fire for the records of one
// entity. Only required and subscribed services with a due date are
// considered, and the decision uses the same DaysUntil and Classify rules as
// the scorecard so alerts never disagree with reported status. Invalid
// triggers are skipped. The result is ordered by trigger id, then service
// name.
func (e *Engine) EvaluateTriggers(entityID string, records []ServiceComplianceRecord, triggers []WorkflowTrigger, now time.Time) []AlertEvent {
	out := make([]AlertEvent, 0)
	for _, trg := range triggers {
		if !trg.Active || trg.Validate() != nil {
			continue
		}
		window := trg.DaysBefore
		if window == 0 {
			window = e.policy.UpcomingWindowDays
		}
		for _, r := range records {
			if !r.IsRequired || !r.IsSubscribed || r.NextDueAt == nil {
				continue
			}
			days := DaysUntil(*r.NextDueAt, now)
			status := e.classifier.Classify(r.IsSubscribed, r.NextDueAt, now)

			var fire bool
			switch trg.Event {
			case EventTaskOverdue:
				fire = status == StatusOverdue
			case EventDeadlineApproaching:
				fire = days >= 0 && days <= window
			}
			if !fire {
				continue
			}
			out = append(out, AlertEvent{
				ID:           alertID(trg.ID, entityID, r.ServiceID, *r.NextDueAt),
				TriggerID:    trg.ID,
				TriggerName:  trg.Name,
				Event:        trg.Event,
				EntityID:     entityID,
				ServiceID:    r.ServiceID,
				ServiceName:  r.ServiceName,
				Status:       status,
				DueDate:      *r.NextDueAt,
				DaysUntilDue: days,
				Actions:      trg.Actions,
				EvaluatedAt:  now,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TriggerID != out[j].TriggerID {
			return out[i].TriggerID < out[j].TriggerID
		}
		return out[i].ServiceName < out[j].ServiceName
	})
	return out
}

func alertID(triggerID, entityID, serviceID string, due time.Time) string {
	key := strings.Join([]string{triggerID, entityID, serviceID, due.UTC().Format(time.RFC3339)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
