package compliance

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Inputs
// ─────────────────────────────────────────────────────────────────────────────

// ServiceSubscription states whether an entity is required to take, and is
// enrolled in, a recurring compliance service. Read-only to the engine.
type ServiceSubscription struct {
	EntityID      string `json:"entity_id" yaml:"entity_id"`
	ServiceTypeID string `json:"service_type_id" yaml:"service_type_id"`

	// ServiceName is the display name; ServiceTypeID is used when blank.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`

	IsRequired   bool `json:"is_required" yaml:"is_required"`
	IsSubscribed bool `json:"is_subscribed" yaml:"is_subscribed"`

	// BillingBasis is the service's generic billing cadence (for example
	// "Monthly" or "Per filing"). Reports fall back to it when no task
	// carries a compliance frequency.
	BillingBasis string `json:"billing_basis,omitempty" yaml:"billing_basis,omitempty"`
}

// displayName returns the name shown in reports.
func (s ServiceSubscription) displayName() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	return s.ServiceTypeID
}

// ComplianceTask is one unit of compliance work covering a single period.
type ComplianceTask struct {
	ID            string `json:"id" yaml:"id"`
	EntityID      string `json:"entity_id" yaml:"entity_id"`
	ServiceTypeID string `json:"service_type_id" yaml:"service_type_id"`
	StatusID      int64  `json:"status_id" yaml:"status_id"`
	AssigneeID    string `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// ComplianceDeadline is a human-entered due date. When present on the most
	// recent task it always wins over a computed recurrence.
	ComplianceDeadline *time.Time `json:"compliance_deadline,omitempty" yaml:"compliance_deadline,omitempty"`

	// ComplianceFrequency is the frequency string as stored, e.g. "Quarterly".
	ComplianceFrequency string `json:"compliance_frequency,omitempty" yaml:"compliance_frequency,omitempty"`

	ComplianceStartDate *time.Time `json:"compliance_start_date,omitempty" yaml:"compliance_start_date,omitempty"`
	ComplianceEndDate   *time.Time `json:"compliance_end_date,omitempty" yaml:"compliance_end_date,omitempty"`

	// DueDate is the generic task due date, used for on-time measurement when
	// no compliance deadline is set.
	DueDate *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`

	// CompletedAt is when the task entered the completed status. UpdatedAt is
	// used for completed tasks that do not record it.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// completionTime returns the best known completion instant of a completed task.
func (t ComplianceTask) completionTime() time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}

// deadline returns the compliance deadline, else the generic due date.
func (t ComplianceTask) deadline() *time.Time {
	if t.ComplianceDeadline != nil {
		return t.ComplianceDeadline
	}
	return t.DueDate
}

// Entity is the minimal entity description the reports need.
type Entity struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty" yaml:"jurisdiction,omitempty"`
}

// EntitySnapshot bundles one entity with its subscriptions and tasks, fetched
// together so no report is built from partial data.
type EntitySnapshot struct {
	Entity        Entity                `json:"entity" yaml:"entity"`
	Subscriptions []ServiceSubscription `json:"subscriptions" yaml:"subscriptions"`
	Tasks         []ComplianceTask      `json:"tasks" yaml:"tasks"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived records
// ─────────────────────────────────────────────────────────────────────────────

// ServiceComplianceRecord is the derived compliance state of one service.
// Status is StatusNotSubscribed exactly when IsSubscribed is false.
type ServiceComplianceRecord struct {
	ServiceID         string     `json:"service_id" yaml:"service_id"`
	ServiceName       string     `json:"service_name" yaml:"service_name"`
	IsRequired        bool       `json:"is_required" yaml:"is_required"`
	IsSubscribed      bool       `json:"is_subscribed" yaml:"is_subscribed"`
	Frequency         string     `json:"frequency" yaml:"frequency"`
	LastCompletedAt   *time.Time `json:"last_completed_at,omitempty" yaml:"last_completed_at,omitempty"`
	NextDueAt         *time.Time `json:"next_due_at,omitempty" yaml:"next_due_at,omitempty"`
	Status            Status     `json:"status" yaml:"status"`
	CompletionRatePct float64    `json:"completion_rate_pct" yaml:"completion_rate_pct"`

	// RecurrenceDefaulted marks a NextDueAt predicted with the Yearly default
	// because the task frequency was blank or unrecognised.
	RecurrenceDefaulted bool `json:"recurrence_defaulted,omitempty" yaml:"recurrence_defaulted,omitempty"`
}

// ComplianceScorecard summarises an entity's records. Compliant, Overdue,
// Upcoming and NotSubscribed always add up to TotalServices.
type ComplianceScorecard struct {
	OverallScorePct       int                       `json:"overall_score_pct" yaml:"overall_score_pct"`
	TotalServices         int                       `json:"total_services" yaml:"total_services"`
	RequiredServices      int                       `json:"required_services" yaml:"required_services"`
	SubscribedServices    int                       `json:"subscribed_services" yaml:"subscribed_services"`
	CompliantServices     int                       `json:"compliant_services" yaml:"compliant_services"`
	OverdueServices       int                       `json:"overdue_services" yaml:"overdue_services"`
	UpcomingCount         int                       `json:"upcoming_count" yaml:"upcoming_count"`
	NotSubscribedServices int                       `json:"not_subscribed_services" yaml:"not_subscribed_services"`
	Breakdown             []ServiceComplianceRecord `json:"breakdown" yaml:"breakdown"`
}

// Priority is the urgency bucket of an upcoming deadline.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// UpcomingDeadline is one forward-looking deadline. DaysUntilDue is never
// negative.
type UpcomingDeadline struct {
	ServiceID    string    `json:"service_id" yaml:"service_id"`
	ServiceName  string    `json:"service_name" yaml:"service_name"`
	DueDate      time.Time `json:"due_date" yaml:"due_date"`
	Frequency    string    `json:"frequency" yaml:"frequency"`
	Priority     Priority  `json:"priority" yaml:"priority"`
	DaysUntilDue int       `json:"days_until_due" yaml:"days_until_due"`
}

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskProfile is the compliance risk of a group of entities, typically all
// entities of one jurisdiction.
type RiskProfile struct {
	Name              string    `json:"name" yaml:"name"`
	RiskScore         int       `json:"risk_score" yaml:"risk_score"`
	RiskLevel         RiskLevel `json:"risk_level" yaml:"risk_level"`
	OverdueCount      int       `json:"overdue_count" yaml:"overdue_count"`
	ComplianceGapPct  int       `json:"compliance_gap_pct" yaml:"compliance_gap_pct"`
	EntityCount       int       `json:"entity_count" yaml:"entity_count"`
	ComplianceRatePct int       `json:"compliance_rate_pct" yaml:"compliance_rate_pct"`
	CompletionRatePct float64   `json:"completion_rate_pct" yaml:"completion_rate_pct"`
}

// TeamMemberEfficiency is one row of the team-efficiency report.
type TeamMemberEfficiency struct {
	AssigneeID        string  `json:"assignee_id" yaml:"assignee_id"`
	TotalTasks        int     `json:"total_tasks" yaml:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks" yaml:"completed_tasks"`
	OverdueTasks      int     `json:"overdue_tasks" yaml:"overdue_tasks"`
	CompletionRatePct float64 `json:"completion_rate_pct" yaml:"completion_rate_pct"`
	OnTimeRatePct     float64 `json:"on_time_rate_pct" yaml:"on_time_rate_pct"`
	AvgCompletionDays float64 `json:"avg_completion_days" yaml:"avg_completion_days"`
	ProductivityScore int     `json:"productivity_score" yaml:"productivity_score"`
}

// EntityReport is the scorecard and deadline list of one entity, computed
// from a single evaluation instant.
type EntityReport struct {
	EntityID    string              `json:"entity_id" yaml:"entity_id"`
	GeneratedAt time.Time           `json:"generated_at" yaml:"generated_at"`
	Scorecard   ComplianceScorecard `json:"scorecard" yaml:"scorecard"`
	Deadlines   []UpcomingDeadline  `json:"deadlines" yaml:"deadlines"`
}
