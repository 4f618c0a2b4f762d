package compliance

import (
	"sort"
	"time"
)

// Aggregator joins subscriptions with task history and produces one
// ServiceComplianceRecord per configured service.
type Aggregator struct {
	completedID int64
	classifier  Classifier
	resolver    *Resolver
}

// NewAggregator builds an Aggregator that treats tasks with completedID as
// completed. completedID comes from ResolveCompletedID. p must pass Validate.
func NewAggregator(completedID int64, p Policy) (*Aggregator, error) {
	classifier, err := NewClassifier(p)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		completedID: completedID,
		classifier:  classifier,
		resolver:    NewResolver(p),
	}, nil
}

// service is a merged view of all subscription rows for one service type.
type service struct {
	id           string
	name         string
	required     bool
	subscribed   bool
	billingBasis string
}

// Aggregate returns a record for every service that is required or
// subscribed, ordered by service name then id. Subscription rows repeated for
// the same service are merged: the flags are OR-ed and the first non-blank
// name and billing basis are kept.
//
// An error is returned only under a strict policy (DefaultToYearly false)
// when a recurrence must be computed from an unrecognised frequency.
func (a *Aggregator) Aggregate(subs []ServiceSubscription, tasks []ComplianceTask, now time.Time) ([]ServiceComplianceRecord, error) {
	services := mergeSubscriptions(subs)

	byService := make(map[string][]ComplianceTask, len(services))
	for _, t := range tasks {
		byService[t.ServiceTypeID] = append(byService[t.ServiceTypeID], t)
	}

	records := make([]ServiceComplianceRecord, 0, len(services))
	for _, svc := range services {
		if !svc.required && !svc.subscribed {
			continue
		}
		rec, err := a.buildRecord(svc, byService[svc.id], now)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ServiceName != records[j].ServiceName {
			return records[i].ServiceName < records[j].ServiceName
		}
		return records[i].ServiceID < records[j].ServiceID
	})
	return records, nil
}

func (a *Aggregator) buildRecord(svc service, serviceTasks []ComplianceTask, now time.Time) (ServiceComplianceRecord, error) {
	rec := ServiceComplianceRecord{
		ServiceID:    svc.id,
		ServiceName:  svc.name,
		IsRequired:   svc.required,
		IsSubscribed: svc.subscribed,
	}

	completed := 0
	for _, t := range serviceTasks {
		if t.StatusID != a.completedID {
			continue
		}
		completed++
		if rec.LastCompletedAt == nil || t.CreatedAt.After(*rec.LastCompletedAt) {
			at := t.CreatedAt
			rec.LastCompletedAt = &at
		}
	}
	if len(serviceTasks) > 0 {
		rec.CompletionRatePct = float64(completed) / float64(len(serviceTasks)) * 100
	}

	latest := mostRecentTask(serviceTasks)
	switch {
	case latest != nil && latest.ComplianceDeadline != nil:
		due := *latest.ComplianceDeadline
		rec.NextDueAt = &due
	case latest != nil && rec.LastCompletedAt != nil:
		r, err := a.resolver.Resolve(*rec.LastCompletedAt, latest.ComplianceFrequency)
		if err != nil {
			return ServiceComplianceRecord{}, err
		}
		rec.NextDueAt = &r.Due
		rec.RecurrenceDefaulted = r.Defaulted
	}

	rec.Status = a.classifier.Classify(svc.subscribed, rec.NextDueAt, now)
	rec.Frequency = recordFrequency(latest, svc.billingBasis)
	return rec, nil
}

// mostRecentTask returns the task with the latest CreatedAt, ties going to the
// larger ID, or nil when tasks is empty.
func mostRecentTask(tasks []ComplianceTask) *ComplianceTask {
	var latest *ComplianceTask
	for i := range tasks {
		t := &tasks[i]
		if latest == nil ||
			t.CreatedAt.After(latest.CreatedAt) ||
			(t.CreatedAt.Equal(latest.CreatedAt) && t.ID > latest.ID) {
			latest = t
		}
	}
	return latest
}

func recordFrequency(latest *ComplianceTask, billingBasis string) string {
	if latest != nil {
		if f := displayFrequency(latest.ComplianceFrequency); f != "" {
			return f
		}
	}
	if f := displayFrequency(billingBasis); f != "" {
		return f
	}
	return FrequencyNotApplicable
}

func mergeSubscriptions(subs []ServiceSubscription) []service {
	index := make(map[string]int, len(subs))
	out := make([]service, 0, len(subs))
	for _, s := range subs {
		i, ok := index[s.ServiceTypeID]
		if !ok {
			index[s.ServiceTypeID] = len(out)
			out = append(out, service{
				id:           s.ServiceTypeID,
				name:         s.displayName(),
				required:     s.IsRequired,
				subscribed:   s.IsSubscribed,
				billingBasis: s.BillingBasis,
			})
			continue
		}
		merged := &out[i]
		merged.required = merged.required || s.IsRequired
		merged.subscribed = merged.subscribed || s.IsSubscribed
		if merged.name == merged.id && s.ServiceName != "" {
			merged.name = s.ServiceName
		}
		if merged.billingBasis == "" {
			merged.billingBasis = s.BillingBasis
		}
	}
	return out
}
