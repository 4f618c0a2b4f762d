package compliance

import "time"

// Engine wires the resolver, classifier, aggregator and scorer around one
// Policy and one completed status id. It holds no mutable state.
type Engine struct {
	policy      Policy
	completedID int64
	classifier  Classifier
	aggregator  *Aggregator
	scorer      Scorer
}

// NewEngine validates p and builds an Engine for a tenant whose completed
// status id is completedID.
func NewEngine(completedID int64, p Policy) (*Engine, error) {
	agg, err := NewAggregator(completedID, p)
	if err != nil {
		return nil, err
	}
	return &Engine{
		policy:      p,
		completedID: completedID,
		classifier:  agg.classifier,
		aggregator:  agg,
		scorer:      NewScorer(p),
	}, nil
}

func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) CompletedID() int64 { return e.completedID }

func (e *Engine) Classifier() Classifier { return e.classifier }

func (e *Engine) Scorer() Scorer { return e.scorer }

// Aggregate delegates to the engine's Aggregator.
func (e *Engine) Aggregate(subs []ServiceSubscription, tasks []ComplianceTask, now time.Time) ([]ServiceComplianceRecord, error) {
	return e.aggregator.Aggregate(subs, tasks, now)
}

// Evaluate runs aggregation, summary and ranking with the same now so the
// scorecard and the deadline list of one report never disagree.
func (e *Engine) Evaluate(entityID string, subs []ServiceSubscription, tasks []ComplianceTask, now time.Time, horizonMonths int) (EntityReport, error) {
	records, err := e.aggregator.Aggregate(subs, tasks, now)
	if err != nil {
		return EntityReport{}, err
	}
	return EntityReport{
		EntityID:    entityID,
		GeneratedAt: now,
		Scorecard:   Summarize(records, e.policy),
		Deadlines:   Rank(records, now, horizonMonths, e.policy),
	}, nil
}
