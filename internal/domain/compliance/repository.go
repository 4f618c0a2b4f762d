package compliance

import "context"

// SubscriptionReader lists the service subscriptions of one entity.
type SubscriptionReader interface {
	ListSubscriptions(ctx context.Context, tenantID, entityID string) ([]ServiceSubscription, error)
}

// TaskReader lists compliance tasks, per entity or tenant-wide.
type TaskReader interface {
	ListTasksByEntity(ctx context.Context, tenantID, entityID string) ([]ComplianceTask, error)
	ListTasks(ctx context.Context, tenantID string) ([]ComplianceTask, error)
}

// StatusTaxonomyReader lists a tenant's task status taxonomy.
type StatusTaxonomyReader interface {
	ListStatuses(ctx context.Context, tenantID string) ([]StatusDefinition, error)
}

// EntityReader looks up entities. GetEntity returns an
// ErrCodeEntityNotFound error for unknown ids.
type EntityReader interface {
	GetEntity(ctx context.Context, tenantID, entityID string) (*Entity, error)
	ListEntities(ctx context.Context, tenantID string) ([]Entity, error)
}

// TriggerReader lists the active workflow triggers of a tenant.
type TriggerReader interface {
	ListActiveTriggers(ctx context.Context, tenantID string) ([]WorkflowTrigger, error)
}
