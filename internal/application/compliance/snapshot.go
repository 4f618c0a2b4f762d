package compliance

import (
	"context"

	"golang.org/x/sync/errgroup"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
)

// loadEntity fetches the entity, its subscriptions and its tasks in parallel
// under one deadline. Either all three succeed or the call fails.
func (s *Service) loadEntity(ctx context.Context, tenantID, entityID string) (domain.EntitySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	var (
		snap   domain.EntitySnapshot
		entity *domain.Entity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.entities.GetEntity(gctx, tenantID, entityID)
		if err != nil {
			return s.fetchError("entity", err)
		}
		entity = e
		return nil
	})
	g.Go(func() error {
		subs, err := s.subs.ListSubscriptions(gctx, tenantID, entityID)
		if err != nil {
			return s.fetchError("subscriptions", err)
		}
		snap.Subscriptions = subs
		return nil
	})
	g.Go(func() error {
		tasks, err := s.tasks.ListTasksByEntity(gctx, tenantID, entityID)
		if err != nil {
			return s.fetchError("tasks", err)
		}
		snap.Tasks = tasks
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.EntitySnapshot{}, err
	}
	if entity != nil {
		snap.Entity = *entity
	}
	if snap.Entity.ID == "" {
		snap.Entity.ID = entityID
	}
	return snap, nil
}

// loadTenant fetches every entity of the tenant with its subscriptions, plus
// the tenant-wide task list distributed by entity. Subscription lookups run
// with at most FetchConcurrency in flight.
func (s *Service) loadTenant(ctx context.Context, tenantID string) ([]domain.EntitySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	var (
		entities []domain.Entity
		tasks    []domain.ComplianceTask
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.entities.ListEntities(gctx, tenantID)
		if err != nil {
			return s.fetchError("entities", err)
		}
		entities = list
		return nil
	})
	g.Go(func() error {
		list, err := s.tasks.ListTasks(gctx, tenantID)
		if err != nil {
			return s.fetchError("tasks", err)
		}
		tasks = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snaps := make([]domain.EntitySnapshot, len(entities))
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		snaps[i].Entity = e
		index[e.ID] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.EntityID]; ok {
			snaps[i].Tasks = append(snaps[i].Tasks, t)
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i := range snaps {
		i := i
		g.Go(func() error {
			subs, err := s.subs.ListSubscriptions(gctx, tenantID, snaps[i].Entity.ID)
			if err != nil {
				return s.fetchError("subscriptions", err)
			}
			snaps[i].Subscriptions = subs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}
