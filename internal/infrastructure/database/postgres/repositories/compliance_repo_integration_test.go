//go:build integration

package repositories_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres/repositories"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
)

const schema = `
CREATE TABLE entities (
	id           TEXT NOT NULL,
	tenant_id    TEXT NOT NULL,
	name         TEXT NOT NULL,
	client_id    TEXT,
	jurisdiction TEXT,
	PRIMARY KEY (tenant_id, id)
);
CREATE TABLE service_types (
	id            TEXT NOT NULL,
	tenant_id     TEXT NOT NULL,
	name          TEXT NOT NULL,
	billing_basis TEXT,
	PRIMARY KEY (tenant_id, id)
);
CREATE TABLE entity_service_subscriptions (
	tenant_id       TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	service_type_id TEXT NOT NULL,
	is_required     BOOLEAN NOT NULL DEFAULT FALSE,
	is_subscribed   BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE task_statuses (
	id        BIGINT NOT NULL,
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	rank      INT NOT NULL
);
CREATE TABLE tasks (
	id                    TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL,
	entity_id             TEXT NOT NULL,
	service_type_id       TEXT,
	status_id             BIGINT NOT NULL,
	assignee_id           TEXT,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	compliance_deadline   TIMESTAMPTZ,
	compliance_frequency  TEXT,
	compliance_start_date TIMESTAMPTZ,
	compliance_end_date   TIMESTAMPTZ,
	due_date              TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ
);
CREATE TABLE workflow_triggers (
	id          TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	event       TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	days_before INT NOT NULL DEFAULT 0,
	actions     JSONB
);`

const seed = `
INSERT INTO entities VALUES ('e1', 't1', 'Acme Ltd', 'c1', 'Punjab');
INSERT INTO service_types VALUES ('vat', 't1', 'VAT Return', 'Monthly');
INSERT INTO entity_service_subscriptions VALUES ('t1', 'e1', 'vat', TRUE, TRUE);
INSERT INTO task_statuses VALUES (1, 't1', 'New', 1), (3, 't1', 'Completed', 3);
INSERT INTO tasks (id, tenant_id, entity_id, service_type_id, status_id, created_at, updated_at, compliance_frequency)
VALUES ('task-1', 't1', 'e1', 'vat', 3, '2024-05-01T00:00:00Z', '2024-05-02T00:00:00Z', 'Monthly');
INSERT INTO workflow_triggers VALUES ('tr-1', 't1', 'Overdue', 'task_overdue', TRUE, 0, '[]');`

func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "apex_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	conn, err := postgres.NewConnection(postgres.PostgresConfig{
		Host: host, Port: portNum, Database: "apex_test", Username: "test", Password: "test",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.DB().ExecContext(ctx, schema)
	require.NoError(t, err)
	_, err = conn.DB().ExecContext(ctx, seed)
	require.NoError(t, err)
	return conn
}

func TestRepositories_AgainstPostgres(t *testing.T) {
	conn := startPostgres(t)
	repos := repositories.NewRepositories(conn, nil, nil)
	ctx := context.Background()

	entity, err := repos.Entities.GetEntity(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "Punjab", entity.Jurisdiction)

	subs, err := repos.Subscriptions.ListSubscriptions(ctx, "t1", "e1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "VAT Return", subs[0].ServiceName)

	statuses, err := repos.Statuses.ListStatuses(ctx, "t1")
	require.NoError(t, err)
	completedID, err := compliance.ResolveCompletedID(statuses, "", 0)
	require.NoError(t, err)

	tasks, err := repos.Tasks.ListTasksByEntity(ctx, "t1", "e1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	engine, err := compliance.NewEngine(completedID, compliance.DefaultPolicy())
	require.NoError(t, err)
	now := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	report, err := engine.Evaluate("e1", subs, tasks, now, 12)
	require.NoError(t, err)
	require.Len(t, report.Scorecard.Breakdown, 1)
	assert.Equal(t, compliance.StatusUpcoming, report.Scorecard.Breakdown[0].Status)

	triggers, err := repos.Triggers.ListActiveTriggers(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}
