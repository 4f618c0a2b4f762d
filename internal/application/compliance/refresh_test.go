package compliance

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/redis"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/messaging/kafka"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
	"github.com/digirix/Apexsaas-sub009/internal/testutil"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

func TestEvaluateAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alerts, err := f.svc.EvaluateAlerts(ctx, "tenant-a", "ent-1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "trg-overdue", alerts[0].TriggerID)
	assert.Equal(t, "LATE", alerts[0].ServiceID)
	assert.Equal(t, domain.StatusOverdue, alerts[0].Status)
	assert.Equal(t, "trg-soon", alerts[1].TriggerID)
	assert.Equal(t, "VAT", alerts[1].ServiceID)
	assert.Equal(t, 10, alerts[1].DaysUntilDue)

	assert.Equal(t, "tenant-a", f.pub.tenant)
	assert.Equal(t, alerts, f.pub.sent)

	again, err := f.svc.EvaluateAlerts(ctx, "tenant-a", "ent-1")
	require.NoError(t, err)
	assert.Equal(t, alerts[0].ID, again[0].ID)
	assert.Equal(t, alerts[1].ID, again[1].ID)
}

func TestEvaluateAlerts_PublishFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New(errors.ErrCodeMessageQueue, "broker unavailable")

	alerts, err := f.svc.EvaluateAlerts(context.Background(), "tenant-a", "ent-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessageQueue))
	assert.Len(t, alerts, 2)
}

func TestEvaluateAlerts_NoPublisher(t *testing.T) {
	f := newFixture(t)
	f.svc.alerts = nil

	alerts, err := f.svc.EvaluateAlerts(context.Background(), "tenant-a", "ent-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestRefreshEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RefreshEntity(ctx, "tenant-a", "ent-1")
	require.NoError(t, err)

	assert.Equal(t, 50, res.Report.Scorecard.OverallScorePct)
	assert.Len(t, res.Alerts, 2)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, minio.SnapshotKey("tenant-a", "ent-1", testNow), res.Snapshot.Key)
	assert.Len(t, f.archive.reports, 1)
	assert.Len(t, f.pub.sent, 2)

	// The refreshed report is already cached.
	_, err = f.svc.GetEntityReport(ctx, "tenant-a", "ent-1", 0)
	require.NoError(t, err)
	_, taskCalls := f.store.calls()
	assert.Equal(t, 1, taskCalls)
}

func TestRefreshEntity_ReplacesStaleCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetEntityReport(ctx, "tenant-a", "ent-1", 0)
	require.NoError(t, err)

	// LATE gets completed; the stale cached report still shows it overdue.
	f.store.tasks[2].StatusID = 2
	f.store.tasks[2].ComplianceDeadline = at(testNow.AddDate(0, 3, 0))

	_, err = f.svc.RefreshEntity(ctx, "tenant-a", "ent-1")
	require.NoError(t, err)

	report, err := f.svc.GetEntityReport(ctx, "tenant-a", "ent-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scorecard.OverdueServices)
}

func TestRefreshEntity_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.archive.err = errors.New(errors.ErrCodeStorage, "bucket gone")

	res, err := f.svc.RefreshEntity(context.Background(), "tenant-a", "ent-1")
	require.NoError(t, err)
	assert.Nil(t, res.Snapshot)
	assert.Len(t, f.pub.sent, 2)
}

func TestRefreshEntity_PublishFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.pub.err = stderrors.New("broker down")

	res, err := f.svc.RefreshEntity(context.Background(), "tenant-a", "ent-1")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, f.archive.reports, 1)
}

func TestRefresher_HandleTaskChanged(t *testing.T) {
	f := newFixture(t)
	locks := &fakeLockFactory{}
	log := testutil.NewMockLogger()
	r := NewRefresher(f.svc, locks, time.Minute, log)

	err := r.HandleTaskChanged(context.Background(), kafka.TaskChangedPayload{
		TenantID: "tenant-a", EntityID: "ent-1", TaskID: "t1", ChangeType: "updated",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"entity:tenant-a:ent-1"}, locks.locked)
	assert.Equal(t, []string{"entity:tenant-a:ent-1"}, locks.unlocked)
	assert.Len(t, f.archive.reports, 1)
	assert.True(t, log.HasMessage("info", "Entity refreshed"))
}

func TestRefresher_LockNotAcquired(t *testing.T) {
	f := newFixture(t)
	locks := &fakeLockFactory{lockErr: redis.ErrLockNotAcquired}
	r := NewRefresher(f.svc, locks, 0, nil)

	err := r.HandleTaskChanged(context.Background(), kafka.TaskChangedPayload{TenantID: "tenant-a", EntityID: "ent-1"})
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)
	assert.Empty(t, f.archive.reports)
	assert.Empty(t, locks.unlocked)
}

func TestRefresher_UnknownEntity(t *testing.T) {
	f := newFixture(t)
	r := NewRefresher(f.svc, nil, 0, nil)

	err := r.HandleTaskChanged(context.Background(), kafka.TaskChangedPayload{TenantID: "tenant-a", EntityID: "gone"})
	assert.True(t, errors.IsNotFound(err))
}

func TestRefresher_KeepAliveExtendsLock(t *testing.T) {
	locks := &fakeLockFactory{}
	r := NewRefresher(nil, locks, 30*time.Millisecond, nil)

	stop := r.keepAlive(context.Background(), locks.NewMutex("entity:tenant-a:ent-1"), "ent-1")
	require.Eventually(t, func() bool { return locks.extendCount() >= 2 }, time.Second, 5*time.Millisecond)
	stop()

	n := locks.extendCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, locks.extendCount())
}

func TestRefresher_KeepAliveStopsWhenLockLost(t *testing.T) {
	locks := &fakeLockFactory{lost: true}
	log := testutil.NewMockLogger()
	r := NewRefresher(nil, locks, 30*time.Millisecond, log)

	stop := r.keepAlive(context.Background(), locks.NewMutex("entity:tenant-a:ent-1"), "ent-1")
	require.Eventually(t, func() bool { return log.HasMessage("warn", "Entity lock lost during refresh") }, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, 1, locks.extendCount())
}
