package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const completedID int64 = 3

var refNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

// inDays returns refNow shifted by n whole days.
func inDays(n int) *time.Time { return ptr(refNow.AddDate(0, 0, n)) }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(completedID, DefaultPolicy())
	require.NoError(t, err)
	return e
}

func requiredSub(id, name string) ServiceSubscription {
	return ServiceSubscription{EntityID: "e1", ServiceTypeID: id, ServiceName: name, IsRequired: true, IsSubscribed: true}
}
