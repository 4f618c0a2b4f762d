package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/testutil"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

type mockReportService struct {
	mock.Mock
}

func (m *mockReportService) GetEntityReport(ctx context.Context, tenantID, entityID string, horizonMonths int) (*domain.EntityReport, error) {
	args := m.Called(ctx, tenantID, entityID, horizonMonths)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EntityReport), args.Error(1)
}

func (m *mockReportService) GetJurisdictionRisk(ctx context.Context, tenantID string) ([]domain.RiskProfile, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RiskProfile), args.Error(1)
}

// dial starts an in-memory server hosting svc and returns a connected client.
func dial(t *testing.T, svc ReportService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&ComplianceServiceDesc, NewComplianceService(svc, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, ctx context.Context, conn *grpc.ClientConn, method string, req map[string]interface{}) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+ComplianceServiceName+"/"+method, in, out)
	return out, err
}

func sampleReport() *domain.EntityReport {
	return &domain.EntityReport{
		EntityID:    "ent-1",
		GeneratedAt: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Scorecard: domain.ComplianceScorecard{
			OverallScorePct: 50, TotalServices: 4, CompliantServices: 1, OverdueServices: 1,
		},
		Deadlines: []domain.UpcomingDeadline{{
			ServiceID: "VAT", ServiceName: "VAT Return", Priority: domain.PriorityMedium, DaysUntilDue: 10,
			DueDate: time.Date(2024, 6, 25, 12, 0, 0, 0, time.UTC),
		}},
	}
}

func TestGetEntityReport_RoundTrip(t *testing.T) {
	svc := new(mockReportService)
	svc.On("GetEntityReport", mock.Anything, "tenant-a", "ent-1", 6).Return(sampleReport(), nil)
	conn := dial(t, svc)

	out, err := invoke(t, context.Background(), conn, "GetEntityReport", map[string]interface{}{
		"tenant_id": "tenant-a", "entity_id": "ent-1", "horizon_months": 6,
	})
	require.NoError(t, err)

	m := out.AsMap()
	assert.Equal(t, "ent-1", m["entity_id"])
	scorecard := m["scorecard"].(map[string]interface{})
	assert.Equal(t, float64(50), scorecard["overall_score_pct"])
	deadlines := m["deadlines"].([]interface{})
	require.Len(t, deadlines, 1)
	first := deadlines[0].(map[string]interface{})
	assert.Equal(t, "VAT", first["service_id"])
	assert.Equal(t, "medium", first["priority"])
	assert.Equal(t, "2024-06-25T12:00:00Z", first["due_date"])
	svc.AssertExpectations(t)
}

func TestGetEntityReport_TenantFromMetadata(t *testing.T) {
	svc := new(mockReportService)
	svc.On("GetEntityReport", mock.Anything, "tenant-md", "ent-1", 0).Return(sampleReport(), nil)
	conn := dial(t, svc)

	ctx := metadata.AppendToOutgoingContext(context.Background(), TenantMetadataKey, "tenant-md")
	_, err := invoke(t, ctx, conn, "GetEntityReport", map[string]interface{}{"entity_id": "ent-1"})
	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestGetEntityReport_InvalidHorizon(t *testing.T) {
	for name, horizon := range map[string]interface{}{
		"negative":   -1,
		"fractional": 1.5,
		"too large":  maxHorizonMonths + 1,
		"string":     "six",
	} {
		t.Run(name, func(t *testing.T) {
			svc := new(mockReportService)
			conn := dial(t, svc)
			_, err := invoke(t, context.Background(), conn, "GetEntityReport", map[string]interface{}{
				"tenant_id": "tenant-a", "entity_id": "ent-1", "horizon_months": horizon,
			})
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
			svc.AssertNotCalled(t, "GetEntityReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetEntityReport_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"invalid param", errors.InvalidParam("entityID is required"), codes.InvalidArgument},
		{"not found", errors.New(errors.ErrCodeEntityNotFound, "entity not found"), codes.NotFound},
		{"snapshot incomplete", errors.New(errors.ErrCodeSnapshotIncomplete, "failed to load tasks"), codes.Unavailable},
		{"taxonomy", errors.New(errors.ErrCodeStatusTaxonomyInconsistent, "no completed status"), codes.FailedPrecondition},
		{"plain error", assert.AnError, codes.Internal},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockReportService)
			svc.On("GetEntityReport", mock.Anything, "tenant-a", "ent-1", 0).Return(nil, tc.err)
			conn := dial(t, svc)

			_, err := invoke(t, context.Background(), conn, "GetEntityReport", map[string]interface{}{
				"tenant_id": "tenant-a", "entity_id": "ent-1",
			})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, st.Code())
			if tc.code == codes.Internal {
				assert.Equal(t, "internal server error", st.Message())
			}
			if tc.code == codes.FailedPrecondition {
				assert.Equal(t, "CMP_002: no completed status", st.Message())
			}
		})
	}
}

func TestGetJurisdictionRisk(t *testing.T) {
	svc := new(mockReportService)
	svc.On("GetJurisdictionRisk", mock.Anything, "tenant-a").Return([]domain.RiskProfile{
		{Name: "DE", RiskScore: 80, RiskLevel: domain.RiskHigh, OverdueCount: 1},
		{Name: "FR", RiskScore: 0, RiskLevel: domain.RiskLow, CompletionRatePct: 100},
	}, nil)
	conn := dial(t, svc)

	out, err := invoke(t, context.Background(), conn, "GetJurisdictionRisk", map[string]interface{}{"tenant_id": "tenant-a"})
	require.NoError(t, err)

	rows := out.AsMap()["jurisdictions"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "DE", rows[0].(map[string]interface{})["name"])
	assert.Equal(t, "High", rows[0].(map[string]interface{})["risk_level"])
	assert.Equal(t, float64(100), rows[1].(map[string]interface{})["completion_rate_pct"])
}

func TestToStatus_LogsInternalErrors(t *testing.T) {
	logger := testutil.NewMockLogger()
	s := NewComplianceService(new(mockReportService), logger)

	err := s.toStatus(errors.New(errors.ErrCodeDatabaseError, "connection reset"))
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasMessage("error", "compliance call failed"))

	err = s.toStatus(errors.New(errors.ErrCodeEntityNotFound, "entity not found"))
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "CMP_004")
}
