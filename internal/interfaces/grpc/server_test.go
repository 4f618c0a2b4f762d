package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/digirix/Apexsaas-sub009/internal/config"
	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
	"github.com/digirix/Apexsaas-sub009/internal/interfaces/grpc/services"
	"github.com/digirix/Apexsaas-sub009/internal/testutil"
)

type stubReports struct{}

func (stubReports) GetEntityReport(_ context.Context, _, entityID string, _ int) (*compliance.EntityReport, error) {
	return &compliance.EntityReport{EntityID: entityID}, nil
}

func (stubReports) GetJurisdictionRisk(context.Context, string) ([]compliance.RiskProfile, error) {
	return nil, nil
}

func startServer(t *testing.T, opts ...Option) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := NewServer(&config.GRPCConfig{EnableReflection: true}, append(opts, WithListener(lis))...)
	require.NoError(t, err)
	srv.RegisterService(&services.ComplianceServiceDesc, services.NewComplianceService(stubReports{}, nil))

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	t.Cleanup(func() {
		require.NoError(t, srv.Stop(context.Background()))
		assert.NoError(t, <-done)
	})

	conn, err := grpc.Dial(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestServer_HealthAndService(t *testing.T) {
	logger := testutil.NewMockLogger()
	_, conn := startServer(t, WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hc := healthpb.NewHealthClient(conn)
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: services.ComplianceServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	in, _ := structpb.NewStruct(map[string]interface{}{"tenant_id": "t1", "entity_id": "ent-9"})
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, "/"+services.ComplianceServiceName+"/GetEntityReport", in, out))
	assert.Equal(t, "ent-9", out.AsMap()["entity_id"])

	assert.True(t, logger.HasMessage("info", "grpc service registered"))
	assert.True(t, logger.HasMessage("info", "grpc request"))
	v, ok := logger.FieldValue("grpc request", "method")
	require.True(t, ok)
	assert.Equal(t, "/"+services.ComplianceServiceName+"/GetEntityReport", v)
}

func TestServer_DoubleStart(t *testing.T) {
	srv, _ := startServer(t)
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.started
	}, time.Second, 10*time.Millisecond)
	assert.Error(t, srv.Start())
}

func TestServer_StopBeforeStart(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := NewServer(&config.GRPCConfig{}, WithListener(lis))
	require.NoError(t, err)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := recoveryUnaryInterceptor(logger, prometheus.NewNoopAppMetrics())
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Boom"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, logger.HasMessage("error", "grpc panic recovered"))

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestLoggingUnaryInterceptor_Levels(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := loggingUnaryInterceptor(logger)

	call := func(method string, err error) {
		_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: method},
			func(context.Context, interface{}) (interface{}, error) { return nil, err })
	}
	call("/grpc.health.v1.Health/Check", nil)
	assert.Empty(t, logger.GetMessages())

	call("/svc/A", status.Error(codes.NotFound, "missing"))
	assert.True(t, logger.HasMessage("warn", "grpc request rejected"))

	call("/svc/B", errors.New("kaboom"))
	assert.True(t, logger.HasMessage("error", "grpc request failed"))
}

func TestTenantUnaryInterceptor(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = tenantFromMetadata(ctx)
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/A"}

	_, err := tenantUnaryInterceptor("firm-1")(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "firm-1", seen)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(TenantMetadataKey, "firm-2"))
	_, err = tenantUnaryInterceptor("firm-1")(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "firm-2", seen)

	_, err = tenantUnaryInterceptor("")(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestServer_DefaultTenant(t *testing.T) {
	logger := testutil.NewMockLogger()
	_, conn := startServer(t, WithLogger(logger), WithDefaultTenant("firm-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, _ := structpb.NewStruct(map[string]interface{}{"entity_id": "ent-3"})
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, "/"+services.ComplianceServiceName+"/GetEntityReport", in, out))
	assert.Equal(t, "ent-3", out.AsMap()["entity_id"])

	v, ok := logger.FieldValue("grpc request", "tenant_id")
	require.True(t, ok)
	assert.Equal(t, "firm-1", v)
}

func TestTenantMetadataKeyMatchesService(t *testing.T) {
	assert.Equal(t, services.TenantMetadataKey, TenantMetadataKey)
}

func TestSplitMethodName(t *testing.T) {
	svc, method := splitMethodName("/apex.compliance.v1.ComplianceService/GetEntityReport")
	assert.Equal(t, "apex.compliance.v1.ComplianceService", svc)
	assert.Equal(t, "GetEntityReport", method)

	svc, method = splitMethodName("Bare")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "Bare", method)
}

func TestIsHealthCheck(t *testing.T) {
	assert.True(t, isHealthCheck("/grpc.health.v1.Health/Watch"))
	assert.False(t, isHealthCheck("/apex.compliance.v1.ComplianceService/GetEntityReport"))
}
