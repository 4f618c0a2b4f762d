// Package services holds the gRPC service implementations. Messages are
// google.protobuf.Struct so clients need no generated stubs beyond the
// well-known types.
package services

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/pkg/errors"
)

const (
	ComplianceServiceName = "apex.compliance.v1.ComplianceService"

	// TenantMetadataKey is read when the request carries no tenant_id field.
	TenantMetadataKey = "x-tenant-id"

	maxHorizonMonths = 120
)

// ComplianceServer is the server API of apex.compliance.v1.ComplianceService.
type ComplianceServer interface {
	GetEntityReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetJurisdictionRisk(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ComplianceServiceDesc describes the service for grpc.Server.RegisterService.
var ComplianceServiceDesc = grpc.ServiceDesc{
	ServiceName: ComplianceServiceName,
	HandlerType: (*ComplianceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetEntityReport", Handler: getEntityReportHandler},
		{MethodName: "GetJurisdictionRisk", Handler: getJurisdictionRiskHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func getEntityReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComplianceServer).GetEntityReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ComplianceServiceName + "/GetEntityReport"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ComplianceServer).GetEntityReport(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getJurisdictionRiskHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComplianceServer).GetJurisdictionRisk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ComplianceServiceName + "/GetJurisdictionRisk"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ComplianceServer).GetJurisdictionRisk(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ReportService is the slice of the compliance application service exposed
// over gRPC.
type ReportService interface {
	GetEntityReport(ctx context.Context, tenantID, entityID string, horizonMonths int) (*domain.EntityReport, error)
	GetJurisdictionRisk(ctx context.Context, tenantID string) ([]domain.RiskProfile, error)
}

// ComplianceService implements ComplianceServer.
type ComplianceService struct {
	svc    ReportService
	logger logging.Logger
}

func NewComplianceService(svc ReportService, logger logging.Logger) *ComplianceService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ComplianceService{svc: svc, logger: logger.With(logging.Component("grpc-compliance"))}
}

// GetEntityReport expects {tenant_id?, entity_id, horizon_months?} and
// returns the JSON form of the entity report.
func (s *ComplianceService) GetEntityReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	horizon, err := intField(req, "horizon_months", maxHorizonMonths)
	if err != nil {
		return nil, err
	}
	report, err := s.svc.GetEntityReport(ctx, tenantID(ctx, req), stringField(req, "entity_id"), horizon)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(report)
}

// GetJurisdictionRisk expects {tenant_id?} and returns {jurisdictions: [...]}.
func (s *ComplianceService) GetJurisdictionRisk(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	profiles, err := s.svc.GetJurisdictionRisk(ctx, tenantID(ctx, req))
	if err != nil {
		return nil, s.toStatus(err)
	}
	return toStruct(map[string]interface{}{"jurisdictions": profiles})
}

func stringField(req *structpb.Struct, name string) string {
	if v, ok := req.GetFields()[name]; ok {
		return strings.TrimSpace(v.GetStringValue())
	}
	return ""
}

// intField reads an optional whole number in [0, max]; absent yields 0.
func intField(req *structpb.Struct, name string, max int) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue < 0 || n.NumberValue > float64(max) || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number between 0 and %d", name, max)
	}
	return int(n.NumberValue), nil
}

func tenantID(ctx context.Context, req *structpb.Struct) string {
	if t := stringField(req, "tenant_id"); t != "" {
		return t
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(TenantMetadataKey); len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
	}
	return ""
}

// toStruct converts v through its JSON form so field names match the HTTP API.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps an application error onto a gRPC status. Internal errors are
// logged and masked.
func (s *ComplianceService) toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	code := errors.GetCode(err)
	grpcCode := grpcCodeFor(code)
	if grpcCode == codes.Internal {
		s.logger.Error("compliance call failed", logging.String("code", string(code)), logging.Err(err))
		return status.Error(codes.Internal, "internal server error")
	}

	msg := err.Error()
	var ae *errors.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	return status.Errorf(grpcCode, "%s: %s", code, msg)
}

// grpcCodeFor follows the HTTP mapping except for a broken status taxonomy,
// which persists until the tenant fixes its configuration.
func grpcCodeFor(code errors.ErrorCode) codes.Code {
	if code == errors.ErrCodeStatusTaxonomyInconsistent {
		return codes.FailedPrecondition
	}
	return grpcCodeForHTTP(errors.HTTPStatusForCode(code))
}

func grpcCodeForHTTP(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.Aborted
	case http.StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
