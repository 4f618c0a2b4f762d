package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/digirix/Apexsaas-sub009/internal/testutil"
	apperrors "github.com/digirix/Apexsaas-sub009/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockObjectAPI) SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, config).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockObjectAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

type ClientTestSuite struct {
	suite.Suite
	api *MockObjectAPI
	log *testutil.MockLogger
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.log = testutil.NewMockLogger()
}

func (s *ClientTestSuite) TestApplyDefaults() {
	cfg := &MinIOConfig{}
	applyDefaults(cfg)
	s.Equal("us-east-1", cfg.Region)
	s.Equal("compliance-snapshots", cfg.Bucket)
	s.Equal(15*time.Minute, cfg.PresignExpiry)
}

func (s *ClientTestSuite) TestNew_CreatesMissingBucket() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", mock.Anything, "snaps").Return(false, nil)
	s.api.On("MakeBucket", mock.Anything, "snaps", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil)

	c, err := NewMinIOClientWithAPI(context.Background(), s.api, &MinIOConfig{Endpoint: "x", Bucket: "snaps", Region: "eu-west-1"}, s.log)
	s.Require().NoError(err)
	s.Equal("snaps", c.Bucket())
	s.api.AssertExpectations(s.T())
	s.api.AssertNotCalled(s.T(), "SetBucketLifecycle", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestNew_SetsRetentionRule() {
	s.api.On("ListBuckets", mock.Anything).Return([]minio.BucketInfo{}, nil)
	s.api.On("BucketExists", mock.Anything, "snaps").Return(true, nil)
	s.api.On("SetBucketLifecycle", mock.Anything, "snaps", mock.MatchedBy(func(cfg *lifecycle.Configuration) bool {
		return len(cfg.Rules) == 1 && cfg.Rules[0].Expiration.Days == 90 && cfg.Rules[0].RuleFilter.Prefix == snapshotRoot
	})).Return(errors.New("not implemented"))

	_, err := NewMinIOClientWithAPI(context.Background(), s.api, &MinIOConfig{Endpoint: "x", Bucket: "snaps", RetentionDays: 90}, s.log)
	s.Require().NoError(err)
	s.True(s.log.HasMessage("warn", "Failed to set snapshot lifecycle"))
}

func (s *ClientTestSuite) TestNew_Unreachable() {
	s.api.On("ListBuckets", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	_, err := NewMinIOClientWithAPI(context.Background(), s.api, &MinIOConfig{Endpoint: "x"}, s.log)
	s.Require().Error(err)
	s.True(apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable))
}

func (s *ClientTestSuite) TestHealthCheck() {
	c := &MinIOClient{api: s.api, config: &MinIOConfig{Bucket: "snaps"}, logger: s.log}
	s.api.On("BucketExists", mock.Anything, "snaps").Return(false, nil).Once()
	err := c.HealthCheck(context.Background())
	s.True(apperrors.IsNotFound(err))

	s.api.On("BucketExists", mock.Anything, "snaps").Return(true, nil).Once()
	s.NoError(c.HealthCheck(context.Background()))

	s.Require().NoError(c.Close())
	s.Equal(ErrMinIOClientClosed, c.HealthCheck(context.Background()))
}

func (s *ClientTestSuite) TestPresignedGetURL_DefaultExpiry() {
	c := &MinIOClient{api: s.api, config: &MinIOConfig{Bucket: "snaps", PresignExpiry: time.Minute}, logger: s.log}
	u, _ := url.Parse("https://minio.local/snaps/k")
	s.api.On("PresignedGetObject", mock.Anything, "snaps", "k", time.Minute, url.Values(nil)).Return(u, nil)

	got, err := c.PresignedGetURL(context.Background(), "k", 0)
	s.Require().NoError(err)
	s.Equal("https://minio.local/snaps/k", got)
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

