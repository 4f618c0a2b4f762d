package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, compliance.DefaultPolicy(), cfg.Compliance.Policy())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000
	cfg.Server.Mode = "prod"
	cfg.Database.Host = ""
	cfg.Kafka.StartOffset = "middle"
	cfg.Compliance.FetchTimeout = 0
	cfg.Compliance.UpcomingCreditWeight = 2

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"server.port 70000", "server.mode", "database.host", "kafka.start_offset",
		"compliance.fetch_timeout", "upcoming_credit_weight",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_PortClash(t *testing.T) {
	cfg := Default()
	cfg.GRPC.Port = cfg.Server.Port
	assert.ErrorContains(t, cfg.Validate(), "must differ")
}

func TestValidate_MinIORequiresBucketWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.MinIO.Enabled = true
	cfg.MinIO.Bucket = ""
	assert.ErrorContains(t, cfg.Validate(), "minio.bucket")
}

func TestComplianceConfig_Policy(t *testing.T) {
	c := Default().Compliance
	c.StrictFrequency = true
	c.UpcomingWindowDays = 14
	c.NoDeadlineStatus = "overdue"

	p := c.Policy()
	assert.False(t, p.DefaultToYearly)
	assert.Equal(t, 14, p.UpcomingWindowDays)
	assert.Equal(t, compliance.StatusOverdue, p.NoDeadlineStatus)
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{User: "apex", Password: "pw", Host: "db", Port: 5433, DBName: "apex", SSLMode: "require"}
	assert.Equal(t, "postgres://apex:pw@db:5433/apex?sslmode=require", d.PostgresDSN())
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: 9999, ReadTimeout: time.Second},
		Compliance: ComplianceConfig{CacheTTL: time.Minute, HorizonMonths: 6},
	}
	ApplyDefaults(cfg)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Minute, cfg.Compliance.CacheTTL)
	assert.Equal(t, 6, cfg.Compliance.HorizonMonths)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)

	ApplyDefaults(nil)
}
