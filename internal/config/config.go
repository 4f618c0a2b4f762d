// Package config defines the configuration structures of the compliance
// platform. No I/O or parsing logic lives in this file, only plain data types
// and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig holds gRPC server tunables.
type GRPCConfig struct {
	Port             int  `mapstructure:"port"`
	EnableReflection bool `mapstructure:"enable_reflection"`
	MaxRecvMsgSize   int  `mapstructure:"max_recv_msg_size"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	GroupID         string        `mapstructure:"group_id"`
	AlertsTopic     string        `mapstructure:"alerts_topic"`
	TaskEventsTopic string        `mapstructure:"task_events_topic"`
	StartOffset     string        `mapstructure:"start_offset"` // "earliest" | "latest"
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	EnsureTopics    bool          `mapstructure:"ensure_topics"`

	// SASLMechanism is "", "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	TLSCAPath     string `mapstructure:"tls_ca_path"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for the
// report snapshot archive.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`

	// RetentionDays expires archived snapshots; zero keeps them forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	Path      string `mapstructure:"path"`
}

// ComplianceConfig holds engine thresholds and the service-level knobs around
// it. The thresholds map one-to-one onto compliance.Policy.
type ComplianceConfig struct {
	UpcomingWindowDays   int     `mapstructure:"upcoming_window_days"`
	NoDeadlineStatus     string  `mapstructure:"no_deadline_status"`
	UpcomingCreditWeight float64 `mapstructure:"upcoming_credit_weight"`
	HighPriorityDays     int     `mapstructure:"high_priority_days"`
	MediumPriorityDays   int     `mapstructure:"medium_priority_days"`
	HorizonMonths        int     `mapstructure:"horizon_months"`
	OverdueRiskWeight    int     `mapstructure:"overdue_risk_weight"`
	RiskHighThreshold    int     `mapstructure:"risk_high_threshold"`
	RiskMediumThreshold  int     `mapstructure:"risk_medium_threshold"`

	// StrictFrequency disables the Yearly fallback for unrecognised
	// frequencies.
	StrictFrequency bool `mapstructure:"strict_frequency"`

	// CompletedStatusName is matched against the tenant status taxonomy.
	// CompletedStatusID, when non-zero, is used instead but must still exist
	// in the taxonomy.
	CompletedStatusName string `mapstructure:"completed_status_name"`
	CompletedStatusID   int64  `mapstructure:"completed_status_id"`

	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`

	// DefaultTenant is used when a request carries no tenant header.
	DefaultTenant string `mapstructure:"default_tenant"`
}

// Policy converts the thresholds into a compliance.Policy.
func (c ComplianceConfig) Policy() compliance.Policy {
	return compliance.Policy{
		UpcomingWindowDays:   c.UpcomingWindowDays,
		NoDeadlineStatus:     compliance.Status(c.NoDeadlineStatus),
		UpcomingCreditWeight: c.UpcomingCreditWeight,
		HighPriorityDays:     c.HighPriorityDays,
		MediumPriorityDays:   c.MediumPriorityDays,
		HorizonMonths:        c.HorizonMonths,
		DefaultToYearly:      !c.StrictFrequency,
		OverdueRiskWeight:    c.OverdueRiskWeight,
		RiskHighThreshold:    c.RiskHighThreshold,
		RiskMediumThreshold:  c.RiskMediumThreshold,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object of every binary.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	GRPC       GRPCConfig        `mapstructure:"grpc"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Log        logging.LogConfig `mapstructure:"log"`
	Compliance ComplianceConfig  `mapstructure:"compliance"`
}

// Validate checks the configuration after defaults have been applied and
// returns all problems found, joined into one error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		add("server.mode %q must be debug, release or test", c.Server.Mode)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		add("grpc.port %d out of range", c.GRPC.Port)
	}
	if c.GRPC.Port == c.Server.Port {
		add("grpc.port and server.port must differ (both %d)", c.Server.Port)
	}
	if c.Database.Host == "" {
		add("database.host is required")
	}
	if c.Database.DBName == "" {
		add("database.db_name is required")
	}
	if c.Redis.Addr == "" {
		add("redis.addr is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		add("kafka.brokers must not be empty")
	}
	switch c.Kafka.StartOffset {
	case "earliest", "latest":
	default:
		add("kafka.start_offset %q must be earliest or latest", c.Kafka.StartOffset)
	}
	switch c.Kafka.SASLMechanism {
	case "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
	default:
		add("kafka.sasl_mechanism %q is not supported", c.Kafka.SASLMechanism)
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		add("minio.endpoint and minio.bucket are required when minio.enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		add("metrics.namespace is required when metrics.enabled")
	}
	if c.Compliance.FetchTimeout <= 0 {
		add("compliance.fetch_timeout must be positive")
	}
	if c.Compliance.FetchConcurrency <= 0 {
		add("compliance.fetch_concurrency must be positive")
	}
	if c.Compliance.CompletedStatusID < 0 {
		add("compliance.completed_status_id must not be negative")
	}
	if err := c.Compliance.Policy().Validate(); err != nil {
		add("compliance: %v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// PostgresDSN renders the database section as a pgx connection URL.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
