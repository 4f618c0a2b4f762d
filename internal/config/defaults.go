package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/digirix/Apexsaas-sub009/internal/domain/compliance"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8080
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 20 * time.Second

	DefaultGRPCPort           = 9090
	DefaultGRPCMaxRecvMsgSize = 4 << 20

	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBName            = "apex"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxConns        = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 30 * time.Minute
	DefaultDBConnMaxIdleTime = 5 * time.Minute

	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 20
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisKeyPrefix    = "apex:"

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaClientID        = "apex-compliance"
	DefaultKafkaGroupID         = "apex-compliance-worker"
	DefaultKafkaAlertsTopic     = "compliance.alerts"
	DefaultKafkaTaskEventsTopic = "compliance.task-changed"
	DefaultKafkaStartOffset     = "latest"
	DefaultKafkaBatchSize       = 100
	DefaultKafkaBatchTimeout    = 50 * time.Millisecond
	DefaultKafkaMaxRetries      = 3
	DefaultKafkaDeadLetterTopic = "compliance.dead-letter"

	DefaultMinIOEndpoint      = "localhost:9000"
	DefaultMinIOBucket        = "compliance-snapshots"
	DefaultMinIORegion        = "us-east-1"
	DefaultMinIORetentionDays = 365

	DefaultMetricsNamespace = "apex"
	DefaultMetricsSubsystem = "compliance"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultFetchTimeout     = 10 * time.Second
	DefaultFetchConcurrency = 8
	DefaultCacheTTL         = 5 * time.Minute
	DefaultTenant           = "default"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Explicit values always win. Fields whose zero value is meaningful (booleans,
// the upcoming credit weight and the policy day and risk thresholds) are
// defaulted by the loader instead.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	setInt(&cfg.Server.Port, DefaultServerPort)
	setString(&cfg.Server.Mode, DefaultServerMode)
	setDuration(&cfg.Server.ReadTimeout, DefaultServerReadTimeout)
	setDuration(&cfg.Server.WriteTimeout, DefaultServerWriteTimeout)
	setDuration(&cfg.Server.ShutdownTimeout, DefaultServerShutdownTimeout)

	// ── gRPC ──────────────────────────────────────────────────────────────────
	setInt(&cfg.GRPC.Port, DefaultGRPCPort)
	setInt(&cfg.GRPC.MaxRecvMsgSize, DefaultGRPCMaxRecvMsgSize)

	// ── Database ──────────────────────────────────────────────────────────────
	setString(&cfg.Database.Host, DefaultDBHost)
	setInt(&cfg.Database.Port, DefaultDBPort)
	setString(&cfg.Database.DBName, DefaultDBName)
	setString(&cfg.Database.SSLMode, DefaultDBSSLMode)
	setInt(&cfg.Database.MaxConns, DefaultDBMaxConns)
	setInt(&cfg.Database.MaxIdleConns, DefaultDBMaxIdleConns)
	setDuration(&cfg.Database.ConnMaxLifetime, DefaultDBConnMaxLifetime)
	setDuration(&cfg.Database.ConnMaxIdleTime, DefaultDBConnMaxIdleTime)

	// ── Redis ─────────────────────────────────────────────────────────────────
	setString(&cfg.Redis.Addr, DefaultRedisAddr)
	setInt(&cfg.Redis.PoolSize, DefaultRedisPoolSize)
	setDuration(&cfg.Redis.DialTimeout, DefaultRedisDialTimeout)
	setDuration(&cfg.Redis.ReadTimeout, DefaultRedisReadTimeout)
	setDuration(&cfg.Redis.WriteTimeout, DefaultRedisWriteTimeout)
	setString(&cfg.Redis.KeyPrefix, DefaultRedisKeyPrefix)

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	setString(&cfg.Kafka.ClientID, DefaultKafkaClientID)
	setString(&cfg.Kafka.GroupID, DefaultKafkaGroupID)
	setString(&cfg.Kafka.AlertsTopic, DefaultKafkaAlertsTopic)
	setString(&cfg.Kafka.TaskEventsTopic, DefaultKafkaTaskEventsTopic)
	setString(&cfg.Kafka.StartOffset, DefaultKafkaStartOffset)
	setInt(&cfg.Kafka.BatchSize, DefaultKafkaBatchSize)
	setDuration(&cfg.Kafka.BatchTimeout, DefaultKafkaBatchTimeout)
	setInt(&cfg.Kafka.MaxRetries, DefaultKafkaMaxRetries)
	setString(&cfg.Kafka.DeadLetterTopic, DefaultKafkaDeadLetterTopic)

	// ── MinIO ─────────────────────────────────────────────────────────────────
	setString(&cfg.MinIO.Endpoint, DefaultMinIOEndpoint)
	setString(&cfg.MinIO.Bucket, DefaultMinIOBucket)
	setString(&cfg.MinIO.Region, DefaultMinIORegion)

	// ── Metrics ───────────────────────────────────────────────────────────────
	setString(&cfg.Metrics.Namespace, DefaultMetricsNamespace)
	setString(&cfg.Metrics.Subsystem, DefaultMetricsSubsystem)
	setString(&cfg.Metrics.Path, DefaultMetricsPath)

	// ── Log ───────────────────────────────────────────────────────────────────
	setString(&cfg.Log.Level, DefaultLogLevel)
	setString(&cfg.Log.Format, DefaultLogFormat)

	// ── Compliance ────────────────────────────────────────────────────────────
	c := &cfg.Compliance
	setString(&c.NoDeadlineStatus, string(compliance.StatusUpcoming))
	setInt(&c.HorizonMonths, compliance.DefaultHorizonMonths)
	setString(&c.CompletedStatusName, compliance.DefaultCompletedStatusName)
	setDuration(&c.FetchTimeout, DefaultFetchTimeout)
	setInt(&c.FetchConcurrency, DefaultFetchConcurrency)
	setDuration(&c.CacheTTL, DefaultCacheTTL)
	setString(&c.DefaultTenant, DefaultTenant)
}

// registerDefaults seeds v with defaults for every key. Besides covering the
// fields ApplyDefaults cannot, it makes each key known to viper so that
// AutomaticEnv overrides reach Unmarshal even without a config file.
func registerDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"server.port":             DefaultServerPort,
		"server.mode":             DefaultServerMode,
		"server.read_timeout":     DefaultServerReadTimeout,
		"server.write_timeout":    DefaultServerWriteTimeout,
		"server.shutdown_timeout": DefaultServerShutdownTimeout,

		"grpc.port":              DefaultGRPCPort,
		"grpc.enable_reflection": true,
		"grpc.max_recv_msg_size": DefaultGRPCMaxRecvMsgSize,

		"database.host":               DefaultDBHost,
		"database.port":               DefaultDBPort,
		"database.user":               "",
		"database.password":           "",
		"database.db_name":            DefaultDBName,
		"database.ssl_mode":           DefaultDBSSLMode,
		"database.max_conns":          DefaultDBMaxConns,
		"database.max_idle_conns":     DefaultDBMaxIdleConns,
		"database.conn_max_lifetime":  DefaultDBConnMaxLifetime,
		"database.conn_max_idle_time": DefaultDBConnMaxIdleTime,

		"redis.addr":           DefaultRedisAddr,
		"redis.password":       "",
		"redis.db":             0,
		"redis.pool_size":      DefaultRedisPoolSize,
		"redis.min_idle_conns": 0,
		"redis.dial_timeout":   DefaultRedisDialTimeout,
		"redis.read_timeout":   DefaultRedisReadTimeout,
		"redis.write_timeout":  DefaultRedisWriteTimeout,
		"redis.key_prefix":     DefaultRedisKeyPrefix,

		"kafka.brokers":           []string{DefaultKafkaBroker},
		"kafka.client_id":         DefaultKafkaClientID,
		"kafka.group_id":          DefaultKafkaGroupID,
		"kafka.alerts_topic":      DefaultKafkaAlertsTopic,
		"kafka.task_events_topic": DefaultKafkaTaskEventsTopic,
		"kafka.start_offset":      DefaultKafkaStartOffset,
		"kafka.batch_size":        DefaultKafkaBatchSize,
		"kafka.batch_timeout":     DefaultKafkaBatchTimeout,
		"kafka.max_retries":       DefaultKafkaMaxRetries,
		"kafka.dead_letter_topic": DefaultKafkaDeadLetterTopic,
		"kafka.ensure_topics":     false,
		"kafka.sasl_mechanism":    "",
		"kafka.sasl_username":     "",
		"kafka.sasl_password":     "",
		"kafka.tls_enabled":       false,
		"kafka.tls_ca_path":       "",

		"minio.enabled":        false,
		"minio.endpoint":       DefaultMinIOEndpoint,
		"minio.access_key":     "",
		"minio.secret_key":     "",
		"minio.bucket":         DefaultMinIOBucket,
		"minio.region":         DefaultMinIORegion,
		"minio.use_ssl":        false,
		"minio.retention_days": DefaultMinIORetentionDays,

		"metrics.enabled":   true,
		"metrics.namespace": DefaultMetricsNamespace,
		"metrics.subsystem": DefaultMetricsSubsystem,
		"metrics.path":      DefaultMetricsPath,

		"log.level":  DefaultLogLevel,
		"log.format": DefaultLogFormat,

		"compliance.upcoming_window_days":   compliance.DefaultUpcomingWindowDays,
		"compliance.no_deadline_status":     string(compliance.StatusUpcoming),
		"compliance.upcoming_credit_weight": compliance.DefaultUpcomingCreditWeight,
		"compliance.high_priority_days":     compliance.DefaultHighPriorityDays,
		"compliance.medium_priority_days":   compliance.DefaultMediumPriorityDays,
		"compliance.horizon_months":         compliance.DefaultHorizonMonths,
		"compliance.overdue_risk_weight":    compliance.DefaultOverdueRiskWeight,
		"compliance.risk_high_threshold":    compliance.DefaultRiskHighThreshold,
		"compliance.risk_medium_threshold":  compliance.DefaultRiskMediumThreshold,
		"compliance.strict_frequency":       false,
		"compliance.completed_status_name":  compliance.DefaultCompletedStatusName,
		"compliance.completed_status_id":    0,
		"compliance.fetch_timeout":          DefaultFetchTimeout,
		"compliance.fetch_concurrency":      DefaultFetchConcurrency,
		"compliance.cache_ttl":              DefaultCacheTTL,
		"compliance.default_tenant":         DefaultTenant,
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

// Default returns a fully defaulted configuration, as loaded with no file and
// no environment overrides.
func Default() *Config {
	cfg := &Config{
		GRPC:    GRPCConfig{EnableReflection: true},
		Metrics: MetricsConfig{Enabled: true},
		Compliance: ComplianceConfig{
			UpcomingWindowDays:   compliance.DefaultUpcomingWindowDays,
			UpcomingCreditWeight: compliance.DefaultUpcomingCreditWeight,
			HighPriorityDays:     compliance.DefaultHighPriorityDays,
			MediumPriorityDays:   compliance.DefaultMediumPriorityDays,
			OverdueRiskWeight:    compliance.DefaultOverdueRiskWeight,
			RiskHighThreshold:    compliance.DefaultRiskHighThreshold,
			RiskMediumThreshold:  compliance.DefaultRiskMediumThreshold,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
