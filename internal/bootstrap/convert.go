package bootstrap

import (
	appcompliance "github.com/digirix/Apexsaas-sub009/internal/application/compliance"
	"github.com/digirix/Apexsaas-sub009/internal/config"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/redis"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/messaging/kafka"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/storage/minio"
)

// The functions below translate config sections into client configs.

func PostgresConfig(c config.DatabaseConfig) postgres.PostgresConfig {
	return postgres.PostgresConfig{
		Host:            c.Host,
		Port:            c.Port,
		Database:        c.DBName,
		Username:        c.User,
		Password:        c.Password,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

func RedisConfig(c config.RedisConfig) *redis.RedisConfig {
	return &redis.RedisConfig{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

func security(c config.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SASLMechanism: c.SASLMechanism,
		SASLUsername:  c.SASLUsername,
		SASLPassword:  c.SASLPassword,
		TLSEnabled:    c.TLSEnabled,
		TLSCAPath:     c.TLSCAPath,
	}
}

// ProducerConfig suffixes the configured client id with the process role.
func ProducerConfig(c config.KafkaConfig, role string) kafka.ProducerConfig {
	clientID := c.ClientID
	if role != "" {
		clientID += "-" + role
	}
	return kafka.ProducerConfig{
		Brokers:      c.Brokers,
		ClientID:     clientID,
		Acks:         "all",
		MaxRetries:   c.MaxRetries,
		BatchSize:    c.BatchSize,
		BatchTimeout: c.BatchTimeout,
		Security:     security(c),
	}
}

// ConsumerConfig subscribes the group to the task-changed topic.
func ConsumerConfig(c config.KafkaConfig) kafka.ConsumerConfig {
	topic := c.TaskEventsTopic
	if topic == "" {
		topic = kafka.TopicTaskChanged
	}
	return kafka.ConsumerConfig{
		Brokers:     c.Brokers,
		GroupID:     c.GroupID,
		Topics:      []string{topic},
		StartOffset: c.StartOffset,
		Security:    security(c),
		Retry: kafka.RetryConfig{
			MaxRetries:      c.MaxRetries,
			DeadLetterTopic: c.DeadLetterTopic,
		},
	}
}

func MinIOConfig(c config.MinIOConfig) *minio.MinIOConfig {
	return &minio.MinIOConfig{
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKey,
		SecretAccessKey: c.SecretKey,
		UseSSL:          c.UseSSL,
		Region:          c.Region,
		Bucket:          c.Bucket,
		RetentionDays:   c.RetentionDays,
	}
}

func ServiceOptions(c config.ComplianceConfig) appcompliance.Options {
	return appcompliance.Options{
		Policy:              c.Policy(),
		CompletedStatusName: c.CompletedStatusName,
		CompletedStatusID:   c.CompletedStatusID,
		FetchTimeout:        c.FetchTimeout,
		FetchConcurrency:    c.FetchConcurrency,
		CacheTTL:            c.CacheTTL,
	}
}
