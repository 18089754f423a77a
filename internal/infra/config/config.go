package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	Versioning VersioningSettings `mapstructure:"versioning"`
	Retention  RetentionSettings  `mapstructure:"retention"`
	Analytics  AnalyticsSettings  `mapstructure:"analytics"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and key layout
type RedisSettings struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	DB            int           `mapstructure:"db"`
	Password      string        `mapstructure:"password"`
	TLSEnabled    bool          `mapstructure:"tls_enabled"`
	PointerPrefix string        `mapstructure:"pointer_prefix"`
	PointerTTL    time.Duration `mapstructure:"pointer_ttl"`
	ViewPrefix    string        `mapstructure:"view_prefix"`
}

// KafkaSettings configures the lifecycle producer and the analytics consumer
type KafkaSettings struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	Async         bool     `mapstructure:"async"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// VersioningSettings tunes the lifecycle controller
type VersioningSettings struct {
	StoreDriver   string        `mapstructure:"store_driver"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	AuditKeepLast int           `mapstructure:"audit_keep_last"`
}

// RetentionSettings drives the periodic cleanup of stale versions
type RetentionSettings struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	OlderThanDays    int           `mapstructure:"older_than_days"`
	KeepMinimum      int           `mapstructure:"keep_minimum"`
	ExcludePublished bool          `mapstructure:"exclude_published"`
	ExcludeActive    bool          `mapstructure:"exclude_active"`
}

// AnalyticsSettings tunes analytics aggregation
type AnalyticsSettings struct {
	ViewDedupeWindow time.Duration `mapstructure:"view_dedupe_window"`
	SummaryFanOut    int           `mapstructure:"summary_fan_out"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VERSIONS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.pointer_prefix",
		"redis.pointer_ttl",
		"redis.view_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.consumer_group",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"versioning.store_driver",
		"versioning.max_retries",
		"versioning.retry_backoff",
		"versioning.audit_keep_last",
		"retention.enabled",
		"retention.interval",
		"retention.older_than_days",
		"retention.keep_minimum",
		"retention.exclude_published",
		"retention.exclude_active",
		"analytics.view_dedupe_window",
		"analytics.summary_fan_out",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Versioning.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("versioning.store_driver: unsupported driver %q", c.Versioning.StoreDriver)
	}
	if c.Versioning.MaxRetries < 0 {
		return fmt.Errorf("versioning.max_retries must not be negative")
	}
	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be positive when retention is enabled")
		}
		if c.Retention.OlderThanDays <= 0 {
			return fmt.Errorf("retention.older_than_days must be positive when retention is enabled")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "product-versions")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "catalog")
	v.SetDefault("postgres.password", "catalog_password")
	v.SetDefault("postgres.database", "catalog")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.pointer_prefix", "versions:pointer")
	v.SetDefault("redis.pointer_ttl", "5m")
	v.SetDefault("redis.view_prefix", "versions:view")

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "catalog")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.consumer_group", "product-versions-analytics")

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "product-versions")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("versioning.store_driver", StoreDriverPostgres)
	v.SetDefault("versioning.max_retries", 3)
	v.SetDefault("versioning.retry_backoff", "20ms")
	v.SetDefault("versioning.audit_keep_last", 100)

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.older_than_days", 365)
	v.SetDefault("retention.keep_minimum", 5)
	v.SetDefault("retention.exclude_published", true)
	v.SetDefault("retention.exclude_active", true)

	v.SetDefault("analytics.view_dedupe_window", "30m")
	v.SetDefault("analytics.summary_fan_out", 8)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "VERSIONS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
