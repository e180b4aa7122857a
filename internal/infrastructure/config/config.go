package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Event       EventConfig
	HTTP        HTTPConfig
	Kafka       KafkaConfig
	Storage     StorageConfig
	Printing    PrintingConfig
	Fulfillment FulfillmentConfig
	Reconcile   ReconcileConfig
	Scheduler   SchedulerConfig
	Telemetry   TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings. Driver is "postgres"
// or "sqlite"; SQLitePath is only read for sqlite.
type DatabaseConfig struct {
	Driver             string
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string
	SQLitePath         string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	LogLevel           string // silent, error, warn, info
	SlowQueryThreshold time.Duration
	AutoMigrate        bool
}

// RedisConfig holds Redis connection settings. When disabled the batch
// scope lock stays in-process.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// EventConfig holds outbox relay configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// KafkaConfig holds the downstream signal producer settings
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// StorageConfig selects where rendered label documents are kept
type StorageConfig struct {
	Backend        string // filesystem, s3
	LocalDir       string
	BaseURL        string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3Prefix       string
}

// PrintingConfig controls label rendering. Renderer "chromedp" prints PDF
// through headless Chrome; "html" returns the rendered sheet as-is.
type PrintingConfig struct {
	Renderer      string
	ChromePath    string
	RenderTimeout time.Duration
	PageWidthMM   float64
	PageHeightMM  float64
	Locale        string
}

// FulfillmentConfig holds batch policy
type FulfillmentConfig struct {
	ReadyStatuses []string
	ScopeLockTTL  time.Duration
}

// ReconcileConfig holds sync health thresholds. Feeds maps a platform to
// the URL of its upstream status feed.
type ReconcileConfig struct {
	Platforms          []string
	StaleAfter         time.Duration
	OffHoursStaleAfter time.Duration
	BusinessStartHour  int
	BusinessEndHour    int
	Timezone           string
	CriticalFraction   float64
	LowVolumeRatio     float64
	TrailingDays       int
	MinBaselineOrders  float64
	MaxGapDays         int
	Feeds              map[string]string
	FeedTimeout        time.Duration
}

// SchedulerConfig holds reconcile job scheduling
type SchedulerConfig struct {
	Enabled           bool
	ReconcileInterval time.Duration
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	HistoryLimit      int
	HistoryPath       string // pebble directory; empty keeps history in memory
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	ProfilingEnabled  bool
	PyroscopeAddress  string
	ProfileTypes      []string
	SpanProfiles      bool
}

// Load reads configuration. Priority, highest first:
//  1. ORDERHUB_* environment variables (e.g. ORDERHUB_DATABASE_PASSWORD)
//  2. a .env file in the working directory
//  3. config.toml in ., ./backend or /app
//  4. built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile reads configuration from an explicit file plus the environment
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ORDERHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:             v.GetString("database.driver"),
			Host:               v.GetString("database.host"),
			Port:               v.GetInt("database.port"),
			User:               v.GetString("database.user"),
			Password:           v.GetString("database.password"),
			DBName:             v.GetString("database.dbname"),
			SSLMode:            v.GetString("database.sslmode"),
			SQLitePath:         v.GetString("database.sqlite_path"),
			MaxOpenConns:       v.GetInt("database.max_open_conns"),
			MaxIdleConns:       v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:    v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime:    v.GetDuration("database.conn_max_idle_time"),
			LogLevel:           v.GetString("database.log_level"),
			SlowQueryThreshold: v.GetDuration("database.slow_query_threshold"),
			AutoMigrate:        v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: stringList(v, "http.cors_allow_origins"),
			CORSAllowMethods: stringList(v, "http.cors_allow_methods"),
			CORSAllowHeaders: stringList(v, "http.cors_allow_headers"),
			TrustedProxies:   stringList(v, "http.trusted_proxies"),
		},
		Kafka: KafkaConfig{
			Enabled:      v.GetBool("kafka.enabled"),
			Brokers:      stringList(v, "kafka.brokers"),
			Topic:        v.GetString("kafka.topic"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Storage: StorageConfig{
			Backend:        v.GetString("storage.backend"),
			LocalDir:       v.GetString("storage.local_dir"),
			BaseURL:        v.GetString("storage.base_url"),
			S3Bucket:       v.GetString("storage.s3_bucket"),
			S3Region:       v.GetString("storage.s3_region"),
			S3Endpoint:     v.GetString("storage.s3_endpoint"),
			S3AccessKey:    v.GetString("storage.s3_access_key"),
			S3SecretKey:    v.GetString("storage.s3_secret_key"),
			S3UsePathStyle: v.GetBool("storage.s3_use_path_style"),
			S3Prefix:       v.GetString("storage.s3_prefix"),
		},
		Printing: PrintingConfig{
			Renderer:      v.GetString("printing.renderer"),
			ChromePath:    v.GetString("printing.chrome_path"),
			RenderTimeout: v.GetDuration("printing.render_timeout"),
			PageWidthMM:   v.GetFloat64("printing.page_width_mm"),
			PageHeightMM:  v.GetFloat64("printing.page_height_mm"),
			Locale:        v.GetString("printing.locale"),
		},
		Fulfillment: FulfillmentConfig{
			ReadyStatuses: stringList(v, "fulfillment.ready_statuses"),
			ScopeLockTTL:  v.GetDuration("fulfillment.scope_lock_ttl"),
		},
		Reconcile: ReconcileConfig{
			Platforms:          stringList(v, "reconcile.platforms"),
			StaleAfter:         v.GetDuration("reconcile.stale_after"),
			OffHoursStaleAfter: v.GetDuration("reconcile.off_hours_stale_after"),
			BusinessStartHour:  v.GetInt("reconcile.business_start_hour"),
			BusinessEndHour:    v.GetInt("reconcile.business_end_hour"),
			Timezone:           v.GetString("reconcile.timezone"),
			CriticalFraction:   v.GetFloat64("reconcile.critical_fraction"),
			LowVolumeRatio:     v.GetFloat64("reconcile.low_volume_ratio"),
			TrailingDays:       v.GetInt("reconcile.trailing_days"),
			MinBaselineOrders:  v.GetFloat64("reconcile.min_baseline_orders"),
			MaxGapDays:         v.GetInt("reconcile.max_gap_days"),
			Feeds:              v.GetStringMapString("reconcile.feeds"),
			FeedTimeout:        v.GetDuration("reconcile.feed_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			ReconcileInterval: v.GetDuration("scheduler.reconcile_interval"),
			MaxConcurrentJobs: v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
			HistoryLimit:      v.GetInt("scheduler.history_limit"),
			HistoryPath:       v.GetString("scheduler.history_path"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
			ProfileTypes:      stringList(v, "telemetry.profile_types"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stringList reads a list from TOML arrays or comma separated env values
func stringList(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "orderhub"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	db := &cfg.Database
	if db.Driver == "" {
		db.Driver = "postgres"
	}
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == 0 {
		db.Port = 5432
	}
	if db.User == "" {
		db.User = "postgres"
	}
	if db.DBName == "" {
		db.DBName = "orderhub"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.SQLitePath == "" {
		db.SQLitePath = "orderhub.db"
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = 25
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = 5
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = time.Hour
	}
	if db.ConnMaxIdleTime == 0 {
		db.ConnMaxIdleTime = 30 * time.Minute
	}
	if db.LogLevel == "" {
		db.LogLevel = "warn"
	}
	if db.SlowQueryThreshold == 0 {
		db.SlowQueryThreshold = 200 * time.Millisecond
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 7 * 24 * time.Hour
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20
	}
	// No default origin: cross-origin requests stay blocked until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "X-Actor-ID"}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "orderhub.fulfillment.signals"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "filesystem"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "./data/labels"
	}
	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "/files"
	}
	if cfg.Storage.S3Region == "" {
		cfg.Storage.S3Region = "us-east-1"
	}

	if cfg.Printing.Renderer == "" {
		cfg.Printing.Renderer = "chromedp"
	}
	if cfg.Printing.RenderTimeout == 0 {
		cfg.Printing.RenderTimeout = 30 * time.Second
	}
	if cfg.Printing.PageWidthMM == 0 {
		cfg.Printing.PageWidthMM = 100
	}
	if cfg.Printing.PageHeightMM == 0 {
		cfg.Printing.PageHeightMM = 150
	}
	if cfg.Printing.Locale == "" {
		cfg.Printing.Locale = "en-US"
	}

	if len(cfg.Fulfillment.ReadyStatuses) == 0 {
		cfg.Fulfillment.ReadyStatuses = []string{"PAID", "PACKING"}
	}
	if cfg.Fulfillment.ScopeLockTTL == 0 {
		cfg.Fulfillment.ScopeLockTTL = 30 * time.Second
	}

	rc := &cfg.Reconcile
	if len(rc.Platforms) == 0 {
		rc.Platforms = []string{"marketplace-A", "marketplace-B", "marketplace-C"}
	}
	if rc.StaleAfter == 0 {
		rc.StaleAfter = 24 * time.Hour
	}
	if rc.OffHoursStaleAfter == 0 {
		rc.OffHoursStaleAfter = 36 * time.Hour
	}
	if rc.BusinessStartHour == 0 && rc.BusinessEndHour == 0 {
		rc.BusinessStartHour = 8
		rc.BusinessEndHour = 22
	}
	if rc.Timezone == "" {
		rc.Timezone = "UTC"
	}
	if rc.CriticalFraction == 0 {
		rc.CriticalFraction = 0.5
	}
	if rc.LowVolumeRatio == 0 {
		rc.LowVolumeRatio = 0.3
	}
	if rc.TrailingDays == 0 {
		rc.TrailingDays = 7
	}
	if rc.MinBaselineOrders == 0 {
		rc.MinBaselineOrders = 5
	}
	if rc.MaxGapDays == 0 {
		rc.MaxGapDays = 90
	}
	if rc.FeedTimeout == 0 {
		rc.FeedTimeout = 10 * time.Second
	}

	sc := &cfg.Scheduler
	if sc.ReconcileInterval == 0 {
		sc.ReconcileInterval = 15 * time.Minute
	}
	if sc.MaxConcurrentJobs == 0 {
		sc.MaxConcurrentJobs = 2
	}
	if sc.JobTimeout == 0 {
		sc.JobTimeout = 2 * time.Minute
	}
	if sc.RetryAttempts == 0 {
		sc.RetryAttempts = 3
	}
	if sc.RetryDelay == 0 {
		sc.RetryDelay = 30 * time.Second
	}
	if sc.HistoryLimit == 0 {
		sc.HistoryLimit = 100
	}

	tc := &cfg.Telemetry
	if tc.CollectorEndpoint == "" {
		tc.CollectorEndpoint = "localhost:4317"
	}
	if tc.SamplingRatio == 0 {
		tc.SamplingRatio = 1.0
	}
	if tc.ServiceName == "" {
		tc.ServiceName = cfg.App.Name
	}
	if tc.MetricsInterval == 0 {
		tc.MetricsInterval = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Storage.Backend {
	case "filesystem":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be filesystem or s3, got %q", c.Storage.Backend)
	}

	switch c.Printing.Renderer {
	case "chromedp", "html":
	default:
		return fmt.Errorf("printing.renderer must be chromedp or html, got %q", c.Printing.Renderer)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Fulfillment.ScopeLockTTL < 0 {
		return fmt.Errorf("fulfillment.scope_lock_ttl cannot be negative")
	}
	if c.Scheduler.MaxConcurrentJobs < 1 {
		return fmt.Errorf("scheduler.max_concurrent_jobs must be positive")
	}
	if _, err := time.LoadLocation(c.Reconcile.Timezone); err != nil {
		return fmt.Errorf("reconcile.timezone: %w", err)
	}
	for platform, raw := range c.Reconcile.Feeds {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("reconcile.feeds.%s must be an absolute URL", platform)
		}
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
