package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Webhook   WebhookConfig
	Internal  InternalConfig
	RateLimit RateLimitConfig
	Usage     UsageConfig
	Budget    BudgetConfig
	SLA       SLAConfig
	Stripe    StripeConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// WebhookConfig holds the shared secrets for inbound execution webhooks
type WebhookConfig struct {
	Secret          string
	PreviousSecrets []string
	MaxBodySize     int64
}

// InternalConfig holds the service-to-service authentication settings
type InternalConfig struct {
	Secret  string
	MaxSkew time.Duration
}

// RateLimitConfig holds fixed-window rate limiter settings
type RateLimitConfig struct {
	Window      time.Duration
	APIKeyLimit int64
	IPLimit     int64
	APIKeys     []string
}

// UsageConfig holds usage metering settings
type UsageConfig struct {
	PricePerExecutionUSD string
	RetentionDays        int
}

// BudgetConfig holds defaults for tenants without an explicit budget
type BudgetConfig struct {
	DefaultMonthlyUSD string
	DefaultBehavior   string // block, warn
}

// SLAConfig holds SLA credit computation settings
type SLAConfig struct {
	TargetSLA          float64
	IssueTimeout       time.Duration
	CreditExpiryMonths int
	RunDay             int // day of month for the monthly job
	RunHour            int // hour of day (UTC) for the monthly job
	SchedulerEnabled   bool
}

// StripeConfig holds Stripe API settings
type StripeConfig struct {
	APIKey string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with FLOWMETRY_ prefix (e.g., FLOWMETRY_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FLOWMETRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
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
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Webhook: WebhookConfig{
			Secret:          v.GetString("webhook.secret"),
			PreviousSecrets: v.GetStringSlice("webhook.previous_secrets"),
			MaxBodySize:     v.GetInt64("webhook.max_body_size"),
		},
		Internal: InternalConfig{
			Secret:  v.GetString("internal.secret"),
			MaxSkew: v.GetDuration("internal.max_skew"),
		},
		RateLimit: RateLimitConfig{
			Window:      v.GetDuration("rate_limit.window"),
			APIKeyLimit: v.GetInt64("rate_limit.api_key_limit"),
			IPLimit:     v.GetInt64("rate_limit.ip_limit"),
			APIKeys:     v.GetStringSlice("rate_limit.api_keys"),
		},
		Usage: UsageConfig{
			PricePerExecutionUSD: v.GetString("usage.price_per_execution_usd"),
			RetentionDays:        v.GetInt("usage.retention_days"),
		},
		Budget: BudgetConfig{
			DefaultMonthlyUSD: v.GetString("budget.default_monthly_usd"),
			DefaultBehavior:   v.GetString("budget.default_behavior"),
		},
		SLA: SLAConfig{
			TargetSLA:          v.GetFloat64("sla.target_sla"),
			IssueTimeout:       v.GetDuration("sla.issue_timeout"),
			CreditExpiryMonths: v.GetInt("sla.credit_expiry_months"),
			RunDay:             v.GetInt("sla.run_day"),
			RunHour:            v.GetInt("sla.run_hour"),
			SchedulerEnabled:   v.GetBool("sla.scheduler_enabled"),
		},
		Stripe: StripeConfig{
			APIKey: v.GetString("stripe.api_key"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "flowmetry-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "flowmetry"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Webhook.MaxBodySize == 0 {
		cfg.Webhook.MaxBodySize = 64 << 10 // 64KB
	}
	if cfg.Internal.MaxSkew == 0 {
		cfg.Internal.MaxSkew = 300 * time.Second
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Hour
	}
	if cfg.RateLimit.APIKeyLimit == 0 {
		cfg.RateLimit.APIKeyLimit = 1000
	}
	if cfg.RateLimit.IPLimit == 0 {
		cfg.RateLimit.IPLimit = 100
	}
	if cfg.Usage.PricePerExecutionUSD == "" {
		cfg.Usage.PricePerExecutionUSD = "0.002"
	}
	if cfg.Usage.RetentionDays == 0 {
		cfg.Usage.RetentionDays = 90
	}
	if cfg.Budget.DefaultMonthlyUSD == "" {
		cfg.Budget.DefaultMonthlyUSD = "100"
	}
	if cfg.Budget.DefaultBehavior == "" {
		cfg.Budget.DefaultBehavior = "warn"
	}
	if cfg.SLA.TargetSLA == 0 {
		cfg.SLA.TargetSLA = 99.9
	}
	if cfg.SLA.IssueTimeout == 0 {
		cfg.SLA.IssueTimeout = 10 * time.Second
	}
	if cfg.SLA.CreditExpiryMonths == 0 {
		cfg.SLA.CreditExpiryMonths = 3
	}
	if cfg.SLA.RunDay == 0 {
		cfg.SLA.RunDay = 1
	}
	if cfg.SLA.RunHour == 0 {
		cfg.SLA.RunHour = 2
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if c.SLA.TargetSLA <= 0 || c.SLA.TargetSLA > 100 {
		return fmt.Errorf("sla.target_sla must be between 0 and 100, got %f", c.SLA.TargetSLA)
	}
	if c.SLA.RunDay < 1 || c.SLA.RunDay > 28 {
		return fmt.Errorf("sla.run_day must be between 1 and 28, got %d", c.SLA.RunDay)
	}
	if c.SLA.RunHour < 0 || c.SLA.RunHour > 23 {
		return fmt.Errorf("sla.run_hour must be between 0 and 23, got %d", c.SLA.RunHour)
	}

	switch c.Budget.DefaultBehavior {
	case "block", "warn":
	default:
		return fmt.Errorf("budget.default_behavior must be 'block' or 'warn', got %q", c.Budget.DefaultBehavior)
	}

	if c.App.Env == "production" {
		if c.Webhook.Secret == "" {
			return fmt.Errorf("webhook.secret is required in production")
		}
		if len(c.Webhook.Secret) < 32 {
			return fmt.Errorf("webhook.secret must be at least 32 characters in production")
		}
		if c.Internal.Secret == "" {
			return fmt.Errorf("internal.secret is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Stripe.APIKey == "" {
			return fmt.Errorf("stripe.api_key is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
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

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
