package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Clients   []ClientConfig  `mapstructure:"clients"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	RateLimit       int64         `mapstructure:"rate_limit"` // requests per client per window
	RateWindow      time.Duration `mapstructure:"rate_window"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	PoolSize         int           `mapstructure:"pool_size"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	CallbackGuardTTL time.Duration `mapstructure:"callback_guard_ttl"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

// AgentConfig configures the session client for the remote agent API.
type AgentConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst      int           `mapstructure:"rate_burst"`
	UserAgents     []string      `mapstructure:"user_agents"`
	PageSize       int           `mapstructure:"page_size"`
	MaxScanPages   int           `mapstructure:"max_scan_pages"`
}

type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	StaffChatID int64  `mapstructure:"staff_chat_id"`
}

// WalletConfig holds money rules. Amounts are decimal strings.
type WalletConfig struct {
	MinWithdrawal       string         `mapstructure:"min_withdrawal"`
	MinPayment          string         `mapstructure:"min_payment"`
	MinCompensation     string         `mapstructure:"min_compensation"`
	CompensationPercent string         `mapstructure:"compensation_percent"`
	CompensationWindow  time.Duration  `mapstructure:"compensation_window"`
	ReferralPercent     string         `mapstructure:"referral_percent"`
	LoyaltyUnit         string         `mapstructure:"loyalty_unit"`
	Methods             []MethodConfig `mapstructure:"methods"`
}

// MethodConfig describes one withdrawal/payment method.
type MethodConfig struct {
	ID                string `mapstructure:"id"`
	Name              string `mapstructure:"name"`
	CommissionPercent string `mapstructure:"commission_percent"`
}

type WorkerConfig struct {
	Backend     string        `mapstructure:"backend"` // redis or memory
	QueueKey    string        `mapstructure:"queue_key"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	MaxBacklog  int64         `mapstructure:"max_backlog"` // 0 = unchecked
}

type SchedulerConfig struct {
	RenewInterval     time.Duration `mapstructure:"renew_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
}

// ClientConfig is an API client allowed to request tokens. SecretHash is argon2id.
type ClientConfig struct {
	ID         string `mapstructure:"id"`
	SecretHash string `mapstructure:"secret_hash"`
}

// Load reads configuration from a .env file, a YAML file and environment variables.
// Environment variables override file values. Prefix: AWB_.
// Nested keys use underscore: AWB_DATABASE_HOST, AWB_AGENT_BASE_URL, etc.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("AWB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Wallet.validate(); err != nil {
		return nil, fmt.Errorf("wallet config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", "1m")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_bridge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.callback_guard_ttl", "30s")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "1h")
	v.SetDefault("jwt.issuer", "agent-wallet-bridge")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("agent.base_url", "http://localhost:9000")
	v.SetDefault("agent.session_ttl", "250s")
	v.SetDefault("agent.request_timeout", "30s")
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.backoff_base", "500ms")
	v.SetDefault("agent.backoff_max", "8s")
	v.SetDefault("agent.rate_limit", 5.0)
	v.SetDefault("agent.rate_burst", 5)
	v.SetDefault("agent.page_size", 100)
	v.SetDefault("agent.max_scan_pages", 50)
	v.SetDefault("agent.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	})

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("wallet.min_withdrawal", "10")
	v.SetDefault("wallet.min_payment", "10")
	v.SetDefault("wallet.min_compensation", "1")
	v.SetDefault("wallet.compensation_percent", "10")
	v.SetDefault("wallet.compensation_window", "168h")
	v.SetDefault("wallet.referral_percent", "5")
	v.SetDefault("wallet.loyalty_unit", "10")

	v.SetDefault("worker.backend", "redis")
	v.SetDefault("worker.queue_key", "awb:tasks")
	v.SetDefault("worker.poll_timeout", "5s")
	v.SetDefault("worker.max_backlog", 1000)

	v.SetDefault("scheduler.renew_interval", "250s")
	v.SetDefault("scheduler.reconcile_interval", "5m")
	v.SetDefault("scheduler.job_timeout", "2m")
}

func (w WalletConfig) validate() error {
	fields := map[string]string{
		"min_withdrawal":       w.MinWithdrawal,
		"min_payment":          w.MinPayment,
		"min_compensation":     w.MinCompensation,
		"compensation_percent": w.CompensationPercent,
		"referral_percent":     w.ReferralPercent,
		"loyalty_unit":         w.LoyaltyUnit,
	}
	for name, raw := range fields {
		if _, err := decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, m := range w.Methods {
		if m.ID == "" {
			return errors.New("method with empty id")
		}
		if _, err := decimal.NewFromString(m.CommissionPercent); err != nil {
			return fmt.Errorf("method %s commission_percent: %w", m.ID, err)
		}
	}
	return nil
}

// Dec parses a decimal string that already passed validation.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
