package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Pesapal API base URLs.
const (
	PesapalSandboxURL    = "https://cybqa.pesapal.com/pesapalv3"
	PesapalProductionURL = "https://pay.pesapal.com/v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Pesapal   PesapalConfig   `mapstructure:"pesapal"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
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
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures operator bearer tokens.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// PesapalConfig configures the gateway client and inbound notifications.
type PesapalConfig struct {
	ConsumerKey      string        `mapstructure:"consumer_key"`
	ConsumerSecret   string        `mapstructure:"consumer_secret"`
	Sandbox          bool          `mapstructure:"sandbox"`
	BaseURL          string        `mapstructure:"base_url"` // overrides the sandbox/production default
	CallbackURL      string        `mapstructure:"callback_url"`
	IPNURL           string        `mapstructure:"ipn_url"`
	IPNID            string        `mapstructure:"ipn_id"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	SubmitTimeout    time.Duration `mapstructure:"submit_timeout"`
	StatusTimeout    time.Duration `mapstructure:"status_timeout"`
	IPNTimeout       time.Duration `mapstructure:"ipn_timeout"`
	SignatureSecret  string        `mapstructure:"signature_secret"`
	AllowUnsignedIPN bool          `mapstructure:"allow_unsigned_ipn"`
}

// APIBaseURL returns the effective gateway base URL.
func (p PesapalConfig) APIBaseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	if p.Sandbox {
		return PesapalSandboxURL
	}
	return PesapalProductionURL
}

// ReconcileConfig tunes the retry queue and the stale-payment sweep.
type ReconcileConfig struct {
	Queue         string        `mapstructure:"queue"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
}

// NotifyConfig configures downstream state-change notifications.
// An empty URL disables delivery.
type NotifyConfig struct {
	URL        string        `mapstructure:"url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
// Environment variables override file values. Prefix: RECON_.
// Nested keys use underscore: RECON_DATABASE_HOST, RECON_PESAPAL_CONSUMER_KEY, etc.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional

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

	// RECON_DATABASE_HOST -> database.host
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payment_reconciler")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "payment-reconciler")
	v.SetDefault("pesapal.consumer_key", "")
	v.SetDefault("pesapal.consumer_secret", "")
	v.SetDefault("pesapal.sandbox", true)
	v.SetDefault("pesapal.base_url", "")
	v.SetDefault("pesapal.callback_url", "")
	v.SetDefault("pesapal.ipn_url", "")
	v.SetDefault("pesapal.ipn_id", "")
	v.SetDefault("pesapal.request_timeout", "30s")
	v.SetDefault("pesapal.submit_timeout", "30s")
	v.SetDefault("pesapal.status_timeout", "10s")
	v.SetDefault("pesapal.ipn_timeout", "5s")
	v.SetDefault("pesapal.signature_secret", "")
	v.SetDefault("pesapal.allow_unsigned_ipn", false)
	v.SetDefault("reconcile.queue", "reconcile")
	v.SetDefault("reconcile.max_retries", 5)
	v.SetDefault("reconcile.retry_delay", "30s")
	v.SetDefault("reconcile.sweep_interval", "5m")
	v.SetDefault("reconcile.stale_after", "15m")
	v.SetDefault("reconcile.batch_size", 100)
	v.SetDefault("reconcile.concurrency", 5)
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.secret", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.max_retries", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate checks the settings the HTTP API cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Pesapal.SignatureSecret == "" {
		errs = append(errs, errors.New("pesapal.signature_secret is required"))
	}
	if c.Pesapal.ConsumerKey == "" || c.Pesapal.ConsumerSecret == "" {
		errs = append(errs, errors.New("pesapal.consumer_key and pesapal.consumer_secret are required"))
	}
	if c.Notify.URL != "" && c.Notify.Secret == "" {
		errs = append(errs, errors.New("notify.secret is required when notify.url is set"))
	}
	return errors.Join(errs...)
}
