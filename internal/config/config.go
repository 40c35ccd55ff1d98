// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PRODUCTINDEXER_SERVER_PORT.
const EnvPrefix = "PRODUCTINDEXER"

// Store drivers accepted by db.driver. An empty driver disables persistence.
const (
	DriverNone     = ""
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	CORS    CORSConfig    `mapstructure:"cors"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	KB      KBConfig      `mapstructure:"kb"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// HTTPConfig configures the outbound page fetcher.
type HTTPConfig struct {
	TimeoutSeconds           int     `mapstructure:"timeout_seconds"`
	UserAgent                string  `mapstructure:"user_agent"`
	PerHostRequestsPerSecond float64 `mapstructure:"per_host_requests_per_second"`
	PerHostBurst             int     `mapstructure:"per_host_burst"`
}

// KBConfig addresses the hosted knowledge box.
type KBConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Zone              string  `mapstructure:"zone"`
	KBID              string  `mapstructure:"kb_id"`
	WriterAPIKey      string  `mapstructure:"writer_api_key"`
	ReaderAPIKey      string  `mapstructure:"reader_api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DBConfig selects and tunes the product store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// legacyEnv maps keys to the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"kb.writer_api_key": "NUCLIA_WRITER_API_KEY",
	"kb.reader_api_key": "NUCLIA_READER_API_KEY",
	"kb.kb_id":          "NUCLIA_KB_UID",
	"db.dsn":            "DATABASE_URL",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.per_host_requests_per_second", 2.0)
	v.SetDefault("http.per_host_burst", 4)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("kb.base_url", "https://aws-eu-central-1-1.rag.progress.cloud/api")
	v.SetDefault("kb.zone", "aws-eu-central-1-1")
	v.SetDefault("kb.kb_id", "")
	v.SetDefault("kb.writer_api_key", "")
	v.SetDefault("kb.reader_api_key", "")
	v.SetDefault("kb.timeout_seconds", 30)
	v.SetDefault("kb.requests_per_second", 5.0)
	v.SetDefault("kb.burst", 10)
	v.SetDefault("db.driver", DriverNone)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// bindLegacyEnv lets each legacy variable fill its key when the prefixed
// variable is unset.
func bindLegacyEnv(v *viper.Viper) error {
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("server.request_timeout_seconds must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("http.timeout_seconds must be > 0"))
	}
	if c.KB.BaseURL == "" {
		errs = append(errs, errors.New("kb.base_url must be set"))
	}
	if c.KB.KBID == "" || c.KB.WriterAPIKey == "" || c.KB.ReaderAPIKey == "" {
		errs = append(errs, errors.New("kb.kb_id, kb.writer_api_key and kb.reader_api_key must be set"))
	}
	if c.KB.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("kb.timeout_seconds must be > 0"))
	}
	if c.KB.RequestsPerSecond < 0 || c.KB.Burst < 0 {
		errs = append(errs, errors.New("kb.requests_per_second and kb.burst must be >= 0"))
	}
	switch c.DB.Driver {
	case DriverNone, DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DB.DSN == "" {
			errs = append(errs, fmt.Errorf("db.dsn must be set for driver %q", c.DB.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}
	return errors.Join(errs...)
}

// FetchTimeout is the page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// KBTimeout is the per-call knowledge box budget.
func (c Config) KBTimeout() time.Duration {
	return time.Duration(c.KB.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds the handling of a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
