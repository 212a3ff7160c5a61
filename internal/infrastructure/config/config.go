package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all configuration for the worker process
type Config struct {
	// HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Worker identity advertised to the backend
	Worker WorkerConfig `mapstructure:"worker"`

	// Backend registry integration
	Backend BackendConfig `mapstructure:"backend"`

	// WhatsApp protocol client configuration
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`

	// Session recovery configuration
	Recovery RecoveryConfig `mapstructure:"recovery"`

	// Remote object store configuration
	Store StoreConfig `mapstructure:"store"`

	// Logging configuration
	Log LogConfig `mapstructure:"log"`

	// API key authentication for the HTTP boundary
	APIKey APIKeyConfig `mapstructure:"apikey"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Circuit breaker around backend HTTP
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitbreaker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns the server address in host:port format
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkerConfig holds the process-global worker identity
type WorkerConfig struct {
	ID          string `mapstructure:"id"`       // generated per process if absent
	Endpoint    string `mapstructure:"endpoint"` // URL advertised to the backend
	MaxSessions int    `mapstructure:"max_sessions"`
	Environment string `mapstructure:"environment"`
	Description string `mapstructure:"description"`
}

// BackendConfig holds control-plane integration settings
type BackendConfig struct {
	URL                    string        `mapstructure:"url"` // empty disables registration
	AuthToken              string        `mapstructure:"auth_token"`
	RegistrationEnabled    bool          `mapstructure:"registration_enabled"`
	StandaloneMode         bool          `mapstructure:"standalone_mode"`
	HeartbeatInterval      time.Duration `mapstructure:"heartbeat_interval"`
	MaxRegistrationRetries int           `mapstructure:"max_registration_retries"`
	RegistrationRetryDelay time.Duration `mapstructure:"registration_retry_interval"`
	StartupDelay           time.Duration `mapstructure:"startup_delay"`
	WebhookTimeout         time.Duration `mapstructure:"webhook_timeout"`
	HeartbeatTimeout       time.Duration `mapstructure:"heartbeat_timeout"`
	RegistrationTimeout    time.Duration `mapstructure:"registration_timeout"`
	AssignmentFetchTimeout time.Duration `mapstructure:"assignment_fetch_timeout"`
	RecoveryReportTimeout  time.Duration `mapstructure:"recovery_report_timeout"`
}

// RegistrationActive reports whether the worker should couple to a backend.
func (c *BackendConfig) RegistrationActive() bool {
	return c.RegistrationEnabled && !c.StandaloneMode && c.URL != ""
}

// WhatsAppConfig holds protocol client configuration
type WhatsAppConfig struct {
	SessionPath          string        `mapstructure:"session_path"` // local auth material root
	QRTimeout            time.Duration `mapstructure:"qr_timeout"`
	QRTerminalTimeout    time.Duration `mapstructure:"qr_terminal_timeout"` // expiry of the last attempt
	MaxQRAttempts        int           `mapstructure:"max_qr_attempts"`
	AutoDisconnectGrace  time.Duration `mapstructure:"auto_disconnect_grace"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	RecoveredReconnect   time.Duration `mapstructure:"recovered_reconnect_interval"`
	TimedOutReconnect    time.Duration `mapstructure:"timed_out_reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout"`
	BulkMessageDelay     time.Duration `mapstructure:"bulk_message_delay"`
	BulkMaxMessages      int           `mapstructure:"bulk_max_messages"`
}

// RecoveryConfig holds cold-start recovery settings
type RecoveryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// StoreConfig holds the S3-compatible object store settings
type StoreConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Port           int    `mapstructure:"port"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	BucketSessions string `mapstructure:"bucket_sessions"`
	BucketMedia    string `mapstructure:"bucket_media"`
	BucketBackups  string `mapstructure:"bucket_backups"`
}

// Address returns the endpoint in host:port form as the minio client wants it.
func (c *StoreConfig) Address() string {
	if c.Port > 0 && !strings.Contains(c.Endpoint, ":") {
		return fmt.Sprintf("%s:%d", c.Endpoint, c.Port)
	}
	return c.Endpoint
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
	Header  string `mapstructure:"header"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	MaxAge            time.Duration `mapstructure:"max_age"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// CircuitBreakerConfig holds circuit breaker configuration for backend HTTP
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if c.Worker.MaxSessions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.max_sessions",
			Message: "must be positive",
		})
	}

	if c.Backend.RegistrationActive() && c.Backend.AuthToken == "" {
		// Missing token is a fatal misconfiguration at send time; surface
		// it up-front instead.
		errs = append(errs, ValidationError{
			Field:   "backend.auth_token",
			Message: "is required when backend registration is enabled",
		})
	}

	if c.WhatsApp.SessionPath == "" {
		errs = append(errs, ValidationError{
			Field:   "whatsapp.session_path",
			Message: "is required",
		})
	}
	if c.WhatsApp.MaxQRAttempts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "whatsapp.max_qr_attempts",
			Message: "must be positive",
		})
	}
	if c.WhatsApp.QRTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "whatsapp.qr_timeout",
			Message: "must be positive",
		})
	}
	if c.WhatsApp.BulkMaxMessages <= 0 {
		errs = append(errs, ValidationError{
			Field:   "whatsapp.bulk_max_messages",
			Message: "must be positive",
		})
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}
	validLogFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: "must be one of: json, text",
		})
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, ValidationError{
				Field:   "ratelimit.requests_per_second",
				Message: "must be positive when rate limiting is enabled",
			})
		}
		if c.RateLimit.BurstSize <= 0 {
			errs = append(errs, ValidationError{
				Field:   "ratelimit.burst_size",
				Message: "must be positive when rate limiting is enabled",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Load reads configuration from an optional .env file and the environment.
// Environment variables take priority; the flat names of the deployment
// surface (PORT, WORKER_ID, BACKEND_URL, ...) are bound explicitly.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional .env file in the working directory
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A stable identity is generated per process when none is configured.
	if cfg.Worker.ID == "" {
		cfg.Worker.ID = "worker-" + uuid.New().String()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithViper loads configuration using a provided viper instance (for testing)
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Worker.ID == "" {
		cfg.Worker.ID = "worker-" + uuid.New().String()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8001)

	// Worker defaults
	v.SetDefault("worker.id", "")
	v.SetDefault("worker.endpoint", "")
	v.SetDefault("worker.max_sessions", 50)
	v.SetDefault("worker.environment", "development")
	v.SetDefault("worker.description", "")

	// Backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.auth_token", "")
	v.SetDefault("backend.registration_enabled", true)
	v.SetDefault("backend.standalone_mode", false)
	v.SetDefault("backend.heartbeat_interval", 30*time.Second)
	v.SetDefault("backend.max_registration_retries", 5)
	v.SetDefault("backend.registration_retry_interval", 5*time.Second)
	v.SetDefault("backend.startup_delay", 5*time.Second)
	v.SetDefault("backend.webhook_timeout", 5*time.Second)
	v.SetDefault("backend.heartbeat_timeout", 5*time.Second)
	v.SetDefault("backend.registration_timeout", 15*time.Second)
	v.SetDefault("backend.assignment_fetch_timeout", 10*time.Second)
	v.SetDefault("backend.recovery_report_timeout", 10*time.Second)

	// WhatsApp defaults
	v.SetDefault("whatsapp.session_path", "./storage/sessions")
	v.SetDefault("whatsapp.qr_timeout", 60*time.Second)
	v.SetDefault("whatsapp.qr_terminal_timeout", 30*time.Second)
	v.SetDefault("whatsapp.max_qr_attempts", 3)
	v.SetDefault("whatsapp.auto_disconnect_grace", 30*time.Second)
	v.SetDefault("whatsapp.reconnect_interval", 5*time.Second)
	v.SetDefault("whatsapp.recovered_reconnect_interval", 3*time.Second)
	v.SetDefault("whatsapp.timed_out_reconnect_interval", 10*time.Second)
	v.SetDefault("whatsapp.max_reconnect_attempts", 5)
	v.SetDefault("whatsapp.query_timeout", 60*time.Second)
	v.SetDefault("whatsapp.bulk_message_delay", time.Second)
	v.SetDefault("whatsapp.bulk_max_messages", 100)

	// Recovery defaults
	v.SetDefault("recovery.enabled", true)
	v.SetDefault("recovery.startup_delay", 0*time.Second)

	// Object store defaults
	v.SetDefault("store.endpoint", "localhost")
	v.SetDefault("store.port", 9000)
	v.SetDefault("store.use_ssl", false)
	v.SetDefault("store.access_key", "")
	v.SetDefault("store.secret_key", "")
	v.SetDefault("store.bucket_sessions", "whatsam-sessions")
	v.SetDefault("store.bucket_media", "whatsam-media")
	v.SetDefault("store.bucket_backups", "whatsam-backups")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// API key defaults
	v.SetDefault("apikey.enabled", false)
	v.SetDefault("apikey.key", "")
	v.SetDefault("apikey.header", "X-API-Key")

	// Rate limit defaults
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 10.0)
	v.SetDefault("ratelimit.burst_size", 20)
	v.SetDefault("ratelimit.cleanup_interval", 5*time.Minute)
	v.SetDefault("ratelimit.max_age", time.Hour)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "whatsam")

	// Circuit breaker defaults
	v.SetDefault("circuitbreaker.enabled", true)
	v.SetDefault("circuitbreaker.max_requests", 3)
	v.SetDefault("circuitbreaker.interval", 60*time.Second)
	v.SetDefault("circuitbreaker.timeout", 30*time.Second)
	v.SetDefault("circuitbreaker.failure_threshold", 5)
}

// decodeHook builds the mapstructure hook chain. On top of viper's usual
// string conversions it accepts bare integers for time.Duration fields,
// interpreted as milliseconds — the deployment surface specifies
// HEARTBEAT_INTERVAL and friends that way.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		millisecondDurationHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func millisecondDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Millisecond, nil
		case int64:
			return time.Duration(v) * time.Millisecond, nil
		case float64:
			return time.Duration(v) * time.Millisecond, nil
		case string:
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
		}
		return data, nil
	}
}

// bindEnvVars maps the flat deployment environment names onto the nested
// config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.host", "HOST")

	_ = v.BindEnv("worker.id", "WORKER_ID")
	_ = v.BindEnv("worker.endpoint", "WORKER_ENDPOINT")
	_ = v.BindEnv("worker.max_sessions", "MAX_SESSIONS")
	_ = v.BindEnv("worker.environment", "WORKER_ENV")
	_ = v.BindEnv("worker.description", "WORKER_DESCRIPTION")

	_ = v.BindEnv("backend.url", "BACKEND_URL")
	_ = v.BindEnv("backend.auth_token", "WORKER_AUTH_TOKEN")
	_ = v.BindEnv("backend.registration_enabled", "BACKEND_REGISTRATION_ENABLED")
	_ = v.BindEnv("backend.standalone_mode", "STANDALONE_MODE")
	_ = v.BindEnv("backend.heartbeat_interval", "HEARTBEAT_INTERVAL")
	_ = v.BindEnv("backend.max_registration_retries", "MAX_REGISTRATION_RETRIES")
	_ = v.BindEnv("backend.registration_retry_interval", "REGISTRATION_RETRY_INTERVAL")
	_ = v.BindEnv("backend.startup_delay", "WORKER_STARTUP_DELAY")

	_ = v.BindEnv("whatsapp.session_path", "WHATSAPP_SESSION_PATH")
	_ = v.BindEnv("whatsapp.qr_timeout", "WHATSAPP_QR_TIMEOUT")
	_ = v.BindEnv("whatsapp.reconnect_interval", "WHATSAPP_RECONNECT_INTERVAL")
	_ = v.BindEnv("whatsapp.max_reconnect_attempts", "WHATSAPP_MAX_RECONNECT_ATTEMPTS")

	_ = v.BindEnv("recovery.enabled", "SESSION_RECOVERY_ENABLED")
	_ = v.BindEnv("recovery.startup_delay", "SESSION_RECOVERY_STARTUP_DELAY")

	_ = v.BindEnv("store.endpoint", "MINIO_ENDPOINT")
	_ = v.BindEnv("store.port", "MINIO_PORT")
	_ = v.BindEnv("store.use_ssl", "MINIO_USE_SSL")
	_ = v.BindEnv("store.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("store.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("store.bucket_sessions", "MINIO_BUCKET_SESSIONS")
	_ = v.BindEnv("store.bucket_media", "MINIO_BUCKET_MEDIA")
	_ = v.BindEnv("store.bucket_backups", "MINIO_BUCKET_BACKUPS")

	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")

	_ = v.BindEnv("apikey.enabled", "API_KEY_ENABLED")
	_ = v.BindEnv("apikey.key", "API_KEY")
}
