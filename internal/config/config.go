package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadFromEnv
const EnvPrefix = "DEBATEHALL_"

// Config is the system-wide settings root. Every section is required.
type Config struct {
	Database      *DatabaseConfig      `json:"database" envPrefix:"DATABASE_"`
	HTTP          *HTTPConfig          `json:"http" envPrefix:"HTTP_"`
	WebSocket     *WebSocketConfig     `json:"websocket" envPrefix:"WEBSOCKET_"`
	Auth          *AuthConfig          `json:"auth" envPrefix:"AUTH_"`
	Debate        *DebateConfig        `json:"debate" envPrefix:"DEBATE_"`
	Redis         *RedisConfig         `json:"redis" envPrefix:"REDIS_"`
	Notifications *NotificationsConfig `json:"notifications" envPrefix:"NOTIFICATIONS_"`
	Telemetry     *TelemetryConfig     `json:"telemetry" envPrefix:"OTEL_"`
}

// DatabaseConfig selects the durable store. Path ":memory:" runs without SQLite.
// An empty MigrationsPath applies the migrations compiled into the binary.
type DatabaseConfig struct {
	Path           string        `json:"path" env:"PATH"`
	Timeout        time.Duration `json:"timeout" env:"TIMEOUT"`
	MigrationsPath string        `json:"migrations_path" env:"MIGRATIONS_PATH"`
}

type HTTPConfig struct {
	Port         int           `json:"port" env:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	Host         string        `json:"host" env:"HOST"`
}

// WebSocketConfig controls heartbeat and per-connection buffering
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize   int           `json:"buffer_size" env:"BUFFER_SIZE"`
}

// AuthConfig holds the HS256 signing secret for bearer tokens
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `json:"token_ttl" env:"TOKEN_TTL"`
}

// DebateConfig carries the policy decisions for real-time sessions
type DebateConfig struct {
	// RequireOngoingToPost rejects chat messages outside the session window
	RequireOngoingToPost bool `json:"require_ongoing_to_post" env:"REQUIRE_ONGOING_TO_POST"`
	// AllowCreatorConnect lets a session's creator connect without membership
	AllowCreatorConnect bool `json:"allow_creator_connect" env:"ALLOW_CREATOR_CONNECT"`
	// CreatorCanPost lets a connected non-member creator send chat messages
	CreatorCanPost     bool          `json:"creator_can_post" env:"CREATOR_CAN_POST"`
	TypingTimeout      time.Duration `json:"typing_timeout" env:"TYPING_TIMEOUT"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	MaxMessageLength   int           `json:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
}

// RedisConfig is optional; an empty URL disables presence snapshots and queued notifications
type RedisConfig struct {
	URL              string        `json:"url" env:"URL"`
	SnapshotInterval time.Duration `json:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
	SnapshotTTL      time.Duration `json:"snapshot_ttl" env:"SNAPSHOT_TTL"`
}

type NotificationsConfig struct {
	Queue    string `json:"queue" env:"QUEUE"`
	MaxRetry int    `json:"max_retry" env:"MAX_RETRY"`
}

// TelemetryConfig enables OTLP metric export. An empty endpoint keeps metrics in-process only.
type TelemetryConfig struct {
	Endpoint       string        `json:"endpoint" env:"ENDPOINT"`
	ServiceName    string        `json:"service_name" env:"SERVICE_NAME"`
	ExportInterval time.Duration `json:"export_interval" env:"EXPORT_INTERVAL"`
}

// DefaultConfig returns settings suitable for a single-node deployment
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./debatehall.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			JWTSecret: "debatehall-development-secret",
			TokenTTL:  24 * time.Hour,
		},
		Debate: &DebateConfig{
			RequireOngoingToPost: true,
			AllowCreatorConnect:  true,
			CreatorCanPost:       false,
			TypingTimeout:        3 * time.Second,
			RateLimitPerMinute:   60,
			MaxMessageLength:     2000,
		},
		Redis: &RedisConfig{
			SnapshotInterval: 10 * time.Second,
			SnapshotTTL:      time.Minute,
		},
		Notifications: &NotificationsConfig{
			Queue:    "notifications",
			MaxRetry: 3,
		},
		Telemetry: &TelemetryConfig{
			ServiceName:    "debatehall",
			ExportInterval: 30 * time.Second,
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("WebSocket ping interval must be shorter than read timeout")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Debate == nil {
		return fmt.Errorf("debate configuration is required")
	}
	if c.Debate.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}
	if c.Debate.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Debate.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}

	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.URL != "" && c.Redis.SnapshotInterval <= 0 {
		return fmt.Errorf("redis snapshot interval must be positive")
	}
	if c.Redis.URL != "" && c.Redis.SnapshotTTL < c.Redis.SnapshotInterval {
		return fmt.Errorf("redis snapshot TTL must not be shorter than the interval")
	}

	if c.Notifications == nil {
		return fmt.Errorf("notifications configuration is required")
	}
	if c.Notifications.Queue == "" {
		return fmt.Errorf("notifications queue cannot be empty")
	}
	if c.Notifications.MaxRetry < 0 {
		return fmt.Errorf("notifications max retry cannot be negative")
	}

	if c.Telemetry == nil {
		return fmt.Errorf("telemetry configuration is required")
	}
	if c.Telemetry.Endpoint != "" && c.Telemetry.ExportInterval <= 0 {
		return fmt.Errorf("telemetry export interval must be positive")
	}

	return nil
}

// LoadDotEnv loads a .env file into the process environment when present.
// A missing file is not an error.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadFromEnv overlays DEBATEHALL_* environment variables on the defaults.
// Variable names follow the section prefixes, e.g. DEBATEHALL_HTTP_PORT.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return config, nil
}

// ConfigFile is the JSON layout for file-based configuration.
// Durations are strings parsed with time.ParseDuration.
type ConfigFile struct {
	Database      *DatabaseConfigFile      `json:"database"`
	HTTP          *HTTPConfigFile          `json:"http"`
	WebSocket     *WebSocketConfigFile     `json:"websocket"`
	Auth          *AuthConfigFile          `json:"auth"`
	Debate        *DebateConfigFile        `json:"debate"`
	Redis         *RedisConfigFile         `json:"redis"`
	Notifications *NotificationsConfigFile `json:"notifications"`
	Telemetry     *TelemetryConfigFile     `json:"telemetry"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MigrationsPath string `json:"migrations_path"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	JWTSecret string `json:"jwt_secret"`
	TokenTTL  string `json:"token_ttl"`
}

// DebateConfigFile uses pointers so an explicit false overrides a true default
type DebateConfigFile struct {
	RequireOngoingToPost *bool  `json:"require_ongoing_to_post"`
	AllowCreatorConnect  *bool  `json:"allow_creator_connect"`
	CreatorCanPost       *bool  `json:"creator_can_post"`
	TypingTimeout        string `json:"typing_timeout"`
	RateLimitPerMinute   int    `json:"rate_limit_per_minute"`
	MaxMessageLength     int    `json:"max_message_length"`
}

type RedisConfigFile struct {
	URL              string `json:"url"`
	SnapshotInterval string `json:"snapshot_interval"`
	SnapshotTTL      string `json:"snapshot_ttl"`
}

type NotificationsConfigFile struct {
	Queue    string `json:"queue"`
	MaxRetry *int   `json:"max_retry"`
}

type TelemetryConfigFile struct {
	Endpoint       string `json:"endpoint"`
	ServiceName    string `json:"service_name"`
	ExportInterval string `json:"export_interval"`
}

// LoadFromFile reads a JSON config file on top of the defaults and validates the result
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()
	if err := configFile.apply(config); err != nil {
		return nil, fmt.Errorf("invalid value in %s: %w", filepath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func (f *ConfigFile) apply(config *Config) error {
	if f.Database != nil {
		if f.Database.Path != "" {
			config.Database.Path = f.Database.Path
		}
		if f.Database.MigrationsPath != "" {
			config.Database.MigrationsPath = f.Database.MigrationsPath
		}
		if err := setDuration(&config.Database.Timeout, "database.timeout", f.Database.Timeout); err != nil {
			return err
		}
	}

	if f.HTTP != nil {
		if f.HTTP.Port > 0 {
			config.HTTP.Port = f.HTTP.Port
		}
		if f.HTTP.Host != "" {
			config.HTTP.Host = f.HTTP.Host
		}
		if err := setDuration(&config.HTTP.ReadTimeout, "http.read_timeout", f.HTTP.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, "http.write_timeout", f.HTTP.WriteTimeout); err != nil {
			return err
		}
	}

	if f.WebSocket != nil {
		if f.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = f.WebSocket.BufferSize
		}
		if err := setDuration(&config.WebSocket.PingInterval, "websocket.ping_interval", f.WebSocket.PingInterval); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.ReadTimeout, "websocket.read_timeout", f.WebSocket.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.WriteTimeout, "websocket.write_timeout", f.WebSocket.WriteTimeout); err != nil {
			return err
		}
	}

	if f.Auth != nil {
		if f.Auth.JWTSecret != "" {
			config.Auth.JWTSecret = f.Auth.JWTSecret
		}
		if err := setDuration(&config.Auth.TokenTTL, "auth.token_ttl", f.Auth.TokenTTL); err != nil {
			return err
		}
	}

	if f.Debate != nil {
		if f.Debate.RequireOngoingToPost != nil {
			config.Debate.RequireOngoingToPost = *f.Debate.RequireOngoingToPost
		}
		if f.Debate.AllowCreatorConnect != nil {
			config.Debate.AllowCreatorConnect = *f.Debate.AllowCreatorConnect
		}
		if f.Debate.CreatorCanPost != nil {
			config.Debate.CreatorCanPost = *f.Debate.CreatorCanPost
		}
		if f.Debate.RateLimitPerMinute > 0 {
			config.Debate.RateLimitPerMinute = f.Debate.RateLimitPerMinute
		}
		if f.Debate.MaxMessageLength > 0 {
			config.Debate.MaxMessageLength = f.Debate.MaxMessageLength
		}
		if err := setDuration(&config.Debate.TypingTimeout, "debate.typing_timeout", f.Debate.TypingTimeout); err != nil {
			return err
		}
	}

	if f.Redis != nil {
		if f.Redis.URL != "" {
			config.Redis.URL = f.Redis.URL
		}
		if err := setDuration(&config.Redis.SnapshotInterval, "redis.snapshot_interval", f.Redis.SnapshotInterval); err != nil {
			return err
		}
		if err := setDuration(&config.Redis.SnapshotTTL, "redis.snapshot_ttl", f.Redis.SnapshotTTL); err != nil {
			return err
		}
	}

	if f.Notifications != nil {
		if f.Notifications.Queue != "" {
			config.Notifications.Queue = f.Notifications.Queue
		}
		if f.Notifications.MaxRetry != nil {
			config.Notifications.MaxRetry = *f.Notifications.MaxRetry
		}
	}

	if f.Telemetry != nil {
		if f.Telemetry.Endpoint != "" {
			config.Telemetry.Endpoint = f.Telemetry.Endpoint
		}
		if f.Telemetry.ServiceName != "" {
			config.Telemetry.ServiceName = f.Telemetry.ServiceName
		}
		if err := setDuration(&config.Telemetry.ExportInterval, "telemetry.export_interval", f.Telemetry.ExportInterval); err != nil {
			return err
		}
	}

	return nil
}

func setDuration(dst *time.Duration, field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment > defaults.
// Unreadable files and malformed environment values are logged and skipped.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := DefaultConfig()

	envConfig, err := LoadFromEnv()
	if err != nil {
		log.Printf("Ignoring environment configuration: %v", err)
	} else {
		config = envConfig
	}

	if filepath != "" {
		fileConfig, err := LoadFromFile(filepath)
		if err != nil {
			log.Printf("Ignoring config file: %v", err)
		} else {
			config = fileConfig
		}
	}

	return config
}
