package config

import (
	"path/filepath"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Backend    BackendConfig
	Realtime   RealtimeConfig
	Database   DatabaseConfig
	Session    SessionConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version     string
	Port        string
	Debug       bool
	Environment string
}

// BackendConfig points at the conversation backend.
type BackendConfig struct {
	BaseURL   string
	SocketURL string
}

// RealtimeConfig carries the live-session tunables. Zero values fall
// back to the package defaults of each component.
type RealtimeConfig struct {
	HeartbeatInterval    time.Duration
	PresenceExpiry       time.Duration
	OfflineGrace         time.Duration
	TypingIdle           time.Duration
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// SessionConfig is the static identity used by the headless runner.
type SessionConfig struct {
	UserID string
	Token  string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	appCfg := AppConfig{
		Version:     "v1.0.0",
		Port:        getEnv("APP_PORT", "3000"),
		Debug:       getEnvBool("APP_DEBUG", false),
		Environment: getEnv("APP_ENV", "development"),
	}

	backendCfg := BackendConfig{
		BaseURL:   getEnv("CHAT_API_BASE_URL", "http://localhost:8080/api"),
		SocketURL: getEnv("CHAT_SOCKET_URL", "ws://localhost:8080/socket"),
	}

	realtimeCfg := RealtimeConfig{
		HeartbeatInterval:    getEnvDuration("CHAT_HEARTBEAT_INTERVAL", 30*time.Second),
		PresenceExpiry:       getEnvDuration("CHAT_PRESENCE_EXPIRY", 35*time.Second),
		OfflineGrace:         getEnvDuration("CHAT_OFFLINE_GRACE", 5*time.Second),
		TypingIdle:           getEnvDuration("CHAT_TYPING_IDLE", time.Second),
		ReconnectMaxAttempts: getEnvInt("CHAT_RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectBaseDelay:   getEnvDuration("CHAT_RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getEnvDuration("CHAT_RECONNECT_MAX_DELAY", 5*time.Second),
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            filepath.Join(baseDir, "chat.db"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azchat:"),
	}

	sessionCfg := SessionConfig{
		UserID: getEnv("CHAT_USER_ID", ""),
		Token:  getEnv("CHAT_TOKEN", ""),
	}

	cfg := &Config{
		App:      appCfg,
		Backend:  backendCfg,
		Realtime: realtimeCfg,
		Database: dbCfg,
		Session:  sessionCfg,
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("MESSAGE_WORKER_POOL_SIZE", 8),
			QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 256),
		},
	}

	Global = cfg
	return cfg, nil
}
