package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the settings currently loaded in
// memory, for the status endpoint.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_debug":                   Global.App.Debug,
		"app_version":                 Global.App.Version,
		"backend_base_url":            Global.Backend.BaseURL,
		"backend_socket_url":          Global.Backend.SocketURL,
		"realtime_heartbeat_interval": Global.Realtime.HeartbeatInterval.String(),
		"realtime_presence_expiry":    Global.Realtime.PresenceExpiry.String(),
		"realtime_offline_grace":      Global.Realtime.OfflineGrace.String(),
		"realtime_typing_idle":        Global.Realtime.TypingIdle.String(),
		"worker_pool_size":            Global.WorkerPool.Size,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
