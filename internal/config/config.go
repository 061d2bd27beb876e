package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the checklist service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	TaskStoreMode    string
	TaskStorageKey   string
	TaskFilePath     string
	RedisURL         string
	DatabaseURL      string
	TaskSaveTimeout  time.Duration
	TaskLoadTimeout  time.Duration
	SubscriberBuffer int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "checklist"),
		TaskStoreMode:    strings.ToLower(envOrDefault("TASKS_STORE", "auto")),
		TaskStorageKey:   envOrDefault("TASKS_STORAGE_KEY", "@tasks"),
		TaskFilePath:     envOrDefault("TASKS_FILE_PATH", "tasks.json"),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:  15 * time.Second,
		TaskSaveTimeout:  2 * time.Second,
		TaskLoadTimeout:  5 * time.Second,
		SubscriberBuffer: 16,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskSaveTimeout, err = durationFromEnv("TASKS_SAVE_TIMEOUT", cfg.TaskSaveTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskLoadTimeout, err = durationFromEnv("TASKS_LOAD_TIMEOUT", cfg.TaskLoadTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SubscriberBuffer, err = intFromEnv("TASKS_SUBSCRIBER_BUFFER", cfg.SubscriberBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	switch cfg.TaskStoreMode {
	case "auto", "memory", "file", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("TASKS_STORE must be one of auto|memory|file|redis|postgres, got %q", cfg.TaskStoreMode)
	}
	if cfg.TaskStoreMode == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("TASKS_STORE=redis requires REDIS_URL")
	}
	if cfg.TaskStoreMode == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("TASKS_STORE=postgres requires DATABASE_URL")
	}
	if strings.TrimSpace(cfg.TaskStorageKey) == "" {
		return Config{}, fmt.Errorf("TASKS_STORAGE_KEY must not be blank")
	}
	if cfg.TaskSaveTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKS_SAVE_TIMEOUT must be positive")
	}
	if cfg.TaskLoadTimeout <= 0 {
		return Config{}, fmt.Errorf("TASKS_LOAD_TIMEOUT must be positive")
	}
	if cfg.SubscriberBuffer <= 0 {
		return Config{}, fmt.Errorf("TASKS_SUBSCRIBER_BUFFER must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
