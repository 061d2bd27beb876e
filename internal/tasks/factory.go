package tasks

import (
	"context"
	"fmt"
	"strings"
)

type StoreConfig struct {
	// Mode is auto, memory, file, redis or postgres.
	Mode        string
	Key         string
	FilePath    string
	RedisURL    string
	DatabaseURL string
}

// NewStore builds the configured backend. In auto mode postgres wins over
// redis, redis over file.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" || mode == "auto" {
		switch {
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			mode = "postgres"
		case strings.TrimSpace(cfg.RedisURL) != "":
			mode = "redis"
		case strings.TrimSpace(cfg.FilePath) != "":
			mode = "file"
		default:
			mode = "memory"
		}
	}

	switch mode {
	case "memory":
		return NewInMemoryStore(cfg.Key), nil
	case "file":
		return NewFileStore(strings.TrimSpace(cfg.FilePath))
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, fmt.Errorf("redis store requires REDIS_URL")
		}
		return NewRedisStore(strings.TrimSpace(cfg.RedisURL), cfg.Key)
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Key)
	default:
		return nil, fmt.Errorf("unknown task store mode %q (expected auto|memory|file|redis|postgres)", cfg.Mode)
	}
}
