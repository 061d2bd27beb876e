package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleVersion is returned when a newer version of the list is already stored.
var ErrStaleVersion = errors.New("stored task list is newer")

// PostgresStore keeps the list as one JSONB row per key, stamped with the list
// version. Older versions never overwrite newer ones.
type PostgresStore struct {
	pool *pgxpool.Pool
	key  string
}

func NewPostgresStore(ctx context.Context, databaseURL, key string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if key == "" {
		key = DefaultStorageKey
	}
	return &PostgresStore{pool: pool, key: key}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_lists (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Save writes list unconditionally and bumps the stored version.
func (s *PostgresStore) Save(ctx context.Context, list []Task) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_lists (key, value, version, updated_at)
		 VALUES ($1, $2::jsonb, 1, $3)
		 ON CONFLICT (key) DO UPDATE SET
			value=EXCLUDED.value,
			version=task_lists.version + 1,
			updated_at=EXCLUDED.updated_at`,
		s.key, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert task list: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveVersion(ctx context.Context, version uint64, list []Task) error {
	data, err := Encode(list)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO task_lists (key, value, version, updated_at)
		 VALUES ($1, $2::jsonb, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET
			value=EXCLUDED.value,
			version=EXCLUDED.version,
			updated_at=EXCLUDED.updated_at
		 WHERE task_lists.version < EXCLUDED.version`,
		s.key, string(data), int64(version), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert task list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: version %d", ErrStaleVersion, version)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]Task, error) {
	list, _, err := s.LoadVersion(ctx)
	return list, err
}

func (s *PostgresStore) LoadVersion(ctx context.Context) ([]Task, uint64, error) {
	var (
		raw     string
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value::text, version FROM task_lists WHERE key=$1`,
		s.key,
	).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNoData
		}
		return nil, 0, fmt.Errorf("get task list: %w", err)
	}
	list, err := Decode([]byte(raw))
	if err != nil {
		return nil, 0, err
	}
	if version < 0 {
		version = 0
	}
	return list, uint64(version), nil
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
