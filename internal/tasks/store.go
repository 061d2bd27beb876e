package tasks

import (
	"context"
	"errors"
)

// DefaultStorageKey is the key the whole list is stored under.
const DefaultStorageKey = "@tasks"

// ErrNoData is returned by Store.Load when nothing has been saved yet.
var ErrNoData = errors.New("no saved tasks")

// Store durably mirrors the task list. Every Save overwrites the previous value wholesale.
type Store interface {
	Save(ctx context.Context, list []Task) error
	Load(ctx context.Context) ([]Task, error)
	Name() string
	Close() error
}

// versionedStore is implemented by backends that stamp each write with the list
// version and refuse to overwrite a newer one. LoadVersion lets a restarted
// Manager continue counting from the stored version.
type versionedStore interface {
	SaveVersion(ctx context.Context, version uint64, list []Task) error
	LoadVersion(ctx context.Context) ([]Task, uint64, error)
}
