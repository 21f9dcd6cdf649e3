// Package store persists process configurations.
//
// Ids are assigned by the backend on Insert. They are monotonic and never
// reused, including across deletes and supervisor restarts.
package store

import (
	"context"
	"time"
)

// Record is one persisted process configuration.
type Record struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Script    string    `json:"script"`
	Cwd       string    `json:"cwd"`
	Args      string    `json:"args"`
	Instances int       `json:"instances"`
	AutoStart bool      `json:"autoStart"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the persistence contract used by the registry. Update and Delete
// on a missing id return an error wrapping errs.ErrNotFound.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, rec Record) (Record, error)
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Record, error) // ordered by id
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type         string `mapstructure:"type"` // memory, sqlite, postgres
	Path         string `mapstructure:"path"` // sqlite file
	DSN          string `mapstructure:"dsn"`  // postgres://...
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}
