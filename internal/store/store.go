// Package store implements core.ContactStore on Postgres, SQLite and memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/JonMunkholm/rolodex/internal/core"
)

// Store is a ContactStore that holds resources.
type Store interface {
	core.ContactStore
	Close() error
}

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	DSN    string // Postgres connection string or SQLite file path
	Pool   PoolConfig
}

// Open connects to the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Pool)
	case DriverSQLite:
		return NewSQLiteStore(cfg.DSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewULID returns a lexically sortable id.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

var errMissingID = errors.New("contact has no id")

// nonNil keeps array columns from being written as NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
