package activity

import (
	"fmt"
	"log/slog"

	"hwbot/internal/domain"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Options selects and configures a store backend.
type Options struct {
	Backend       string // memory | sqlite
	DBPath        string
	SnippetLength int
	Logger        *slog.Logger
}

// Open returns the store for opts.Backend.
func Open(opts Options) (domain.ActivityStore, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(opts.SnippetLength), nil
	case BackendSQLite, "":
		if opts.DBPath == "" {
			return nil, fmt.Errorf("sqlite store: dbPath is required")
		}
		return NewSQLiteStore(opts.DBPath, opts.SnippetLength, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
