// Package state persists run outcomes for `tribunal history` and the HTTP API.
package state

import (
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// Backend names accepted by NewVerdictStoreWithOptions.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// StoreOptions configures verdict store creation.
type StoreOptions struct {
	// Backend selects the storage engine. If empty it is inferred from the
	// path: a ".db" file is SQLite, anything else is a JSON directory.
	Backend string
}

// NewVerdictStore creates a VerdictStore at the specified path.
func NewVerdictStore(path string) (core.VerdictStore, error) {
	return NewVerdictStoreWithOptions(path, StoreOptions{})
}

// NewVerdictStoreWithOptions creates a VerdictStore with additional options.
func NewVerdictStoreWithOptions(path string, opts StoreOptions) (core.VerdictStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendJSON
		if filepath.Ext(path) == ".db" {
			backend = BackendSQLite
		}
	}

	switch backend {
	case BackendSQLite:
		if filepath.Ext(path) != ".db" {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteVerdictStore(path)
	case BackendJSON:
		return NewJSONVerdictStore(path), nil
	default:
		return nil, core.ErrConfiguration("store.backend", "unknown backend "+backend)
	}
}

// CloseStore safely closes a store, ignoring nil.
func CloseStore(s core.VerdictStore) error {
	if s == nil {
		return nil
	}
	return s.Close()
}
