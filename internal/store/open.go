// ABOUTME: Backend construction from storage configuration
// ABOUTME: Selects file, sqlite, bolt, or memory backends by name

package store

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
)

// Backend kinds accepted by Open
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
	KindMemory = "memory"
)

// Open builds the backend named by kind. path is a directory for the file backend
// and a database file for sqlite and bolt. driver only applies to sqlite.
// A nil logger uses slog.Default().
func Open(kind, path, driver string, logger *slog.Logger) (Backend, error) {
	switch kind {
	case "", KindFile:
		return NewFileBackend(afero.NewOsFs(), path, logger)
	case KindSQLite:
		return NewSQLiteBackend(driver, path, logger)
	case KindBolt:
		return NewBoltBackend(path, logger)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
