// ABOUTME: File-per-user Backend built on an afero filesystem
// ABOUTME: Publishes records by writing a temp file in the same directory and renaming it

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileBackend stores each user record as <dir>/<escaped key>.json.
type FileBackend struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates a file backend rooted at dir, creating it if needed.
// Pass afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
func NewFileBackend(fs afero.Fs, dir string, logger *slog.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	logger = logger.With("component", "store", "backend", "file")
	logger.Info("file backend initialized", "dir", dir)
	return &FileBackend{
		fs:     fs,
		dir:    dir,
		logger: logger,
	}, nil
}

// Get reads the record for key, returning ErrNotFound if no file exists.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(b.fs, b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return data, nil
}

// Put writes data to a temp file next to the target and renames it into place.
func (b *FileBackend) Put(ctx context.Context, key string, data []byte) error {
	target := b.path(key)

	tmp, err := afero.TempFile(b.fs, b.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := b.fs.Rename(tmpName, target); err != nil {
		if rmErr := b.fs.Remove(tmpName); rmErr != nil {
			b.logger.Debug("temp file left behind", "path", tmpName, "error", rmErr)
		}
		return fmt.Errorf("publishing record: %w", err)
	}
	b.logger.Debug("record published", "path", target, "bytes", len(data))
	return nil
}

// Delete removes the record file. Deleting a missing record is not an error.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	err := b.fs.Remove(b.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing record: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, escapeFileName(key)+".json")
}

// escapeFileName maps a key to a file name that cannot leave the storage directory.
// The mapping is injective: every byte outside [a-z0-9@_-.] becomes %XX, and so does
// a leading dot.
func escapeFileName(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '@', c == '_', c == '-':
			sb.WriteByte(c)
		case c == '.' && i > 0:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "%%%02X", c)
		}
	}
	if sb.Len() == 0 {
		return "%"
	}
	return sb.String()
}
