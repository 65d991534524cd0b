// Package filestore persists draw pages as JSON envelopes under a cache directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/coachpo/kino/errs"
	"github.com/coachpo/kino/internal/domain/drawstore"
	"github.com/coachpo/kino/internal/domain/kino"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// DrawStore lays entries out as <root>/<yyyy>/<mm>/<dd>/page-<nn>.json. Writes
// go to a temporary file that is then linked into place, so readers never see
// a partial entry and concurrent writers of one key cannot clobber each other.
type DrawStore struct {
	root string
}

var _ drawstore.Store = (*DrawStore)(nil)

// New creates the root directory if needed.
func New(root string) (*DrawStore, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, errs.New("filestore", errs.CodeInvalid, errs.WithMessage("cache directory required"))
	}
	clean := filepath.Clean(trimmed)
	if err := os.MkdirAll(clean, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DrawStore{root: clean}, nil
}

// Backend implements drawstore.Store.
func (s *DrawStore) Backend() string { return "file" }

// Root returns the cache directory.
func (s *DrawStore) Root() string { return s.root }

// Path returns the entry path for key.
func (s *DrawStore) Path(key kino.PageKey) string {
	y, m, d := key.Date.Date()
	return filepath.Join(s.root,
		fmt.Sprintf("%04d", y), fmt.Sprintf("%02d", int(m)), fmt.Sprintf("%02d", d),
		fmt.Sprintf("page-%02d.json", key.Page))
}

// Has implements drawstore.Store.
func (s *DrawStore) Has(ctx context.Context, key kino.PageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("file store has context: %w", err)
	}
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat cache entry: %w", err)
}

// Load implements drawstore.Store.
func (s *DrawStore) Load(ctx context.Context, key kino.PageKey) (kino.Batch, error) {
	if err := ctx.Err(); err != nil {
		return kino.Batch{}, fmt.Errorf("file store load context: %w", err)
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return kino.Batch{}, drawstore.Miss("filestore", key)
		}
		return kino.Batch{}, fmt.Errorf("read cache entry: %w", err)
	}
	return drawstore.Decode(key, data)
}

// Store implements drawstore.Store.
func (s *DrawStore) Store(ctx context.Context, batch kino.Batch) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("file store put context: %w", err)
	}
	data, err := drawstore.Encode(batch)
	if err != nil {
		return err
	}
	target := s.Path(batch.Key)
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return fmt.Errorf("create cache entry directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".page-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache entry: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cache entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache entry: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("chmod temp cache entry: %w", err)
	}

	err = os.Link(tmpName, target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		existing, loadErr := s.Load(ctx, batch.Key)
		if loadErr != nil {
			return loadErr
		}
		return drawstore.Reconcile(existing, batch)
	default:
		// Filesystems without hard links: rename is still atomic for readers.
		if _, statErr := os.Stat(target); statErr == nil {
			existing, loadErr := s.Load(ctx, batch.Key)
			if loadErr != nil {
				return loadErr
			}
			return drawstore.Reconcile(existing, batch)
		}
		if err := os.Rename(tmpName, target); err != nil {
			return fmt.Errorf("publish cache entry: %w", err)
		}
		return nil
	}
}
