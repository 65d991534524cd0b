// Package drawstore defines the persistence contract for cached draw pages.
package drawstore

import (
	"context"

	"github.com/coachpo/kino/internal/domain/kino"
)

// Store persists draw pages keyed by (date, page). Entries are write-once:
// historical draws never change, so a second Store for the same key must carry
// identical draws.
type Store interface {
	// Has reports whether an entry exists for the key.
	Has(ctx context.Context, key kino.PageKey) (bool, error)
	// Load returns the entry. It fails with errs.CodeCacheMiss when absent and
	// errs.CodeCacheCorrupt when the entry cannot be decoded or validated.
	Load(ctx context.Context, key kino.PageKey) (kino.Batch, error)
	// Store writes the entry. Writing identical content again is a no-op;
	// different content fails with errs.CodeCacheInconsistent.
	Store(ctx context.Context, batch kino.Batch) error
	// Backend names the implementation for logs and metrics.
	Backend() string
}
