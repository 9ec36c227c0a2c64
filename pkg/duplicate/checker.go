package duplicate

import (
	"context"
)

// Checker provides duplicate detection functionality
type Checker interface {
	// Check looks for a live upload of filePath, by filename then by content hash.
	// It returns nil, nil when nothing live is cached.
	Check(ctx context.Context, filePath string) (*Upload, error)

	// Record saves a completed upload of filePath to the cache and returns
	// the stored record
	Record(ctx context.Context, filePath, url string, metadata map[string]any) (*Upload, error)
}
