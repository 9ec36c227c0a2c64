package duplicate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/op/go-logging"
)

// Resolver implements Checker on top of the local cache, re-verifying every
// candidate before it is returned
type Resolver struct {
	cache    *SQLiteCache
	verifier Verifier
	log      *logging.Logger
}

// NewResolver creates a resolver over cache that probes candidates with verifier
func NewResolver(cache *SQLiteCache, verifier Verifier, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.MustGetLogger("duplicate")
	}
	return &Resolver{
		cache:    cache,
		verifier: verifier,
		log:      log,
	}
}

// Check looks for an existing upload, trying the filename first then the content hash
func (r *Resolver) Check(ctx context.Context, filePath string) (*Upload, error) {
	filename := filepath.Base(filePath)

	// 1. Filename match (cheap, no hashing)
	upload, err := r.Lookup(ctx, filename, true)
	if err != nil {
		return nil, err
	}
	if upload != nil {
		return upload, nil
	}

	// 2. Content hash, only if the file is readable
	info, err := GetFileInfo(filePath)
	if err != nil {
		r.log.Debugf("skip hash lookup for %s: %v", filePath, err)
		return nil, nil
	}

	upload, err = r.cache.FindLatestByHash(ctx, info.Hash)
	if err != nil {
		return nil, fmt.Errorf("cache check: %w", err)
	}
	if upload == nil {
		return nil, nil
	}

	upload, err = r.confirm(ctx, upload)
	if err != nil {
		return nil, err
	}
	if upload != nil {
		r.log.Infof("same content already uploaded as %s", upload.Filename)
	}
	return upload, nil
}

// Lookup returns the newest valid record for filename. With validate set the
// record's URL is probed first and a dead record is invalidated.
func (r *Resolver) Lookup(ctx context.Context, filename string, validate bool) (*Upload, error) {
	upload, err := r.cache.FindLatestByFilename(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("cache check: %w", err)
	}
	if upload == nil || !validate {
		return upload, nil
	}
	return r.confirm(ctx, upload)
}

// confirm probes upload's URL. A live record is stamped as verified; a dead
// one is invalidated and nil is returned.
func (r *Resolver) confirm(ctx context.Context, upload *Upload) (*Upload, error) {
	if !r.verifier.IsLive(ctx, upload.URL) {
		r.log.Warningf("cached URL for %s is no longer reachable, invalidating record %d", upload.Filename, upload.ID)
		if err := r.cache.Invalidate(ctx, upload.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := r.cache.MarkVerified(ctx, upload.ID); err != nil {
		// The record is still usable; only the timestamp is lost
		r.log.Warningf("record %d: %v", upload.ID, err)
		return upload, nil
	}
	now := r.cache.now()
	upload.LastVerified = &now
	upload.UpdatedAt = now
	return upload, nil
}

// Record saves an upload to the cache and reads the stored row back
func (r *Resolver) Record(ctx context.Context, filePath, url string, metadata map[string]any) (*Upload, error) {
	filename := filepath.Base(filePath)
	id, err := r.cache.Insert(ctx, filename, url, filePath, metadata)
	if err != nil {
		return nil, err
	}

	upload, err := r.cache.Get(ctx, id)
	if err != nil || upload == nil {
		// The row is written; only the read-back failed
		r.log.Warningf("record %d saved but could not be read back: %v", id, err)
		return &Upload{ID: id, Filename: filename, URL: url, FilePath: filePath, IsValid: true, Metadata: metadata}, nil
	}
	return upload, nil
}

// Cache returns the underlying record store
func (r *Resolver) Cache() *SQLiteCache {
	return r.cache
}
