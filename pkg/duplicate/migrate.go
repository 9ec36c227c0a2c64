package duplicate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ImportJSON loads a legacy {"filename": "url"} mapping into the cache.
// Entries whose filename already has a valid record are skipped, and no
// liveness check is made. It returns the number of records inserted.
func ImportJSON(ctx context.Context, resolver *Resolver, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	filenames := make([]string, 0, len(entries))
	for filename := range entries {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	migrated := 0
	for _, filename := range filenames {
		if filename == "" || entries[filename] == "" {
			continue
		}
		existing, err := resolver.Lookup(ctx, filename, false)
		if err != nil {
			return migrated, err
		}
		if existing != nil {
			continue
		}
		if _, err := resolver.cache.Insert(ctx, filename, entries[filename], "", nil); err != nil {
			return migrated, err
		}
		migrated++
	}

	return migrated, nil
}
