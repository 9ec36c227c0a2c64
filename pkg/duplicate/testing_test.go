package duplicate

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing timestamps
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestCache(t *testing.T) *SQLiteCache {
	t.Helper()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "uploads.db"), WithClock(newFakeClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// probeRecorder reports the given URLs as dead and counts probes
type probeRecorder struct {
	mu    sync.Mutex
	dead  map[string]bool
	calls map[string]int
}

func newProbeRecorder(dead ...string) *probeRecorder {
	p := &probeRecorder{dead: map[string]bool{}, calls: map[string]int{}}
	for _, u := range dead {
		p.dead[u] = true
	}
	return p
}

func (p *probeRecorder) IsLive(_ context.Context, url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[url]++
	return !p.dead[url]
}

func (p *probeRecorder) Calls(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[url]
}

var (
	alwaysLive = VerifierFunc(func(context.Context, string) bool { return true })
	alwaysDead = VerifierFunc(func(context.Context, string) bool { return false })
)
