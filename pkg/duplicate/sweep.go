package duplicate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultSweepBatchSize is the number of records a cleanup pass checks
const DefaultSweepBatchSize = 100

// Sweeper re-verifies valid records in batches and invalidates dead ones
type Sweeper struct {
	cache       *SQLiteCache
	verifier    Verifier
	concurrency int
	limiter     *rate.Limiter
	log         *logging.Logger
}

// SweepOption configures a Sweeper
type SweepOption func(*Sweeper)

// WithConcurrency sets how many probes may run at once
func WithConcurrency(n int) SweepOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRate caps probes per second. Zero or less means unlimited.
func WithRate(perSecond float64) SweepOption {
	return func(s *Sweeper) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSweepLogger sets the sweep logger
func WithSweepLogger(log *logging.Logger) SweepOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates a sweeper over cache
func NewSweeper(cache *SQLiteCache, verifier Verifier, opts ...SweepOption) *Sweeper {
	s := &Sweeper{
		cache:       cache,
		verifier:    verifier,
		concurrency: 1,
		log:         logging.MustGetLogger("duplicate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep probes up to batchSize valid records, oldest first, and invalidates
// the ones that are no longer live. progress, if set, is called after each
// probe with the number checked so far and the batch total.
func (s *Sweeper) Sweep(ctx context.Context, batchSize int, progress func(checked, total int)) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}

	runID := uuid.NewString()
	uploads, err := s.cache.ValidBatch(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	s.log.Infof("sweep %s: checking %d records", runID, len(uploads))

	var (
		invalidated atomic.Int64
		checked     int
		mu          sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, upload := range uploads {
		if gctx.Err() != nil {
			break
		}
		upload := upload
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			if !s.verifier.IsLive(gctx, upload.URL) {
				if err := s.cache.Invalidate(gctx, upload.ID); err != nil {
					return err
				}
				invalidated.Add(1)
				s.log.Debugf("sweep %s: invalidated %d (%s)", runID, upload.ID, upload.URL)
			}

			if progress != nil {
				mu.Lock()
				checked++
				progress(checked, len(uploads))
				mu.Unlock()
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	count := int(invalidated.Load())
	s.log.Infof("sweep %s: invalidated %d of %d records", runID, count, len(uploads))
	return count, err
}
