// Package search maintains the product search index from catalog messages.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"commerceflow/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// BulkStore is the write side of the search index used by the pipeline.
type BulkStore interface {
	BulkUpsert(ctx context.Context, docs []model.SearchDocument) error
	Refresh(ctx context.Context) error
}

// Config controls the bulk pipeline.
type Config struct {
	BatchSize int
	// Parallelism is the number of batches written at once. Zero means one per CPU.
	Parallelism  int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:    1000,
		Parallelism:  runtime.NumCPU(),
		MaxAttempts:  3,
		RetryBackoff: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize < 1 {
		c.BatchSize = def.BatchSize
	}
	if c.Parallelism < 1 {
		c.Parallelism = def.Parallelism
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	return c
}

// BatchFailure is a batch that failed on every attempt.
type BatchFailure struct {
	Index     int
	Documents []model.SearchDocument
	Err       error
}

// BulkError reports the batches of a pipeline run that could not be written.
type BulkError struct {
	Batches int
	Failed  []BatchFailure
}

func (e *BulkError) Error() string {
	if len(e.Failed) == 0 {
		return "bulk indexing failed"
	}
	return fmt.Sprintf("bulk indexing failed for %d of %d batches: batch %d: %v",
		len(e.Failed), e.Batches, e.Failed[0].Index, e.Failed[0].Err)
}

func (e *BulkError) Unwrap() []error {
	return lo.Map(e.Failed, func(f BatchFailure, _ int) error { return f.Err })
}

// Result summarises a successful pipeline run.
type Result struct {
	Batches   int
	Documents int
}

// Pipeline writes documents in fixed-size batches with bounded parallelism.
// Each batch is retried on a constant back-off; the index is refreshed only
// when every batch was written.
type Pipeline struct {
	store  BulkStore
	cfg    Config
	logger zerolog.Logger
}

// NewPipeline creates a bulk pipeline writing to store.
func NewPipeline(store BulkStore, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "search-pipeline").Logger(),
	}
}

// Run writes docs and refreshes the index. When any batch exhausts its
// attempts the other batches still run, the index is not refreshed and a
// *BulkError naming the failed batches is returned.
func (p *Pipeline) Run(ctx context.Context, docs []model.SearchDocument) (Result, error) {
	batches := lo.Chunk(docs, p.cfg.BatchSize)
	result := Result{Batches: len(batches), Documents: len(docs)}
	if len(batches) == 0 {
		return result, nil
	}

	var (
		mu       sync.Mutex
		failures []BatchFailure
	)

	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Parallelism)

	start := time.Now()
	for i, batch := range batches {
		g.Go(func() error {
			if err := p.writeBatch(ctx, i, batch); err != nil {
				mu.Lock()
				failures = append(failures, BatchFailure{Index: i, Documents: batch, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(a, b int) bool { return failures[a].Index < failures[b].Index })
		p.logger.Error().
			Int("batches", len(batches)).
			Int("failed", len(failures)).
			Msg("bulk indexing incomplete, index not refreshed")
		return result, &BulkError{Batches: len(batches), Failed: failures}
	}

	if err := p.store.Refresh(ctx); err != nil {
		return result, err
	}

	p.logger.Info().
		Int("batches", len(batches)).
		Int("documents", len(docs)).
		Dur("duration", time.Since(start)).
		Msg("bulk indexing finished")

	return result, nil
}

func (p *Pipeline) writeBatch(ctx context.Context, index int, batch []model.SearchDocument) error {
	attempt := 0
	op := func() error {
		attempt++
		return p.store.BulkUpsert(ctx, batch)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryBackoff), uint64(p.cfg.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		p.logger.Warn().Err(err).
			Int("batch", index).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("bulk batch failed, retrying")
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		p.logger.Error().Err(err).Int("batch", index).Int("attempts", attempt).Msg("bulk batch failed")
		return err
	}
	return nil
}
