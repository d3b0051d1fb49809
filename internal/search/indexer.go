package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"commerceflow/internal/contracts"
	"commerceflow/internal/messaging"
	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DocumentStore is the search index as seen by the indexer.
type DocumentStore interface {
	BulkStore
	Upsert(ctx context.Context, doc model.SearchDocument) error
	Merge(ctx context.Context, doc model.SearchDocument) error
}

// Indexer applies catalog messages to the search index.
type Indexer struct {
	store    DocumentStore
	pipeline *Pipeline
	sink     messaging.DeadLetterSink
	group    string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewIndexer creates an indexer. With a non-nil sink, batches that fail a
// reindex are reported to it as dead letters for group and the rest of the
// reindex is kept; without one the whole reindex fails.
func NewIndexer(store DocumentStore, cfg Config, sink messaging.DeadLetterSink, group string, logger zerolog.Logger) *Indexer {
	return &Indexer{
		store:    store,
		pipeline: NewPipeline(store, cfg, logger),
		sink:     sink,
		group:    group,
		now:      time.Now,
		logger:   logger.With().Str("component", "search-indexer").Logger(),
	}
}

// ProductCreated replaces the product's document.
func (ix *Indexer) ProductCreated(ctx context.Context, msg contracts.ProductCreated) error {
	if err := ix.store.Upsert(ctx, document(msg.ProductSnapshot)); err != nil {
		return err
	}
	ix.logger.Debug().Str("product_id", msg.ID).Msg("search document created")
	return ix.store.Refresh(ctx)
}

// ProductUpdated merges the product into its document. A missing image keeps
// the stored one.
func (ix *Indexer) ProductUpdated(ctx context.Context, msg contracts.ProductUpdated) error {
	if err := ix.store.Merge(ctx, document(msg.ProductSnapshot)); err != nil {
		return err
	}
	ix.logger.Debug().Str("product_id", msg.ID).Msg("search document merged")
	return ix.store.Refresh(ctx)
}

// Reindex rebuilds the documents of every product in msg.
func (ix *Indexer) Reindex(ctx context.Context, env messaging.Envelope, msg contracts.ProductsReindexRequested) error {
	docs := lo.Map(msg.Products, func(p contracts.ProductSnapshot, _ int) model.SearchDocument {
		return document(p)
	})

	result, err := ix.pipeline.Run(ctx, docs)
	if err == nil {
		ix.logger.Info().
			Str("message_id", env.ID.String()).
			Int("documents", result.Documents).
			Int("batches", result.Batches).
			Msg("reindex finished")
		return nil
	}

	var bulkErr *BulkError
	if ix.sink == nil || !errors.As(err, &bulkErr) {
		return err
	}

	for _, failure := range bulkErr.Failed {
		if err := ix.report(ctx, env, failure); err != nil {
			return err
		}
	}

	if err := ix.store.Refresh(ctx); err != nil {
		return err
	}

	ix.logger.Warn().
		Str("message_id", env.ID.String()).
		Int("batches", bulkErr.Batches).
		Int("failed", len(bulkErr.Failed)).
		Msg("reindex finished with failed batches reported")
	return nil
}

// report stores a failed batch as a reindex message of its own, so that
// replaying the dead letter retries just that batch. The id is derived from
// the reindex message and the batch index, so a redelivered reindex reports
// the same batch under the same id.
func (ix *Indexer) report(ctx context.Context, env messaging.Envelope, failure BatchFailure) error {
	payload, err := contracts.Encode(contracts.ProductsReindexRequested{
		Products: lo.Map(failure.Documents, func(d model.SearchDocument, _ int) contracts.ProductSnapshot {
			return contracts.ProductSnapshot{ID: d.ID, Name: d.Name, Description: d.Description, Price: d.Price, ImageURL: d.ImageURL}
		}),
	})
	if err != nil {
		return err
	}

	dl := messaging.DeadLetter{
		Envelope: messaging.Envelope{
			ID:          batchMessageID(env.ID, failure.Index),
			Type:        contracts.TypeProductsReindexRequested,
			Payload:     payload,
			PublishedAt: env.PublishedAt,
			Attempts:    ix.pipeline.cfg.MaxAttempts,
		},
		Group:     ix.group,
		LastError: failure.Err.Error(),
		DeadAt:    ix.now().UTC(),
	}
	if err := ix.sink.DeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("failed to report failed batch %d: %w", failure.Index, err)
	}

	ix.logger.Error().
		Err(failure.Err).
		Str("message_id", env.ID.String()).
		Str("dead_letter_id", dl.ID.String()).
		Int("batch", failure.Index).
		Int("documents", len(failure.Documents)).
		Msg("failed batch reported as dead letter")
	return nil
}

func batchMessageID(reindexID uuid.UUID, batch int) uuid.UUID {
	return uuid.NewSHA1(reindexID, []byte("batch/"+strconv.Itoa(batch)))
}

func document(p contracts.ProductSnapshot) model.SearchDocument {
	return model.SearchDocument{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
	}
}
