package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"commerceflow/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// searchRepository keeps documents as JSONB rows and serves queries from the
// search_index materialized view, so writes become searchable only after Refresh.
type searchRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewSearchDocumentRepository creates a new PostgreSQL-backed search document store.
func NewSearchDocumentRepository(pool *pgxpool.Pool, logger zerolog.Logger) SearchDocumentRepository {
	return &searchRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "search").Logger(),
	}
}

const upsertDocumentQuery = `
	INSERT INTO search_documents (id, body, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
`

func (r *searchRepository) Upsert(ctx context.Context, doc model.SearchDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode search document: %w", err)
	}

	if _, err := r.pool.Exec(ctx, upsertDocumentQuery, doc.ID, body); err != nil {
		r.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to upsert search document")
		return fmt.Errorf("failed to upsert search document: %w", err)
	}
	return nil
}

// Merge relies on SearchDocument omitting a nil image, so the stored image survives.
func (r *searchRepository) Merge(ctx context.Context, doc model.SearchDocument) error {
	patch, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode search document: %w", err)
	}

	query := `
		INSERT INTO search_documents (id, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = search_documents.body || EXCLUDED.body, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, doc.ID, patch); err != nil {
		r.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to merge search document")
		return fmt.Errorf("failed to merge search document: %w", err)
	}
	return nil
}

func (r *searchRepository) BulkUpsert(ctx context.Context, docs []model.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode search document %s: %w", doc.ID, err)
		}
		batch.Queue(upsertDocumentQuery, doc.ID, body)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, doc := range docs {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().Err(err).Str("document_id", doc.ID).Msg("failed to bulk upsert search document")
			return fmt.Errorf("failed to bulk upsert search document %s: %w", doc.ID, err)
		}
	}

	r.logger.Debug().Int("count", len(docs)).Msg("search documents upserted")
	return nil
}

func (r *searchRepository) GetByID(ctx context.Context, id string) (*model.SearchDocument, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, `SELECT body FROM search_documents WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query search document: %w", err)
	}

	var doc model.SearchDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode search document: %w", err)
	}
	return &doc, nil
}

func (r *searchRepository) Refresh(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY search_index`); err != nil {
		r.logger.Error().Err(err).Msg("failed to refresh search index")
		return fmt.Errorf("failed to refresh search index: %w", err)
	}
	r.logger.Debug().Msg("search index refreshed")
	return nil
}

func (r *searchRepository) Search(ctx context.Context, query string, limit int) ([]model.SearchDocument, error) {
	sql := `
		SELECT body
		FROM search_index, plainto_tsquery('simple', $1) q
		WHERE tsv @@ q
		ORDER BY ts_rank(tsv, q) DESC, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, sql, query, limit)
	if err != nil {
		r.logger.Error().Err(err).Str("query", query).Msg("failed to search documents")
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	docs := []model.SearchDocument{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan search document: %w", err)
		}
		var doc model.SearchDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode search document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search documents: %w", err)
	}
	return docs, nil
}
