package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Inbox remembers which message ids a consumer group has already processed.
type Inbox interface {
	Processed(ctx context.Context, group string, messageID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, group string, messageID uuid.UUID) error
}

// Deduplicate wraps next so a message id already processed by group is
// acknowledged without running next again. The id is recorded only after
// next succeeds, so a failed attempt is still retried.
func Deduplicate(inbox Inbox, group string, next Handler, logger zerolog.Logger) Handler {
	return func(ctx context.Context, env Envelope) error {
		seen, err := inbox.Processed(ctx, group, env.ID)
		if err != nil {
			return err
		}
		if seen {
			logger.Info().
				Str("group", group).
				Str("message_id", env.ID.String()).
				Str("message_type", env.Type).
				Msg("duplicate message skipped")
			return nil
		}

		if err := next(ctx, env); err != nil {
			return err
		}

		return inbox.MarkProcessed(ctx, group, env.ID)
	}
}

type inboxKey struct {
	group string
	id    uuid.UUID
}

// MemoryInbox is an in-memory Inbox.
type MemoryInbox struct {
	mu   sync.Mutex
	seen map[inboxKey]struct{}
}

// NewMemoryInbox creates an empty in-memory inbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{seen: make(map[inboxKey]struct{})}
}

func (i *MemoryInbox) Processed(_ context.Context, group string, messageID uuid.UUID) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.seen[inboxKey{group: group, id: messageID}]
	return ok, nil
}

func (i *MemoryInbox) MarkProcessed(_ context.Context, group string, messageID uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seen[inboxKey{group: group, id: messageID}] = struct{}{}
	return nil
}

// PostgresInbox stores processed message ids in processed_messages.
type PostgresInbox struct {
	pool *pgxpool.Pool
}

// NewPostgresInbox creates an inbox on pool.
func NewPostgresInbox(pool *pgxpool.Pool) *PostgresInbox {
	return &PostgresInbox{pool: pool}
}

func (i *PostgresInbox) Processed(ctx context.Context, group string, messageID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM processed_messages WHERE group_name = $1 AND message_id = $2
		)
	`

	var exists bool
	if err := i.pool.QueryRow(ctx, query, group, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check inbox: %w", err)
	}
	return exists, nil
}

func (i *PostgresInbox) MarkProcessed(ctx context.Context, group string, messageID uuid.UUID) error {
	query := `
		INSERT INTO processed_messages (group_name, message_id)
		VALUES ($1, $2)
		ON CONFLICT (group_name, message_id) DO NOTHING
	`

	if _, err := i.pool.Exec(ctx, query, group, messageID); err != nil {
		return fmt.Errorf("failed to record processed message: %w", err)
	}
	return nil
}
