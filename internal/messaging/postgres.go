package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"commerceflow/internal/contracts"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBus is a durable Bus backed by PostgreSQL tables.
// Publishing fans a message out into one delivery row per subscribed group;
// Run polls each locally subscribed group and dispatches its deliveries.
type PostgresBus struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]map[string]Handler // group -> message type -> handler
}

// NewPostgresBus creates a bus on pool.
func NewPostgresBus(pool *pgxpool.Pool, cfg Config, logger zerolog.Logger) *PostgresBus {
	return &PostgresBus{
		pool:     pool,
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "postgres-bus").Logger(),
		handlers: make(map[string]map[string]Handler),
	}
}

// Subscribe records the subscription so publishers fan out to group and
// registers h in this process. Subscriptions must be made before Run.
func (b *PostgresBus) Subscribe(ctx context.Context, group, messageType string, h Handler) error {
	query := `
		INSERT INTO message_subscriptions (group_name, message_type)
		VALUES ($1, $2)
		ON CONFLICT (group_name, message_type) DO NOTHING
	`

	if _, err := b.pool.Exec(ctx, query, group, messageType); err != nil {
		b.logger.Error().Err(err).Str("group", group).Str("message_type", messageType).Msg("failed to store subscription")
		return fmt.Errorf("failed to subscribe %s to %s: %w", group, messageType, err)
	}

	b.mu.Lock()
	if b.handlers[group] == nil {
		b.handlers[group] = make(map[string]Handler)
	}
	b.handlers[group][messageType] = h
	b.mu.Unlock()

	b.logger.Debug().Str("group", group).Str("message_type", messageType).Msg("subscribed")
	return nil
}

// Publish stores one delivery per subscribed group for each message.
// All messages are written in a single implicit transaction.
func (b *PostgresBus) Publish(ctx context.Context, msgs ...contracts.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	query := `
		INSERT INTO message_deliveries (message_id, group_name, message_type, payload, published_at)
		SELECT $1, s.group_name, s.message_type, $3, $4
		FROM message_subscriptions s
		WHERE s.message_type = $2
		ON CONFLICT (message_id, group_name) DO NOTHING
	`

	envs := make([]Envelope, 0, len(msgs))
	batch := &pgx.Batch{}
	for _, msg := range msgs {
		env, err := NewEnvelope(msg)
		if err != nil {
			return err
		}
		envs = append(envs, env)
		batch.Queue(query, env.ID, env.Type, []byte(env.Payload), env.PublishedAt)
	}

	results := b.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, env := range envs {
		tag, err := results.Exec()
		if err != nil {
			b.logger.Error().Err(err).Str("message_type", env.Type).Msg("failed to publish message")
			return fmt.Errorf("failed to publish %s: %w", env.Type, err)
		}
		b.logger.Debug().
			Str("message_id", env.ID.String()).
			Str("message_type", env.Type).
			Int64("deliveries", tag.RowsAffected()).
			Msg("message published")
	}

	return nil
}

// Run polls every subscribed group until ctx is cancelled.
func (b *PostgresBus) Run(ctx context.Context) error {
	b.mu.RLock()
	groups := make([]string, 0, len(b.handlers))
	for group := range b.handlers {
		groups = append(groups, group)
	}
	b.mu.RUnlock()
	sort.Strings(groups)

	b.logger.Info().Strs("groups", groups).Dur("poll_interval", b.cfg.PollInterval).Msg("starting message dispatcher")

	g, ctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		g.Go(func() error {
			return b.runGroup(ctx, group)
		})
	}
	return g.Wait()
}

func (b *PostgresBus) runGroup(ctx context.Context, group string) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	logger := b.logger.With().Str("group", group).Logger()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("dispatcher stopped")
			return nil
		case <-ticker.C:
			// Keep draining while full batches come back.
			for {
				n, err := b.poll(ctx, group)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error().Err(err).Msg("failed to poll deliveries")
					break
				}
				if n < b.cfg.BatchSize {
					break
				}
			}
		}
	}
}

type delivery struct {
	id  int64
	env Envelope
}

// poll locks up to BatchSize available deliveries for group, dispatches them and
// records the outcome. It returns the number of deliveries locked.
func (b *PostgresBus) poll(ctx context.Context, group string) (n int, err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		SELECT id, message_id, message_type, payload, published_at, attempts
		FROM message_deliveries
		WHERE group_name = $1 AND available_at <= NOW()
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, group, b.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query deliveries: %w", err)
	}

	var deliveries []delivery
	for rows.Next() {
		var d delivery
		var payload []byte
		if err := rows.Scan(&d.id, &d.env.ID, &d.env.Type, &payload, &d.env.PublishedAt, &d.env.Attempts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.env.Payload = payload
		deliveries = append(deliveries, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating deliveries: %w", err)
	}

	for _, d := range deliveries {
		if err := b.dispatch(ctx, tx, group, d); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit deliveries: %w", err)
	}

	return len(deliveries), nil
}

func (b *PostgresBus) dispatch(ctx context.Context, tx pgx.Tx, group string, d delivery) error {
	d.env.Attempts++
	logger := b.logger.With().
		Str("group", group).
		Str("message_id", d.env.ID.String()).
		Str("message_type", d.env.Type).
		Int("attempt", d.env.Attempts).
		Logger()

	b.mu.RLock()
	h, ok := b.handlers[group][d.env.Type]
	b.mu.RUnlock()

	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("no handler registered for %s in group %s", d.env.Type, group)
	} else {
		handlerErr = runHandler(ctx, h, d.env)
	}

	if handlerErr == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM message_deliveries WHERE id = $1`, d.id); err != nil {
			return fmt.Errorf("failed to acknowledge delivery: %w", err)
		}
		logger.Debug().Msg("message processed")
		return nil
	}

	if d.env.Attempts >= b.cfg.MaxAttempts {
		logger.Error().Err(handlerErr).Msg("message exhausted retries, dead-lettering")
		dl := DeadLetter{Envelope: d.env, Group: group, LastError: handlerErr.Error(), DeadAt: time.Now().UTC()}
		if err := insertDeadLetter(ctx, tx, dl); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM message_deliveries WHERE id = $1`, d.id); err != nil {
			return fmt.Errorf("failed to remove dead-lettered delivery: %w", err)
		}
		return nil
	}

	logger.Warn().Err(handlerErr).Msg("message processing failed, scheduling redelivery")

	query := `
		UPDATE message_deliveries
		SET attempts = $2, last_error = $3, available_at = NOW() + $4 * INTERVAL '1 millisecond'
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, d.id, d.env.Attempts, handlerErr.Error(), b.cfg.RedeliveryDelay.Milliseconds()); err != nil {
		return fmt.Errorf("failed to schedule redelivery: %w", err)
	}
	return nil
}

// DeadLetter implements DeadLetterSink.
func (b *PostgresBus) DeadLetter(ctx context.Context, dl DeadLetter) error {
	return insertDeadLetter(ctx, b.pool, dl)
}

func insertDeadLetter(ctx context.Context, db execer, dl DeadLetter) error {
	query := `
		INSERT INTO dead_letters (message_id, group_name, message_type, payload, published_at, attempts, last_error, dead_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id, group_name) DO NOTHING
	`
	_, err := db.Exec(ctx, query,
		dl.ID, dl.Group, dl.Type, []byte(dl.Payload), dl.PublishedAt, dl.Attempts, dl.LastError, dl.DeadAt)
	if err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

// StoredDeadLetter is a dead letter with its storage id.
type StoredDeadLetter struct {
	StorageID int64 `json:"storageId"`
	DeadLetter
}

// ListDeadLetters returns the most recent dead letters, newest first.
func (b *PostgresBus) ListDeadLetters(ctx context.Context, limit int) ([]StoredDeadLetter, error) {
	query := `
		SELECT id, message_id, group_name, message_type, payload, published_at, attempts, last_error, dead_at
		FROM dead_letters
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := b.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var out []StoredDeadLetter
	for rows.Next() {
		var s StoredDeadLetter
		var payload []byte
		if err := rows.Scan(&s.StorageID, &s.ID, &s.Group, &s.Type, &payload, &s.PublishedAt, &s.Attempts, &s.LastError, &s.DeadAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		s.Payload = payload
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return out, nil
}

// ErrDeadLetterNotFound is returned by Replay for an unknown storage id.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// Replay moves a dead letter back to its group's queue with a fresh attempt budget.
// The message id is kept so deduplicating consumers still recognise it.
func (b *PostgresBus) Replay(ctx context.Context, storageID int64) (err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var dl DeadLetter
	var payload []byte
	query := `
		DELETE FROM dead_letters
		WHERE id = $1
		RETURNING message_id, group_name, message_type, payload, published_at
	`
	err = tx.QueryRow(ctx, query, storageID).Scan(&dl.ID, &dl.Group, &dl.Type, &payload, &dl.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDeadLetterNotFound
		}
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}

	insert := `
		INSERT INTO message_deliveries (message_id, group_name, message_type, payload, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, group_name) DO NOTHING
	`
	if _, err = tx.Exec(ctx, insert, dl.ID, dl.Group, dl.Type, payload, dl.PublishedAt); err != nil {
		return fmt.Errorf("failed to requeue dead letter: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit replay: %w", err)
	}

	b.logger.Info().
		Int64("dead_letter_id", storageID).
		Str("message_id", dl.ID.String()).
		Str("group", dl.Group).
		Msg("dead letter replayed")
	return nil
}
