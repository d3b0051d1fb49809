package messaging

import (
	"context"
	"slices"
	"sync"
	"time"

	"commerceflow/internal/contracts"

	"github.com/rs/zerolog"
)

type subscription struct {
	group   string
	handler Handler
}

type memoryDelivery struct {
	env         Envelope
	sub         subscription
	availableAt time.Time
	lastError   string
}

// MemoryBus is an in-process Bus, selected with MESSAGING_DRIVER=memory and
// used by tests. Deliveries and dead letters are lost when the process exits.
type MemoryBus struct {
	mu     sync.Mutex
	cfg    Config
	subs   map[string][]subscription
	queue  []*memoryDelivery
	dead   []StoredDeadLetter
	lastID int64
	now    func() time.Time
	logger zerolog.Logger
}

// NewMemoryBus creates an in-memory bus.
func NewMemoryBus(cfg Config, logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		cfg:    cfg.withDefaults(),
		subs:   make(map[string][]subscription),
		now:    time.Now,
		logger: logger.With().Str("component", "memory-bus").Logger(),
	}
}

// Subscribe registers h for group. Re-subscribing a group replaces its handler.
func (b *MemoryBus) Subscribe(_ context.Context, group, messageType string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[messageType]
	for i := range subs {
		if subs[i].group == group {
			subs[i].handler = h
			return nil
		}
	}
	b.subs[messageType] = append(subs, subscription{group: group, handler: h})

	b.logger.Debug().Str("group", group).Str("message_type", messageType).Msg("subscribed")
	return nil
}

// Publish enqueues one delivery per subscribed group.
func (b *MemoryBus) Publish(_ context.Context, msgs ...contracts.Message) error {
	envs := make([]Envelope, 0, len(msgs))
	for _, msg := range msgs {
		env, err := NewEnvelope(msg)
		if err != nil {
			return err
		}
		envs = append(envs, env)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, env := range envs {
		b.enqueueLocked(env)
	}
	return nil
}

// Redeliver enqueues env again with its original id, simulating a broker
// redelivering the same message.
func (b *MemoryBus) Redeliver(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	env.Attempts = 0
	b.enqueueLocked(env)
}

func (b *MemoryBus) enqueueLocked(env Envelope) {
	subs := b.subs[env.Type]
	if len(subs) == 0 {
		b.logger.Debug().Str("message_type", env.Type).Msg("no subscribers, message dropped")
		return
	}
	for _, sub := range subs {
		b.queue = append(b.queue, &memoryDelivery{env: env, sub: sub, availableAt: b.now()})
	}
}

// DeadLetter implements DeadLetterSink. A message already dead for the
// group is kept once.
func (b *MemoryBus) DeadLetter(_ context.Context, dl DeadLetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.ContainsFunc(b.dead, func(s StoredDeadLetter) bool { return s.ID == dl.ID && s.Group == dl.Group }) {
		return nil
	}
	b.lastID++
	b.dead = append(b.dead, StoredDeadLetter{StorageID: b.lastID, DeadLetter: dl})
	return nil
}

// DeadLetters returns a copy of the dead-lettered deliveries, oldest first.
func (b *MemoryBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.dead))
	for i, s := range b.dead {
		out[i] = s.DeadLetter
	}
	return out
}

// ListDeadLetters returns the most recent dead letters, newest first.
func (b *MemoryBus) ListDeadLetters(_ context.Context, limit int) ([]StoredDeadLetter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []StoredDeadLetter
	for i := len(b.dead) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.dead[i])
	}
	return out, nil
}

// Replay queues a dead letter again for its group with a fresh attempt
// budget and its original message id.
func (b *MemoryBus) Replay(_ context.Context, storageID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := slices.IndexFunc(b.dead, func(s StoredDeadLetter) bool { return s.StorageID == storageID })
	if idx < 0 {
		return ErrDeadLetterNotFound
	}
	dl := b.dead[idx]
	b.dead = slices.Delete(b.dead, idx, idx+1)

	env := dl.Envelope
	env.Attempts = 0
	for _, sub := range b.subs[env.Type] {
		if sub.group == dl.Group {
			b.queue = append(b.queue, &memoryDelivery{env: env, sub: sub, availableAt: b.now()})
		}
	}
	return nil
}

// Pending returns the number of queued deliveries.
func (b *MemoryBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Drain processes deliveries until the queue is empty, ignoring redelivery
// delays. Messages published by handlers are processed in the same call.
func (b *MemoryBus) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := b.next(time.Time{})
		if d == nil {
			return nil
		}
		b.deliver(ctx, d)
	}
}

// Run dispatches deliveries whose redelivery delay has elapsed until ctx is cancelled.
func (b *MemoryBus) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug().Msg("memory bus stopped")
			return nil
		case <-ticker.C:
			for {
				d := b.next(b.now())
				if d == nil {
					break
				}
				b.deliver(ctx, d)
			}
		}
	}
}

// next pops the first delivery available at or before cutoff.
// A zero cutoff ignores availability.
func (b *MemoryBus) next(cutoff time.Time) *memoryDelivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, d := range b.queue {
		if cutoff.IsZero() || !d.availableAt.After(cutoff) {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return d
		}
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, d *memoryDelivery) {
	d.env.Attempts++
	logger := b.logger.With().
		Str("group", d.sub.group).
		Str("message_id", d.env.ID.String()).
		Str("message_type", d.env.Type).
		Int("attempt", d.env.Attempts).
		Logger()

	err := runHandler(ctx, d.sub.handler, d.env)
	if err == nil {
		logger.Debug().Msg("message processed")
		return
	}

	d.lastError = err.Error()
	if d.env.Attempts >= b.cfg.MaxAttempts {
		logger.Error().Err(err).Msg("message exhausted retries, dead-lettering")
		_ = b.DeadLetter(ctx, DeadLetter{
			Envelope:  d.env,
			Group:     d.sub.group,
			LastError: d.lastError,
			DeadAt:    b.now(),
		})
		return
	}

	logger.Warn().Err(err).Msg("message processing failed, scheduling redelivery")

	b.mu.Lock()
	d.availableAt = b.now().Add(b.cfg.RedeliveryDelay)
	b.queue = append(b.queue, d)
	b.mu.Unlock()
}
