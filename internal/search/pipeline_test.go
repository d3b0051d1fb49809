package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"commerceflow/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeIndex records written documents. Batches whose first document id is
// in failFirst fail that many times before succeeding.
type fakeIndex struct {
	mu        sync.Mutex
	docs      map[string]model.SearchDocument
	calls     map[string]int
	failFirst map[string]int
	refreshes int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		docs:      map[string]model.SearchDocument{},
		calls:     map[string]int{},
		failFirst: map[string]int{},
	}
}

func (f *fakeIndex) BulkUpsert(_ context.Context, docs []model.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := docs[0].ID
	f.calls[key]++
	if f.calls[key] <= f.failFirst[key] {
		return fmt.Errorf("bulk write rejected for %s", key)
	}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, doc model.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndex) Merge(_ context.Context, doc model.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.docs[doc.ID]; ok && doc.ImageURL == nil {
		doc.ImageURL = stored.ImageURL
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndex) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeIndex) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func makeDocs(n int) []model.SearchDocument {
	docs := make([]model.SearchDocument, n)
	for i := range docs {
		docs[i] = model.SearchDocument{
			ID:    fmt.Sprintf("P%05d", i),
			Name:  fmt.Sprintf("Product %d", i),
			Price: decimal.NewFromInt(int64(i%50 + 1)),
		}
	}
	return docs
}

func testConfig() Config {
	return Config{BatchSize: 1000, Parallelism: 4, MaxAttempts: 3, RetryBackoff: time.Millisecond}
}

func TestPipeline_Run_BatchesAndRefreshes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	index := newFakeIndex()
	p := NewPipeline(index, testConfig(), zerolog.Nop())

	result, err := p.Run(context.Background(), makeDocs(2500))

	require.NoError(t, err)
	if diff := cmp.Diff(Result{Batches: 3, Documents: 2500}, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2500, index.count())
	assert.Equal(t, 1, index.refreshes)
	assert.Equal(t, map[string]int{"P00000": 1, "P01000": 1, "P02000": 1}, index.calls)
}

func TestPipeline_Run_RetriesTransientFailure(t *testing.T) {
	index := newFakeIndex()
	index.failFirst["P01000"] = 2
	p := NewPipeline(index, testConfig(), zerolog.Nop())

	_, err := p.Run(context.Background(), makeDocs(2500))

	require.NoError(t, err)
	assert.Equal(t, 3, index.calls["P01000"])
	assert.Equal(t, 2500, index.count())
	assert.Equal(t, 1, index.refreshes)
}

func TestPipeline_Run_ExhaustedBatchFailsWithoutRefresh(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	index := newFakeIndex()
	index.failFirst["P01000"] = 100
	p := NewPipeline(index, testConfig(), zerolog.Nop())

	_, err := p.Run(context.Background(), makeDocs(2500))

	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	require.Len(t, bulkErr.Failed, 1)
	assert.Equal(t, 1, bulkErr.Failed[0].Index)
	assert.Len(t, bulkErr.Failed[0].Documents, 1000)
	assert.Equal(t, 3, bulkErr.Batches)
	assert.Contains(t, err.Error(), "1 of 3 batches")

	assert.Equal(t, 3, index.calls["P01000"], "one attempt plus two retries")
	assert.Equal(t, 1500, index.count(), "other batches still written")
	assert.Zero(t, index.refreshes)
}

func TestPipeline_Run_Empty(t *testing.T) {
	index := newFakeIndex()
	p := NewPipeline(index, testConfig(), zerolog.Nop())

	result, err := p.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, result.Batches)
	assert.Zero(t, index.refreshes)
}

func TestPipeline_Run_CancelledContextStopsRetrying(t *testing.T) {
	index := newFakeIndex()
	index.failFirst["P00000"] = 100
	cfg := testConfig()
	cfg.RetryBackoff = time.Hour
	p := NewPipeline(index, cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, makeDocs(10))

	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, index.calls["P00000"])
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Positive(t, cfg.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.RetryBackoff)
}
