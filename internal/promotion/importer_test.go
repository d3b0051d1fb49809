package promotion

import (
	"context"
	"errors"
	"testing"

	"commerceflow/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()

	invalid := samplePromotion("BROKEN")
	invalid.Value = decimal.Zero

	file1 := createPromotionFile(t, "a.gz", []model.Promotion{samplePromotion("NEW1"), samplePromotion("EXISTING")})
	file2 := createPromotionFile(t, "b.gz", []model.Promotion{samplePromotion("NEW1"), samplePromotion("NEW2"), invalid})

	store := newMemoryStore(samplePromotion("EXISTING"))
	importer := NewImporter(NewFileLoader(zerolog.Nop()), store, zerolog.Nop())

	report, err := importer.Import(ctx, []string{file1, file2})
	require.NoError(t, err)

	assert.Equal(t, ImportReport{Loaded: 5, Created: 2, Skipped: 2, Rejected: 1}, report)

	p, err := store.GetByCode(ctx, "NEW2")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	again, err := importer.Import(ctx, []string{file1, file2})
	require.NoError(t, err)
	assert.Zero(t, again.Created)
}

func TestImporter_LoadFailureWritesNothing(t *testing.T) {
	ctx := context.Background()

	good := createPromotionFile(t, "good.gz", []model.Promotion{samplePromotion("GOOD")})
	store := newMemoryStore()
	importer := NewImporter(NewFileLoader(zerolog.Nop()), store, zerolog.Nop())

	_, err := importer.Import(ctx, []string{good, "/nonexistent.gz"})
	require.Error(t, err)

	exists, err := store.ExistsByCode(ctx, "GOOD")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImporter_StoreFailureAborts(t *testing.T) {
	ctx := context.Background()

	file := createPromotionFile(t, "a.gz", []model.Promotion{samplePromotion("ONE")})
	store := newMemoryStore()
	store.createErr = errors.New("disk full")
	importer := NewImporter(NewFileLoader(zerolog.Nop()), store, zerolog.Nop())

	_, err := importer.Import(ctx, []string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestImporter_NoFiles(t *testing.T) {
	importer := NewImporter(NewFileLoader(zerolog.Nop()), newMemoryStore(), zerolog.Nop())

	report, err := importer.Import(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ImportReport{}, report)
}
