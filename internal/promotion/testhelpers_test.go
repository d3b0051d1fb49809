package promotion

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"commerceflow/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// createPromotionFile writes promotions as gzipped JSON lines and returns the path.
func createPromotionFile(t *testing.T, filename string, promotions []model.Promotion, extraLines ...string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, p := range promotions {
		line, err := json.Marshal(p)
		require.NoError(t, err)
		_, err = gzipWriter.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	for _, line := range extraLines {
		_, err := gzipWriter.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	return filePath
}

func samplePromotion(code string) model.Promotion {
	now := time.Now().UTC()
	return model.Promotion{
		Code:         code,
		DiscountType: model.DiscountTypePercentage,
		Value:        decimal.NewFromInt(10),
		UsageLimit:   100,
		IsActive:     true,
		StartsAt:     now.Add(-24 * time.Hour),
		EndsAt:       now.Add(24 * time.Hour),
	}
}

// memoryStore is an in-memory Store for tests.
type memoryStore struct {
	mu         sync.Mutex
	promotions map[string]model.Promotion
	createErr  error
}

func newMemoryStore(promotions ...model.Promotion) *memoryStore {
	s := &memoryStore{promotions: make(map[string]model.Promotion)}
	for _, p := range promotions {
		s.promotions[p.Code] = p
	}
	return s
}

func (s *memoryStore) GetByCode(_ context.Context, code string) (*model.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[code]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memoryStore) ExistsByCode(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.promotions[code]
	return ok, nil
}

func (s *memoryStore) Create(_ context.Context, p *model.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.promotions[p.Code]; ok {
		return model.ErrPromotionCodeExists
	}
	s.promotions[p.Code] = *p
	return nil
}
