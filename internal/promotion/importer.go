package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"commerceflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ImportReport summarises an import run.
type ImportReport struct {
	Loaded   int `json:"loaded"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
}

// Importer creates promotions from catalogue files. Codes that already exist
// are skipped, so running an import twice is harmless.
type Importer struct {
	loader Loader
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewImporter creates an importer reading files through loader.
func NewImporter(loader Loader, store Store, logger zerolog.Logger) *Importer {
	return &Importer{
		loader: loader,
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "promotion-importer").Logger(),
	}
}

// Import loads all files concurrently and creates their promotions in file
// order. The first file that fails to load aborts the import before anything
// is written.
func (i *Importer) Import(ctx context.Context, filePaths []string) (ImportReport, error) {
	var report ImportReport
	if len(filePaths) == 0 {
		return report, nil
	}

	type loadResult struct {
		index      int
		promotions []model.Promotion
		err        error
	}

	resultChan := make(chan loadResult, len(filePaths))
	var wg sync.WaitGroup

	for idx, filePath := range filePaths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			promotions, err := i.loader.Load(ctx, path)
			resultChan <- loadResult{index: index, promotions: promotions, err: err}
		}(idx, filePath)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(filePaths))
	for result := range resultChan {
		results[result.index] = result
	}

	for idx, result := range results {
		if result.err != nil {
			i.logger.Error().Err(result.err).Str("file", filePaths[idx]).Msg("failed to load promotion file")
			return report, fmt.Errorf("failed to load promotion file %s: %w", filePaths[idx], result.err)
		}
	}

	seen := newCodeSet(0)
	for _, result := range results {
		for _, p := range result.promotions {
			report.Loaded++
			p.Code = strings.TrimSpace(p.Code)
			if !seen.Add(p.Code) {
				report.Skipped++
				continue
			}

			created, err := i.importOne(ctx, p)
			var verr *model.ValidationError
			switch {
			case errors.As(err, &verr):
				i.logger.Warn().Err(err).Str("code", p.Code).Msg("invalid promotion skipped")
				report.Rejected++
			case err != nil:
				return report, err
			case created:
				report.Created++
			default:
				report.Skipped++
			}
		}
	}

	i.logger.Info().
		Int("files", len(filePaths)).
		Int("loaded", report.Loaded).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Int("rejected", report.Rejected).
		Msg("promotion import finished")

	return report, nil
}

func (i *Importer) importOne(ctx context.Context, p model.Promotion) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	exists, err := i.store.ExistsByCode(ctx, p.Code)
	if err != nil {
		return false, fmt.Errorf("failed to check promotion %s: %w", p.Code, err)
	}
	if exists {
		return false, nil
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = i.now().UTC()
	}

	if err := i.store.Create(ctx, &p); err != nil {
		if errors.Is(err, model.ErrPromotionCodeExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create promotion %s: %w", p.Code, err)
	}
	return true, nil
}
