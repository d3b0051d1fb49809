//go:build ignore

package main

import (
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"commerceflow/internal/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
)

// Writes gzipped promotion import files, one JSON promotion per line.
// Every file repeats the code SHARED10 so a second import reports it as skipped.
//
//	go run scripts/generate_sample_promotions.go -files 3 -per-file 50
func main() {
	dir := flag.String("dir", "data/promotions", "output directory")
	files := flag.Int("files", 3, "number of files")
	perFile := flag.Int("per-file", 20, "promotions per file")
	seed := flag.Uint64("seed", 42, "faker seed")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	faker := gofakeit.New(*seed)
	now := time.Now().UTC().Truncate(time.Hour)

	for i := 1; i <= *files; i++ {
		promotions := []model.Promotion{{
			Code:         "SHARED10",
			DiscountType: model.DiscountTypePercentage,
			Value:        decimal.NewFromInt(10),
			IsActive:     true,
			StartsAt:     now,
			EndsAt:       now.AddDate(0, 1, 0),
		}}
		for range *perFile {
			promotions = append(promotions, fakePromotion(faker, now))
		}

		path := filepath.Join(*dir, fmt.Sprintf("promotions-%d.jsonl.gz", i))
		if err := writeFile(path, promotions); err != nil {
			log.Fatalf("Failed to create %s: %v", path, err)
		}
		fmt.Printf("Created %s with %d promotions\n", path, len(promotions))
	}
}

func fakePromotion(faker *gofakeit.Faker, now time.Time) model.Promotion {
	p := model.Promotion{
		Code:       strings.ToUpper(faker.LetterN(6)) + faker.DigitN(2),
		UsageLimit: faker.IntRange(0, 500),
		IsActive:   faker.Bool(),
		StartsAt:   now.AddDate(0, 0, -faker.IntRange(0, 30)),
		EndsAt:     now.AddDate(0, 0, faker.IntRange(1, 90)),
		Rules: model.PromotionRules{
			MinimumPurchaseAmount: decimal.NewFromInt(int64(faker.IntRange(0, 20) * 10)),
		},
	}
	if faker.Bool() {
		p.DiscountType = model.DiscountTypePercentage
		p.Value = decimal.NewFromInt(int64(faker.IntRange(5, 50)))
	} else {
		p.DiscountType = model.DiscountTypeFixedAmount
		p.Value = decimal.NewFromFloat(faker.Price(5, 100)).Round(2)
	}
	if faker.IntRange(0, 3) == 0 {
		p.Rules.ApplicableCategoryIDs = []string{faker.ProductCategory()}
	}
	return p
}

func writeFile(path string, promotions []model.Promotion) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	enc := json.NewEncoder(gz)
	for _, p := range promotions {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("failed to write promotion %s: %w", p.Code, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
