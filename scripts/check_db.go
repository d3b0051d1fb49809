//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"commerceflow/internal/config"
	"commerceflow/internal/database"
)

// Connects with the server's DB_* settings and prints row counts for the
// tables the services own.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Logger, "check-db")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var dbName string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		fmt.Fprintf(os.Stderr, "QueryRow failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully connected to database: %s\n\n", dbName)

	for _, table := range []string{"products", "orders", "promotions", "transactions", "search_documents", "message_deliveries", "dead_letters"} {
		var n int64
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
			fmt.Printf("  %-22s unavailable (%v)\n", table, err)
			continue
		}
		fmt.Printf("  %-22s %d\n", table, n)
	}
}
