package main

import (
	"context"
	"fmt"
	"os"

	"github.com/visitorpulse/pulse/internal/config"
	"github.com/visitorpulse/pulse/internal/storage"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: migrate <up|down> [config.yaml]")
		return exitFailure
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction: %q (must be \"up\" or \"down\")\n", direction)
		return exitFailure
	}

	configPath := "config.yaml"
	if len(os.Args) > 2 {
		configPath = os.Args[2]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		return exitFailure
	}

	db, err := storage.Open(context.Background(), cfg.Database.URL, storage.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		return exitFailure
	}
	defer func() { _ = db.Close() }()

	if err := storage.Migrate(db.DB, direction); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", direction, err)
		return exitFailure
	}

	fmt.Printf("Migration %s completed successfully\n", direction)
	return exitSuccess
}
