// Command migrate copies saved state from one backend to another, for
// example from the JSON file backend to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/app"
	"github.com/dvloznov/aeva/internal/config"
	"github.com/dvloznov/aeva/internal/logger"
	"github.com/dvloznov/aeva/internal/store"
)

// copyResult reports what happened to one key.
type copyResult struct {
	Key    string
	Bytes  int
	Copied bool
}

func main() {
	var (
		from     = flag.String("from", config.BackendFile, "Source backend (file, sqlite)")
		fromPath = flag.String("from-path", "./data", "Source STATE_PATH")
		to       = flag.String("to", config.BackendSQLite, "Target backend (file, sqlite)")
		toPath   = flag.String("to-path", "./data", "Target STATE_PATH")
		dryRun   = flag.Bool("dry-run", false, "Report what would be copied without writing")
	)
	flag.Parse()

	log := logger.New()

	if *from == *to && *fromPath == *toPath {
		log.Fatal().Msg("Error: source and target are the same")
	}

	src, err := app.OpenStorage(&config.Config{StateBackend: *from, StatePath: *fromPath})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open source")
	}
	defer src.Close()

	dst, err := app.OpenStorage(&config.Config{StateBackend: *to, StatePath: *toPath})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open target")
	}
	defer dst.Close()

	log.Info().
		Str("from", *from).Str("from_path", *fromPath).
		Str("to", *to).Str("to_path", *toPath).
		Bool("dry_run", *dryRun).
		Msg("Copying state")

	results, err := copyState(context.Background(), src, dst, store.Keys, *dryRun, log)
	if err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}

	copied := 0
	for _, r := range results {
		status := "absent"
		if r.Copied {
			status = fmt.Sprintf("%d bytes", r.Bytes)
			copied++
		}
		fmt.Printf("  %-20s %s\n", r.Key, status)
	}
	if *dryRun {
		fmt.Printf("Dry run: %d keys would be copied.\n", copied)
		return
	}
	fmt.Printf("Copied %d keys.\n", copied)
}

// copyState reads every key from src and writes the present ones to dst in a
// single save, so the target never holds a partial copy.
func copyState(ctx context.Context, src, dst store.Storage, keys []string, dryRun bool, log zerolog.Logger) ([]copyResult, error) {
	entries := make(map[string][]byte, len(keys))
	results := make([]copyResult, 0, len(keys))

	for _, key := range keys {
		data, ok, err := src.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("copyState: load %s: %w", key, err)
		}
		results = append(results, copyResult{Key: key, Bytes: len(data), Copied: ok})
		if ok {
			entries[key] = data
		}
	}

	if len(entries) == 0 {
		log.Warn().Msg("Source holds no state")
		return results, nil
	}
	if dryRun {
		return results, nil
	}
	if err := dst.Save(ctx, entries); err != nil {
		return nil, fmt.Errorf("copyState: save: %w", err)
	}
	return results, nil
}
