// Package app assembles the services shared by the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/config"
	"github.com/dvloznov/aeva/internal/infra/filestore"
	"github.com/dvloznov/aeva/internal/infra/memory"
	"github.com/dvloznov/aeva/internal/infra/sqlite"
	"github.com/dvloznov/aeva/internal/insights"
	"github.com/dvloznov/aeva/internal/notify"
	"github.com/dvloznov/aeva/internal/receipt"
	"github.com/dvloznov/aeva/internal/receiptsource"
	"github.com/dvloznov/aeva/internal/store"
)

// SQLiteFile is the database file created under STATE_PATH by the sqlite backend.
const SQLiteFile = "aeva.db"

// Storage is a state backend that holds resources.
type Storage interface {
	store.Storage
	io.Closer
}

// App holds every wired service.
type App struct {
	Store    *store.Store
	Gateway  aigateway.Gateway
	Notices  *notify.Feed
	Receipts *receipt.Workflow
	Insights *insights.Service
	Sources  *receiptsource.Loader

	storage Storage
}

// OpenStorage creates the backend selected by cfg.
func OpenStorage(cfg *config.Config) (Storage, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendFile:
		return filestore.New(cfg.StatePath)
	case config.BackendSQLite:
		return sqlite.Open(filepath.Join(cfg.StatePath, SQLiteFile))
	default:
		return nil, fmt.Errorf("app.OpenStorage: unknown state backend %q", cfg.StateBackend)
	}
}

// New opens storage, restores the store and wires the services around it.
// Without an API key the gateway is aigateway.Disabled.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	storage, err := OpenStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	s, err := store.Open(ctx, storage, log, store.WithDefaultCurrency(cfg.DefaultCurrency))
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	var gateway aigateway.Gateway = aigateway.Disabled{}
	if cfg.HasAI() {
		g, err := aigateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		gateway = g
	} else {
		log.Warn().Msg("No Gemini API key configured - receipt scanning and insights are disabled")
	}

	feed := notify.NewFeed(notify.DefaultCapacity)

	log.Info().
		Str("backend", cfg.StateBackend).
		Str("path", cfg.StatePath).
		Str("currency", s.PrimaryCurrency()).
		Bool("ai", cfg.HasAI()).
		Msg("State restored")

	return &App{
		Store:    s,
		Gateway:  gateway,
		Notices:  feed,
		Receipts: receipt.New(s, gateway, feed, log),
		Insights: insights.New(s, gateway, feed, log),
		Sources:  receiptsource.New(cfg.GCSCredentialsFile),
		storage:  storage,
	}, nil
}

// Close stops the receipt workflow, then releases the receipt source and the
// storage backend.
func (a *App) Close() error {
	a.Receipts.Close()
	return errors.Join(a.Sources.Close(), a.storage.Close())
}
