package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/config"
	"github.com/dvloznov/aeva/internal/domain"
)

func testConfig(backend, path string) *config.Config {
	return &config.Config{
		Port:            "8080",
		StateBackend:    backend,
		StatePath:       path,
		DefaultCurrency: "EUR",
	}
}

func TestNewPersistsAcrossRestarts(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(backend, t.TempDir())

			a, err := New(ctx, cfg, zerolog.New(io.Discard))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := a.Store.PrimaryCurrency(); got != "EUR" {
				t.Errorf("PrimaryCurrency() = %q, want EUR", got)
			}
			_, _, err = a.Store.AddTransaction(ctx, domain.TransactionInput{
				Name:           "Coffee",
				OriginalAmount: 3.5,
				Date:           civil.Date{Year: 2024, Month: time.June, Day: 1},
				Category:       domain.Expense("Snacks"),
			})
			if err != nil {
				t.Fatalf("AddTransaction() error = %v", err)
			}
			if err := a.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			b, err := New(ctx, cfg, zerolog.New(io.Discard))
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer b.Close()
			txs := b.Store.Transactions()
			if len(txs) != 1 || txs[0].Name != "Coffee" || txs[0].OriginalCurrency != "EUR" {
				t.Errorf("restored = %+v", txs)
			}
		})
	}
}

func TestNewWithoutAPIKeyDisablesAI(t *testing.T) {
	a, err := New(context.Background(), testConfig(config.BackendMemory, ""), zerolog.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, ok := a.Gateway.(aigateway.Disabled); !ok {
		t.Errorf("Gateway = %T, want aigateway.Disabled", a.Gateway)
	}
	if reply := a.Insights.Feedback(context.Background()); !reply.Fallback {
		t.Errorf("Feedback() = %+v, want fallback", reply)
	}
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenStorage(testConfig(config.BackendSQLite, dir))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	s.Close()
	if _, err := os.Stat(filepath.Join(dir, SQLiteFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	if _, err := OpenStorage(testConfig("redis", dir)); err == nil {
		t.Error("expected error for unknown backend")
	}

	if _, err := New(context.Background(), testConfig("redis", dir), zerolog.Nop()); err == nil {
		t.Error("New() should fail for unknown backend")
	}
}
