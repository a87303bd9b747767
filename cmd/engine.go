package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hnsc-omics/omics-cli/internal/adapter"
	"github.com/hnsc-omics/omics-cli/internal/docstore"
	"github.com/hnsc-omics/omics-cli/internal/harmonize"
	"github.com/hnsc-omics/omics-cli/internal/ledger"
	"github.com/hnsc-omics/omics-cli/internal/loader"
	"github.com/hnsc-omics/omics-cli/internal/pipeline"
	"github.com/hnsc-omics/omics-cli/internal/relstore"
	"github.com/hnsc-omics/omics-cli/internal/resilience"
	"github.com/hnsc-omics/omics-cli/internal/template"
)

// storePool creates a pgxpool.Pool for the ledger and relational store.
func storePool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("no database_url configured (set store.database_url or OMICS_STORE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}
	return pool, nil
}

// openDocstore builds the configured document store backend.
func openDocstore(ctx context.Context) (docstore.Store, error) {
	switch cfg.Docstore.Driver {
	case "mongo":
		if cfg.Docstore.URI == "" {
			return nil, eris.New("docstore driver is mongo but no uri configured")
		}
		return docstore.NewMongo(ctx, cfg.Docstore.URI, cfg.Docstore.Database)
	case "sqlite", "":
		s, err := docstore.NewSQLite(cfg.Docstore.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown docstore driver %q", cfg.Docstore.Driver)
	}
}

// buildOrchestrator wires the full engine from configuration.
func buildOrchestrator(pool *pgxpool.Pool, docs docstore.Store) (*pipeline.Orchestrator, *loader.Loader, error) {
	templates, err := template.LoadDir(cfg.Pipeline.TemplateDir)
	if err != nil {
		return nil, nil, err
	}

	retry := resilience.FromRetryConfig(cfg.Pipeline.RetryMaxAttempts, cfg.Pipeline.RetryInitialBackoffMs, 0, 0, -1)
	breaker := resilience.FromCircuitConfig(cfg.Pipeline.BreakerFailureThreshold, cfg.Pipeline.BreakerResetSecs)

	led := ledger.New(pool)
	ld := loader.New(relstore.New(pool), docs, led, retry, breaker)
	orch := pipeline.New(
		templates,
		adapter.DefaultRegistry(),
		harmonize.New(nil),
		ld,
		led,
		ledger.NewRunLog(pool),
		cfg.Pipeline.Concurrency,
	)
	return orch, ld, nil
}
