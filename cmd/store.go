package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/wwfm/aggregate-cli/internal/aggregate"
	"github.com/wwfm/aggregate-cli/internal/job"
	"github.com/wwfm/aggregate-cli/internal/store"
)

// openStore builds the configured Store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database URL is required (WWFM_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database path is required (WWFM_STORE_DATABASE_URL)")
		}
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadRules returns the dedup rule table, extended from the configured rules
// file when one is set.
func loadRules() (aggregate.Rules, error) {
	if cfg.Aggregation.RulesFile == "" {
		return aggregate.DefaultRules(), nil
	}
	return aggregate.LoadRules(cfg.Aggregation.RulesFile)
}

// newRunner wires the aggregation job from config.
func newRunner(st store.Store) (*job.Runner, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	return job.NewRunner(st, cfg.Aggregation.Fields, rules, cfg.Aggregation.MaxConcurrentPairings), nil
}
