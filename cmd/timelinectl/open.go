package main

import (
	"fmt"

	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/kv"
	"github.com/clipforge/timeline/internal/timeline/store"
)

// openStore opens the configured database and builds a store over it.
// The caller closes the returned backend.
func openStore() (*kv.SQLite, *store.Store, error) {
	backend, err := kv.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	st, err := store.New(backend, events.NewBus(logs.Logger("events")), storeConfig())
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	return backend, st, nil
}

func storeConfig() *store.Config {
	sc := store.DefaultConfig()
	sc.BudgetBytes = cfg.Store.BudgetBytes
	sc.CleanupThreshold = cfg.Store.CleanupThreshold
	sc.MaxAge = cfg.Store.MaxAge
	sc.Logger = logs.Logger("store")
	return sc
}
