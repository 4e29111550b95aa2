package cli

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/store"
)

// stores holds the backends one command works against. The local SQLite
// store always carries configuration and file artifacts; turns and vectors
// live there too unless the config points at Postgres.
type stores struct {
	local *store.SQLiteStore
	log   store.TurnLog
	index store.VectorIndex
	pg    *store.PostgresStore
	vault *credential.Vault
}

func openStores(ctx context.Context, cfg *config.File) (*stores, error) {
	local, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Store.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	st := &stores{
		local: local,
		log:   local,
		index: local,
		vault: credential.NewVault(local, credential.NewManager()),
	}

	switch cfg.Store.Driver {
	case "", "sqlite":
	case "postgres":
		url := cfg.Store.DatabaseURL
		if url == "" {
			url = st.vault.Lookup(ctx, "store.database_url")
		}
		pg, err := store.NewPostgresStore(ctx, url)
		if err != nil {
			local.Close()
			return nil, err
		}
		st.pg = pg
		st.log = pg
		st.index = pg
	default:
		local.Close()
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return st, nil
}

func (s *stores) Close() error {
	if s.pg != nil {
		s.pg.Close()
	}
	return s.local.Close()
}
