package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/db"
	"github.com/leadflow/backend/internal/memstore"
	"github.com/leadflow/backend/internal/models"
	"github.com/leadflow/backend/internal/service"
)

type backend interface {
	service.Stores
	ListConsultants(ctx context.Context) ([]models.Consultant, error)
	Close()
}

func openStore(ctx context.Context, c config.Config) (backend, error) {
	if c.StoreDriver == config.StoreDriverMemory {
		mem := memstore.New()
		if c.SeedFile != "" {
			if _, err := mem.LoadSeedFile(ctx, c.SeedFile); err != nil {
				return nil, eris.Wrapf(err, "load seed %s", c.SeedFile)
			}
		}
		return mem, nil
	}

	store, err := db.New(ctx, c.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}
	return store, nil
}

func newEngine(store backend) service.Engine {
	loc, _ := cfg.Location()
	return service.NewEngine(store, service.Options{
		LookupTimeout:    cfg.LookupTimeout,
		AppendTimeout:    cfg.AppendTimeout,
		PartialThreshold: cfg.PartialMatchThreshold,
		MaxAlternatives:  cfg.MaxAlternatives,
		Location:         loc,
		Logger:           logger,
	})
}
