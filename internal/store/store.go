// Package store abre el UserRepository según el driver configurado.
package store

import (
	"context"
	"fmt"

	"github.com/baluarte/authgate/internal/store/core"
	"github.com/baluarte/authgate/internal/store/memory"
	"github.com/baluarte/authgate/internal/store/pg"
)

// Config del storage.
type Config struct {
	Driver   string // "memory" | "postgres"
	DSN      string
	Postgres PostgresTuning
}

// PostgresTuning del pool de conexiones.
type PostgresTuning struct {
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime string
}

// Open crea el repositorio concreto.
func Open(ctx context.Context, cfg Config) (core.UserRepository, error) {
	switch cfg.Driver {
	case "postgres", "pg":
		return pg.New(ctx, cfg.DSN, pg.Tuning{
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MinIdleConns:    cfg.Postgres.MinIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
