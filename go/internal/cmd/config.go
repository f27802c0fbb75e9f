package main

import (
	"fmt"
	"os"

	"github.com/mcdev12/finoxa/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func loadConfig() (*config.Config, error) {
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())
}

// needsDatabase reports whether the store needs a database/sql connection.
// The audit log uses its own pgx pool.
func needsDatabase(cfg *config.Config) bool {
	return cfg.Store.Backend == config.BackendSQL
}
