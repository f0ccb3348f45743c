package main

import (
	"os"
	"strings"

	"github.com/nimasrn/donation-ledger/internal/config"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/nimasrn/donation-ledger/pkg/pg"
)

// main.go [up|down|status] --dir=./migrations --env=.env
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	err = pg.Migrate(config.Get().WriteDB(), getMigrationPath(), getCommand())
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func getCommand() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return pg.MigrateUp
}

func getEnvPath() string {
	if v := flagValue("--env="); v != "" {
		return v
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	if v := flagValue("--dir="); v != "" {
		return v
	}
	return "./migrations"
}

func flagValue(prefix string) string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, prefix) {
			p := strings.TrimPrefix(v, prefix)
			if _, err := os.Stat(p); err != nil {
				logger.Error("failed to open the passed path, got error" + err.Error())
				return ""
			}
			return p
		}
	}
	return ""
}
