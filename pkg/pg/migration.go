package pg

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

func Migrate(cfg Config, dir string, command string) error {
	db, err := newSqlConnection(cfg)
	if err != nil {
		return errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	return run(db, "postgres", dir, command)
}

func run(db *sql.DB, dialect, dir, command string) error {
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	logger.Info("running migrations", "dir", dir, "command", command)
	switch command {
	case "", MigrateUp:
		return errors.Wrap(goose.Up(db, dir), "migrate up")
	case MigrateDown:
		return errors.Wrap(goose.Down(db, dir), "migrate down")
	case MigrateStatus:
		return errors.Wrap(goose.Status(db, dir), "migration status")
	}
	return errors.Errorf("unknown migration command %q", command)
}
