package ledger

import (
	"context"
	"strings"

	"ctleak/internal/errors"
	"ctleak/internal/migration"
	"ctleak/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open returns the ledger for driver: an in-memory one for "", otherwise a
// migrated postgres or sqlite3 database. The returned close function must be
// called when the ledger is no longer used.
func Open(ctx context.Context, driver, dsn string) (ports.VerdictLedger, func() error, error) {
	if driver == "" {
		return NewMemory(), func() error { return nil }, nil
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to connect to %s", driver))
	}
	// every connection to an in-memory sqlite database sees its own database
	if driver == "sqlite3" && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	return NewSQLLedger(db), db.Close, nil
}
