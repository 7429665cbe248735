package migration

import (
	"context"
	"fmt"

	"ctleak/internal/errors"

	"github.com/jmoiron/sqlx"
)

// MigrationRunner handles database schema migrations for postgres and sqlite3
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunVerdictsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create run_verdicts table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

// timestampType is the column type each driver scans back into time.Time.
func timestampType(driver string) string {
	if driver == "postgres" {
		return "TIMESTAMP WITH TIME ZONE"
	}
	return "TIMESTAMP"
}

func (r *MigrationRunner) createRunVerdictsTable(ctx context.Context, db *sqlx.DB) error {
	ts := timestampType(db.DriverName())
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS run_verdicts (
			run_id VARCHAR(36) PRIMARY KEY,
			target VARCHAR(100) NOT NULL,
			outcome VARCHAR(32) NOT NULL,
			constant_time BOOLEAN NOT NULL,
			severity VARCHAR(32) NOT NULL,
			variant INTEGER NOT NULL,
			variant_kind VARCHAR(32) NOT NULL,
			crop_threshold BIGINT NOT NULL DEFAULT 0,
			max_t DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			tau DOUBLE PRECISION NOT NULL,
			traces_to_detect DOUBLE PRECISION NOT NULL,
			class0_count BIGINT NOT NULL,
			class0_mean DOUBLE PRECISION NOT NULL,
			class0_variance DOUBLE PRECISION NOT NULL,
			class1_count BIGINT NOT NULL,
			class1_mean DOUBLE PRECISION NOT NULL,
			class1_variance DOUBLE PRECISION NOT NULL,
			traces BIGINT NOT NULL,
			measured BIGINT NOT NULL,
			wraparounds BIGINT NOT NULL,
			still_to_go BIGINT NOT NULL,
			rounds INTEGER NOT NULL,
			started_at %[1]s NOT NULL,
			finished_at %[1]s NOT NULL
		)
	`, ts))
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_verdicts_target ON run_verdicts(target)",
		"CREATE INDEX IF NOT EXISTS idx_verdicts_started_at ON run_verdicts(started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_verdicts_outcome ON run_verdicts(outcome)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			return err
		}
	}
	return nil
}
