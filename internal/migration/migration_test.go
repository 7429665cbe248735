package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCreatesSchema(t *testing.T) {
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	runner := NewRunner()
	require.NoError(t, runner.Run(ctx, db))
	// rerunning is a no-op
	require.NoError(t, runner.Run(ctx, db))

	var indexes []string
	require.NoError(t, db.Select(&indexes,
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_verdicts_%' ORDER BY name"))
	assert.Equal(t, []string{"idx_verdicts_outcome", "idx_verdicts_started_at", "idx_verdicts_target"}, indexes)

	var columns int
	require.NoError(t, db.Get(&columns, "SELECT COUNT(*) FROM pragma_table_info('run_verdicts')"))
	assert.Equal(t, 25, columns)
	assert.Equal(t, "1.0.0", runner.Version())
}

func TestTimestampType(t *testing.T) {
	assert.Equal(t, "TIMESTAMP WITH TIME ZONE", timestampType("postgres"))
	assert.Equal(t, "TIMESTAMP", timestampType("sqlite3"))
}
