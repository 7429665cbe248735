package config

import (
	"testing"
	"time"

	"ctleak/domain/core"
	"ctleak/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.Detection.NumberMeasurements)
	assert.Equal(t, 20, cfg.Detection.DropSize)
	assert.Equal(t, 100, cfg.Detection.NumberPercentiles)
	assert.Equal(t, "div.txt", cfg.Target.OperandsFile)
	assert.Equal(t, "", cfg.Ledger.Driver)
	assert.Equal(t, int64(1), cfg.Server.MaxConcurrentRuns)
	assert.Equal(t, 10*time.Minute, cfg.Server.RunTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CTLEAK_NUMBER_MEASUREMENTS", "1000")
	t.Setenv("CTLEAK_DROP_SIZE", "50")
	t.Setenv("CTLEAK_EARLY_STOP", "true")
	t.Setenv("CTLEAK_SEED", "7")
	t.Setenv("LEDGER_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:ledger.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Detection.NumberMeasurements)
	assert.Equal(t, 50, cfg.Detection.DropSize)
	assert.True(t, cfg.Detection.EarlyStop)
	assert.Equal(t, uint64(7), cfg.Target.Seed)
	assert.Equal(t, "sqlite3", cfg.Ledger.Driver)
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("CTLEAK_DROP_SIZE", "twenty")
	t.Setenv("RUN_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "CTLEAK_DROP_SIZE")
	assert.Contains(t, err.Error(), "RUN_TIMEOUT")
}

func TestLoadRejectsInconsistentDetection(t *testing.T) {
	t.Setenv("CTLEAK_NUMBER_MEASUREMENTS", "40")
	t.Setenv("CTLEAK_DROP_SIZE", "20")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDropTooLarge)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoadLedgerNeedsDSN(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "postgres")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("LEDGER_DRIVER", "mysql")
	t.Setenv("DATABASE_URL", "x")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LEDGER_DRIVER")
}
