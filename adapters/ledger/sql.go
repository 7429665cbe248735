// Package ledger stores finished detection reports.
package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"math"
	"time"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/errors"
	"ctleak/ports"

	"github.com/jmoiron/sqlx"
)

// verdictRow is the flattened run_verdicts row.
type verdictRow struct {
	RunID          string    `db:"run_id"`
	Target         string    `db:"target"`
	Outcome        string    `db:"outcome"`
	ConstantTime   bool      `db:"constant_time"`
	Severity       string    `db:"severity"`
	Variant        int       `db:"variant"`
	VariantKind    string    `db:"variant_kind"`
	CropThreshold  int64     `db:"crop_threshold"`
	MaxT           float64   `db:"max_t"`
	PValue         float64   `db:"p_value"`
	Tau            float64   `db:"tau"`
	TracesToDetect float64   `db:"traces_to_detect"`
	Class0Count    int64     `db:"class0_count"`
	Class0Mean     float64   `db:"class0_mean"`
	Class0Variance float64   `db:"class0_variance"`
	Class1Count    int64     `db:"class1_count"`
	Class1Mean     float64   `db:"class1_mean"`
	Class1Variance float64   `db:"class1_variance"`
	Traces         int64     `db:"traces"`
	Measured       int64     `db:"measured"`
	Wraparounds    int64     `db:"wraparounds"`
	StillToGo      int64     `db:"still_to_go"`
	Rounds         int       `db:"rounds"`
	StartedAt      time.Time `db:"started_at"`
	FinishedAt     time.Time `db:"finished_at"`
}

const verdictColumns = `run_id, target, outcome, constant_time, severity, variant, variant_kind,
	crop_threshold, max_t, p_value, tau, traces_to_detect,
	class0_count, class0_mean, class0_variance, class1_count, class1_mean, class1_variance,
	traces, measured, wraparounds, still_to_go, rounds, started_at, finished_at`

func toRow(r *leakage.Report) verdictRow {
	return verdictRow{
		RunID:          r.RunID.String(),
		Target:         r.Target,
		Outcome:        string(r.Outcome),
		ConstantTime:   r.ConstantTime,
		Severity:       string(r.Severity),
		Variant:        r.Variant,
		VariantKind:    string(r.VariantKind),
		CropThreshold:  r.CropThreshold,
		MaxT:           r.MaxT,
		PValue:         r.PValue,
		Tau:            r.Tau,
		TracesToDetect: r.TracesToDetect,
		Class0Count:    r.Class0.Count,
		Class0Mean:     r.Class0.Mean,
		Class0Variance: r.Class0.Variance,
		Class1Count:    r.Class1.Count,
		Class1Mean:     r.Class1.Mean,
		Class1Variance: r.Class1.Variance,
		Traces:         r.Traces,
		Measured:       r.Measured,
		Wraparounds:    r.Wraparounds,
		StillToGo:      r.StillToGo,
		Rounds:         r.Rounds,
		StartedAt:      r.StartedAt.UTC(),
		FinishedAt:     r.FinishedAt.UTC(),
	}
}

func (row verdictRow) report() *leakage.Report {
	stats := func(n int64, mean, variance float64) leakage.ClassStats {
		return leakage.ClassStats{Count: n, Mean: mean, Variance: variance, StdDev: math.Sqrt(variance)}
	}
	return &leakage.Report{
		RunID:          core.RunID(row.RunID),
		Target:         row.Target,
		Outcome:        leakage.Outcome(row.Outcome),
		ConstantTime:   row.ConstantTime,
		Severity:       leakage.Severity(row.Severity),
		Variant:        row.Variant,
		VariantKind:    leakage.VariantKind(row.VariantKind),
		CropThreshold:  row.CropThreshold,
		MaxT:           row.MaxT,
		PValue:         row.PValue,
		Tau:            row.Tau,
		TracesToDetect: row.TracesToDetect,
		Class0:         stats(row.Class0Count, row.Class0Mean, row.Class0Variance),
		Class1:         stats(row.Class1Count, row.Class1Mean, row.Class1Variance),
		Traces:         row.Traces,
		Measured:       row.Measured,
		Wraparounds:    row.Wraparounds,
		StillToGo:      row.StillToGo,
		Rounds:         row.Rounds,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
	}
}

// SQLLedger implements ports.VerdictLedger on postgres or sqlite3.
type SQLLedger struct {
	db *sqlx.DB
}

// NewSQLLedger wraps an open, migrated database.
func NewSQLLedger(db *sqlx.DB) ports.VerdictLedger {
	return &SQLLedger{db: db}
}

// Save inserts a report. Saving the same run twice is an error.
func (l *SQLLedger) Save(ctx context.Context, report *leakage.Report) error {
	_, err := l.db.NamedExecContext(ctx, `
		INSERT INTO run_verdicts (`+verdictColumns+`)
		VALUES (:run_id, :target, :outcome, :constant_time, :severity, :variant, :variant_kind,
			:crop_threshold, :max_t, :p_value, :tau, :traces_to_detect,
			:class0_count, :class0_mean, :class0_variance, :class1_count, :class1_mean, :class1_variance,
			:traces, :measured, :wraparounds, :still_to_go, :rounds, :started_at, :finished_at)
	`, toRow(report))
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to save run %s", report.RunID))
	}
	return nil
}

// Get returns core.ErrRunNotFound when id was never saved.
func (l *SQLLedger) Get(ctx context.Context, id core.RunID) (*leakage.Report, error) {
	var row verdictRow
	err := l.db.GetContext(ctx, &row, l.db.Rebind(`SELECT `+verdictColumns+` FROM run_verdicts WHERE run_id = ?`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(core.ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to load run %s", id))
	}
	return row.report(), nil
}

// List returns the newest reports first, optionally for one target only.
func (l *SQLLedger) List(ctx context.Context, target string, limit int) ([]*leakage.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + verdictColumns + ` FROM run_verdicts`
	args := []interface{}{}
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []verdictRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list runs"))
	}
	reports := make([]*leakage.Report, len(rows))
	for i, row := range rows {
		reports[i] = row.report()
	}
	return reports, nil
}
