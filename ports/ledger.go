package ports

import (
	"context"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
)

// VerdictLedger persists finished detection reports
type VerdictLedger interface {
	Save(ctx context.Context, report *leakage.Report) error
	Get(ctx context.Context, id core.RunID) (*leakage.Report, error)
	List(ctx context.Context, target string, limit int) ([]*leakage.Report, error)
}
