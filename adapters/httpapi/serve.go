package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ctleak/adapters/ledger"
	"ctleak/app"
	"ctleak/internal"
	"ctleak/internal/config"
	"ctleak/internal/metrics"
)

// Serve wires the ledger, metrics and run manager from cfg and blocks
// serving HTTP until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, logger *internal.Logger) error {
	gin.SetMode(cfg.Server.GinMode)

	l, closeLedger, err := ledger.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLedger(); err != nil {
			logger.Warn("closing ledger: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := app.NewDetectionService(app.NewRegistry(), l, metrics.NewRecorder(reg), logger, app.ServiceConfig{
		Params:       cfg.Detection,
		Seed:         cfg.Target.Seed,
		OperandsFile: cfg.Target.OperandsFile,
	})
	manager := app.NewRunManager(svc, cfg.Server.MaxConcurrentRuns, cfg.Server.RunTimeout)
	return NewServer(manager, reg, logger).Start(ctx, ":"+cfg.Server.Port)
}
