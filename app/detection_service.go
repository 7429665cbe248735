// Package app wires targets, the measurement fixture, exporters and the
// verdict ledger into detection runs.
package app

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"ctleak/adapters/export"
	"ctleak/adapters/rng"
	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal"
	"ctleak/internal/errors"
	"ctleak/internal/fixture"
	"ctleak/internal/metrics"
	"ctleak/ports"
)

// RunRequest describes one detection run. Zero fields take the service defaults.
type RunRequest struct {
	Target string
	Params *leakage.Params
	Seed   uint64
	// ExportPath receives the raw ticks; .xlsx selects a workbook.
	ExportPath string
	RunID      core.RunID
	Progress   func(*leakage.Report)
}

// DetectionService runs detection against registered targets
type DetectionService struct {
	registry     *Registry
	ledger       ports.VerdictLedger
	metrics      *metrics.Recorder
	logger       *internal.Logger
	params       leakage.Params
	seed         uint64
	operandsFile string
}

// ServiceConfig holds the defaults applied to every request.
type ServiceConfig struct {
	Params       leakage.Params
	Seed         uint64
	OperandsFile string
}

// NewDetectionService creates a detection service. ledger and recorder may be nil.
func NewDetectionService(registry *Registry, ledger ports.VerdictLedger, recorder *metrics.Recorder, logger *internal.Logger, cfg ServiceConfig) *DetectionService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DetectionService{
		registry:     registry,
		ledger:       ledger,
		metrics:      recorder,
		logger:       logger,
		params:       cfg.Params,
		seed:         cfg.Seed,
		operandsFile: cfg.OperandsFile,
	}
}

// Registry returns the target registry.
func (s *DetectionService) Registry() *Registry {
	return s.registry
}

// Ledger returns the verdict ledger, possibly nil.
func (s *DetectionService) Ledger() ports.VerdictLedger {
	return s.ledger
}

// Run measures one target to completion and records the verdict.
func (s *DetectionService) Run(ctx context.Context, req RunRequest) (*leakage.Report, error) {
	target, err := s.registry.Get(req.Target)
	if err != nil {
		return nil, err
	}
	params := s.params
	if req.Params != nil {
		params = *req.Params
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.seed
	}

	inst, err := target.Build(TargetEnv{Params: params, Seed: seed, OperandsFile: s.operandsFile})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build target %s", target.Name)
	}

	opts := []fixture.Option{
		fixture.WithTarget(target.Name),
		fixture.WithLogger(s.logger),
		fixture.WithMetrics(s.metrics),
	}
	if req.RunID != "" {
		opts = append(opts, fixture.WithRunID(req.RunID))
	}
	if req.Progress != nil {
		opts = append(opts, fixture.WithProgress(req.Progress))
	}
	if req.ExportPath != "" {
		exporter, err := export.New(req.ExportPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sample export")
		}
		defer func() {
			if cerr := exporter.Close(); cerr != nil {
				s.logger.Warn("Failed to close sample export %s: %v", req.ExportPath, cerr)
			}
		}()
		opts = append(opts, fixture.WithExporter(exporter))
	}

	fx, err := fixture.New(params, inst.Device, inst.Cycles, rng.New(seed), opts...)
	if err != nil {
		return nil, err
	}
	report, err := fx.Detect(ctx)
	if err != nil {
		return nil, err
	}

	if s.ledger != nil {
		if err := s.ledger.Save(ctx, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RunAll measures every request, at most parallel at a time, and returns the
// reports in request order. The first failure cancels the runs still going;
// the slice then holds the reports that did finish, nil elsewhere, including
// a report whose verdict could not be saved.
// Concurrent runs disturb each other's timing; parallel > 1 trades accuracy
// for throughput.
func (s *DetectionService) RunAll(ctx context.Context, reqs []RunRequest, parallel int) ([]*leakage.Report, error) {
	if parallel < 1 {
		parallel = 1
	}
	reports := make([]*leakage.Report, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, req := range reqs {
		g.Go(func() error {
			report, err := s.Run(gctx, req)
			reports[i] = report
			if err != nil {
				return errors.Wrapf(err, "target %s", req.Target)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// ExportPathFor derives a per-target export path when several targets share
// one base path: meas.txt becomes meas_mulhi.txt.
func ExportPathFor(base, target string, multiple bool) string {
	if base == "" || !multiple {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + target + ext
}

// DefaultParams returns the parameters applied when a request brings none.
func (s *DetectionService) DefaultParams() leakage.Params {
	return s.params
}
