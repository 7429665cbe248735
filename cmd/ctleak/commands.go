package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ctleak/adapters/dut/mulhi"
	"ctleak/adapters/httpapi"
	"ctleak/adapters/ledger"
	"ctleak/adapters/report"
	"ctleak/adapters/rng"
	"ctleak/app"
	"ctleak/domain/leakage"
	"ctleak/internal/errors"
	"ctleak/internal/generator"
)

// paramFlags mirrors leakage.Params; only flags set on the command line
// override the environment.
type paramFlags struct {
	p leakage.Params
}

func (f *paramFlags) register(cmd *cobra.Command) {
	d := leakage.DefaultParams()
	fl := cmd.Flags()
	fl.IntVar(&f.p.NumberMeasurements, "number-measurements", d.NumberMeasurements, "Trials per batch")
	fl.IntVar(&f.p.DropSize, "drop-size", d.DropSize, "Trials discarded at each edge of a batch")
	fl.IntVar(&f.p.ChunkSize, "chunk-size", d.ChunkSize, "Input bytes per trial")
	fl.IntVar(&f.p.NumberPercentiles, "number-percentiles", d.NumberPercentiles, "Cropped variants")
	fl.IntVar(&f.p.TotalMeasurements, "total-measurements", d.TotalMeasurements, "Trial budget of the run")
	fl.Int64Var(&f.p.EnoughMeasurements, "enough-measurements", d.EnoughMeasurements, "Class-0 count a variant needs to be considered")
	fl.Int64Var(&f.p.SecondOrderFloor, "second-order-floor", d.SecondOrderFloor, "Uncropped count that activates the second-order test")
	fl.Float64Var(&f.p.TModerate, "t-moderate", d.TModerate, "|t| above which the target is probably leaking")
	fl.Float64Var(&f.p.TBananas, "t-bananas", d.TBananas, "|t| above which the target is definitely leaking")
	fl.BoolVar(&f.p.EarlyStop, "early-stop", d.EarlyStop, "Stop once a variant exceeds --t-bananas")
	fl.Int64Var(&f.p.MaxBatchBytes, "max-batch-bytes", d.MaxBatchBytes, "Ceiling on buffers allocated per batch")
}

func (f *paramFlags) apply(cmd *cobra.Command, base leakage.Params) leakage.Params {
	out := base
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("number-measurements", func() { out.NumberMeasurements = f.p.NumberMeasurements })
	set("drop-size", func() { out.DropSize = f.p.DropSize })
	set("chunk-size", func() { out.ChunkSize = f.p.ChunkSize })
	set("number-percentiles", func() { out.NumberPercentiles = f.p.NumberPercentiles })
	set("total-measurements", func() { out.TotalMeasurements = f.p.TotalMeasurements })
	set("enough-measurements", func() { out.EnoughMeasurements = f.p.EnoughMeasurements })
	set("second-order-floor", func() { out.SecondOrderFloor = f.p.SecondOrderFloor })
	set("t-moderate", func() { out.TModerate = f.p.TModerate })
	set("t-bananas", func() { out.TBananas = f.p.TBananas })
	set("early-stop", func() { out.EarlyStop = f.p.EarlyStop })
	set("max-batch-bytes", func() { out.MaxBatchBytes = f.p.MaxBatchBytes })
	return out
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		params       paramFlags
		seed         uint64
		operandsFile string
		exportPath   string
		format       string
		parallel     int
		timeout      time.Duration
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "run <target...>",
		Short: "Measure targets and report whether their timing depends on the class",
		Long: `Run a detection against one or more registered targets.

The exit status is 0 when no leak was detected, 1 when a target leaks, 3 when
the trial budget ran out before a verdict, 2 for configuration errors and 111
when a batch would exceed --max-batch-bytes.

Example: ctleak run queue_insert_tail mulhi --total-measurements 1500000 --export meas.xlsx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg := c.cfg
			p := params.apply(cmd, cfg.Detection)
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Target.Seed
			}
			if !cmd.Flags().Changed("operands") {
				operandsFile = cfg.Target.OperandsFile
			}
			if !cmd.Flags().Changed("export") {
				exportPath = cfg.Export.Path
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			l, closeLedger, err := ledger.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
			if err != nil {
				return err
			}
			defer closeLedger()

			svc := app.NewDetectionService(app.NewRegistry(), l, nil, c.logger, app.ServiceConfig{
				Params:       p,
				Seed:         seed,
				OperandsFile: operandsFile,
			})

			reqs := make([]app.RunRequest, len(args))
			for i, name := range args {
				reqs[i] = app.RunRequest{
					Target:     name,
					ExportPath: app.ExportPathFor(exportPath, name, len(args) > 1),
				}
				// Interleaved progress from parallel runs is unreadable.
				if !quiet && parallel <= 1 {
					reqs[i].Progress = func(r *leakage.Report) {
						fmt.Fprintf(c.stderr, "%s: %s\n", r.Target, report.ProgressLine(r))
					}
				}
			}

			reports, runErr := svc.RunAll(ctx, reqs, parallel)
			finished := make([]*leakage.Report, 0, len(reports))
			for _, r := range reports {
				if r != nil {
					finished = append(finished, r)
				}
			}
			if len(finished) > 0 {
				if err := report.Write(c.stdout, out, finished); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			return exitFor(finished)
		},
	}

	params.register(cmd)
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for classes and inputs; 0 draws from crypto/rand")
	cmd.Flags().StringVar(&operandsFile, "operands", "div.txt", "Operand file read by the mulhi target")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write in-window ticks to this file (.xlsx for a workbook)")
	cmd.Flags().StringVar(&format, "format", "text", "Report format: text|json|markdown")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Targets measured concurrently")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the whole run after this long")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-round progress lines")
	return cmd
}

func newTargetsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the registered targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range app.NewRegistry().List() {
				kind := ""
				if t.Synthetic {
					kind = " (synthetic)"
				}
				fmt.Fprintf(c.stdout, "%-20s %s%s\n", t.Name, t.Description, kind)
			}
			return nil
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		target string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show verdicts stored in the ledger, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Ledger.Driver == "" {
				return errors.ConfigInvalid("history needs a ledger: set LEDGER_DRIVER or --ledger-driver")
			}
			out, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			l, closeLedger, err := ledger.Open(cmd.Context(), c.cfg.Ledger.Driver, c.cfg.Ledger.DSN)
			if err != nil {
				return err
			}
			defer closeLedger()

			reports, err := l.List(cmd.Context(), target, limit)
			if err != nil {
				return err
			}
			return report.Write(c.stdout, out, reports)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Only show verdicts for this target")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum verdicts to show")
	cmd.Flags().StringVar(&format, "format", "text", "Report format: text|json|markdown")
	return cmd
}

func newServeCmd(c *cli) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the detection HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.Server.Port = port
			}
			return httpapi.Serve(cmd.Context(), c.cfg, c.logger)
		},
	}

	cmd.Flags().StringVar(&port, "port", "8080", "Listen port (default from PORT)")
	return cmd
}

func newOperandsCmd(c *cli) *cobra.Command {
	var (
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "operands <file>",
		Short: "Generate an operand file for the mulhi target",
		Long: `Write random rows "m0 m1 n d q" where m0 and m1 are the 64- and 32-bit
reciprocals of d and q = n/d. The mulhi target consumes one row per trial.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.InvalidInput("--count must be positive")
			}
			ops, err := mulhi.GenerateOperands(generator.New(rng.New(seed)), count)
			if err != nil {
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", args[0])
			}
			if err := mulhi.WriteOperands(f, ops); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			c.logger.Info("wrote %d operand rows to %s", count, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1_500_000, "Rows to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed; 0 draws from crypto/rand")
	return cmd
}
