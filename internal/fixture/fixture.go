// Package fixture drives timed trials of a device and feeds the differenced
// ticks into the run's test variants.
package fixture

import (
	"context"
	"fmt"
	"time"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal"
	"ctleak/internal/decision"
	apperrors "ctleak/internal/errors"
	"ctleak/internal/generator"
	"ctleak/internal/metrics"
	"ctleak/internal/percentile"
	"ctleak/internal/profiling"
	"ctleak/internal/ttest"
	"ctleak/ports"
)

// Fixture measures one device. It is not safe for concurrent use; parallel
// runs each build their own fixture and device.
type Fixture struct {
	params   leakage.Params
	target   string
	runID    core.RunID
	device   ports.Device
	cycles   ports.CycleSource
	gen      *generator.Generator
	engine   *decision.Engine
	exporter ports.SampleExporter
	metrics  *metrics.Recorder
	logger   *internal.Logger
	progress func(*leakage.Report)
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithTarget names the device in reports, logs and metrics.
func WithTarget(name string) Option {
	return func(f *Fixture) { f.target = name }
}

// WithRunID fixes the ID of the next run instead of generating one.
func WithRunID(id core.RunID) Option {
	return func(f *Fixture) { f.runID = id }
}

// WithExporter receives every batch's in-window ticks.
func WithExporter(e ports.SampleExporter) Option {
	return func(f *Fixture) { f.exporter = e }
}

// WithMetrics records batch and run counters.
func WithMetrics(r *metrics.Recorder) Option {
	return func(f *Fixture) { f.metrics = r }
}

// WithLogger replaces the default logger.
func WithLogger(l *internal.Logger) Option {
	return func(f *Fixture) { f.logger = l }
}

// WithProgress is called with the report of every batch.
func WithProgress(fn func(*leakage.Report)) Option {
	return func(f *Fixture) { f.progress = fn }
}

// New validates params and checks the batch buffers fit the memory ceiling.
func New(params leakage.Params, device ports.Device, cycles ports.CycleSource, random ports.RandomSource, opts ...Option) (*Fixture, error) {
	if err := params.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "invalid detection parameters")
	}
	need, err := params.BatchBytes()
	if err != nil {
		return nil, apperrors.Wrap(err, "batch buffers cannot be sized")
	}
	if need > params.MaxBatchBytes {
		return nil, apperrors.Wrapf(core.ErrResourceExhausted,
			"batch buffers need %d bytes, ceiling is %d", need, params.MaxBatchBytes)
	}
	if device == nil || cycles == nil || random == nil {
		return nil, apperrors.InvalidInput("fixture needs a device, a cycle source and a random source")
	}

	f := &Fixture{
		params: params,
		target: "device",
		device: device,
		cycles: cycles,
		gen:    generator.New(random),
		engine: decision.New(params),
		logger: internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run is the state of one detection run. It owns the test variant set and
// the percentile table; both live exactly as long as the run.
type Run struct {
	ID        core.RunID
	Variants  *ttest.Variants
	Table     *percentile.Table
	StartedAt time.Time

	measured    int64
	wraparounds int64
	rounds      int
	batch       *batch
}

// Measured is the number of trials pushed into the uncropped variant.
func (r *Run) Measured() int64 { return r.measured }

// Wraparounds is the number of in-window trials discarded so far.
func (r *Run) Wraparounds() int64 { return r.wraparounds }

// Rounds is the number of completed batches.
func (r *Run) Rounds() int { return r.rounds }

// NewRun allocates a zeroed variant set and an empty percentile table.
func (f *Fixture) NewRun() *Run {
	id := f.runID
	if id == "" {
		id = core.NewRunID()
	}
	f.runID = ""
	return &Run{
		ID:        id,
		Variants:  ttest.NewVariants(f.params.NumberPercentiles),
		Table:     percentile.NewTable(f.params.NumberPercentiles),
		StartedAt: time.Now(),
		batch:     newBatch(f.params.NumberMeasurements, f.params.ChunkSize),
	}
}

// Detect runs the whole measurement budget, or stops early once the verdict
// is confidently leaking and early stop is enabled. Cancellation is only
// observed between batches.
func (f *Fixture) Detect(ctx context.Context) (*leakage.Report, error) {
	run := f.NewRun()
	rounds := f.params.Rounds()
	log := f.logger.WithFields(map[string]interface{}{
		"run_id": run.ID.String(),
		"target": f.target,
		"cycles": f.cycles.Name(),
	})
	log.Info("Testing %s: %d rounds of %d trials", f.target, rounds, f.params.NumberMeasurements)

	var report *leakage.Report
	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrapf(err, "run %s aborted after %d rounds", run.ID, run.rounds)
		}
		r, err := f.Step(run)
		if err != nil {
			log.Error("Batch %d failed: %v", i, err)
			return nil, err
		}
		report = r
		if f.params.EarlyStop && f.engine.Confident(report) {
			log.Info("Stopping early after %d rounds: max t %.2f", run.rounds, report.MaxT)
			break
		}
	}

	report.FinishedAt = time.Now()
	log.WithField("outcome", report.Outcome).Info("Finished %s: max t %.2f over %d traces", f.target, report.MaxT, report.Traces)
	f.metrics.Run(report)
	return report, nil
}

// Step measures one batch and returns the report for the run so far. A batch
// that fails is not applied to the run at all.
func (f *Fixture) Step(run *Run) (*leakage.Report, error) {
	b := run.batch
	if err := f.prepare(b); err != nil {
		return nil, err
	}
	if err := f.measure(b); err != nil {
		return nil, err
	}
	b.differentiate()

	if f.exporter != nil {
		if err := f.exporter.WriteBatch(run.rounds, b.window(f.params.DropSize)); err != nil {
			return nil, apperrors.Wrap(err, "export batch")
		}
	}
	if !run.Table.Computed() {
		if err := run.Table.Prepare(b.exec); err != nil {
			return nil, apperrors.Wrap(err, "compute percentiles")
		}
	}
	pushed, wrapped := f.updateStatistics(run, b)
	run.rounds++

	report := f.engine.Decide(run.Variants, run.Table)
	report.RunID = run.ID
	report.Target = f.target
	report.Measured = run.measured
	report.Wraparounds = run.wraparounds
	report.Rounds = run.rounds
	report.StartedAt = run.StartedAt

	f.metrics.Batch(f.target, pushed, wrapped, report.MaxT)
	if f.logger.Enabled(internal.LogLevelDebug) {
		if s, err := profiling.SummarizeTicks(b.window(f.params.DropSize)); err == nil {
			f.logger.Debug("%s batch %d: mean %.1f sd %.1f median %.0f p99 %.0f wrapped %d",
				f.target, run.rounds, s.Mean, s.StdDev, s.Median, s.P99, s.Wraparounds)
		}
	}
	if f.progress != nil {
		f.progress(&report)
	}
	return &report, nil
}

func (f *Fixture) prepare(b *batch) error {
	if err := f.gen.AssignClasses(b.classes); err != nil {
		return apperrors.Wrap(err, "assign classes")
	}
	if p, ok := f.device.(ports.InputPreparer); ok {
		if err := p.PrepareInputs(b.inputs, b.classes); err != nil {
			return apperrors.Wrap(err, "prepare operands")
		}
		return nil
	}
	if err := f.gen.FillInputs(b.inputs); err != nil {
		return apperrors.Wrap(err, "fill inputs")
	}
	return nil
}

// measure brackets nothing but Operate.
func (f *Fixture) measure(b *batch) error {
	dev, clock := f.device, f.cycles
	for i := range b.classes {
		if err := dev.Reset(); err != nil {
			return apperrors.DeviceFailure(f.target, fmt.Errorf("reset trial %d: %w", i, err))
		}
		b.before[i] = clock.Now()
		dev.Operate(b.inputs[i], b.classes[i])
		b.after[i] = clock.Now()
		if err := dev.Teardown(); err != nil {
			return apperrors.DeviceFailure(f.target, fmt.Errorf("teardown trial %d: %w", i, err))
		}
	}
	return nil
}

func (f *Fixture) updateStatistics(run *Run, b *batch) (pushed, wrapped int) {
	v := run.Variants
	uncropped := v.Uncropped()
	second := v.SecondOrder()
	k := run.Table.Len()
	floor := f.params.SecondOrderFloor

	for i := f.params.DropSize; i < len(b.exec)-f.params.DropSize; i++ {
		diff := b.exec[i]
		if diff < 0 {
			wrapped++
			continue
		}
		class := b.classes[i]
		x := float64(diff)

		uncropped.Push(x, class)
		for j := 0; j < k; j++ {
			if diff < run.Table.At(j) {
				v.Cropped(j).Push(x, class)
			}
		}
		if uncropped.Total() > floor {
			centered := x - uncropped.Mean(class)
			second.Push(centered*centered, class)
		}
		pushed++
	}
	run.measured += int64(pushed)
	run.wraparounds += int64(wrapped)
	return pushed, wrapped
}
