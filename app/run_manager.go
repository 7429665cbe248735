package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal"
	"ctleak/internal/errors"
)

// ErrBusy is returned by Submit when every run slot is taken.
var ErrBusy = stderrors.New("all detection slots are busy")

// RunStatus is the lifecycle state of a submitted run
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// RunState is a snapshot of a submitted run.
type RunState struct {
	ID          core.RunID      `json:"run_id"`
	Target      string          `json:"target"`
	Status      RunStatus       `json:"status"`
	Error       string          `json:"error,omitempty"`
	Progress    *leakage.Report `json:"progress,omitempty"`
	Report      *leakage.Report `json:"report,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// RunManager runs detections in the background with bounded admission.
type RunManager struct {
	svc     *DetectionService
	slots   *semaphore.Weighted
	timeout time.Duration
	logger  *internal.Logger

	mu   sync.RWMutex
	runs map[core.RunID]*RunState
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunManager admits at most slots concurrent runs, each bounded by timeout
// when it is positive.
func NewRunManager(svc *DetectionService, slots int64, timeout time.Duration) *RunManager {
	if slots < 1 {
		slots = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		svc:     svc,
		slots:   semaphore.NewWeighted(slots),
		timeout: timeout,
		logger:  svc.logger,
		runs:    make(map[core.RunID]*RunState),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts req in the background and returns its initial state. It
// fails fast with ErrBusy instead of queueing behind a running detection.
func (m *RunManager) Submit(req RunRequest) (RunState, error) {
	if _, err := m.svc.registry.Get(req.Target); err != nil {
		return RunState{}, err
	}
	if req.Params != nil {
		if err := req.Params.Validate(); err != nil {
			return RunState{}, errors.Wrap(err, "invalid detection parameters")
		}
	}
	if !m.slots.TryAcquire(1) {
		return RunState{}, ErrBusy
	}

	if req.RunID == "" {
		req.RunID = core.NewRunID()
	}
	state := &RunState{
		ID:          req.RunID,
		Target:      req.Target,
		Status:      RunQueued,
		SubmittedAt: time.Now(),
	}
	req.Progress = func(r *leakage.Report) {
		m.mu.Lock()
		cp := *r
		state.Progress = &cp
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.runs[state.ID] = state
	snapshot := *state
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(req, state)
	return snapshot, nil
}

func (m *RunManager) execute(req RunRequest, state *RunState) {
	defer m.wg.Done()
	defer m.slots.Release(1)
	// a panicking device must fail its own run, not the process
	defer func() {
		if p := recover(); p != nil {
			err := errors.InternalError(fmt.Sprintf("run of %s panicked: %v", req.Target, p))
			m.logger.WithField("run_id", state.ID.String()).Error("%v", err)
			m.setStatus(state, RunFailed, nil, err)
		}
	}()

	ctx := m.ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.setStatus(state, RunRunning, nil, nil)
	report, err := m.svc.Run(ctx, req)
	if err != nil {
		m.logger.WithField("run_id", state.ID.String()).Error("Run of %s failed: %v", req.Target, err)
		m.setStatus(state, RunFailed, report, err)
		return
	}
	m.setStatus(state, RunDone, report, nil)
}

func (m *RunManager) setStatus(state *RunState, status RunStatus, report *leakage.Report, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Status = status
	if report != nil {
		state.Report = report
		state.Progress = nil
	}
	if err != nil {
		state.Error = err.Error()
	}
}

// Get returns the state of a run submitted to this manager.
func (m *RunManager) Get(id core.RunID) (RunState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	if !ok {
		return RunState{}, errors.Wrapf(core.ErrRunNotFound, "run %s", id)
	}
	return *state, nil
}

// List returns every submitted run, newest first.
func (m *RunManager) List() []RunState {
	m.mu.RLock()
	out := make([]RunState, 0, len(m.runs))
	for _, s := range m.runs {
		out = append(out, *s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Service returns the detection service behind the manager.
func (m *RunManager) Service() *DetectionService {
	return m.svc
}

// Wait blocks until every submitted run finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels running detections at their next batch boundary and waits.
func (m *RunManager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
