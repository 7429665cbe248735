// Package httpapi exposes detection runs over HTTP.
package httpapi

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"

	"ctleak/adapters/report"
	"ctleak/app"
	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal"
	"ctleak/internal/errors"
)

// Server represents the detection HTTP service
type Server struct {
	router   *gin.Engine
	manager  *app.RunManager
	gatherer prometheus.Gatherer
	logger   *internal.Logger
}

// NewServer builds the router. gatherer backs GET /metrics.
func NewServer(manager *app.RunManager, gatherer prometheus.Gatherer, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:   gin.New(),
		manager:  manager,
		gatherer: gatherer,
		logger:   logger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/targets", s.handleTargets)
	s.router.POST("/runs", s.handleSubmit)
	s.router.GET("/runs", s.handleListRuns)
	s.router.GET("/runs/:id", s.handleGetRun)
	s.router.GET("/runs/:id/report", s.handleRunReport)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Handler returns the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then drains for up to ten seconds.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting ctleak API on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.manager.Shutdown()
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.manager.Service().Registry().List()})
}

func (s *Server) handleSubmit(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.fail(c, errors.InvalidInput("failed to read request body"))
		return
	}
	req, err := parseRunRequest(body, s.manager.Service().DefaultParams())
	if err != nil {
		s.fail(c, err)
		return
	}
	state, err := s.manager.Submit(req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Location", "/runs/"+state.ID.String())
	c.JSON(http.StatusAccepted, state)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		s.fail(c, errors.InvalidInput("limit must be a positive integer"))
		return
	}
	target := c.Query("target")

	completed := []*leakage.Report{}
	if ledger := s.manager.Service().Ledger(); ledger != nil {
		completed, err = ledger.List(c.Request.Context(), target, limit)
		if err != nil {
			s.fail(c, err)
			return
		}
	}
	active := []app.RunState{}
	for _, st := range s.manager.List() {
		if st.Status != app.RunQueued && st.Status != app.RunRunning {
			continue
		}
		if target == "" || st.Target == target {
			active = append(active, st)
		}
	}
	c.JSON(http.StatusOK, gin.H{"active": active, "completed": completed})
}

// lookup finds a run in the manager, falling back to the ledger for runs
// finished before this process started.
func (s *Server) lookup(c *gin.Context) (app.RunState, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, errors.InvalidInput(err.Error()))
		return app.RunState{}, false
	}
	if state, err := s.manager.Get(id); err == nil {
		return state, true
	}
	ledger := s.manager.Service().Ledger()
	if ledger == nil {
		s.fail(c, errors.Wrapf(core.ErrRunNotFound, "run %s", id))
		return app.RunState{}, false
	}
	r, err := ledger.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return app.RunState{}, false
	}
	return app.RunState{ID: id, Target: r.Target, Status: app.RunDone, Report: r, SubmittedAt: r.StartedAt}, true
}

func (s *Server) handleGetRun(c *gin.Context) {
	state, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleRunReport(c *gin.Context) {
	state, ok := s.lookup(c)
	if !ok {
		return
	}
	if state.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "run has no report yet", "status": state.Status})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(state.Report))
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}

func statusFor(err error) int {
	if stderrors.Is(err, app.ErrBusy) {
		return http.StatusTooManyRequests
	}
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConfigInvalid, errors.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseRunRequest reads {"target": ..., "seed": ..., "params": {...}}. Only
// the params present in the body override the service defaults.
func parseRunRequest(body []byte, defaults leakage.Params) (app.RunRequest, error) {
	if !gjson.ValidBytes(body) {
		return app.RunRequest{}, errors.InvalidInput("request body must be JSON")
	}
	doc := gjson.ParseBytes(body)
	target := doc.Get("target").String()
	if target == "" {
		return app.RunRequest{}, errors.InvalidInput("target is required")
	}
	req := app.RunRequest{Target: target, Seed: doc.Get("seed").Uint()}

	params := doc.Get("params")
	if !params.Exists() {
		return req, nil
	}
	if !params.IsObject() {
		return app.RunRequest{}, errors.InvalidInput("params must be an object")
	}
	p := defaults
	ints := map[string]*int{
		"number_measurements": &p.NumberMeasurements,
		"drop_size":           &p.DropSize,
		"chunk_size":          &p.ChunkSize,
		"number_percentiles":  &p.NumberPercentiles,
		"total_measurements":  &p.TotalMeasurements,
	}
	for key, dst := range ints {
		if v := params.Get(key); v.Exists() {
			*dst = int(v.Int())
		}
	}
	int64s := map[string]*int64{
		"enough_measurements": &p.EnoughMeasurements,
		"second_order_floor":  &p.SecondOrderFloor,
		"max_batch_bytes":     &p.MaxBatchBytes,
	}
	for key, dst := range int64s {
		if v := params.Get(key); v.Exists() {
			*dst = v.Int()
		}
	}
	if v := params.Get("t_moderate"); v.Exists() {
		p.TModerate = v.Float()
	}
	if v := params.Get("t_bananas"); v.Exists() {
		p.TBananas = v.Float()
	}
	if v := params.Get("early_stop"); v.Exists() {
		p.EarlyStop = v.Bool()
	}
	req.Params = &p
	return req, nil
}
