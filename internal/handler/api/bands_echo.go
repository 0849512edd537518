package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"Floramigo/internal/domain/models"
	domrepo "Floramigo/internal/domain/repository"
	"Floramigo/internal/service/metrics"
	"Floramigo/internal/service/ratelimit"
	"Floramigo/internal/services/threshold"
	"Floramigo/internal/usecase"
	xhttp "Floramigo/pkg/http"
	xlogger "Floramigo/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthCheck checks one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

// BandsEchoHandler exposes the monitor state over HTTP and accepts
// readings pushed by clients that cannot reach Kafka or the sensor hub.
type BandsEchoHandler struct {
	logger *xlogger.Logger
	proc   *usecase.ReadingProcessor
	store  domrepo.EventStateStore
	rl     *ratelimit.Limiter
	checks map[string]HealthCheck
}

// NewBandsEchoHandler builds the handler. store and rl may be nil.
func NewBandsEchoHandler(
	logger *xlogger.Logger,
	proc *usecase.ReadingProcessor,
	store domrepo.EventStateStore,
	rl *ratelimit.Limiter,
) *BandsEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &BandsEchoHandler{
		logger: logger,
		proc:   proc,
		store:  store,
		rl:     rl,
		checks: make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a named dependency check for /health.
func (h *BandsEchoHandler) AddHealthCheck(name string, check HealthCheck) {
	if check != nil {
		h.checks[name] = check
	}
}

func (h *BandsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/signals/:name", h.Signal)
	g.POST("/readings", h.PostReadings)
	g.GET("/events/latest", h.LatestEvents)
}

func observe(endpoint string, start time.Time, failed *bool) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if *failed {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
	}
}

func (h *BandsEchoHandler) Signals(c echo.Context) error {
	failed := false
	defer observe("signals", time.Now(), &failed)

	res, err := h.proc.Statuses(c.Request().Context())
	if err != nil {
		failed = true
		h.logger.Warn("signals unavailable", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("monitor busy").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *BandsEchoHandler) Signal(c echo.Context) error {
	failed := false
	defer observe("signal", time.Now(), &failed)

	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed = true
		return xhttp.BadRequestResponse(c, verr)
	}
	res, ok, err := h.proc.Status(c.Request().Context(), req.Name)
	if err != nil {
		failed = true
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("monitor busy").WithError(err))
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal %q is not monitored", req.Name))
	}
	return xhttp.SuccessResponse(c, res)
}

// ReadingsResult reports the outcome of one pushed snapshot.
type ReadingsResult struct {
	Timestamp time.Time         `json:"ts"`
	Results   map[string]string `json:"results"`
	Errors    []string          `json:"errors,omitempty"`
}

func (h *BandsEchoHandler) PostReadings(c echo.Context) error {
	failed := false
	defer observe("readings", time.Now(), &failed)

	if h.rl != nil && !h.rl.Allow(c.RealIP()) {
		failed = true
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many readings, slow down"))
	}

	req := &models.ReadingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed = true
		return xhttp.BadRequestResponse(c, verr)
	}
	snap := &models.Snapshot{Timestamp: h.proc.Now(), Readings: req.Readings}
	if req.TS != nil {
		snap.Timestamp = *req.TS
	}

	results, err := h.proc.Process(c.Request().Context(), snap)
	if results == nil && err != nil {
		failed = true
		h.logger.Error("process readings", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("monitor unavailable").WithError(err))
	}

	out := ReadingsResult{
		Timestamp: snap.Timestamp,
		Results:   make(map[string]string, len(results)),
	}
	for name, kind := range results {
		if kind == threshold.None {
			out.Results[name] = "none"
			continue
		}
		out.Results[name] = string(kind)
	}
	for _, e := range flatten(err) {
		out.Errors = append(out.Errors, e.Error())
	}
	if len(out.Errors) > 0 {
		failed = true
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *BandsEchoHandler) LatestEvents(c echo.Context) error {
	failed := false
	defer observe("events_latest", time.Now(), &failed)

	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("event store is not configured"))
	}
	req := &models.LatestEventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed = true
		return xhttp.BadRequestResponse(c, verr)
	}

	signals := h.proc.Signals()
	if req.Signal != "" {
		if !contains(signals, req.Signal) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal %q is not monitored", req.Signal))
		}
		signals = []string{req.Signal}
	}

	ctx := c.Request().Context()
	events := make([]threshold.Event, 0, len(signals))
	for _, name := range signals {
		ev, err := h.store.Latest(ctx, name)
		if err != nil {
			failed = true
			h.logger.Error("load latest event", xlogger.String("signal", name), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("could not load events").WithError(err))
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })
	return xhttp.SuccessResponse(c, events)
}

func (h *BandsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{
		"signals":      len(h.proc.Signals()),
		"dependencies": deps,
	})
}

// flatten unpacks errors.Join trees into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
