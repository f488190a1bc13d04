package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
	"IgniteX/internal/service/ratelimit"
	"IgniteX/pkg/cache"
	xhttp "IgniteX/pkg/http"
	xlogger "IgniteX/pkg/logger"
)

// SignalReader is the lifecycle side of the API.
type SignalReader interface {
	ActiveSignals() []models.ApprovedSignal
	History(ctx context.Context, limit int) ([]models.SignalRecord, error)
	Stats() models.Stats
}

// Distributor renders tier views and quota state.
type Distributor interface {
	Views(tier models.Tier, signals []models.ApprovedSignal) []models.SignalView
	Feed(tier models.Tier, limit int) []models.FeedEntry
	Quota(ctx context.Context, tier models.Tier) (models.QuotaStatus, error)
}

// StrategyControl exposes strategy health and operator switches.
type StrategyControl interface {
	Snapshot() []models.StrategyHealth
	Disable(id string) error
	Enable(id string) error
}

// PerformanceReader returns aggregated outcome statistics.
type PerformanceReader interface {
	Snapshot() models.Performance
}

// HealthChecker reports readiness of one dependency.
type HealthChecker func(ctx context.Context) error

// SignalsHandler serves signal, quota and strategy queries.
type SignalsHandler struct {
	logger      *xlogger.Logger
	signals     SignalReader
	dist        Distributor
	strategies  StrategyControl
	performance PerformanceReader
	cache       cache.Service
	cacheTTL    time.Duration
	rl          *ratelimit.Limiter
	checks      map[string]HealthChecker
	now         func() time.Time
}

type Option func(*SignalsHandler)

// WithHistoryCache caches history responses for ttl.
func WithHistoryCache(c cache.Service, ttl time.Duration) Option {
	return func(h *SignalsHandler) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

// WithHealthCheck adds a dependency to /healthz.
func WithHealthCheck(name string, fn HealthChecker) Option {
	return func(h *SignalsHandler) { h.checks[name] = fn }
}

func NewSignalsHandler(logger *xlogger.Logger, signals SignalReader, dist Distributor, strategies StrategyControl, performance PerformanceReader, opts ...Option) *SignalsHandler {
	h := &SignalsHandler{
		logger:      logger,
		signals:     signals,
		dist:        dist,
		strategies:  strategies,
		performance: performance,
		cacheTTL:    5 * time.Second,
		rl:          ratelimit.New(),
		checks:      make(map[string]HealthChecker),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
	g := e.Group("/api")
	g.GET("/signals/active", h.Active)
	g.GET("/signals/history", h.History)
	g.GET("/stats", h.Stats)
	g.GET("/quota", h.Quota)
	g.GET("/feed", h.Feed)
	g.GET("/performance", h.Performance)
	g.GET("/strategies/health", h.StrategyHealth)
	g.POST("/strategies/:id/disable", h.DisableStrategy)
	g.POST("/strategies/:id/enable", h.EnableStrategy)
}

func readTier(c echo.Context) (models.Tier, interface{}) {
	req := &models.TierRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return "", verr
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		return "", []xhttp.ValidationError{{Code: "ERR_ONEOF", Field: "tier", Message: err.Error()}}
	}
	return tier, nil
}

// Active lists ACTIVE signals as the caller tier sees them.
func (h *SignalsHandler) Active(c echo.Context) error {
	tier, verr := readTier(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	views := h.dist.Views(tier, h.signals.ActiveSignals())
	return xhttp.ListResponse(c, views, int64(len(views)))
}

func (h *SignalsHandler) History(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":history", 10, 5) {
		h.logger.Warn("history rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c)
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := cache.GenerateKeyWithParams("history", req.Limit)
	recs, _, err := cache.GetOrLoad(c.Request().Context(), h.cache, key, h.cacheTTL,
		func(ctx context.Context) ([]models.SignalRecord, error) {
			recs, err := h.signals.History(ctx, req.Limit)
			if recs == nil && err == nil {
				recs = []models.SignalRecord{}
			}
			return recs, err
		})
	if err != nil {
		h.logger.Error("signal history failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *SignalsHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.signals.Stats())
}

func (h *SignalsHandler) Quota(c echo.Context) error {
	tier, verr := readTier(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.dist.Quota(c.Request().Context(), tier)
	if err != nil {
		if errors.Is(err, domrepo.ErrUnknownTier) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("tier %s not configured", tier))
		}
		h.logger.Error("quota status failed", xlogger.String("tier", string(tier)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("quota unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsHandler) Feed(c echo.Context) error {
	tier, verr := readTier(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	feed := h.dist.Feed(tier, 0)
	return xhttp.ListResponse(c, feed, int64(len(feed)))
}

func (h *SignalsHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.performance.Snapshot())
}

// strategyHealthView is keyed by strategy id in the response.
type strategyHealthView struct {
	Healthy           bool    `json:"healthy"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	Disabled          bool    `json:"disabled"`
	Weight            float64 `json:"weight"`
	RollingWinRate    float64 `json:"rolling_win_rate"`
	LastError         string  `json:"last_error,omitempty"`
}

func (h *SignalsHandler) StrategyHealth(c echo.Context) error {
	snap := h.strategies.Snapshot()
	out := make(map[string]strategyHealthView, len(snap))
	for _, s := range snap {
		out[s.StrategyID] = strategyHealthView{
			Healthy:           s.Healthy,
			ConsecutiveErrors: s.ConsecutiveErrors,
			Disabled:          s.Disabled,
			Weight:            s.Weight,
			RollingWinRate:    s.RollingWinRate,
			LastError:         s.LastError,
		}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *SignalsHandler) DisableStrategy(c echo.Context) error {
	return h.toggle(c, h.strategies.Disable, "disabled")
}

func (h *SignalsHandler) EnableStrategy(c echo.Context) error {
	return h.toggle(c, h.strategies.Enable, "enabled")
}

func (h *SignalsHandler) toggle(c echo.Context, fn func(string) error, verb string) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := fn(req.ID); err != nil {
		if errors.Is(err, domrepo.ErrUnknownStrategy) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("strategy %s not found", req.ID))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("strategy update failed").WithError(err))
	}
	h.logger.Info("strategy "+verb+" by operator", xlogger.String("strategy", req.ID), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, map[string]string{"id": req.ID, "state": verb})
}

// Healthz runs every registered check with a short deadline.
func (h *SignalsHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	status := make(map[string]string, len(h.checks))
	failed := make([]string, 0)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		status[name] = "ok"
	}
	if len(failed) > 0 {
		h.logger.Warn("health check failed", xlogger.String("checks", strings.Join(failed, ",")))
		return xhttp.ServiceUnavailableResponse(c, status)
	}
	return xhttp.SuccessResponse(c, status)
}
