package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	models "SignalRelay/internal/domain/models"
	"SignalRelay/internal/usecase"
	xhttp "SignalRelay/pkg/http"
	xlogger "SignalRelay/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type alertIngest interface {
	Handle(ctx context.Context, payload []byte) (*models.IngestResponse, error)
	Preview(payload []byte, prefs models.Preferences) (*models.FilterPreviewResponse, error)
}

// HealthChecker is anything /healthz should ping.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type namedCheck struct {
	name  string
	check HealthChecker
}

// WebhookEchoHandler serves the TradingView webhook and its diagnostics.
type WebhookEchoHandler struct {
	logger  *xlogger.Logger
	ingest  alertIngest
	checks  []namedCheck
	limit   echo.MiddlewareFunc
	name    string
	version string
	now     func() time.Time
}

type WebhookOption func(*WebhookEchoHandler)

func WithHealthCheck(name string, c HealthChecker) WebhookOption {
	return func(h *WebhookEchoHandler) {
		if c != nil {
			h.checks = append(h.checks, namedCheck{name: name, check: c})
		}
	}
}

// WithWebhookLimit guards POST /webhook/tradingview with m.
func WithWebhookLimit(m echo.MiddlewareFunc) WebhookOption {
	return func(h *WebhookEchoHandler) { h.limit = m }
}

func WithBanner(name, version string) WebhookOption {
	return func(h *WebhookEchoHandler) { h.name, h.version = name, version }
}

func NewWebhookEchoHandler(logger *xlogger.Logger, ingest alertIngest, opts ...WebhookOption) *WebhookEchoHandler {
	h := &WebhookEchoHandler{
		logger:  logger,
		ingest:  ingest,
		name:    "SignalRelay",
		version: "dev",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WebhookEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Banner)
	e.GET("/healthz", h.Healthz)

	g := e.Group("/webhook")
	if h.limit != nil {
		g.POST("/tradingview", h.TradingView, h.limit)
	} else {
		g.POST("/tradingview", h.TradingView)
	}
	g.GET("/test", h.Test)

	e.POST("/api/filter/preview", h.Preview)
}

// TradingView acknowledges with 200 whenever the alert was decoded and dispatch was
// attempted, so the sender never retries a processed alert. A failed directory
// read is the one case reported as 503.
func (h *WebhookEchoHandler) TradingView(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("read webhook body failed", xlogger.Error(err))
		return xhttp.AppErrorStatusResponse(c, xhttp.BadRequestError("unreadable body").WithError(err))
	}

	// Fan-out continues if the sender hangs up before the response is written.
	res, err := h.ingest.Handle(context.WithoutCancel(c.Request().Context()), body)
	if err != nil {
		if errors.Is(err, usecase.ErrDirectoryUnavailable) {
			return xhttp.AppErrorStatusResponse(c, xhttp.ServiceUnavailableError("subscriber directory unavailable").WithError(err))
		}
		h.logger.Error("webhook ingest error", xlogger.Error(err))
		return xhttp.AppErrorStatusResponse(c, xhttp.InternalError("ingest failed").WithError(err))
	}

	if res.Status == models.AlertRejected {
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "ignored",
			"reason":   res.Reason,
			"alert_id": res.AlertID,
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *WebhookEchoHandler) Test(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "OK",
		"message":   "Webhook endpoint is working",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *WebhookEchoHandler) Banner(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"name":      h.name,
		"status":    "Running",
		"version":   h.version,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *WebhookEchoHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	out := make(map[string]string, len(h.checks))
	for _, nc := range h.checks {
		if err := nc.check.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			out[nc.name] = err.Error()
			continue
		}
		out[nc.name] = "ok"
	}
	return c.JSON(status, out)
}

func (h *WebhookEchoHandler) Preview(c echo.Context) error {
	req := &models.FilterPreviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.ingest.Preview([]byte(req.Payload), previewPreferences(req))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func previewPreferences(req *models.FilterPreviewRequest) models.Preferences {
	p := models.DefaultPreferences()
	flag := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}
	p.EnableBBullish = flag(req.EnableBBullish, true)
	p.EnableBBearish = flag(req.EnableBBearish, true)
	p.EnableABullish = flag(req.EnableABullish, true)
	p.EnableABearish = flag(req.EnableABearish, true)
	p.MinWinRatePct = decimal.NewFromFloat(req.MinWinRatePct)
	if req.MinEV != nil {
		p.MinExpectedValue = decimal.NewFromFloat(*req.MinEV)
	}
	p.MinSampleSize = req.MinSampleSize
	p.FilterMode = models.FilterMode(req.FilterMode)
	return p
}
