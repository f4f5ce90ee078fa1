package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "chanalysis/internal/errors"
	"chanalysis/internal/middleware"
	"chanalysis/internal/services"
)

// ReportService is what the report handler needs from services.ReportService
type ReportService interface {
	Latest() (*services.Report, error)
	Run(ctx context.Context, opts services.RunOptions) (*services.Report, error)
}

// ReportHandler serves the latest report and on-demand runs
type ReportHandler struct {
	service      ReportService
	validator    *middleware.QueryValidator
	runTimeout   time.Duration
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewReportHandler creates a report handler. runTimeout bounds POST /run (0 means none).
func NewReportHandler(service ReportService, runTimeout time.Duration, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *ReportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandler{
		service:      service,
		validator:    middleware.NewQueryValidator(),
		runTimeout:   runTimeout,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "report")),
	}
}

// Routes returns the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetLatest)
	r.Get("/text", h.GetText)
	r.Post("/run", h.Run)
	return r
}

// GetLatest handles GET /api/report
func (h *ReportHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Latest()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

// GetText handles GET /api/report/text
func (h *ReportHandler) GetText(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Latest()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.PlainText(w, r, report.Text)
}

// Run handles POST /api/report/run
func (h *ReportHandler) Run(w http.ResponseWriter, r *http.Request) {
	q, err := h.validator.BindRunQuery(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	h.logger.InfoContext(ctx, "report run requested",
		slog.Any("top_n", q.TopN),
		slog.Any("period", q.Period),
		slog.Int("symbols", len(q.Symbols)))

	report, err := h.service.Run(ctx, services.RunOptions{
		TopN:    q.TopN,
		Period:  q.Period,
		Symbols: q.Symbols,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}
