package reports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/platform/httpx"
)

// ReportService defines the contract used by the handler.
type ReportService interface {
	LowStock(ctx context.Context) ([]LowStockRow, error)
	NearExpiry(ctx context.Context, days int) ([]NearExpiryRow, error)
	Drift(ctx context.Context) ([]DriftRow, error)
}

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service ReportService
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service ReportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/near-expiry", h.handleNearExpiry)
	r.Get("/drift", h.handleDrift)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	h.respond(w, r, rows, err)
}

func (h *Handler) handleNearExpiry(w http.ResponseWriter, r *http.Request) {
	days := DefaultNearExpiryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be a positive integer")
			return
		}
		days = v
	}
	rows, err := h.service.NearExpiry(r.Context(), days)
	h.respond(w, r, rows, err)
}

func (h *Handler) handleDrift(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Drift(r.Context())
	h.respond(w, r, rows, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, rows any, err error) {
	if err == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
		return
	}
	switch {
	case errors.Is(err, ErrInvalidWindow):
		err = httpx.Mark(httpx.ErrValidation, err)
	case errors.Is(err, inventory.ErrTransientStore):
		err = httpx.Mark(httpx.ErrUnavailable, err)
	default:
		h.logger.Error("report failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
