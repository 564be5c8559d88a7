package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/platform/httpx"
)

// SettlementService defines the contract used by the handler.
type SettlementService interface {
	Submit(ctx context.Context, input SubmitInput) (Result, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
}

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger  *slog.Logger
	service SettlementService
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service SettlementService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleSubmit)
	r.Get("/{id}", h.handleGet)
}

type submitResponse struct {
	SaleID    uuid.UUID `json:"sale_id"`
	Total     string    `json:"total"`
	Duplicate bool      `json:"duplicate"`
	Sale      Sale      `json:"sale"`
}

type lineFailure struct {
	Line        int    `json:"line"`
	ProductCode string `json:"product_code"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail"`
	Requested   *int   `json:"requested,omitempty"`
	Available   *int   `json:"available,omitempty"`
}

type rejectedResponse struct {
	httpx.ProblemDetail
	Failures []lineFailure `json:"failures"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var input SubmitInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	result, err := h.service.Submit(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, submitResponse{
		SaleID:    result.Sale.ID,
		Total:     result.Sale.Total.StringFixed(2),
		Duplicate: result.Duplicate,
		Sale:      result.Sale,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sale id must be a UUID")
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		httpx.JSON(w, http.StatusUnprocessableEntity, rejectedResponse{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Sale Rejected",
				Status: http.StatusUnprocessableEntity,
				Detail: "one or more lines cannot be filled",
			},
			Failures: toFailures(rejected),
		})
		return
	case errors.Is(err, ErrInvalidSale):
		err = httpx.Mark(httpx.ErrValidation, err)
	case errors.Is(err, ErrNotFound):
		err = httpx.Mark(httpx.ErrNotFound, err)
	case errors.Is(err, inventory.ErrTransientStore):
		h.logger.Warn("sale deferred by store contention", slog.Any("error", err))
		err = httpx.Mark(httpx.ErrUnavailable, err)
	default:
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toFailures(rejected *RejectedError) []lineFailure {
	failures := make([]lineFailure, 0, len(rejected.Lines))
	for _, l := range rejected.Lines {
		f := lineFailure{Line: l.Position, ProductCode: l.ProductCode, Reason: l.Reason(), Detail: l.Err.Error()}
		var shortfall *inventory.InsufficientStockError
		if errors.As(l.Err, &shortfall) {
			f.Requested = &shortfall.Requested
			f.Available = &shortfall.Available
		}
		failures = append(failures, f)
	}
	return failures
}
