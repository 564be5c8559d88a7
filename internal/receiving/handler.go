package receiving

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

// ReceivingService defines the contract used by the handler.
type ReceivingService interface {
	Receive(ctx context.Context, input ReceiveInput) (Result, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
}

// Handler wires HTTP endpoints for purchase documents.
type Handler struct {
	logger  *slog.Logger
	service ReceivingService
}

// NewHandler constructs the receiving handler.
func NewHandler(logger *slog.Logger, service ReceivingService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleReceive)
	r.Get("/{id}", h.handleGet)
}

type failure struct {
	Line        int    `json:"line"`
	ProductCode string `json:"product_code"`
	Reason      string `json:"reason"`
}

type receiveResponse struct {
	DocumentID uuid.UUID `json:"document_id"`
	TotalCost  string    `json:"total_cost"`
	Payable    string    `json:"payable"`
	Lines      []Line    `json:"lines"`
	Failures   []failure `json:"failures"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := receiveResponse{
		DocumentID: result.Document.ID,
		TotalCost:  result.Document.TotalCost.StringFixed(2),
		Payable:    result.Document.Payable.StringFixed(2),
		Lines:      result.Document.Lines,
		Failures:   make([]failure, 0, len(result.Failures)),
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, failure{Line: f.Position, ProductCode: f.ProductCode, Reason: "unknown_product"})
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "document id must be a UUID")
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidDocument):
		err = httpx.Mark(httpx.ErrValidation, err)
	case errors.Is(err, ErrDuplicateDocument):
		err = httpx.Mark(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrNotFound):
		err = httpx.Mark(httpx.ErrNotFound, err)
	case errors.Is(err, inventory.ErrTransientStore):
		h.logger.Warn("receiving deferred by store contention", slog.Any("error", err))
		err = httpx.Mark(httpx.ErrUnavailable, err)
	default:
		h.logger.Error("receiving request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
