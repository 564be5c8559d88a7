package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/pharmstock/internal/platform/httpx"
)

// CatalogService defines the contract used by the handler.
type CatalogService interface {
	RegisterProduct(ctx context.Context, input CreateProductInput) (Product, error)
	GetProduct(ctx context.Context, code string) (Product, error)
	ListLots(ctx context.Context, code string, includeEmpty bool) ([]Lot, error)
	PreviewPlan(ctx context.Context, code string, qty int) (Plan, error)
}

// Handler wires HTTP endpoints for the product catalog and lots.
type Handler struct {
	logger  *slog.Logger
	service CatalogService
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service CatalogService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes under /products.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRegister)
	r.Route("/{code}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/lots", h.handleLots)
		r.Get("/plan", h.handlePlan)
	})
}

type productResponse struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	UnitPrice    string    `json:"unit_price"`
	Stock        int       `json:"stock"`
	ReorderLevel int       `json:"reorder_level"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type lotResponse struct {
	ID             int64   `json:"id"`
	BatchNumber    string  `json:"batch_number"`
	Quantity       int     `json:"quantity"`
	Received       int     `json:"received"`
	ExpiresAt      *string `json:"expires_at"`
	SourceDocument string  `json:"source_document,omitempty"`
}

type planEntryResponse struct {
	LotID       int64   `json:"lot_id,omitempty"`
	BatchNumber string  `json:"batch_number,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
	Quantity    int     `json:"quantity"`
}

type planResponse struct {
	ProductCode string              `json:"product_code"`
	Requested   int                 `json:"requested"`
	Source      StockSourceKind     `json:"source"`
	Entries     []planEntryResponse `json:"entries"`
}

type shortfallResponse struct {
	httpx.ProblemDetail
	ProductCode string `json:"product_code"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.RegisterProduct(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	includeEmpty, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	lots, err := h.service.ListLots(r.Context(), chi.URLParam(r, "code"), includeEmpty)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]lotResponse, 0, len(lots))
	for _, lot := range lots {
		resp = append(resp, lotResponse{
			ID:             lot.ID,
			BatchNumber:    lot.BatchNumber,
			Quantity:       lot.Quantity,
			Received:       lot.Received,
			ExpiresAt:      FormatDate(lot.ExpiresAt),
			SourceDocument: lot.SourceDocument,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be an integer")
		return
	}
	plan, err := h.service.PreviewPlan(r.Context(), chi.URLParam(r, "code"), qty)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := planResponse{ProductCode: plan.ProductCode, Requested: plan.Requested, Source: plan.Source, Entries: []planEntryResponse{}}
	for _, e := range plan.Entries {
		resp.Entries = append(resp.Entries, planEntryResponse{
			LotID:       e.LotID,
			BatchNumber: e.BatchNumber,
			ExpiresAt:   FormatDate(e.ExpiresAt),
			Quantity:    e.Quantity,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var shortfall *InsufficientStockError
	switch {
	case errors.As(err, &shortfall):
		httpx.JSON(w, http.StatusUnprocessableEntity, shortfallResponse{
			ProblemDetail: httpx.ProblemDetail{Title: "Insufficient Stock", Status: http.StatusUnprocessableEntity, Detail: err.Error()},
			ProductCode:   shortfall.ProductCode,
			Requested:     shortfall.Requested,
			Available:     shortfall.Available,
		})
		return
	case errors.Is(err, ErrUnknownProduct):
		err = httpx.Mark(httpx.ErrNotFound, err)
	case errors.Is(err, ErrProductExists):
		err = httpx.Mark(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidProduct):
		err = httpx.Mark(httpx.ErrValidation, err)
	case errors.Is(err, ErrTransientStore):
		err = httpx.Mark(httpx.ErrUnavailable, err)
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		Code:         p.Code,
		Name:         p.Name,
		UnitPrice:    p.UnitPrice.StringFixed(2),
		Stock:        p.Stock,
		ReorderLevel: p.ReorderLevel,
		UpdatedAt:    p.UpdatedAt,
	}
}

// DateLayout is the calendar date format used for expiry dates.
const DateLayout = "2006-01-02"

// FormatDate renders an optional date; nil stays nil.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
