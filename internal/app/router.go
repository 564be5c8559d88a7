package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/pharmstock/internal/audit"
	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/observability"
	"github.com/odyssey-erp/pharmstock/internal/receiving"
	"github.com/odyssey-erp/pharmstock/internal/reports"
	"github.com/odyssey-erp/pharmstock/internal/sales"
	"github.com/odyssey-erp/pharmstock/jobs"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	DB               Pinger
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	ReceivingHandler *receiving.Handler
	ReportsHandler   *reports.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	apiKeyHash := ""
	if params.Config != nil {
		apiKeyHash = params.Config.APIKeyHash
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireAPIKey(apiKeyHash, params.Logger))
		if params.InventoryHandler != nil {
			r.Route("/products", params.InventoryHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.ReceivingHandler != nil {
			r.Route("/receiving", params.ReceivingHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountAdminRoutes)
		}
	})

	return r
}
