package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/contacts"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/expenses"
	"github.com/rvgrafica/rvgrafica-erp/internal/finance"
	"github.com/rvgrafica/rvgrafica-erp/internal/inventory"
	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	ContactsHandler   *contacts.Handler
	DocumentsHandler  *documents.Handler
	FinanceHandler    *finance.Handler
	ExpensesHandler   *expenses.Handler
	InventoryHandler  *inventory.Handler
	AccountingHandler *accounting.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	// Ready reports whether backing stores respond; nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with the shop defaults.
func NewRouter(params RouterParams) http.Handler {
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
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.ContactsHandler != nil {
		r.Route("/contacts", params.ContactsHandler.MountRoutes)
	}
	if params.DocumentsHandler != nil {
		r.Route("/documents", params.DocumentsHandler.MountRoutes)
	}
	if params.FinanceHandler != nil {
		r.Route("/finance", params.FinanceHandler.MountRoutes)
	}
	if params.ExpensesHandler != nil {
		r.Route("/expenses", params.ExpensesHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.AccountingHandler != nil {
		r.Route("/accounting", params.AccountingHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
