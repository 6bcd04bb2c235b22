package contacts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler exposes contacts over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the contacts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers contact routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/payment-terms", h.listTerms)
	r.Post("/payment-terms", h.createTerm)
	r.Get("/{id}", h.get)
	r.Get("/{id}/account", h.account)
	r.Put("/{id}/account", h.setAccount)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	q := r.URL.Query()
	items, total, err := h.service.List(r.Context(), ListFilter{
		Role:   Role(q.Get("role")),
		Search: q.Get("q"),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	})
	if err != nil {
		h.fail(w, "list contacts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	contact, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create contact", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, contact)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contact, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get contact", err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) listTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.service.ListPaymentTerms(r.Context())
	if err != nil {
		h.fail(w, "list payment terms", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": terms})
}

func (h *Handler) createTerm(w http.ResponseWriter, r *http.Request) {
	var in PaymentTermInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	term, err := h.service.CreatePaymentTerm(r.Context(), in)
	if err != nil {
		h.fail(w, "create payment term", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, term)
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Account(r.Context(), id)
	if err != nil {
		h.fail(w, "get contact account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) setAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in AccountInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	account, err := h.service.SetAccount(r.Context(), id, in)
	if err != nil {
		h.fail(w, "set contact account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
