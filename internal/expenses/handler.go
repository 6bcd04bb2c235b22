package expenses

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler wires HTTP endpoints for expenses.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs expenses handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/totals", h.totals)
	r.Get("/{id}", h.get)
	r.Post("/{id}/repost", h.repost)
}

type expenseResponse struct {
	Expense
	VATAmount string `json:"vat_amount"`
	Total     string `json:"total"`
}

func (h *Handler) respond(e Expense) expenseResponse {
	mode := h.service.Rounding()
	return expenseResponse{
		Expense:   e,
		VATAmount: e.VATAmount(mode).StringFixed(2),
		Total:     e.TotalWithVAT(mode).StringFixed(2),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	from, to, err := httpx.DateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expenses, total, err := h.service.ListExpenses(r.Context(), ListFilter{
		Category: accounting.ExpenseCategory(strings.ToUpper(r.URL.Query().Get("category"))),
		From:     from,
		To:       to,
		Limit:    page.Limit(),
		Offset:   page.Offset(),
	})
	if err != nil {
		h.fail(w, "list expenses", err)
		return
	}
	items := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, h.respond(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var in RecordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	exp, err := h.service.RecordExpense(r.Context(), in)
	if err != nil && exp.ID == 0 {
		h.fail(w, "record expense", err)
		return
	}
	if err != nil {
		// stored but not posted; retried through /repost
		h.logger.Warn("expense stored without ledger entry", slog.Int64("expense_id", exp.ID), slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, h.respond(exp))
		return
	}
	httpx.JSON(w, http.StatusCreated, h.respond(exp))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	exp, err := h.service.GetExpense(r.Context(), id)
	if err != nil {
		h.fail(w, "get expense", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.respond(exp))
}

func (h *Handler) repost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RepostExpense(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "repost expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	from, to, err := httpx.DateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.TotalsByCategory(r.Context(), from, to)
	if err != nil {
		h.fail(w, "expense totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": totals})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
