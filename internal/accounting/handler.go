package accounting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.handleAccounts)
	r.Get("/entries", h.handleEntries)
	r.Get("/entries/{id}", h.handleEntry)
}

type accountNode struct {
	Account
	Path []string `json:"path"`
}

func (h *Handler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.AccountTree(r.Context())
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	out := make([]accountNode, 0, len(accounts))
	for _, acc := range accounts {
		node := accountNode{Account: acc}
		for _, step := range tree.Path(acc.Code) {
			node.Path = append(node.Path, step.Code)
		}
		out = append(out, node)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	from, to, err := httpx.DateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, total, err := h.service.ListEntries(r.Context(), EntryFilter{
		SourceModule: r.URL.Query().Get("source_module"),
		From:         from,
		To:           to,
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	})
	if err != nil {
		h.fail(w, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      entries,
		"pagination": shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) handleEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
