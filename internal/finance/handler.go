package finance

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler wires HTTP endpoints for collections and payments.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs finance handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.list)
	r.Post("/movements", h.record)
	r.Get("/movements/{id}", h.get)
	r.Post("/movements/{id}/repost", h.repost)
	r.Get("/contacts/{id}/balance", h.balance)
}

type movementResponse struct {
	Movement
	SignedAmount string `json:"signed_amount"`
}

func respondMovement(m Movement) movementResponse {
	return movementResponse{Movement: m, SignedAmount: m.SignedAmount().StringFixed(2)}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	from, to, err := httpx.DateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{
		Kind:   Kind(strings.ToUpper(r.URL.Query().Get("kind"))),
		From:   from,
		To:     to,
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	if raw := r.URL.Query().Get("contact_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid contact_id %q: %w", raw, shared.ErrValidation))
			return
		}
		filter.ContactID = id
	}
	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list finance movements", err)
		return
	}
	items := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		items = append(items, respondMovement(m))
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
	mv, err := h.service.RecordMovement(r.Context(), in)
	if err != nil && mv.ID == 0 {
		h.fail(w, "record finance movement", err)
		return
	}
	if err != nil {
		// stored but not posted; retried through /repost
		h.logger.Warn("finance movement stored without ledger entry", slog.Int64("movement_id", mv.ID), slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, respondMovement(mv))
		return
	}
	httpx.JSON(w, http.StatusCreated, respondMovement(mv))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.GetMovement(r.Context(), id)
	if err != nil {
		h.fail(w, "get finance movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, respondMovement(mv))
}

func (h *Handler) repost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RepostMovement(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "repost finance movement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.ContactBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "contact balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contact_id": id, "balance": balance.StringFixed(2)})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
