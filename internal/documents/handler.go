package documents

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler exposes documents over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer RecomputeEnqueuer
}

// RecomputeEnqueuer schedules a background totals recompute.
type RecomputeEnqueuer interface {
	EnqueueRecompute(ctx context.Context, documentID int64) error
}

// NewHandler constructs the documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// WithEnqueuer enables ?async=1 on the recompute endpoint.
func (h *Handler) WithEnqueuer(e RecomputeEnqueuer) *Handler {
	h.enqueuer = e
	return h
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/totals", h.totals)
		r.Post("/recompute", h.recompute)
		r.Put("/rates", h.updateRates)
		r.Post("/transition", h.transition)
		r.Post("/convert", h.convert)
		r.Post("/issue", h.issue)
		r.Post("/repost", h.repost)
		r.Post("/lines", h.addLine)
		r.Put("/lines/{lineID}", h.updateLine)
		r.Delete("/lines/{lineID}", h.deleteLine)
	})
}

type listResponse struct {
	Items      []Document        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type lineResponse struct {
	Line   LineItem `json:"line"`
	Totals Totals   `json:"totals"`
}

type transitionRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	q := r.URL.Query()
	filter := ListFilter{
		Kind:   Kind(q.Get("kind")),
		Status: Status(q.Get("status")),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	if raw := q.Get("contact_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid contact_id")
			return
		}
		filter.ContactID = id
	}
	docs, total, err := h.service.ListDocuments(r.Context(), filter)
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Items:      docs,
		Pagination: shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	doc, err := h.service.CreateDocument(r.Context(), in)
	if err != nil {
		h.fail(w, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.Totals(r.Context(), id)
	if err != nil {
		h.fail(w, "document totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer != nil && r.URL.Query().Get("async") == "1" {
		if err := h.enqueuer.EnqueueRecompute(r.Context(), id); err != nil {
			h.fail(w, "enqueue recompute", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"document_id": id, "queued": true})
		return
	}
	totals, err := h.service.RecomputeTotals(r.Context(), id)
	if err != nil {
		h.fail(w, "recompute document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) updateRates(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RatesInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.UpdateRates(r.Context(), id, in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update rates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Transition(r.Context(), id, req.Status, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "transition document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orderID, err := h.service.ConvertBudgetToOrder(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "convert budget", err)
		return
	}
	order, err := h.service.GetDocument(r.Context(), orderID)
	if err != nil {
		h.fail(w, "get converted order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.IssueInvoice(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil && doc.ID == 0 {
		h.fail(w, "issue invoice", err)
		return
	}
	if err != nil {
		// issued but not posted; the ledger can be retried through /repost
		h.logger.Warn("invoice issued without ledger entry", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.JSON(w, http.StatusAccepted, doc)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) repost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RepostInvoice(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "post invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in LineInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, totals, err := h.service.AddLine(r.Context(), id, in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "add line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lineResponse{Line: line, Totals: totals})
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.IDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in LineInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, totals, err := h.service.UpdateLine(r.Context(), id, lineID, in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lineResponse{Line: line, Totals: totals})
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.IDParam(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.DeleteLine(r.Context(), id, lineID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "delete line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
