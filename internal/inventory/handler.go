package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/platform/httpx"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.listMaterials)
	r.Post("/materials", h.createMaterial)
	r.Route("/materials/{id}", func(r chi.Router) {
		r.Get("/", h.getMaterial)
		r.Post("/adjust", h.adjust)
		r.Post("/usage", h.usage)
		r.Get("/movements", h.movements)
	})
	r.Get("/movements", h.movements)
}

type adjustRequest struct {
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference"`
	OrderID   *int64          `json:"order_id"`
}

type usageRequest struct {
	OrderID  int64           `json:"order_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type adjustResponse struct {
	MovementID int64    `json:"movement_id"`
	Material   Material `json:"material"`
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	filter := MaterialFilter{
		BelowMinimum: r.URL.Query().Get("below_minimum") == "1",
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	}
	materials, total, err := h.service.ListMaterials(r.Context(), filter)
	if err != nil {
		h.fail(w, "list materials", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      materials,
		"pagination": shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var in CreateMaterialInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.ActorID = shared.ActorFromContext(r.Context())
	material, err := h.service.CreateMaterial(r.Context(), in)
	if err != nil {
		h.fail(w, "create material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.fail(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movementID, err := h.service.AdjustStock(r.Context(), AdjustStockInput{
		MaterialID: id,
		Delta:      req.Delta,
		Reason:     req.Reason,
		Reference:  req.Reference,
		OrderID:    req.OrderID,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.fail(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustResponse{MovementID: movementID, Material: material})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req usageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	usage, err := h.service.RecordUsage(r.Context(), UsageInput{
		OrderID:    req.OrderID,
		MaterialID: id,
		Quantity:   req.Quantity,
		ActorID:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "record usage", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, usage)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageRequest(r)
	filter := MovementFilter{Limit: page.Limit(), Offset: page.Offset()}
	if chi.URLParam(r, "id") != "" {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.MaterialID = id
	}
	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      movements,
		"pagination": shared.NewPagination(page.Page, page.Limit(), total),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
