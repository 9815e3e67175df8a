package firms

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for firm master data.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a firms handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers firm routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listFirms)
	r.Get("/{id}/premises", h.listPremises)
}

func (h *Handler) listFirms(w http.ResponseWriter, r *http.Request) {
	firms, err := h.service.ListFirms(r.Context())
	if err != nil {
		h.logger.Error("list firms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"firms": firms})
}

func (h *Handler) listPremises(w http.ResponseWriter, r *http.Request) {
	firmID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || firmID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid firm id")
		return
	}
	if _, err := h.service.GetFirm(r.Context(), firmID); err != nil {
		if errors.Is(err, ErrFirmNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get firm", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	premises, err := h.service.ListPremises(r.Context(), firmID)
	if err != nil {
		h.logger.Error("list premises", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"premises": premises})
}
