package reports

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for report read models.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods/{id}/summary", h.periodSummary)
}

func (h *Handler) periodSummary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return
	}
	summary, err := h.service.PeriodSummary(r.Context(), id)
	if err != nil {
		if errors.Is(err, periods.ErrPeriodNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("period summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
