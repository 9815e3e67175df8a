package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
	"github.com/pampa-erp/pampa-erp/internal/shared"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
)

// Handler wires HTTP endpoints for the period lifecycle.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a periods handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.open)
	r.Get("/{id}", h.get)
	r.Get("/{id}/validate-close", h.validateClose)
	r.Post("/{id}/close", h.close)
	r.Post("/{id}/reopen", h.reopen)
	r.Get("/{id}/adjustments", h.listAdjustments)
	r.Post("/{id}/adjustments", h.recordAdjustment)
}

type openRequest struct {
	FirmID    int64  `json:"firm_id" validate:"required"`
	Name      string `json:"name"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Notes     string `json:"notes"`
}

type closeRequest struct {
	ValuationMethod string `json:"valuation_method"`
	Notes           string `json:"notes"`
}

type reopenRequest struct {
	Reason string `json:"reason"`
}

type adjustmentRequest struct {
	Type           string `json:"type" validate:"required"`
	Description    string `json:"description"`
	OldValue       string `json:"old_value"`
	NewValue       string `json:"new_value"`
	ReferenceTable string `json:"reference_table"`
	ReferenceID    int64  `json:"reference_id"`
}

type periodView struct {
	ID           int64  `json:"id"`
	FirmID       int64  `json:"firm_id"`
	Name         string `json:"name"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Status       Status `json:"status"`
	Locked       bool   `json:"is_locked"`
	Notes        string `json:"notes,omitempty"`
	ClosedNotes  string `json:"closed_notes,omitempty"`
	ReopenReason string `json:"reopen_reason,omitempty"`
}

func newPeriodView(p Period) periodView {
	return periodView{
		ID:           p.ID,
		FirmID:       p.FirmID,
		Name:         p.Name,
		StartDate:    p.StartDate.Format("2006-01-02"),
		EndDate:      p.EndDate.Format("2006-01-02"),
		Status:       p.Status,
		Locked:       p.Locked,
		Notes:        p.Notes,
		ClosedNotes:  p.ClosedNotes,
		ReopenReason: p.ReopenReason,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	firmID, err := strconv.ParseInt(r.URL.Query().Get("firm_id"), 10, 64)
	if err != nil || firmID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "firm_id required")
		return
	}
	principal := auth.PrincipalFromContext(r.Context())
	periods, err := h.service.ListByFirm(r.Context(), principal, firmID)
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	views := make([]periodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, newPeriodView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
		return
	}

	principal := auth.PrincipalFromContext(r.Context())
	period, err := h.service.Open(r.Context(), principal, OpenInput{
		FirmID:    req.FirmID,
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newPeriodView(period))
}

func (h *Handler) validateClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	reasons, err := h.service.ValidateClose(r.Context(), id)
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"can_close": len(reasons) == 0,
		"reasons":   reasons,
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
		return
	}
	principal := auth.PrincipalFromContext(r.Context())
	period, err := h.service.Close(r.Context(), principal, id, CloseInput{
		ValuationMethod: req.ValuationMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
		return
	}
	principal := auth.PrincipalFromContext(r.Context())
	period, err := h.service.Reopen(r.Context(), principal, id, ReopenInput{Reason: req.Reason})
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	adjustments, err := h.service.ListAdjustments(r.Context(), id)
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := auth.PrincipalFromContext(r.Context())
	adjustment, err := h.service.RecordAdjustment(r.Context(), principal, AdjustmentInput{
		PeriodID:       id,
		Type:           req.Type,
		Description:    req.Description,
		OldValue:       req.OldValue,
		NewValue:       req.NewValue,
		ReferenceTable: req.ReferenceTable,
		ReferenceID:    req.ReferenceID,
	})
	if err != nil {
		h.respondLifecycleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adjustment)
}

func (h *Handler) periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid period id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondLifecycleError(w http.ResponseWriter, err error) {
	var conflict *OpenConflictError
	var pending *PendingWorksError
	switch {
	case errors.Is(err, shared.ErrAuthRequired):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrFirmAccessDenied):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", conflict.Error())
	case errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrNotClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &pending):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Close Blocked", pending.Error())
	case errors.Is(err, ErrMissingReopenReason) || errors.Is(err, ErrMissingDescription) ||
		errors.Is(err, ErrInvalidRange) || errors.Is(err, valuation.ErrUnknownMethod):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("period lifecycle", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
