package valuation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// Handler wires HTTP endpoints for valuation runs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	idem     *shared.IdempotencyStore
	validate *validator.Validate
}

// NewHandler constructs a valuation handler. The idempotency store may be nil;
// the unique index on run records still rejects duplicates.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, validate: validator.New()}
}

// MountRoutes registers valuation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/livestock", h.run((*Service).ValuateLivestock))
	r.Post("/inputs", h.run((*Service).ValuateInputs))
}

type runRequest struct {
	PremiseID   int64  `json:"premise_id" validate:"required"`
	PeriodID    int64  `json:"period_id"`
	Date        string `json:"date" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=INITIAL FINAL"`
	Method      string `json:"method" validate:"required,oneof=weighted_avg historical market mixed"`
	PriceSource string `json:"price_source"`
	Notes       string `json:"notes"`
}

func (h *Handler) run(fn func(*Service, context.Context, auth.Principal, RunInput) (Record, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}

		idemKey := r.Header.Get("Idempotency-Key")
		if h.idem != nil && idemKey != "" {
			if err := h.idem.CheckAndInsert(r.Context(), idemKey, "valuation"); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
					return
				}
				httpx.RespondError(w, err)
				return
			}
		}

		principal := auth.PrincipalFromContext(r.Context())
		record, err := fn(h.service, r.Context(), principal, RunInput{
			PremiseID:   req.PremiseID,
			PeriodID:    req.PeriodID,
			Date:        date,
			Type:        Type(req.Type),
			Method:      Method(req.Method),
			PriceSource: req.PriceSource,
			Notes:       req.Notes,
		})
		if err != nil {
			if h.idem != nil && idemKey != "" {
				if delErr := h.idem.Delete(r.Context(), idemKey); delErr != nil {
					h.logger.Warn("release idempotency key", slog.Any("error", delErr))
				}
			}
			h.respondRunError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, record)
	}
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var runErr *RunError
	switch {
	case errors.Is(err, ErrUnknownMethod) || errors.Is(err, ErrUnknownType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateRun):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, firms.ErrPremiseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &runErr):
		h.logger.Error("valuation run", slog.String("code", runErr.Code), slog.Any("error", runErr.Err))
		httpx.Problem(w, http.StatusInternalServerError, runErr.Code, "valuation run failed")
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil || periodID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "period_id required")
		return
	}
	records, err := h.service.ListByPeriod(r.Context(), periodID)
	if err != nil {
		h.logger.Error("list valuations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"valuations": records})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid valuation id")
		return
	}
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}
