package works

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// Handler wires HTTP endpoints for work records.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a works handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers work record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/{id}/start", h.action(h.service.Start))
	r.Post("/{id}/approve", h.action(h.service.Approve))
	r.Post("/{id}/cancel", h.action(h.service.Cancel))
	r.Post("/{id}/close", h.action(h.service.CloseRecord))
}

type transitionFunc func(ctx context.Context, id, actorID int64) (Record, error)

type createRequest struct {
	PeriodID    int64  `json:"period_id" validate:"required"`
	PremiseID   int64  `json:"premise_id" validate:"required"`
	Kind        string `json:"kind" validate:"required,oneof=AGRICULTURAL LIVESTOCK"`
	Description string `json:"description" validate:"required"`
	WorkDate    string `json:"work_date" validate:"required"`
}

type recordView struct {
	ID          int64  `json:"id"`
	PeriodID    int64  `json:"period_id"`
	PremiseID   int64  `json:"premise_id"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`
	StatusLabel string `json:"status_label"`
	Description string `json:"description"`
	WorkDate    string `json:"work_date"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.ParseInt(r.URL.Query().Get("period_id"), 10, 64)
	if err != nil || periodID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "period_id required")
		return
	}
	records, err := h.service.ListByPeriod(r.Context(), periodID)
	if err != nil {
		h.logger.Error("list works", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	paging := shared.NewPagination(page, perPage, len(records))
	start := (paging.Page - 1) * paging.PerPage
	if start > len(records) {
		start = len(records)
	}
	end := start + paging.PerPage
	if end > len(records) {
		end = len(records)
	}

	views := make([]recordView, 0, end-start)
	for _, record := range records[start:end] {
		views = append(views, newRecordView(record))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"works": views,
		"pagination": map[string]int{
			"page":        paging.Page,
			"per_page":    paging.PerPage,
			"total":       paging.Total,
			"total_pages": paging.TotalPages,
		},
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	workDate, err := time.Parse("2006-01-02", req.WorkDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "work_date must be YYYY-MM-DD")
		return
	}
	principal := auth.PrincipalFromContext(r.Context())
	record, err := h.service.Create(r.Context(), CreateInput{
		PeriodID:    req.PeriodID,
		PremiseID:   req.PremiseID,
		Kind:        Kind(req.Kind),
		Description: strings.TrimSpace(req.Description),
		WorkDate:    workDate,
		ActorID:     principal.UserID,
	})
	if err != nil {
		h.logger.Warn("create work", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, newRecordView(record))
}

func (h *Handler) action(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id == 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid work record id")
			return
		}
		principal := auth.PrincipalFromContext(r.Context())
		record, err := fn(r.Context(), id, principal.UserID)
		if err != nil {
			switch {
			case errors.Is(err, ErrRecordNotFound):
				httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			case errors.Is(err, ErrInvalidTransition):
				httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			default:
				h.logger.Error("work transition", slog.Any("error", err))
				httpx.RespondError(w, err)
			}
			return
		}
		httpx.JSON(w, http.StatusOK, newRecordView(record))
	}
}

var statusTitler = cases.Title(language.English)

func newRecordView(record Record) recordView {
	return recordView{
		ID:          record.ID,
		PeriodID:    record.PeriodID,
		PremiseID:   record.PremiseID,
		Kind:        record.Kind,
		Status:      record.Status,
		StatusLabel: humanizeStatus(string(record.Status)),
		Description: record.Description,
		WorkDate:    record.WorkDate.Format("2006-01-02"),
	}
}

func humanizeStatus(value string) string {
	value = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", " ")
	if value == "" {
		return ""
	}
	return statusTitler.String(value)
}
