package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export", h.export)
}

type timelineResponse struct {
	Rows   []entryView `json:"rows"`
	Paging PagingInfo  `json:"paging"`
}

type entryView struct {
	ID          int64          `json:"id"`
	FirmID      int64          `json:"firm_id"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Module      string         `json:"module"`
	ActorID     int64          `json:"actor_id"`
	Reference   string         `json:"reference"`
	Meta        map[string]any `json:"meta,omitempty"`
	At          time.Time      `json:"at"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Rows: toViews(result.Rows), Paging: result.Paging})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Export(r.Context(), parseFilters(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": toViews(rows)})
}

func toViews(entries []Entry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			ID:          e.ID,
			FirmID:      e.FirmID,
			Type:        e.Type,
			Description: e.Description,
			Module:      e.Module,
			ActorID:     e.ActorID,
			Reference:   e.Reference,
			Meta:        e.Meta,
			At:          e.At,
		})
	}
	return views
}

func parseFilters(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	filters := TimelineFilters{
		Type:   strings.TrimSpace(q.Get("type")),
		Module: strings.TrimSpace(q.Get("module")),
	}
	if raw := q.Get("firm_id"); raw != "" {
		filters.FirmID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters
}
