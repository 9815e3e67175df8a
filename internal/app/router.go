package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/observability"
	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
	"github.com/pampa-erp/pampa-erp/internal/reports"
	"github.com/pampa-erp/pampa-erp/internal/shared"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
	"github.com/pampa-erp/pampa-erp/internal/works"
	"github.com/pampa-erp/pampa-erp/jobs"
)

// RouterDeps aggregates the handlers and services mounted by the router.
type RouterDeps struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	FirmsHandler     *firms.Handler
	PeriodsHandler   *periods.Handler
	WorksHandler     *works.Handler
	ValuationHandler *valuation.Handler
	ReportsHandler   *reports.Handler
	AuditHandler     *audit.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter assembles the HTTP routing tree.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         deps.Logger,
		Config:         deps.Config,
		SessionManager: deps.SessionManager,
		CSRFManager:    deps.CSRFManager,
		Metrics:        deps.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		deps.AuthHandler.MountRoutes(r)
		r.Get("/csrf", func(w http.ResponseWriter, req *http.Request) {
			sess := shared.SessionFromContext(req.Context())
			token, err := deps.CSRFManager.EnsureToken(req.Context(), sess)
			if err != nil {
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
		})
	})

	requireAuth := auth.Middleware{Service: deps.AuthService, Logger: deps.Logger}

	r.Group(func(r chi.Router) {
		r.Use(requireAuth.RequirePrincipal)
		r.Route("/firms", deps.FirmsHandler.MountRoutes)
		r.Route("/periods", deps.PeriodsHandler.MountRoutes)
		r.Route("/works", deps.WorksHandler.MountRoutes)
		r.Route("/valuations", deps.ValuationHandler.MountRoutes)
		r.Route("/reports", deps.ReportsHandler.MountRoutes)
		r.Route("/audit", deps.AuditHandler.MountRoutes)
	})

	if deps.JobsHandler != nil {
		r.Route("/jobs", deps.JobsHandler.MountRoutes)
	}
	return r
}
