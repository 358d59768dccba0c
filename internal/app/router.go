package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/ar"
	"github.com/battwheels/ledgercore/internal/creditnotes"
	"github.com/battwheels/ledgercore/internal/integration"
	"github.com/battwheels/ledgercore/internal/inventory"
	"github.com/battwheels/ledgercore/internal/observability"
	"github.com/battwheels/ledgercore/internal/platform/httpx"
	"github.com/battwheels/ledgercore/internal/shared"
	"github.com/battwheels/ledgercore/jobs"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Services   *Services
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	Checks     map[string]HealthCheck
}

// NewRouter constructs the chi.Router serving the ledger API.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Checks, logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	svc := params.Services
	if svc == nil {
		svc = &Services{}
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(shared.ScopeMiddleware)
		if svc.Accounts != nil {
			r.Route("/accounts", accounts.NewHandler(logger, svc.Accounts).MountRoutes)
		}
		if svc.Sequences != nil {
			r.Route("/sequences", sequences.NewHandler(logger, svc.Sequences).MountRoutes)
		}
		if svc.Journals != nil {
			r.Route("/journals", journals.NewHandler(logger, svc.Journals).MountRoutes)
		}
		if svc.Reports != nil {
			r.Route("/reports", reports.NewHandler(logger, svc.Reports).MountRoutes)
		}
		if svc.Invoices != nil {
			ar.NewHandler(logger, svc.Invoices).MountRoutes(r)
		}
		if svc.CreditNotes != nil {
			creditnotes.NewHandler(logger, svc.CreditNotes).MountRoutes(r)
		}
		if svc.Inventory != nil {
			inventory.NewHandler(logger, svc.Inventory).MountRoutes(r)
		}
		if svc.Hooks != nil {
			integration.NewHandler(logger, svc.Hooks).MountRoutes(r)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				result[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		body := map[string]any{"status": "ok", "checks": result}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httpx.JSON(w, status, body)
	}
}
