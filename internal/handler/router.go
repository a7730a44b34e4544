package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Every /v1 route except the price metrics snapshot requires a Supabase
// access token; its subject scopes all ledger reads and writes.
func NewRouter(ledger *service.Ledger, jwtSecret []byte, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(ledger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/prices", priceMetricsHandler(metrics))

		if ledger == nil || len(jwtSecret) == 0 {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "ledger unavailable: Supabase not configured")
			}))
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(jwtSecret, logger))

			// Accounts
			r.Get("/accounts", listAccountsHandler(ledger.Accounts, logger))
			r.Post("/accounts", createAccountHandler(ledger.Accounts, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(ledger.Accounts, logger))
			r.Patch("/accounts/{accountId}", updateAccountHandler(ledger.Accounts, logger))
			r.Delete("/accounts/{accountId}", deleteAccountHandler(ledger.Accounts, logger))
			r.Post("/accounts/{accountId}/valuation", valuationHandler(ledger.Accounts, ledger.Investments, logger))

			// Pockets
			r.Get("/accounts/{accountId}/pockets", listPocketsHandler(ledger.Accounts, logger))
			r.Post("/pockets", createPocketHandler(ledger.Accounts, logger))
			r.Patch("/pockets/{pocketId}", updatePocketHandler(ledger.Accounts, logger))
			r.Delete("/pockets/{pocketId}", deletePocketHandler(ledger.Accounts, logger))
			r.Post("/pockets/{pocketId}/migrate", migratePocketHandler(ledger.Accounts, logger))
			r.Post("/pockets/{pocketId}/recalculate", recalculatePocketHandler(ledger.Movements, logger))
			r.Get("/pockets/{pocketId}/movements", listPocketMovementsHandler(ledger.Movements, logger))

			// Sub-pockets
			r.Get("/pockets/{pocketId}/sub-pockets", listSubPocketsHandler(ledger.SubPockets, logger))
			r.Get("/pockets/{pocketId}/fixed-expenses/monthly", monthlyFixedExpensesHandler(ledger.SubPockets, logger))
			r.Post("/sub-pockets", createSubPocketHandler(ledger.SubPockets, logger))
			r.Patch("/sub-pockets/{subPocketId}", updateSubPocketHandler(ledger.SubPockets, logger))
			r.Post("/sub-pockets/{subPocketId}/toggle", toggleSubPocketHandler(ledger.SubPockets, logger))
			r.Get("/sub-pockets/{subPocketId}/next-payment", nextPaymentHandler(ledger.SubPockets, logger))
			r.Delete("/sub-pockets/{subPocketId}", deleteSubPocketHandler(ledger.SubPockets, logger))

			// Movements
			r.Get("/movements", listMovementsHandler(ledger.Movements, logger))
			r.Post("/movements", createMovementHandler(ledger.Movements, logger))
			r.Get("/movements/orphaned", listOrphanedHandler(ledger.Movements, logger))
			r.Get("/movements/orphaned/matches", matchOrphansHandler(ledger.Movements, logger))
			r.Post("/movements/orphaned/restore", restoreOrphansHandler(ledger.Movements, logger))
			r.Get("/movements/{movementId}", getMovementHandler(ledger.Movements, logger))
			r.Patch("/movements/{movementId}", updateMovementHandler(ledger.Movements, logger))
			r.Delete("/movements/{movementId}", deleteMovementHandler(ledger.Movements, logger))
			r.Post("/movements/{movementId}/apply", applyPendingHandler(ledger.Movements, logger))
			r.Post("/movements/{movementId}/pending", markPendingHandler(ledger.Movements, logger))

			// Read models
			r.Get("/summary", summaryHandler(ledger.Summary, logger))
			r.Get("/prices/{symbol}", priceHandler(ledger.Investments, logger))
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

func healthzHandler(ledger *service.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "pockets-api", Status: "healthy", LastChecked: now},
		}

		if ledger != nil {
			start := time.Now()
			_, err := ledger.Accounts.ListAccounts(r.Context(), "health-check")
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func priceMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPriceSnapshot())
	}
}
