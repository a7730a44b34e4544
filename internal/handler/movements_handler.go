package handler

import (
	"net/http"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Movements Handlers
// ============================================================

func listMovementsHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/movements")
		defer span.End()

		movements, err := svc.ListActiveMovements(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, movements)
	}
}

func listPocketMovementsHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pockets/{pocketId}/movements")
		defer span.End()

		movements, err := svc.ListPocketMovements(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, movements)
	}
}

func createMovementHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/movements")
		defer span.End()

		var req domain.CreateMovementRequest
		if !decodeBody(w, r, &req) {
			return
		}
		span.SetAttributes(
			attribute.String("movement.type", string(req.Type)),
			attribute.Bool("movement.pending", req.IsPending),
		)

		m, err := svc.CreateMovement(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func getMovementHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/movements/{movementId}")
		defer span.End()

		m, err := svc.GetMovement(ctx, UserIDFromContext(ctx), chi.URLParam(r, "movementId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func updateMovementHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/movements/{movementId}")
		defer span.End()

		var upd domain.MovementUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		m, err := svc.UpdateMovement(ctx, UserIDFromContext(ctx), chi.URLParam(r, "movementId"), &upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func deleteMovementHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/movements/{movementId}")
		defer span.End()

		if err := svc.DeleteMovement(ctx, UserIDFromContext(ctx), chi.URLParam(r, "movementId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func applyPendingHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/movements/{movementId}/apply")
		defer span.End()

		m, err := svc.ApplyPendingMovement(ctx, UserIDFromContext(ctx), chi.URLParam(r, "movementId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func markPendingHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/movements/{movementId}/pending")
		defer span.End()

		m, err := svc.MarkAsPending(ctx, UserIDFromContext(ctx), chi.URLParam(r, "movementId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// ============================================================
// Orphaned movements
// ============================================================

func listOrphanedHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/movements/orphaned")
		defer span.End()

		movements, err := svc.ListOrphanedMovements(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, movements)
	}
}

// matchOrphansHandler answers ?account_name=&currency=[&pocket_name=].
func matchOrphansHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/movements/orphaned/matches")
		defer span.End()

		q := r.URL.Query()
		accountName, currency := q.Get("account_name"), q.Get("currency")
		if accountName == "" || currency == "" {
			writeError(w, http.StatusBadRequest, "account_name and currency are required")
			return
		}

		movements, err := svc.FindMatchingOrphanedMovements(ctx, UserIDFromContext(ctx), accountName, currency, q.Get("pocket_name"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, movements)
	}
}

func restoreOrphansHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/movements/orphaned/restore")
		defer span.End()

		var req domain.RestoreOrphansRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n, err := svc.RestoreOrphanedMovements(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.CountResponse{Message: "movements restored", Count: n})
	}
}

func recalculatePocketHandler(svc *service.MovementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pockets/{pocketId}/recalculate")
		defer span.End()

		pocket, err := svc.RecalculateBalancesForPocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pocket)
	}
}
