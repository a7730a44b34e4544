package handler

import (
	"net/http"

	"github.com/boddenberg/pockets-ledger-go/internal/domain"
	"github.com/boddenberg/pockets-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Sub-pocket Handlers
// ============================================================

func listSubPocketsHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pockets/{pocketId}/sub-pockets")
		defer span.End()

		schedules, err := svc.ListSubPockets(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, schedules)
	}
}

func monthlyFixedExpensesHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/pockets/{pocketId}/fixed-expenses/monthly")
		defer span.End()

		pocketID := chi.URLParam(r, "pocketId")
		total, err := svc.TotalMonthlyFixedExpenses(ctx, UserIDFromContext(ctx), pocketID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pocket_id":     pocketID,
			"total_monthly": total,
		})
	}
}

func createSubPocketHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sub-pockets")
		defer span.End()

		var req domain.CreateSubPocketRequest
		if !decodeBody(w, r, &req) {
			return
		}
		sp, err := svc.CreateSubPocket(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sp)
	}
}

func updateSubPocketHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/sub-pockets/{subPocketId}")
		defer span.End()

		var upd domain.SubPocketUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		sp, err := svc.UpdateSubPocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "subPocketId"), &upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func toggleSubPocketHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sub-pockets/{subPocketId}/toggle")
		defer span.End()

		sp, err := svc.ToggleSubPocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "subPocketId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func nextPaymentHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sub-pockets/{subPocketId}/next-payment")
		defer span.End()

		subPocketID := chi.URLParam(r, "subPocketId")
		due, err := svc.NextPaymentDue(ctx, UserIDFromContext(ctx), subPocketID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sub_pocket_id":    subPocketID,
			"next_payment_due": due,
		})
	}
}

func deleteSubPocketHandler(svc *service.SubPocketService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/sub-pockets/{subPocketId}")
		defer span.End()

		n, err := svc.DeleteSubPocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "subPocketId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.CountResponse{Message: "sub-pocket deleted", Count: n})
	}
}
