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
// Accounts Handlers
// ============================================================

func listAccountsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		accounts, err := svc.ListAccounts(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func createAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()

		var req domain.CreateAccountRequest
		if !decodeBody(w, r, &req) {
			return
		}
		account, err := svc.CreateAccount(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func getAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}")
		defer span.End()

		account, err := svc.GetAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

func updateAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/accounts/{accountId}")
		defer span.End()

		var upd domain.AccountUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		account, err := svc.UpdateAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"), &upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

// deleteAccountHandler orphans the account's movements unless
// ?delete_movements=true asks for a cascade.
func deleteAccountHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/accounts/{accountId}")
		defer span.End()

		opts := domain.DeleteOptions{DeleteMovements: boolQuery(r, "delete_movements")}
		span.SetAttributes(attribute.Bool("delete_movements", opts.DeleteMovements))

		result, err := svc.DeleteAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"), opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func valuationHandler(accounts *service.AccountService, investments *service.InvestmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/valuation")
		defer span.End()

		account, err := accounts.GetAccount(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		valuation, err := investments.UpdateInvestmentAccount(ctx, account)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, valuation)
	}
}

// ============================================================
// Pockets Handlers
// ============================================================

func listPocketsHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/pockets")
		defer span.End()

		pockets, err := svc.ListPockets(ctx, UserIDFromContext(ctx), chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pockets)
	}
}

func createPocketHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pockets")
		defer span.End()

		var req domain.CreatePocketRequest
		if !decodeBody(w, r, &req) {
			return
		}
		pocket, err := svc.CreatePocket(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, pocket)
	}
}

func updatePocketHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/pockets/{pocketId}")
		defer span.End()

		var upd domain.PocketUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		pocket, err := svc.UpdatePocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"), &upd)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, pocket)
	}
}

func deletePocketHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/pockets/{pocketId}")
		defer span.End()

		opts := domain.DeleteOptions{DeleteMovements: boolQuery(r, "delete_movements")}
		span.SetAttributes(attribute.Bool("delete_movements", opts.DeleteMovements))

		result, err := svc.DeletePocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"), opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func migratePocketHandler(svc *service.AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/pockets/{pocketId}/migrate")
		defer span.End()

		var req domain.MigratePocketRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n, err := svc.MigrateFixedPocket(ctx, UserIDFromContext(ctx), chi.URLParam(r, "pocketId"), req.TargetAccountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.CountResponse{Message: "pocket migrated", Count: n})
	}
}
