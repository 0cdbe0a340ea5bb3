package main

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josh-kwaku/drug-budget-ledger/api"
	"github.com/josh-kwaku/drug-budget-ledger/internal/config"
	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/handler"
	"github.com/josh-kwaku/drug-budget-ledger/internal/metrics"
	"github.com/josh-kwaku/drug-budget-ledger/internal/middleware"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/approval"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/ledger"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/planning"
)

type app struct {
	cfg         *config.Config
	metrics     *metrics.Metrics
	idempotency *repository.IdempotencyRepository

	health *handler.HealthHandler
	auth   *handler.AuthHandler
	users  *handler.UserHandler
	budget *handler.BudgetHandler
	ledger *handler.LedgerHandler
}

func newApp(cfg *config.Config, db *sql.DB, m *metrics.Metrics) *app {
	accounts := repository.NewLedgerAccountRepository(db)
	txns := repository.NewLedgerTransactionRepository(db)
	requests := repository.NewBudgetRequestRepository(db)
	items := repository.NewBudgetItemRepository(db)
	events := repository.NewRequestEventRepository(db)
	master := repository.NewMasterDataRepository(db)
	users := repository.NewUserRepository(db)

	ledgerSvc := ledger.NewService(accounts, txns, db, cfg.LedgerLockTimeout, m)
	planningSvc := planning.NewService(requests, items, events, master, db)
	coordinator := approval.NewCoordinator(requests, items, events, accounts, db, cfg.LedgerLockTimeout)

	return &app{
		cfg:         cfg,
		metrics:     m,
		idempotency: repository.NewIdempotencyRepository(db),
		health:      handler.NewHealthHandler(db),
		auth:        handler.NewAuthHandler(users, cfg.JWTSecret, cfg.TokenExpiry),
		users:       handler.NewUserHandler(users),
		budget:      handler.NewBudgetHandler(planningSvc, coordinator),
		ledger:      handler.NewLedgerHandler(ledgerSvc),
	}
}

func (a *app) routes(reg *prometheus.Registry) http.Handler {
	var h http.Handler = a.mux(reg)
	h = middleware.Metrics(a.metrics)(h)
	h = middleware.Recovery(h)
	h = middleware.Logging(h)
	h = middleware.RequestID(h)
	return h
}

func (a *app) mux(reg *prometheus.Registry) *http.ServeMux {
	authed := middleware.Auth(a.cfg.JWTSecret)
	idempotent := middleware.Idempotency(a.idempotency, a.cfg.IdempotencyTTL)

	// guard authenticates and then restricts to roles.
	guard := func(h http.HandlerFunc, roles ...domain.Role) http.Handler {
		return authed(middleware.RequireRole(roles...)(h))
	}
	planners := []domain.Role{domain.RolePlanner, domain.RoleAdmin}
	purchasing := []domain.Role{domain.RolePurchasing, domain.RoleAdmin}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.health.Liveness)
	mux.HandleFunc("GET /health/ready", a.health.Readiness)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("GET /docs", handler.ServeDocs("/docs/openapi.yaml"))
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.OpenAPI))

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.Login)
	mux.Handle("GET /api/v1/me", authed(http.HandlerFunc(a.users.Me)))

	mux.Handle("POST /api/v1/budget-requests/drafts", guard(a.budget.GenerateDraft, planners...))
	mux.Handle("GET /api/v1/budget-requests/{id}", guard(a.budget.Get, planners...))
	mux.Handle("PATCH /api/v1/budget-requests/{id}/items/{itemID}", guard(a.budget.UpdateItem, planners...))
	mux.Handle("POST /api/v1/budget-requests/{id}/growth",
		authed(middleware.RequireRole(planners...)(idempotent(http.HandlerFunc(a.budget.ApplyGrowth)))))

	mux.Handle("POST /api/v1/budget-requests/{id}/submit", guard(a.budget.Submit, domain.RolePlanner))
	mux.Handle("POST /api/v1/budget-requests/{id}/approve", guard(a.budget.Approve, domain.RoleApprover))
	mux.Handle("POST /api/v1/budget-requests/{id}/reject", guard(a.budget.Reject, domain.RoleApprover))

	mux.Handle("POST /api/v1/ledger/check", guard(a.ledger.Check, purchasing...))
	mux.Handle("POST /api/v1/ledger/reserve", guard(a.ledger.Reserve, purchasing...))
	mux.Handle("POST /api/v1/ledger/commit", guard(a.ledger.Commit, purchasing...))
	mux.Handle("POST /api/v1/ledger/release", guard(a.ledger.Release, purchasing...))
	mux.Handle("GET /api/v1/ledger/accounts/{fiscalYear}/{lineItemID}", guard(a.ledger.GetAccount, purchasing...))
	mux.Handle("GET /api/v1/ledger/transactions", guard(a.ledger.ListTransactions, purchasing...))
	mux.Handle("POST /api/v1/ledger/accounts/{fiscalYear}/{lineItemID}/lock", guard(a.ledger.LockAccount, domain.RoleAdmin))
	mux.Handle("POST /api/v1/ledger/accounts/{fiscalYear}/{lineItemID}/unlock", guard(a.ledger.UnlockAccount, domain.RoleAdmin))

	return mux
}
