// Command budgetctl runs operator tasks against the ledger database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/drug-budget-ledger/internal/config"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/ledger"
)

var rootCmd = &cobra.Command{
	Use:           "budgetctl",
	Short:         "Operator tooling for the drug budget ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, an open pool and the ledger.
type env struct {
	cfg    *config.DB
	db     *sql.DB
	ledger *ledger.Service
}

func (e *env) Close() error { return e.db.Close() }

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadDB()
	if err != nil {
		return nil, err
	}
	logging.Init("budgetctl", cfg.LogLevel, cfg.AppEnv)

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.Pool())
	if err != nil {
		return nil, err
	}

	svc := ledger.NewService(
		repository.NewLedgerAccountRepository(db),
		repository.NewLedgerTransactionRepository(db),
		db, cfg.LedgerLockTimeout, nil,
	)
	return &env{cfg: cfg, db: db, ledger: svc}, nil
}
