package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
	"github.com/josh-kwaku/drug-budget-ledger/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	applied, err := repository.Migrate(cmd.Context(), e.db, migrations.FS)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintln(out, "applied", v)
	}
	return nil
}
