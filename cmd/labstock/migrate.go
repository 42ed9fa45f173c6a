package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"labstock/internal/infra/persistence/sqlstore"
)

type sqlBacked interface {
	DB() *sql.DB
	Dialect() sqlstore.Dialect
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening the store already migrated it.
			backed, ok := a.svc.Store().(sqlBacked)
			if !ok {
				fmt.Fprintln(a.out, "in-memory store: nothing to migrate")
				return nil
			}
			version, err := sqlstore.SchemaVersion(cmd.Context(), backed.DB(), backed.Dialect())
			if err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "%s schema at version %d\n", backed.Dialect().Name, version)
			return nil
		},
	}
}
