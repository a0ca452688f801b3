package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sfcmove/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the carpool tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sqlDB, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := db.Migrate(cmd.Context(), sqlDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("carpool schema is up to date"))
			return nil
		},
	}
}
