package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-crawler/internal/config"
	"github.com/Sternrassler/repo-crawler/pkg/store"
)

// Apply the embedded schema migrations.
func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.Requirements{Database: true}); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			st, err := store.Open(cmd.Context(), a.cfg.Database.URL, store.Options{MaxConns: a.cfg.Database.MaxConns})
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}

			cmd.Println("migrations applied")
			return nil
		},
	}
}
