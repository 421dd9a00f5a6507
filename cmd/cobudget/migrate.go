package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phillip/cobudget-go/config"
	"github.com/phillip/cobudget-go/utils"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(root.store == "mongo"); err != nil {
				return err
			}
			utils.SetupLogger(cfg.Environment, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			st, err := openStore(ctx, cfg, root.store)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			if err := st.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			logrus.Info("Indexes are up to date")
			return nil
		},
	}
}
