package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitcoach/backend/internal/model"
	"fitcoach/backend/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		if err := database.Migrate(e.db, e.cfg.Database.Driver, e.logger, model.All()...); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "迁移完成")
		return nil
	},
}
