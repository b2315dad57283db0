package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <user_id>",
	Short: "查看或导出用户时间段历史",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringP("out", "o", "", "导出为 xlsx 文件路径")
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	userID := args[0]
	svc := e.services().TimeFrame

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		data, _, err := svc.ExportHistory(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("写入导出文件失败: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已导出到 %s\n", out)
		return nil
	}

	periods, err := svc.GetHistory(cmd.Context(), userID)
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "暂无时间段记录")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD_ID\tSTART\tEND\tDURATION\tACTIVE\tSET_BY\tSET_AT")
	for _, p := range periods {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%t\t%s\t%s\n",
			p.PeriodID,
			p.StartDate.Format(time.RFC3339),
			p.EndDate().Format(time.RFC3339),
			p.Duration, p.DurationType,
			p.IsActive,
			p.SetBy,
			p.SetAt.Format(time.RFC3339),
		)
	}
	return w.Flush()
}
