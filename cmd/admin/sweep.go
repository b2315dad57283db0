package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fitcoach/backend/internal/scheduler"
	"fitcoach/backend/internal/service"
	"fitcoach/backend/pkg/redis"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "执行一次到期未来分配物化扫描",
	Long:  "供外部 cron 调用。配置了 Redis 时与服务进程共用扫描锁，锁被占用时直接退出。",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().String("at", "", "扫描基准时间（RFC3339，默认当前时间）")
	sweepCmd.Flags().Bool("no-lock", false, "不获取分布式锁")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	clock := service.SystemClock
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("--at 必须为 RFC3339 时间: %w", err)
		}
		clock = func() time.Time { return at.UTC() }
	}

	var locker scheduler.Locker
	if noLock, _ := cmd.Flags().GetBool("no-lock"); !noLock {
		rdb, err := redis.NewClient(&e.cfg.Redis, e.logger)
		if err != nil {
			e.logger.Warn("Redis 不可用，不加锁执行", zap.Error(err))
		} else {
			defer rdb.Close()
			locker = rdb
		}
	}

	sched := scheduler.New(&e.cfg.Scheduler, e.services().Materializer, locker, e.logger, clock)
	report, err := sched.RunOnce(cmd.Context())
	if errors.Is(err, scheduler.ErrLockHeld) {
		fmt.Fprintln(cmd.OutOrStdout(), "其他实例正在扫描，本次跳过")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"expired_periods=%d scanned=%d promoted=%d blocked=%d cancelled=%d lost_race=%d deferred=%d failed=%d duration=%s\n",
		report.ExpiredPeriods, report.Scanned, report.Promoted, report.Blocked,
		report.Cancelled, report.LostRace, report.Deferred, report.Failed, report.Duration)
	return nil
}
