package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fitcoach/backend/config"
	"fitcoach/backend/internal/repository"
	"fitcoach/backend/internal/service"
	"fitcoach/backend/pkg/database"
	applogger "fitcoach/backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "FitCoach 运维命令行",
	Long:          "FitCoach 测验调度服务运维工具：执行物化扫描、数据库迁移、导出时间段历史、签发开发用 Token。",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tokenCmd)
}

// env 命令执行所需的公共依赖
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openEnv 加载配置并连接数据库
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) services() *service.Service {
	return service.NewService(e.cfg, repository.NewRepository(e.db), e.logger, service.SystemClock)
}

func (e *env) close() {
	if sqlDB, _ := e.db.DB(); sqlDB != nil {
		sqlDB.Close()
	}
	_ = e.logger.Sync()
}
