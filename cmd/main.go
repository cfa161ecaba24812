package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stock_radar/internal/app"
	"stock_radar/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "stock_radar",
	Short: "A 股主线板块突破选股",
	Long: `基于 Tushare 数据的本地选股工具。

增量同步日线与资金流到本地数据库，
在涨幅居前的申万一级行业中筛选放量突破箱体、强于基准、主力持续流入的个股。

Example:
  stock_radar sync
  stock_radar scan
  stock_radar check 000001.SZ
  stock_radar serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./config/config.yaml", "配置文件路径")
}

func main() {
	// Ctrl+C 取消正在执行的同步/选股
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置、初始化日志并构建运行时
func bootstrap() (*config.Config, *zap.Logger, *app.Runtime, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.Info("配置加载成功", zap.String("database", cfg.Database.Type))

	rt, err := app.NewRuntime(func() (*app.App, error) {
		return app.New(cfg, logger)
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, rt, nil
}

// initLogger 初始化日志
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stdout"}

	if cfg.File != "" {
		// 创建日志目录
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	// 设置日志级别
	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapCfg.Build()
}
