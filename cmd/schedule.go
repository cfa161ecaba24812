package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stock_radar/internal/app"
	"stock_radar/internal/config"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按 cron 定时同步与选股",
	Long: `按配置中的 cron 表达式（带秒）定时执行同步与选股。

默认：
  sync: 0 30 17 * * 1-5  (工作日 17:30)
  scan: 0 0 18 * * 1-5   (工作日 18:00)`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, logger, rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
		_ = logger.Sync()
	}()

	c, err := newScheduler(cfg, rt, logger)
	if err != nil {
		return err
	}
	c.Start()
	logger.Info("定时任务已启动",
		zap.String("sync_cron", cfg.Schedule.SyncCron),
		zap.String("scan_cron", cfg.Schedule.ScanCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 等待正在执行的任务结束
	<-c.Stop().Done()
	logger.Info("定时任务已停止")
	return nil
}

// newScheduler 注册同步与选股任务，同一任务未结束时跳过下一次触发
func newScheduler(cfg *config.Config, rt *app.Runtime, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if cfg.Schedule.SyncCron != "" {
		_, err := c.AddFunc(cfg.Schedule.SyncCron, func() {
			result, err := rt.Sync(context.Background(), 0)
			if err != nil {
				logger.Error("定时同步失败", zap.Error(err))
				return
			}
			logger.Info("定时同步完成",
				zap.Int("success", result.SuccessCount),
				zap.Int("failed", result.FailCount),
				zap.String("last_error", result.LastError))
		})
		if err != nil {
			return nil, fmt.Errorf("同步 cron 表达式错误: %w", err)
		}
	}

	if cfg.Schedule.ScanCron != "" {
		_, err := c.AddFunc(cfg.Schedule.ScanCron, func() {
			result, err := rt.Scan(context.Background())
			if err != nil {
				logger.Error("定时选股失败", zap.Error(err))
				return
			}
			codes := make([]string, 0, len(result.Candidates))
			for _, cand := range result.Candidates {
				codes = append(codes, cand.TSCode)
			}
			logger.Info("定时选股完成",
				zap.String("trade_date", result.TradeDate),
				zap.Strings("candidates", codes))
		})
		if err != nil {
			return nil, fmt.Errorf("选股 cron 表达式错误: %w", err)
		}
	}

	return c, nil
}
