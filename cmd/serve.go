package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stock_radar/internal/api"
)

var serveWithSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	Long: `启动 HTTP 服务，提供同步、选股、诊断、概况与重置接口。

Example:
  stock_radar serve
  stock_radar serve --schedule`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithSchedule, "schedule", false, "同时启动定时任务")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.Close()
		_ = logger.Sync()
	}()

	if serveWithSchedule {
		c, err := newScheduler(cfg, rt, logger)
		if err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()
	api.NewHandler(rt, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("服务器启动失败", zap.Error(err))
		return err
	}

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", zap.Error(err))
		return err
	}

	logger.Info("服务器已关闭")
	return nil
}
