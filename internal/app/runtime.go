package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"stock_radar/internal/database"
	"stock_radar/internal/models"
	"stock_radar/internal/service"
)

// ErrClosed 运行时已关闭
var ErrClosed = errors.New("运行时已关闭")

// Info 本地库概况
type Info struct {
	Database string         `json:"database"`
	Daily    database.Stats `json:"daily"`
}

// Runtime 持有当前 App；同步、扫描、重置串行执行，重置时原子替换
type Runtime struct {
	mu      sync.Mutex
	current atomic.Pointer[App]
	build   func() (*App, error)
	logger  *zap.Logger
}

// NewRuntime 构建首个 App
func NewRuntime(build func() (*App, error), logger *zap.Logger) (*Runtime, error) {
	a, err := build()
	if err != nil {
		return nil, err
	}
	r := &Runtime{build: build, logger: logger}
	r.current.Store(a)
	return r, nil
}

// App 当前组合根
func (r *Runtime) App() (*App, error) {
	a := r.current.Load()
	if a == nil {
		return nil, ErrClosed
	}
	return a, nil
}

// Sync 增量同步
func (r *Runtime) Sync(ctx context.Context, lookbackDays int) (*service.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.App()
	if err != nil {
		return nil, err
	}
	return a.Syncer.Sync(ctx, lookbackDays)
}

// Scan 全量选股
func (r *Runtime) Scan(ctx context.Context) (*service.ScanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.App()
	if err != nil {
		return nil, err
	}
	return a.Screener.Scan(ctx)
}

// Diagnose 单只诊断，只读远程数据，不与同步互斥
func (r *Runtime) Diagnose(ctx context.Context, tsCode string) (*service.Diagnosis, error) {
	a, err := r.App()
	if err != nil {
		return nil, err
	}
	return a.Screener.Diagnose(ctx, tsCode)
}

// Info 本地库概况
func (r *Runtime) Info(ctx context.Context) (*Info, error) {
	a, err := r.App()
	if err != nil {
		return nil, err
	}
	stats, err := a.Store.DailyStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Info{Database: a.Config.Database.Type, Daily: stats}, nil
}

// Reset 删除全部行情表并重建组合根
func (r *Runtime) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, err := r.App()
	if err != nil {
		return err
	}
	if err := old.Store.Reset(ctx); err != nil {
		return err
	}

	fresh, err := r.build()
	if err != nil {
		return fmt.Errorf("重建失败: %w", err)
	}
	r.current.Store(fresh)

	if err := old.Close(); err != nil {
		r.logger.Warn("关闭旧数据库连接失败", zap.Error(err))
	}
	r.logger.Info("数据库已重置")
	return nil
}

// Close 关闭当前 App
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.current.Swap(nil)
	if a == nil {
		return nil
	}
	return a.Close()
}

// Stocks 本地股票基本信息，codes 为空返回全部
func (r *Runtime) Stocks(ctx context.Context, codes []string) ([]models.StockBasic, error) {
	a, err := r.App()
	if err != nil {
		return nil, err
	}
	return a.Store.QueryStockBasics(ctx, codes)
}

// DailyBars 本地日线查询（未复权）
func (r *Runtime) DailyBars(ctx context.Context, f database.QueryFilter) ([]models.DailyBar, error) {
	a, err := r.App()
	if err != nil {
		return nil, err
	}
	return a.Store.QueryDailyBars(ctx, f)
}
