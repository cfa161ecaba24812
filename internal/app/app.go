package app

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"stock_radar/internal/config"
	"stock_radar/internal/database"
	"stock_radar/internal/service"
)

// App 组合根：一次构建出的全部依赖，不使用包级全局变量
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Store    *database.Store
	Source   service.MarketData
	Syncer   *service.Syncer
	Screener *service.Screener

	logger *zap.Logger
}

// New 使用 Tushare 数据源构建
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewWithSource(cfg, service.NewTushareClient(&cfg.Tushare), logger)
}

// NewWithSource 使用指定数据源构建
func NewWithSource(cfg *config.Config, source service.MarketData, logger *zap.Logger) (*App, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	store := database.NewStore(db, cfg.Database.BatchSize)
	calendar := service.NewCalendarResolver(source)
	retry := service.NewRetryPolicy(&cfg.Sync, logger)
	ranker := service.NewSectorRanker(source, store, cfg.Strategy.SectorTopPct, logger)

	return &App{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Source:   source,
		Syncer:   service.NewSyncer(source, store, calendar, retry, &cfg.Sync, logger),
		Screener: service.NewScreener(source, store, ranker, calendar, retry, &cfg.Strategy, logger),
		logger:   logger,
	}, nil
}

// Close 释放数据库连接
func (a *App) Close() error {
	return database.Close(a.DB)
}
