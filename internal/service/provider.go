package service

import (
	"context"
	"errors"

	"stock_radar/internal/models"
)

var (
	// ErrCalendarUnavailable 交易日历不可用，本次同步中止
	ErrCalendarUnavailable = errors.New("交易日历不可用")
	// ErrFetchFailed 远程拉取失败（重试耗尽）
	ErrFetchFailed = errors.New("数据拉取失败")
	// ErrProfileRefreshFailed 股票基本信息刷新失败，仅记录日志
	ErrProfileRefreshFailed = errors.New("股票基本信息刷新失败")
)

// MarketData 行情数据源
type MarketData interface {
	GetTradeCal(ctx context.Context, startDate, endDate string, isOpen int) ([]TradeCal, error)
	GetDailyBars(ctx context.Context, tradeDate string) ([]models.DailyBar, error)
	GetAdjustedDaily(ctx context.Context, tsCode, startDate, endDate string) ([]models.DailyBar, error)
	GetMoneyFlowByDate(ctx context.Context, tradeDate string) ([]models.MoneyFlow, error)
	GetMoneyFlow(ctx context.Context, tsCode, startDate, endDate string) ([]models.MoneyFlow, error)
	GetStockBasic(ctx context.Context) ([]models.StockBasic, error)
	GetSectorClassify(ctx context.Context) ([]SectorIndex, error)
	GetSectorDaily(ctx context.Context, tradeDate string) ([]SectorDaily, error)
	GetSectorMembers(ctx context.Context, indexCode string) ([]string, error)
	GetIndexDaily(ctx context.Context, tsCode, startDate, endDate string) ([]IndexBar, error)
}

var _ MarketData = (*TushareClient)(nil)
