package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stock_radar/internal/config"
	"stock_radar/internal/database"
	"stock_radar/internal/models"
)

const (
	MsgAlreadyCurrent   = "already current"
	MsgNoNewTradingDays = "no new trading days"
)

// SyncResult 同步结果
type SyncResult struct {
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
	LastError    string `json:"last_error,omitempty"`
}

// Syncer 增量同步：从本地最大日期补齐到最近交易日
type Syncer struct {
	source   MarketData
	store    *database.Store
	calendar *CalendarResolver
	retry    *RetryPolicy
	config   *config.SyncConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSyncer 创建同步服务
func NewSyncer(source MarketData, store *database.Store, calendar *CalendarResolver, retry *RetryPolicy, cfg *config.SyncConfig, logger *zap.Logger) *Syncer {
	return &Syncer{
		source:   source,
		store:    store,
		calendar: calendar,
		retry:    retry,
		config:   cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sync 执行一次增量同步
// 返回 error 仅限致命错误（交易日历不可用、本地存储故障、取消）；单日拉取失败计入 FailCount。
func (s *Syncer) Sync(ctx context.Context, lookbackDaysIfEmpty int) (*SyncResult, error) {
	if lookbackDaysIfEmpty <= 0 {
		lookbackDaysIfEmpty = s.config.LookbackDaysIfEmpty
	}

	endDate, err := s.calendar.ResolveLatestTradingDate(ctx, s.config.CalendarLookbackDays)
	if err != nil {
		return nil, err
	}

	checkpoint, ok, err := s.store.MaxTradeDate(ctx, &models.DailyBar{})
	if err != nil {
		return nil, err
	}

	end, err := time.ParseInLocation(models.DateLayout, endDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: 非法日期 %s", ErrCalendarUnavailable, endDate)
	}

	var startDate string
	switch {
	case !ok:
		startDate = end.AddDate(0, 0, -lookbackDaysIfEmpty).Format(models.DateLayout)
	case checkpoint < endDate:
		last, err := time.ParseInLocation(models.DateLayout, checkpoint, time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: 本地最大日期非法 %s", database.ErrStoreUnavailable, checkpoint)
		}
		startDate = last.AddDate(0, 0, 1).Format(models.DateLayout)
	default:
		s.logger.Info("本地数据已是最新", zap.String("checkpoint", checkpoint), zap.String("end_date", endDate))
		return &SyncResult{EndDate: endDate, LastError: MsgAlreadyCurrent}, nil
	}

	days, err := s.calendar.TradingDays(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{StartDate: startDate, EndDate: endDate}
	if len(days) == 0 {
		result.LastError = MsgNoNewTradingDays
		return result, nil
	}

	s.logger.Info("开始同步",
		zap.String("start_date", startDate),
		zap.String("end_date", endDate),
		zap.Int("days", len(days)))

	for i, day := range days {
		err := s.retry.Do(ctx, "sync "+day, func(ctx context.Context) error {
			return s.syncDay(ctx, day)
		})
		if err != nil {
			if s.retry.Fatal(err) {
				return result, err
			}
			result.FailCount++
			result.LastError = err.Error()
			s.logger.Error("交易日同步失败", zap.String("date", day), zap.Error(err))
			continue
		}

		result.SuccessCount++
		if i < len(days)-1 {
			if err := s.sleep(ctx, s.config.DayDelay); err != nil {
				return result, err
			}
		}
	}

	if err := s.refreshProfiles(ctx); err != nil {
		return result, err
	}

	s.logger.Info("同步完成",
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailCount))
	return result, nil
}

// syncDay 拉取某日全市场日线与资金流并追加，两张表各自单事务
func (s *Syncer) syncDay(ctx context.Context, day string) error {
	bars, err := s.source.GetDailyBars(ctx, day)
	if err != nil {
		return fmt.Errorf("%w: %s 日线: %w", ErrFetchFailed, day, err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: %s 日线为空", ErrFetchFailed, day)
	}

	flows, err := s.source.GetMoneyFlowByDate(ctx, day)
	if err != nil {
		return fmt.Errorf("%w: %s 资金流: %w", ErrFetchFailed, day, err)
	}

	if err := s.store.AppendDailyBars(ctx, bars); err != nil {
		return err
	}
	if err := s.store.AppendMoneyFlows(ctx, flows); err != nil {
		return err
	}

	s.logger.Info("交易日数据保存成功",
		zap.String("date", day),
		zap.Int("daily", len(bars)),
		zap.Int("moneyflow", len(flows)))
	return nil
}

// refreshProfiles 整表刷新股票基本信息，远程失败只记日志，本地存储故障与取消返回给调用方
func (s *Syncer) refreshProfiles(ctx context.Context) error {
	err := s.retry.Do(ctx, "stock_basic", func(ctx context.Context) error {
		stocks, err := s.source.GetStockBasic(ctx)
		if err != nil {
			return err
		}
		if len(stocks) == 0 {
			return errors.New("股票列表为空")
		}
		return s.store.ReplaceStockBasics(ctx, stocks)
	})
	if err != nil {
		if s.retry.Fatal(err) {
			return err
		}
		s.logger.Warn("刷新股票基本信息失败", zap.Error(fmt.Errorf("%w: %w", ErrProfileRefreshFailed, err)))
		return nil
	}
	s.logger.Info("股票基本信息刷新完成")
	return nil
}
