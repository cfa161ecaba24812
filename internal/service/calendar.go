package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stock_radar/internal/models"
)

// DefaultCalendarLookbackDays 解析最近交易日时默认回看的自然日天数
const DefaultCalendarLookbackDays = 30

// CalendarResolver 交易日解析，只以交易所日历为准，不做推测
type CalendarResolver struct {
	source MarketData
	now    func() time.Time
}

// NewCalendarResolver 创建交易日解析器
func NewCalendarResolver(source MarketData) *CalendarResolver {
	return &CalendarResolver{source: source, now: time.Now}
}

// ResolveLatestTradingDate 返回 [今天-lookbackDays, 今天] 内最近的交易日
func (r *CalendarResolver) ResolveLatestTradingDate(ctx context.Context, lookbackDays int) (string, error) {
	today := r.now()
	start := today.AddDate(0, 0, -lookbackDays).Format(models.DateLayout)
	days, err := r.TradingDays(ctx, start, today.Format(models.DateLayout))
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", fmt.Errorf("%w: %s 至今无交易日", ErrCalendarUnavailable, start)
	}
	return days[len(days)-1], nil
}

// TradingDays 返回 [startDate, endDate] 内的交易日，按日期升序
func (r *CalendarResolver) TradingDays(ctx context.Context, startDate, endDate string) ([]string, error) {
	cal, err := r.source.GetTradeCal(ctx, startDate, endDate, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	days := make([]string, 0, len(cal))
	for _, c := range cal {
		if c.IsOpen == 1 && c.CalDate >= startDate && c.CalDate <= endDate {
			days = append(days, c.CalDate)
		}
	}
	// 接口返回顺序不固定
	sort.Strings(days)
	return days, nil
}
