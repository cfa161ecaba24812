package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"stock_radar/internal/models"
	"stock_radar/internal/strategy"
)

// Diagnosis 单只股票诊断结果
type Diagnosis struct {
	TSCode    string                `json:"ts_code"`
	Name      string                `json:"name"`
	TradeDate string                `json:"trade_date"`
	Passed    bool                  `json:"passed"`
	Stage     strategy.Stage        `json:"stage,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Metrics   strategy.Metrics      `json:"metrics"`
	Candidate *models.ScanCandidate `json:"candidate,omitempty"`
}

// Diagnose 用远程最新前复权数据对单只股票执行与 Scan 相同的筛选流程
func (s *Screener) Diagnose(ctx context.Context, tsCode string) (*Diagnosis, error) {
	tsCode = strings.ToUpper(strings.TrimSpace(tsCode))
	if tsCode == "" {
		return nil, errors.New("股票代码不能为空")
	}

	tradeDate, err := s.calendar.ResolveLatestTradingDate(ctx, DefaultCalendarLookbackDays)
	if err != nil {
		return nil, err
	}
	end, err := time.ParseInLocation(models.DateLayout, tradeDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: 非法日期 %s", ErrCalendarUnavailable, tradeDate)
	}
	barStart := end.AddDate(0, 0, -s.params.MinBars()*2).Format(models.DateLayout)
	flowStart := end.AddDate(0, 0, -(s.params.FlowDays+5)*2).Format(models.DateLayout)

	var bars []models.DailyBar
	err = s.fetch(ctx, "adjusted_daily", func(ctx context.Context) error {
		var err error
		bars, err = s.source.GetAdjustedDaily(ctx, tsCode, barStart, tradeDate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s 日线: %w", ErrFetchFailed, tsCode, err)
	}
	var flows []models.MoneyFlow
	err = s.fetch(ctx, "moneyflow", func(ctx context.Context) error {
		var err error
		flows, err = s.source.GetMoneyFlow(ctx, tsCode, flowStart, tradeDate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s 资金流: %w", ErrFetchFailed, tsCode, err)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].TradeDate < flows[j].TradeDate })

	// 当日行情未发布时以上一交易日为分析日
	asOf, err := s.diagnoseDate(ctx, end, tradeDate, bars)
	if err != nil {
		return nil, err
	}

	var name, sector string
	if profiles, err := s.store.QueryStockBasics(ctx, []string{tsCode}); err == nil && len(profiles) > 0 {
		name, sector = profiles[0].Name, profiles[0].Industry
	}

	cand, metrics, err := strategy.Evaluate(s.params, strategy.Input{
		Code:            tsCode,
		Name:            name,
		Sector:          sector,
		AsOf:            asOf,
		Bars:            bars,
		Flows:           flows,
		BenchmarkReturn: s.benchmarkReturn(ctx, asOf),
	})

	d := &Diagnosis{
		TSCode:    tsCode,
		Name:      name,
		TradeDate: asOf,
		Metrics:   metrics,
		Candidate: cand,
		Passed:    err == nil,
	}
	if err != nil {
		var rej *strategy.Rejection
		if !errors.As(err, &rej) {
			return nil, err
		}
		d.Stage = rej.Stage
		d.Detail = rej.Detail
	}

	s.logger.Info("个股诊断完成",
		zap.String("ts_code", tsCode),
		zap.Bool("passed", d.Passed),
		zap.String("stage", string(d.Stage)))
	return d, nil
}

// diagnoseDate 最新一根 K 线恰为上一交易日时返回该日，否则返回最近交易日
func (s *Screener) diagnoseDate(ctx context.Context, end time.Time, tradeDate string, bars []models.DailyBar) (string, error) {
	if len(bars) == 0 || bars[len(bars)-1].TradeDate >= tradeDate {
		return tradeDate, nil
	}
	start := end.AddDate(0, 0, -DefaultCalendarLookbackDays).Format(models.DateLayout)
	days, err := s.calendar.TradingDays(ctx, start, tradeDate)
	if err != nil {
		return "", err
	}
	if len(days) >= 2 && days[len(days)-1] == tradeDate && bars[len(bars)-1].TradeDate == days[len(days)-2] {
		return days[len(days)-2], nil
	}
	return tradeDate, nil
}
