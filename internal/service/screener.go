package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock_radar/internal/config"
	"stock_radar/internal/database"
	"stock_radar/internal/models"
	"stock_radar/internal/strategy"
)

// MsgNoCandidates 扫描无结果
const MsgNoCandidates = "no candidates"

// ScanResult 扫描结果
type ScanResult struct {
	TradeDate  string                 `json:"trade_date,omitempty"`
	Universe   int                    `json:"universe"`
	Degraded   bool                   `json:"degraded"`
	Candidates []models.ScanCandidate `json:"candidates"`
	Message    string                 `json:"message,omitempty"`
}

// Screener 基于本地行情库的批量选股
type Screener struct {
	source   MarketData
	store    *database.Store
	ranker   *SectorRanker
	calendar *CalendarResolver
	retry    *RetryPolicy
	params   strategy.Params
	config   *config.StrategyConfig
	logger   *zap.Logger
}

// NewScreener 创建选股服务
func NewScreener(source MarketData, store *database.Store, ranker *SectorRanker, calendar *CalendarResolver, retry *RetryPolicy, cfg *config.StrategyConfig, logger *zap.Logger) *Screener {
	return &Screener{
		source:   source,
		store:    store,
		ranker:   ranker,
		calendar: calendar,
		retry:    retry,
		params:   strategy.ParamsFromConfig(cfg),
		config:   cfg,
		logger:   logger,
	}
}

// Scan 以本地最大交易日为分析日，对主线股票池逐只评估
func (s *Screener) Scan(ctx context.Context) (*ScanResult, error) {
	tradeDate, ok, err := s.store.MaxTradeDate(ctx, &models.DailyBar{})
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("本地数据库为空，请先执行数据同步")
		return &ScanResult{Candidates: []models.ScanCandidate{}, Message: MsgNoCandidates}, nil
	}

	s.logger.Info("开始本地计算", zap.String("trade_date", tradeDate))

	universe, err := s.ranker.Universe(ctx, tradeDate)
	if err != nil {
		return nil, err
	}
	result := &ScanResult{
		TradeDate:  tradeDate,
		Universe:   len(universe.Codes),
		Degraded:   universe.Degraded,
		Candidates: []models.ScanCandidate{},
	}
	if len(universe.Codes) == 0 {
		result.Message = MsgNoCandidates
		return result, nil
	}

	profiles, err := s.store.QueryStockBasics(ctx, nil)
	if err != nil {
		return nil, err
	}
	names := profileIndex(profiles)
	benchmark := s.benchmarkReturn(ctx, tradeDate)

	end, err := time.ParseInLocation(models.DateLayout, tradeDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: 本地最大日期非法 %s", database.ErrStoreUnavailable, tradeDate)
	}
	barStart := end.AddDate(0, 0, -s.params.MinBars()*2).Format(models.DateLayout)
	flowStart := end.AddDate(0, 0, -(s.params.FlowDays+5)*2).Format(models.DateLayout)

	var (
		mu         sync.Mutex
		candidates []models.ScanCandidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, batch := range chunk(universe.Codes, s.config.BatchSize) {
		g.Go(func() error {
			bars, err := s.store.QueryDailyBars(gctx, database.QueryFilter{StartDate: barStart, EndDate: tradeDate, Codes: batch})
			if err != nil {
				return err
			}
			flows, err := s.store.QueryMoneyFlows(gctx, database.QueryFilter{StartDate: flowStart, EndDate: tradeDate, Codes: batch})
			if err != nil {
				return err
			}

			barsByCode := strategy.GroupByCode(bars, func(b models.DailyBar) string { return b.TSCode })
			flowsByCode := strategy.GroupByCode(flows, func(f models.MoneyFlow) string { return f.TSCode })

			var found []models.ScanCandidate
			for _, code := range batch {
				cand, _, err := strategy.Evaluate(s.params, strategy.Input{
					Code:            code,
					Name:            names[code].Name,
					Sector:          universe.Sectors[code],
					AsOf:            tradeDate,
					Bars:            strategy.ForwardAdjust(barsByCode[code]),
					Flows:           flowsByCode[code],
					BenchmarkReturn: benchmark,
				})
				if err != nil {
					s.logSkip(code, err)
					continue
				}
				found = append(found, *cand)
			}

			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	if len(candidates) == 0 {
		result.Message = MsgNoCandidates
	} else {
		result.Candidates = candidates
	}

	s.logger.Info("选股完成",
		zap.String("trade_date", tradeDate),
		zap.Int("universe", result.Universe),
		zap.Int("candidates", len(candidates)))
	return result, nil
}

func (s *Screener) logSkip(code string, err error) {
	var rej *strategy.Rejection
	if errors.As(err, &rej) {
		s.logger.Debug("未入选", zap.String("ts_code", code), zap.String("stage", string(rej.Stage)), zap.String("detail", rej.Detail))
		return
	}
	s.logger.Warn("个股计算异常，已跳过", zap.String("ts_code", code), zap.Error(err))
}

// benchmarkReturn 基准指数同窗口收益，取不到时按 0 处理
func (s *Screener) benchmarkReturn(ctx context.Context, tradeDate string) float64 {
	end, err := time.ParseInLocation(models.DateLayout, tradeDate, time.Local)
	if err != nil {
		return 0
	}
	start := end.AddDate(0, 0, -(s.params.VolMaDays+1)*3).Format(models.DateLayout)

	var bars []IndexBar
	err = s.fetch(ctx, "index_daily", func(ctx context.Context) error {
		var err error
		bars, err = s.source.GetIndexDaily(ctx, s.config.Benchmark, start, tradeDate)
		return err
	})
	if err != nil {
		s.logger.Warn("获取基准指数失败，按 0 收益处理", zap.String("benchmark", s.config.Benchmark), zap.Error(err))
		return 0
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TradeDate < bars[j].TradeDate })

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	ret, ok := strategy.WindowReturn(closes, s.params.VolMaDays)
	if !ok {
		s.logger.Warn("基准指数数据不足，按 0 收益处理", zap.String("benchmark", s.config.Benchmark), zap.Int("bars", len(bars)))
		return 0
	}
	return ret
}

// fetch 远程请求统一走重试策略
func (s *Screener) fetch(ctx context.Context, name string, op func(ctx context.Context) error) error {
	if s.retry == nil {
		return op(ctx)
	}
	return s.retry.Do(ctx, name, op)
}

// sortCandidates 按得分降序，同分按代码升序
func sortCandidates(c []models.ScanCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].TSCode < c[j].TSCode
	})
}

func chunk(codes []string, size int) [][]string {
	if size <= 0 {
		size = len(codes)
	}
	var batches [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		batches = append(batches, codes[start:end])
	}
	return batches
}
