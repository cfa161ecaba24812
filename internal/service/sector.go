package service

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"stock_radar/internal/database"
	"stock_radar/internal/models"
)

// Universe 选股股票池
type Universe struct {
	Codes    []string          // 升序
	Sectors  map[string]string // 代码 -> 板块标签
	Degraded bool              // 板块排名不可用时退化为全市场
}

// SectorRanker 主线板块排名
type SectorRanker struct {
	source MarketData
	store  *database.Store
	topPct float64
	logger *zap.Logger
}

// NewSectorRanker 创建板块排名服务
func NewSectorRanker(source MarketData, store *database.Store, topPct float64, logger *zap.Logger) *SectorRanker {
	return &SectorRanker{source: source, store: store, topPct: topPct, logger: logger}
}

// Universe 取当日涨幅前 topPct 的申万一级行业成分股；排名不可用或为空时退化为全部上市股票
func (r *SectorRanker) Universe(ctx context.Context, tradeDate string) (*Universe, error) {
	sectors := r.rank(ctx, tradeDate)
	if len(sectors) > 0 {
		k := int(math.Floor(float64(len(sectors)) * r.topPct))
		if k < 1 {
			k = 1
		}
		if k > len(sectors) {
			k = len(sectors)
		}

		u := &Universe{Sectors: make(map[string]string)}
		for _, sec := range sectors[:k] {
			members, err := r.source.GetSectorMembers(ctx, sec.TSCode)
			if err != nil {
				r.logger.Warn("获取板块成分股失败", zap.String("sector", sec.TSCode), zap.Error(err))
				continue
			}
			for _, code := range members {
				if _, ok := u.Sectors[code]; !ok {
					u.Sectors[code] = sec.Name
					u.Codes = append(u.Codes, code)
				}
			}
		}
		if len(u.Codes) > 0 {
			sort.Strings(u.Codes)
			r.logger.Info("主线股票池",
				zap.Int("sectors", k),
				zap.Int("stocks", len(u.Codes)))
			return u, nil
		}
	}

	r.logger.Warn("板块排名不可用，使用全市场股票池", zap.String("trade_date", tradeDate))
	return r.fullUniverse(ctx)
}

// rank 合并行业分类与当日行情，按涨幅降序
func (r *SectorRanker) rank(ctx context.Context, tradeDate string) []SectorDaily {
	classify, err := r.source.GetSectorClassify(ctx)
	if err != nil {
		r.logger.Warn("获取行业分类失败", zap.Error(err))
		return nil
	}
	daily, err := r.source.GetSectorDaily(ctx, tradeDate)
	if err != nil {
		r.logger.Warn("获取行业行情失败", zap.String("trade_date", tradeDate), zap.Error(err))
		return nil
	}

	names := make(map[string]string, len(classify))
	for _, c := range classify {
		names[c.IndexCode] = c.IndustryName
	}

	merged := make([]SectorDaily, 0, len(classify))
	for _, d := range daily {
		name, ok := names[d.TSCode]
		if !ok {
			continue
		}
		d.Name = name
		merged = append(merged, d)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].PctChange != merged[j].PctChange {
			return merged[i].PctChange > merged[j].PctChange
		}
		return merged[i].TSCode < merged[j].TSCode
	})
	return merged
}

func (r *SectorRanker) fullUniverse(ctx context.Context) (*Universe, error) {
	stocks, err := r.store.QueryStockBasics(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 {
		stocks, err = r.source.GetStockBasic(ctx)
		if err != nil {
			r.logger.Warn("获取股票列表失败", zap.Error(err))
			stocks = nil
		}
	}

	u := &Universe{Sectors: make(map[string]string, len(stocks)), Degraded: true}
	for _, s := range stocks {
		if _, ok := u.Sectors[s.TSCode]; ok {
			continue
		}
		u.Sectors[s.TSCode] = s.Industry
		u.Codes = append(u.Codes, s.TSCode)
	}
	sort.Strings(u.Codes)
	return u, nil
}

// profileIndex 代码 -> 基本信息
func profileIndex(stocks []models.StockBasic) map[string]models.StockBasic {
	idx := make(map[string]models.StockBasic, len(stocks))
	for _, s := range stocks {
		idx[s.TSCode] = s
	}
	return idx
}
