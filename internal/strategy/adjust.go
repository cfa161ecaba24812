package strategy

import "stock_radar/internal/models"

// ForwardAdjust 前复权：价格 × 当日复权因子 / 最新复权因子
// bars 须按日期升序；缺失的复权因子按最新因子处理。返回新切片，AdjFactor 统一置为最新因子。
func ForwardAdjust(bars []models.DailyBar) []models.DailyBar {
	out := make([]models.DailyBar, len(bars))
	copy(out, bars)

	var latest float64
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].AdjFactor > 0 {
			latest = out[i].AdjFactor
			break
		}
	}
	if latest == 0 {
		return out
	}

	for i := range out {
		factor := out[i].AdjFactor
		if factor <= 0 {
			factor = latest
		}
		if factor != latest {
			ratio := factor / latest
			out[i].Open *= ratio
			out[i].High *= ratio
			out[i].Low *= ratio
			out[i].Close *= ratio
			out[i].PreClose *= ratio
			out[i].Change *= ratio
		}
		out[i].AdjFactor = latest
	}
	return out
}

// GroupByCode 按代码分组，保持原有（日期升序）顺序
func GroupByCode[T any](rows []T, code func(T) string) map[string][]T {
	groups := make(map[string][]T)
	for _, r := range rows {
		c := code(r)
		groups[c] = append(groups[c], r)
	}
	return groups
}
