package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"stock_radar/internal/config"
	"stock_radar/internal/models"
)

var (
	// ErrInsufficientHistory 历史K线不足，跳过
	ErrInsufficientHistory = errors.New("历史数据不足")
	// ErrFilterRejected 未通过某一筛选条件
	ErrFilterRejected = errors.New("未通过筛选")
	// ErrMalformedSeries 行情序列异常（价格非正、成交量为负或非有限数），属于计算错误
	ErrMalformedSeries = errors.New("行情数据异常")
)

// Stage 筛选阶段
type Stage string

const (
	StageHistory  Stage = "history"
	StageBreakout Stage = "breakout"
	StageVolume   Stage = "volume"
	StageStrength Stage = "strength"
	StageFlow     Stage = "flow"
)

// Rejection 记录被哪一阶段淘汰
type Rejection struct {
	Stage  Stage
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Stage, r.Detail)
}

func (r *Rejection) Unwrap() error {
	if r.Stage == StageHistory {
		return ErrInsufficientHistory
	}
	return ErrFilterRejected
}

// Params 策略参数
type Params struct {
	BoxDays               int
	VolMaDays             int
	VolMultiplier         float64
	BreakoutThreshold     float64
	FlowDays              int
	BaseScore             float64
	PctGainBonusThreshold float64
	PctGainBonus          float64
	RSBonusMultiple       float64
	RSBonus               float64
}

// ParamsFromConfig 从配置构造策略参数
func ParamsFromConfig(cfg *config.StrategyConfig) Params {
	return Params{
		BoxDays:               cfg.BoxDays,
		VolMaDays:             cfg.VolMaDays,
		VolMultiplier:         cfg.VolMultiplier,
		BreakoutThreshold:     cfg.BreakoutThreshold,
		FlowDays:              cfg.FlowDays,
		BaseScore:             cfg.BaseScore,
		PctGainBonusThreshold: cfg.PctGainBonusThreshold,
		PctGainBonus:          cfg.PctGainBonus,
		RSBonusMultiple:       cfg.RSBonusMultiple,
		RSBonus:               cfg.RSBonus,
	}
}

// MinBars 完成一次评估所需的最少K线数
func (p Params) MinBars() int {
	n := p.BoxDays
	if p.VolMaDays > n {
		n = p.VolMaDays
	}
	return n + 1
}

// Input 单只股票的评估输入，Bars/Flows 按日期升序，Bars 已前复权
type Input struct {
	Code            string
	Name            string
	Sector          string
	AsOf            string
	Bars            []models.DailyBar
	Flows           []models.MoneyFlow
	BenchmarkReturn float64
}

// Metrics 各阶段的中间结果，诊断时原样返回
type Metrics struct {
	TradeDate        string  `json:"trade_date"`
	Bars             int     `json:"bars"`
	Close            float64 `json:"close"`
	BoxHigh          float64 `json:"box_high"`
	BreakoutRatio    float64 `json:"breakout_ratio"`
	Vol              float64 `json:"vol"`
	VolMA            float64 `json:"vol_ma"`
	VolumeRatio      float64 `json:"volume_ratio"`
	Return           float64 `json:"return"`
	BenchmarkReturn  float64 `json:"benchmark_return"`
	PositiveFlowDays int     `json:"positive_flow_days"`
}

// Evaluate 依次执行 历史长度 -> 箱体突破 -> 放量 -> 相对强弱 -> 资金流 -> 打分，任一阶段失败即返回
func Evaluate(p Params, in Input) (*models.ScanCandidate, Metrics, error) {
	m := Metrics{Bars: len(in.Bars), BenchmarkReturn: in.BenchmarkReturn}

	n := len(in.Bars)
	if n < p.MinBars() {
		return nil, m, &Rejection{Stage: StageHistory, Detail: fmt.Sprintf("仅有 %d 根K线，需要 %d", n, p.MinBars())}
	}

	today := in.Bars[n-1]
	m.TradeDate = today.TradeDate
	m.Close = today.Close
	m.Vol = today.Vol
	if in.AsOf != "" && today.TradeDate != in.AsOf {
		return nil, m, &Rejection{Stage: StageHistory, Detail: fmt.Sprintf("%s 无行情（最近 %s）", in.AsOf, today.TradeDate)}
	}
	if err := checkSeries(in.Bars[n-1-p.MinBars()+1:]); err != nil {
		return nil, m, err
	}

	// 箱体突破
	box := in.Bars[n-1-p.BoxDays : n-1]
	for _, b := range box {
		if b.High > m.BoxHigh {
			m.BoxHigh = b.High
		}
	}
	if m.BoxHigh > 0 {
		m.BreakoutRatio = today.Close / m.BoxHigh
	}
	if today.Close <= m.BoxHigh*p.BreakoutThreshold {
		return nil, m, &Rejection{Stage: StageBreakout, Detail: fmt.Sprintf("收盘 %.2f 未突破箱体高点 %.2f × %.2f", today.Close, m.BoxHigh, p.BreakoutThreshold)}
	}

	// 放量
	var volSum float64
	for _, b := range in.Bars[n-1-p.VolMaDays : n-1] {
		volSum += b.Vol
	}
	m.VolMA = volSum / float64(p.VolMaDays)
	if m.VolMA > 0 {
		m.VolumeRatio = today.Vol / m.VolMA
	}
	if m.VolMA <= 0 || today.Vol <= m.VolMA*p.VolMultiplier {
		return nil, m, &Rejection{Stage: StageVolume, Detail: fmt.Sprintf("成交量 %.0f 未超过均量 %.0f × %.2f", today.Vol, m.VolMA, p.VolMultiplier)}
	}

	// 相对强弱
	ref := in.Bars[n-1-p.VolMaDays]
	m.Return = today.Close/ref.Close - 1
	if m.Return < in.BenchmarkReturn {
		return nil, m, &Rejection{Stage: StageStrength, Detail: fmt.Sprintf("%d日涨幅 %s%% 弱于基准 %s%%", p.VolMaDays, percent(m.Return), percent(in.BenchmarkReturn))}
	}

	// 资金流
	if len(in.Flows) < p.FlowDays {
		return nil, m, &Rejection{Stage: StageFlow, Detail: fmt.Sprintf("资金流记录 %d 条，需要 %d", len(in.Flows), p.FlowDays)}
	}
	for _, f := range in.Flows[len(in.Flows)-p.FlowDays:] {
		if f.NetMfAmount > 0 {
			m.PositiveFlowDays++
		}
	}
	if m.PositiveFlowDays < p.FlowDays {
		return nil, m, &Rejection{Stage: StageFlow, Detail: fmt.Sprintf("近 %d 日仅 %d 日净流入", p.FlowDays, m.PositiveFlowDays)}
	}

	score, reason := scoreOf(p, today, m)
	return &models.ScanCandidate{
		TSCode: in.Code,
		Name:   in.Name,
		Sector: in.Sector,
		Price:  round2(today.Close),
		PctChg: round2(today.PctChg),
		Score:  score,
		Reason: reason,
	}, m, nil
}

func scoreOf(p Params, today models.DailyBar, m Metrics) (float64, string) {
	score := decimal.NewFromFloat(p.BaseScore)
	parts := []string{
		fmt.Sprintf("突破箱体 %s 倍", fixed(m.BreakoutRatio)),
		fmt.Sprintf("放量 %s 倍", fixed(m.VolumeRatio)),
	}

	if today.PctChg >= p.PctGainBonusThreshold {
		score = score.Add(decimal.NewFromFloat(p.PctGainBonus))
		parts = append(parts, fmt.Sprintf("当日涨幅 %s%%", fixed(today.PctChg)))
	}

	strong := m.Return > 0
	if m.BenchmarkReturn > 0 {
		strong = m.Return >= m.BenchmarkReturn*p.RSBonusMultiple
	}
	if strong {
		score = score.Add(decimal.NewFromFloat(p.RSBonus))
		parts = append(parts, fmt.Sprintf("强于基准（%s%% vs %s%%）", percent(m.Return), percent(m.BenchmarkReturn)))
	}

	parts = append(parts, fmt.Sprintf("主力连续 %d 日净流入", m.PositiveFlowDays))
	return score.Round(2).InexactFloat64(), strings.Join(parts, "，")
}

func checkSeries(bars []models.DailyBar) error {
	for _, b := range bars {
		if !finite(b.Close) || !finite(b.High) || !finite(b.Vol) || b.Close <= 0 || b.High <= 0 || b.Vol < 0 {
			return fmt.Errorf("%w: %s %s close=%v high=%v vol=%v", ErrMalformedSeries, b.TSCode, b.TradeDate, b.Close, b.High, b.Vol)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WindowReturn 收盘价序列（升序）最近 days 日的区间收益，数据不足时 ok=false
func WindowReturn(closes []float64, days int) (float64, bool) {
	n := len(closes)
	if days <= 0 || n < days+1 || closes[n-1-days] <= 0 {
		return 0, false
	}
	return closes[n-1]/closes[n-1-days] - 1, true
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
