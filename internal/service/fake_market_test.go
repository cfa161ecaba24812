package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stock_radar/internal/config"
	"stock_radar/internal/database"
	"stock_radar/internal/models"
)

var errRemote = errors.New("remote unavailable")

// fakeMarket 内存行情源
type fakeMarket struct {
	mu sync.Mutex

	cal    []TradeCal
	calErr error

	codes      []string
	emptyDays  map[string]bool
	failDaily  map[string]int // 剩余失败次数，<0 表示一直失败
	dailyCalls map[string]int

	stocks   []models.StockBasic
	stockErr error

	classify    []SectorIndex
	classifyErr error
	sectorDaily []SectorDaily
	members     map[string][]string
	memberErr   map[string]error

	index    []IndexBar
	indexErr error

	adjusted  map[string][]models.DailyBar
	codeFlows map[string][]models.MoneyFlow
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		codes:      []string{"000001.SZ", "600000.SH"},
		emptyDays:  map[string]bool{},
		failDaily:  map[string]int{},
		dailyCalls: map[string]int{},
		members:    map[string][]string{},
		memberErr:  map[string]error{},
		adjusted:   map[string][]models.DailyBar{},
		codeFlows:  map[string][]models.MoneyFlow{},
	}
}

// openDays 设置交易日历，closed 中的日期标记为休市
func (f *fakeMarket) openDays(open []string, closed ...string) {
	f.cal = nil
	for _, d := range open {
		f.cal = append(f.cal, TradeCal{Exchange: "SSE", CalDate: d, IsOpen: 1})
	}
	for _, d := range closed {
		f.cal = append(f.cal, TradeCal{Exchange: "SSE", CalDate: d, IsOpen: 0})
	}
}

func (f *fakeMarket) GetTradeCal(_ context.Context, startDate, endDate string, isOpen int) ([]TradeCal, error) {
	if f.calErr != nil {
		return nil, f.calErr
	}
	var out []TradeCal
	for _, c := range f.cal {
		if c.CalDate < startDate || c.CalDate > endDate {
			continue
		}
		if isOpen > 0 && c.IsOpen != isOpen {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeMarket) GetDailyBars(_ context.Context, tradeDate string) ([]models.DailyBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dailyCalls[tradeDate]++
	if n, ok := f.failDaily[tradeDate]; ok && n != 0 {
		if n > 0 {
			f.failDaily[tradeDate] = n - 1
		}
		return nil, errRemote
	}
	if f.emptyDays[tradeDate] {
		return nil, nil
	}
	bars := make([]models.DailyBar, 0, len(f.codes))
	for _, code := range f.codes {
		bars = append(bars, models.DailyBar{TSCode: code, TradeDate: tradeDate, Open: 10, High: 10, Low: 10, Close: 10, Vol: 100, AdjFactor: 1})
	}
	return bars, nil
}

func (f *fakeMarket) GetAdjustedDaily(_ context.Context, tsCode, _, _ string) ([]models.DailyBar, error) {
	return f.adjusted[tsCode], nil
}

func (f *fakeMarket) GetMoneyFlowByDate(_ context.Context, tradeDate string) ([]models.MoneyFlow, error) {
	flows := make([]models.MoneyFlow, 0, len(f.codes))
	for _, code := range f.codes {
		flows = append(flows, models.MoneyFlow{TSCode: code, TradeDate: tradeDate, NetMfAmount: 1})
	}
	return flows, nil
}

func (f *fakeMarket) GetMoneyFlow(_ context.Context, tsCode, _, _ string) ([]models.MoneyFlow, error) {
	return f.codeFlows[tsCode], nil
}

func (f *fakeMarket) GetStockBasic(_ context.Context) ([]models.StockBasic, error) {
	if f.stockErr != nil {
		return nil, f.stockErr
	}
	return f.stocks, nil
}

func (f *fakeMarket) GetSectorClassify(_ context.Context) ([]SectorIndex, error) {
	return f.classify, f.classifyErr
}

func (f *fakeMarket) GetSectorDaily(_ context.Context, _ string) ([]SectorDaily, error) {
	return f.sectorDaily, nil
}

func (f *fakeMarket) GetSectorMembers(_ context.Context, indexCode string) ([]string, error) {
	if err := f.memberErr[indexCode]; err != nil {
		return nil, err
	}
	return f.members[indexCode], nil
}

func (f *fakeMarket) GetIndexDaily(_ context.Context, _, _, _ string) ([]IndexBar, error) {
	return f.index, f.indexErr
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "quant.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return database.NewStore(db, 100)
}

func fixedNow(date string) func() time.Time {
	return func() time.Time {
		t, _ := time.ParseInLocation(models.DateLayout, date, time.Local)
		return t.Add(18 * time.Hour)
	}
}

func newTestCalendar(source MarketData, today string) *CalendarResolver {
	c := NewCalendarResolver(source)
	c.now = fixedNow(today)
	return c
}

func newTestRetry(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: attempts,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		logger:      zap.NewNop(),
	}
}

func testStrategyConfig() *config.StrategyConfig {
	return &config.StrategyConfig{
		BoxDays:               55,
		VolMaDays:             20,
		VolMultiplier:         1.5,
		BreakoutThreshold:     1.01,
		FlowDays:              3,
		SectorTopPct:          0.2,
		Benchmark:             "000300.SH",
		BatchSize:             50,
		Concurrency:           2,
		BaseScore:             80,
		PctGainBonusThreshold: 5,
		PctGainBonus:          5,
		RSBonusMultiple:       2,
		RSBonus:               10,
	}
}

// dateSeq 以 end 为最后一天，向前生成 n 个连续自然日（升序）
func dateSeq(end string, n int) []string {
	last, _ := time.ParseInLocation(models.DateLayout, end, time.Local)
	dates := make([]string, n)
	for i := 0; i < n; i++ {
		dates[i] = last.AddDate(0, 0, i-n+1).Format(models.DateLayout)
	}
	return dates
}

// breakoutBars 横盘 n-1 天（高点 100、量 1000）后当日放量突破
func breakoutBars(code, end string, n int, todayClose, todayVol, todayPct float64) []models.DailyBar {
	dates := dateSeq(end, n)
	bars := make([]models.DailyBar, 0, n)
	for i, d := range dates {
		b := models.DailyBar{TSCode: code, TradeDate: d, Open: 99, High: 100, Low: 98, Close: 100, Vol: 1000, AdjFactor: 1}
		if i == n-1 {
			b.High, b.Close, b.Vol, b.PctChg = todayClose, todayClose, todayVol, todayPct
		}
		bars = append(bars, b)
	}
	return bars
}

func positiveFlows(code, end string, n int) []models.MoneyFlow {
	flows := make([]models.MoneyFlow, 0, n)
	for _, d := range dateSeq(end, n) {
		flows = append(flows, models.MoneyFlow{TSCode: code, TradeDate: d, NetMfAmount: 500})
	}
	return flows
}

// indexBars 基准指数：区间收益为 ret
func indexBars(end string, ret float64) []IndexBar {
	dates := dateSeq(end, 30)
	bars := make([]IndexBar, 0, len(dates))
	for i, d := range dates {
		c := 1000.0
		if i == len(dates)-1 {
			c = 1000 * (1 + ret)
		}
		bars = append(bars, IndexBar{TSCode: "000300.SH", TradeDate: d, Close: c})
	}
	// 接口按日期倒序返回
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars
}
