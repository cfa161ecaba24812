package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stock_radar/internal/config"
	"stock_radar/internal/models"
	"stock_radar/internal/service"
)

// newMockTushare 最近三天均为交易日，每日两只股票
func newMockTushare(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	today := time.Now()
	days := []string{
		today.AddDate(0, 0, -2).Format(models.DateLayout),
		today.AddDate(0, 0, -1).Format(models.DateLayout),
		today.Format(models.DateLayout),
	}
	var dailyCalls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req service.TushareRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var fields []string
		var items [][]interface{}
		date, _ := req.Params["trade_date"].(string)

		switch req.APIName {
		case "trade_cal":
			fields = []string{"exchange", "cal_date", "is_open"}
			for i := len(days) - 1; i >= 0; i-- {
				items = append(items, []interface{}{"SSE", days[i], 1})
			}
		case "daily":
			atomic.AddInt32(&dailyCalls, 1)
			fields = []string{"ts_code", "trade_date", "open", "high", "low", "close", "vol"}
			items = [][]interface{}{
				{"000001.SZ", date, 10.0, 10.5, 9.8, 10.2, 1000},
				{"600000.SH", date, 8.0, 8.1, 7.9, 8.0, 2000},
			}
		case "adj_factor":
			fields = []string{"ts_code", "trade_date", "adj_factor"}
			items = [][]interface{}{{"000001.SZ", date, 1.0}, {"600000.SH", date, 1.0}}
		case "moneyflow":
			fields = []string{"ts_code", "trade_date", "net_mf_amount"}
			items = [][]interface{}{{"000001.SZ", date, 120.0}, {"600000.SH", date, -30.0}}
		case "stock_basic":
			fields = []string{"ts_code", "name", "industry"}
			items = [][]interface{}{{"000001.SZ", "平安银行", "银行"}, {"600000.SH", "浦发银行", "银行"}}
		default:
			fields = []string{"ts_code"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"msg":  "",
			"data": map[string]interface{}{"fields": fields, "items": items},
		})
	}))
	t.Cleanup(server.Close)
	return server, &dailyCalls
}

func newTestRuntime(t *testing.T, baseURL string) *Runtime {
	t.Helper()
	cfg := &config.Config{
		Tushare: config.TushareConfig{Token: "test_token", BaseURL: baseURL, Timeout: 5},
		Database: config.DatabaseConfig{
			Type:      "sqlite",
			Path:      filepath.Join(t.TempDir(), "quant.db"),
			BatchSize: 100,
		},
		Sync: config.SyncConfig{
			LookbackDaysIfEmpty:  10,
			CalendarLookbackDays: 30,
			MaxRetries:           2,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     time.Millisecond,
		},
		Strategy: config.StrategyConfig{
			BoxDays: 55, VolMaDays: 20, VolMultiplier: 1.5, BreakoutThreshold: 1.01, FlowDays: 3,
			SectorTopPct: 0.2, Benchmark: "000300.SH", BatchSize: 50, Concurrency: 1,
			BaseScore: 80, RSBonusMultiple: 2,
		},
	}

	rt, err := NewRuntime(func() (*App, error) { return New(cfg, zap.NewNop()) }, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// TestRuntime_SyncInfoReset 测试同步、概况与重置
func TestRuntime_SyncInfoReset(t *testing.T) {
	server, dailyCalls := newMockTushare(t)
	rt := newTestRuntime(t, server.URL)
	ctx := context.Background()

	result, err := rt.Sync(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Zero(t, result.FailCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(dailyCalls))

	info, err := rt.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", info.Database)
	assert.Equal(t, int64(6), info.Daily.Rows)
	assert.Equal(t, time.Now().Format(models.DateLayout), info.Daily.MaxDate)

	// 已是最新
	result, err = rt.Sync(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, service.MsgAlreadyCurrent, result.LastError)

	before, err := rt.App()
	require.NoError(t, err)
	require.NoError(t, rt.Reset(ctx))
	after, err := rt.App()
	require.NoError(t, err)
	assert.NotSame(t, before, after)

	info, err = rt.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Daily.Rows)

	// 重置后可以重新同步
	result, err = rt.Sync(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
}

// TestRuntime_ScanInsufficientHistory 测试历史不足时扫描无结果
func TestRuntime_ScanInsufficientHistory(t *testing.T) {
	server, _ := newMockTushare(t)
	rt := newTestRuntime(t, server.URL)
	ctx := context.Background()

	_, err := rt.Sync(ctx, 5)
	require.NoError(t, err)

	result, err := rt.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, service.MsgNoCandidates, result.Message)
	assert.True(t, result.Degraded)
}

// TestRuntime_Closed 测试关闭后的调用
func TestRuntime_Closed(t *testing.T) {
	server, _ := newMockTushare(t)
	rt := newTestRuntime(t, server.URL)
	require.NoError(t, rt.Close())

	_, err := rt.Scan(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, rt.Close())
}
