package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"stock_radar/internal/config"
	"stock_radar/internal/models"
	"stock_radar/internal/strategy"
)

// TushareClient Tushare API 客户端
type TushareClient struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// TushareRequest Tushare API 请求结构
type TushareRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params"`
	Fields  string                 `json:"fields,omitempty"`
}

// TradeCal 交易日历
type TradeCal struct {
	Exchange     string `json:"exchange"`      // 交易所 SSE上交所 SZSE深交所
	CalDate      string `json:"cal_date"`      // 日历日期
	IsOpen       int    `json:"is_open"`       // 是否交易 0休市 1交易
	PreTradeDate string `json:"pretrade_date"` // 上一个交易日
}

// SectorIndex 申万行业指数
type SectorIndex struct {
	IndexCode    string `json:"index_code"`
	IndustryName string `json:"industry_name"`
	Level        string `json:"level"`
}

// SectorDaily 申万行业日行情
type SectorDaily struct {
	TSCode    string  `json:"ts_code"`
	TradeDate string  `json:"trade_date"`
	Name      string  `json:"name"`
	Close     float64 `json:"close"`
	PctChange float64 `json:"pct_change"`
}

// IndexBar 指数日线
type IndexBar struct {
	TSCode    string  `json:"ts_code"`
	TradeDate string  `json:"trade_date"`
	Close     float64 `json:"close"`
	PctChg    float64 `json:"pct_chg"`
}

// adjFactor 复权因子
type adjFactor struct {
	TSCode    string
	TradeDate string
	AdjFactor float64
}

// NewTushareClient 创建 Tushare 客户端
func NewTushareClient(cfg *config.TushareConfig) *TushareClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimit))
	}
	return &TushareClient{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// tushareTable 响应中的 fields/items 表格
type tushareTable struct {
	fields map[string]int
	items  [][]gjson.Result
}

func (t *tushareTable) str(row []gjson.Result, field string) string {
	idx, ok := t.fields[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx].String()
}

func (t *tushareTable) float(row []gjson.Result, field string) float64 {
	idx, ok := t.fields[field]
	if !ok || idx >= len(row) {
		return 0
	}
	return row[idx].Float()
}

// request 发送请求
func (c *TushareClient) request(ctx context.Context, apiName string, params map[string]interface{}, fields string) (*tushareTable, error) {
	reqData := TushareRequest{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	// 单次请求，重试由调用方的 RetryPolicy 负责
	body, err := c.doRequest(ctx, jsonData)
	if err != nil {
		return nil, err
	}
	if code := gjson.GetBytes(body, "code").Int(); code != 0 {
		return nil, fmt.Errorf("API 返回错误(%s): %s", apiName, gjson.GetBytes(body, "msg").String())
	}

	data := gjson.GetBytes(body, "data")
	table := &tushareTable{fields: make(map[string]int)}
	for i, field := range data.Get("fields").Array() {
		table.fields[field.String()] = i
	}
	for _, item := range data.Get("items").Array() {
		table.items = append(table.items, item.Array())
	}

	return table, nil
}

// doRequest 执行 HTTP 请求
func (c *TushareClient) doRequest(ctx context.Context, jsonData []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("限流等待失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码异常: %d", httpResp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("解析响应失败: 非法 JSON")
	}

	return body, nil
}

// GetStockBasic 获取股票基本信息
func (c *TushareClient) GetStockBasic(ctx context.Context) ([]models.StockBasic, error) {
	params := map[string]interface{}{
		"list_status": "L", // 只获取上市状态的股票
	}

	data, err := c.request(ctx, "stock_basic", params, "")
	if err != nil {
		return nil, err
	}

	result := make([]models.StockBasic, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, models.StockBasic{
			TSCode:     data.str(item, "ts_code"),
			Symbol:     data.str(item, "symbol"),
			Name:       data.str(item, "name"),
			Area:       data.str(item, "area"),
			Industry:   data.str(item, "industry"),
			Market:     data.str(item, "market"),
			ListDate:   data.str(item, "list_date"),
			ListStatus: data.str(item, "list_status"),
		})
	}

	return result, nil
}

// GetDailyData 获取日线数据（未复权）
func (c *TushareClient) GetDailyData(ctx context.Context, tradeDate string, tsCode string) ([]models.DailyBar, error) {
	params := map[string]interface{}{}

	if tradeDate != "" {
		params["trade_date"] = tradeDate
	}
	if tsCode != "" {
		params["ts_code"] = tsCode
	}

	return c.daily(ctx, params)
}

// GetDailyRange 获取单只股票区间日线（未复权）
func (c *TushareClient) GetDailyRange(ctx context.Context, tsCode, startDate, endDate string) ([]models.DailyBar, error) {
	return c.daily(ctx, map[string]interface{}{
		"ts_code":    tsCode,
		"start_date": startDate,
		"end_date":   endDate,
	})
}

func (c *TushareClient) daily(ctx context.Context, params map[string]interface{}) ([]models.DailyBar, error) {
	data, err := c.request(ctx, "daily", params, "")
	if err != nil {
		return nil, err
	}

	result := make([]models.DailyBar, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, models.DailyBar{
			TSCode:    data.str(item, "ts_code"),
			TradeDate: data.str(item, "trade_date"),
			Open:      data.float(item, "open"),
			High:      data.float(item, "high"),
			Low:       data.float(item, "low"),
			Close:     data.float(item, "close"),
			PreClose:  data.float(item, "pre_close"),
			Change:    data.float(item, "change"),
			PctChg:    data.float(item, "pct_chg"),
			Vol:       data.float(item, "vol"),
			Amount:    data.float(item, "amount"),
		})
	}

	return result, nil
}

// getAdjFactor 获取复权因子
func (c *TushareClient) getAdjFactor(ctx context.Context, params map[string]interface{}) ([]adjFactor, error) {
	data, err := c.request(ctx, "adj_factor", params, "")
	if err != nil {
		return nil, err
	}

	result := make([]adjFactor, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, adjFactor{
			TSCode:    data.str(item, "ts_code"),
			TradeDate: data.str(item, "trade_date"),
			AdjFactor: data.float(item, "adj_factor"),
		})
	}
	return result, nil
}

// GetDailyBars 获取某交易日全市场日线并附带复权因子
func (c *TushareClient) GetDailyBars(ctx context.Context, tradeDate string) ([]models.DailyBar, error) {
	bars, err := c.GetDailyData(ctx, tradeDate, "")
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	factors, err := c.getAdjFactor(ctx, map[string]interface{}{"trade_date": tradeDate})
	if err != nil {
		return nil, fmt.Errorf("获取复权因子失败: %w", err)
	}
	byCode := make(map[string]float64, len(factors))
	for _, f := range factors {
		byCode[f.TSCode] = f.AdjFactor
	}
	for i := range bars {
		bars[i].AdjFactor = byCode[bars[i].TSCode]
	}
	return bars, nil
}

// GetAdjustedDaily 获取单只股票前复权日线，按日期升序
func (c *TushareClient) GetAdjustedDaily(ctx context.Context, tsCode, startDate, endDate string) ([]models.DailyBar, error) {
	bars, err := c.GetDailyRange(ctx, tsCode, startDate, endDate)
	if err != nil {
		return nil, err
	}

	factors, err := c.getAdjFactor(ctx, map[string]interface{}{
		"ts_code":    tsCode,
		"start_date": startDate,
		"end_date":   endDate,
	})
	if err != nil {
		return nil, fmt.Errorf("获取复权因子失败: %w", err)
	}
	byDate := make(map[string]float64, len(factors))
	for _, f := range factors {
		byDate[f.TradeDate] = f.AdjFactor
	}
	for i := range bars {
		bars[i].AdjFactor = byDate[bars[i].TradeDate]
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].TradeDate < bars[j].TradeDate })
	return strategy.ForwardAdjust(bars), nil
}

// GetTradeCal 获取交易日历
// startDate: 开始日期 YYYYMMDD
// endDate: 结束日期 YYYYMMDD
// isOpen: 是否只获取交易日 1-交易日 0-休市日 空-全部
func (c *TushareClient) GetTradeCal(ctx context.Context, startDate, endDate string, isOpen int) ([]TradeCal, error) {
	params := map[string]interface{}{
		"exchange": "SSE", // 上交所
	}

	if startDate != "" {
		params["start_date"] = startDate
	}
	if endDate != "" {
		params["end_date"] = endDate
	}
	if isOpen > 0 {
		params["is_open"] = isOpen
	}

	data, err := c.request(ctx, "trade_cal", params, "")
	if err != nil {
		return nil, err
	}

	result := make([]TradeCal, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, TradeCal{
			Exchange:     data.str(item, "exchange"),
			CalDate:      data.str(item, "cal_date"),
			IsOpen:       int(data.float(item, "is_open")),
			PreTradeDate: data.str(item, "pretrade_date"),
		})
	}

	return result, nil
}

// GetMoneyFlow 获取单只股票区间资金流向
func (c *TushareClient) GetMoneyFlow(ctx context.Context, tsCode, startDate, endDate string) ([]models.MoneyFlow, error) {
	return c.moneyflow(ctx, map[string]interface{}{
		"ts_code":    tsCode,
		"start_date": startDate,
		"end_date":   endDate,
	})
}

// GetMoneyFlowByDate 获取某交易日全市场资金流向
func (c *TushareClient) GetMoneyFlowByDate(ctx context.Context, tradeDate string) ([]models.MoneyFlow, error) {
	return c.moneyflow(ctx, map[string]interface{}{"trade_date": tradeDate})
}

func (c *TushareClient) moneyflow(ctx context.Context, params map[string]interface{}) ([]models.MoneyFlow, error) {
	data, err := c.request(ctx, "moneyflow", params, "")
	if err != nil {
		return nil, err
	}

	result := make([]models.MoneyFlow, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, models.MoneyFlow{
			TSCode:        data.str(item, "ts_code"),
			TradeDate:     data.str(item, "trade_date"),
			BuyLgAmount:   data.float(item, "buy_lg_amount"),
			SellLgAmount:  data.float(item, "sell_lg_amount"),
			BuyElgAmount:  data.float(item, "buy_elg_amount"),
			SellElgAmount: data.float(item, "sell_elg_amount"),
			NetMfVol:      data.float(item, "net_mf_vol"),
			NetMfAmount:   data.float(item, "net_mf_amount"),
		})
	}
	return result, nil
}

// GetSectorClassify 获取申万一级行业列表
func (c *TushareClient) GetSectorClassify(ctx context.Context) ([]SectorIndex, error) {
	data, err := c.request(ctx, "index_classify", map[string]interface{}{
		"level": "L1",
		"src":   "SW2021",
	}, "")
	if err != nil {
		return nil, err
	}

	result := make([]SectorIndex, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, SectorIndex{
			IndexCode:    data.str(item, "index_code"),
			IndustryName: data.str(item, "industry_name"),
			Level:        data.str(item, "level"),
		})
	}
	return result, nil
}

// GetSectorDaily 获取申万行业某日行情
func (c *TushareClient) GetSectorDaily(ctx context.Context, tradeDate string) ([]SectorDaily, error) {
	data, err := c.request(ctx, "sw_daily", map[string]interface{}{"trade_date": tradeDate}, "")
	if err != nil {
		return nil, err
	}

	result := make([]SectorDaily, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, SectorDaily{
			TSCode:    data.str(item, "ts_code"),
			TradeDate: data.str(item, "trade_date"),
			Name:      data.str(item, "name"),
			Close:     data.float(item, "close"),
			PctChange: data.float(item, "pct_change"),
		})
	}
	return result, nil
}

// GetSectorMembers 获取行业当前成分股代码
func (c *TushareClient) GetSectorMembers(ctx context.Context, indexCode string) ([]string, error) {
	data, err := c.request(ctx, "index_member", map[string]interface{}{"index_code": indexCode}, "")
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(data.items))
	for _, item := range data.items {
		// 已剔除的成分股带 out_date
		if data.str(item, "out_date") != "" {
			continue
		}
		if code := data.str(item, "con_code"); code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// GetIndexDaily 获取指数区间日线
func (c *TushareClient) GetIndexDaily(ctx context.Context, tsCode, startDate, endDate string) ([]IndexBar, error) {
	data, err := c.request(ctx, "index_daily", map[string]interface{}{
		"ts_code":    tsCode,
		"start_date": startDate,
		"end_date":   endDate,
	}, "")
	if err != nil {
		return nil, err
	}

	result := make([]IndexBar, 0, len(data.items))
	for _, item := range data.items {
		result = append(result, IndexBar{
			TSCode:    data.str(item, "ts_code"),
			TradeDate: data.str(item, "trade_date"),
			Close:     data.float(item, "close"),
			PctChg:    data.float(item, "pct_chg"),
		})
	}
	return result, nil
}
