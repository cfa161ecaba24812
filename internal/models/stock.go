package models

import (
	"time"
)

// DateLayout Tushare 日期格式 YYYYMMDD
const DateLayout = "20060102"

// DailyBar 股票日线数据（未复权价 + 复权因子，读取时做前复权）
type DailyBar struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	TSCode    string    `gorm:"type:varchar(20);uniqueIndex:uk_daily_code_date,priority:1;not null" json:"ts_code"`                              // 股票代码
	TradeDate string    `gorm:"type:varchar(8);uniqueIndex:uk_daily_code_date,priority:2;index:idx_daily_trade_date;not null" json:"trade_date"` // 交易日期 YYYYMMDD
	Open      float64   `gorm:"type:decimal(10,2)" json:"open"`                                                                                  // 开盘价
	High      float64   `gorm:"type:decimal(10,2)" json:"high"`                                                                                  // 最高价
	Low       float64   `gorm:"type:decimal(10,2)" json:"low"`                                                                                   // 最低价
	Close     float64   `gorm:"type:decimal(10,2)" json:"close"`                                                                                 // 收盘价
	PreClose  float64   `gorm:"type:decimal(10,2)" json:"pre_close"`                                                                             // 昨收价
	Change    float64   `gorm:"type:decimal(10,2)" json:"change"`                                                                                // 涨跌额
	PctChg    float64   `gorm:"type:decimal(10,4)" json:"pct_chg"`                                                                               // 涨跌幅(%)
	Vol       float64   `gorm:"type:decimal(20,2)" json:"vol"`                                                                                   // 成交量（手）
	Amount    float64   `gorm:"type:decimal(20,2)" json:"amount"`                                                                                // 成交额（千元）
	AdjFactor float64   `gorm:"type:decimal(20,6)" json:"adj_factor"`                                                                            // 复权因子
	CreatedAt time.Time `json:"-"`
}

// TableName 指定表名
func (DailyBar) TableName() string {
	return "stock_daily"
}

// MoneyFlow 个股资金流向
type MoneyFlow struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	TSCode        string    `gorm:"type:varchar(20);uniqueIndex:uk_flow_code_date,priority:1;not null" json:"ts_code"`
	TradeDate     string    `gorm:"type:varchar(8);uniqueIndex:uk_flow_code_date,priority:2;index:idx_flow_trade_date;not null" json:"trade_date"`
	BuyLgAmount   float64   `gorm:"type:decimal(20,2)" json:"buy_lg_amount"`   // 大单买入金额（万元）
	SellLgAmount  float64   `gorm:"type:decimal(20,2)" json:"sell_lg_amount"`  // 大单卖出金额（万元）
	BuyElgAmount  float64   `gorm:"type:decimal(20,2)" json:"buy_elg_amount"`  // 特大单买入金额（万元）
	SellElgAmount float64   `gorm:"type:decimal(20,2)" json:"sell_elg_amount"` // 特大单卖出金额（万元）
	NetMfVol      float64   `gorm:"type:decimal(20,2)" json:"net_mf_vol"`      // 净流入量（手）
	NetMfAmount   float64   `gorm:"type:decimal(20,2)" json:"net_mf_amount"`   // 净流入额（万元）
	CreatedAt     time.Time `json:"-"`
}

// TableName 指定表名
func (MoneyFlow) TableName() string {
	return "stock_moneyflow"
}

// StockBasic 股票基本信息（全量快照，每次刷新整表替换）
type StockBasic struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	TSCode     string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"ts_code"` // 股票代码
	Symbol     string    `gorm:"type:varchar(10)" json:"symbol"`                       // 股票简称
	Name       string    `gorm:"type:varchar(50)" json:"name"`                         // 股票名称
	Area       string    `gorm:"type:varchar(20)" json:"area"`                         // 地域
	Industry   string    `gorm:"type:varchar(50)" json:"industry"`                     // 行业
	Market     string    `gorm:"type:varchar(10)" json:"market"`                       // 市场类型
	ListDate   string    `gorm:"type:varchar(8)" json:"list_date"`                     // 上市日期
	ListStatus string    `gorm:"type:varchar(1)" json:"list_status"`                   // 上市状态
	CreatedAt  time.Time `json:"-"`
}

// TableName 指定表名
func (StockBasic) TableName() string {
	return "stock_basic"
}

// ScanCandidate 选股结果（仅内存，不落库）
type ScanCandidate struct {
	TSCode string  `json:"ts_code"`
	Name   string  `json:"name"`
	Sector string  `json:"sector"`
	Price  float64 `json:"price"`
	PctChg float64 `json:"pct_chg"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
