package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_radar/internal/models"
)

// ErrStoreUnavailable 本地存储不可用（读写失败），调用方应中止当前同步/扫描
var ErrStoreUnavailable = errors.New("本地存储不可用")

// QueryFilter 查询条件，日期为闭区间，Codes 为空表示不过滤代码
type QueryFilter struct {
	StartDate string
	EndDate   string
	Codes     []string
}

// Stats 日线表概况
type Stats struct {
	Rows    int64  `json:"rows"`
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}

// Store 本地行情库：按日追加、整表替换、按日期/代码查询
type Store struct {
	db        *gorm.DB
	batchSize int
	migrated  sync.Map
}

// NewStore 创建本地存储
func NewStore(db *gorm.DB, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Store{db: db, batchSize: batchSize}
}

// AppendDailyBars 追加日线数据，(ts_code, trade_date) 已存在的行跳过
func (s *Store) AppendDailyBars(ctx context.Context, rows []models.DailyBar) error {
	return appendRows(ctx, s, rows)
}

// AppendMoneyFlows 追加资金流向数据，(ts_code, trade_date) 已存在的行跳过
func (s *Store) AppendMoneyFlows(ctx context.Context, rows []models.MoneyFlow) error {
	return appendRows(ctx, s, rows)
}

// ReplaceStockBasics 整表替换股票基本信息
func (s *Store) ReplaceStockBasics(ctx context.Context, rows []models.StockBasic) error {
	if err := s.ensureTable(ctx, &models.StockBasic{}); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.StockBasic{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("%w: 替换 stock_basic 失败: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// QueryDailyBars 按条件查询日线，表不存在时返回空结果
func (s *Store) QueryDailyBars(ctx context.Context, f QueryFilter) ([]models.DailyBar, error) {
	return queryRows[models.DailyBar](ctx, s, f)
}

// QueryMoneyFlows 按条件查询资金流向，表不存在时返回空结果
func (s *Store) QueryMoneyFlows(ctx context.Context, f QueryFilter) ([]models.MoneyFlow, error) {
	return queryRows[models.MoneyFlow](ctx, s, f)
}

// QueryStockBasics 查询股票基本信息，codes 为空返回全部
func (s *Store) QueryStockBasics(ctx context.Context, codes []string) ([]models.StockBasic, error) {
	var rows []models.StockBasic
	if !s.db.WithContext(ctx).Migrator().HasTable(&models.StockBasic{}) {
		return rows, nil
	}
	db := s.db.WithContext(ctx).Model(&models.StockBasic{})
	if len(codes) > 0 {
		db = db.Where("ts_code IN ?", codes)
	}
	if err := db.Order("ts_code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: 查询 stock_basic 失败: %v", ErrStoreUnavailable, err)
	}
	return rows, nil
}

// MaxTradeDate 返回表中最大交易日期，表不存在或为空时 ok=false
func (s *Store) MaxTradeDate(ctx context.Context, model interface{}) (string, bool, error) {
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(model) {
		return "", false, nil
	}
	var maxDate sql.NullString
	if err := db.Model(model).Select("MAX(trade_date)").Row().Scan(&maxDate); err != nil {
		return "", false, fmt.Errorf("%w: 查询最大日期失败: %v", ErrStoreUnavailable, err)
	}
	if !maxDate.Valid || maxDate.String == "" {
		return "", false, nil
	}
	return maxDate.String, true, nil
}

// DailyStats 日线表行数与日期范围
func (s *Store) DailyStats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(&models.DailyBar{}) {
		return stats, nil
	}
	var minDate, maxDate sql.NullString
	row := db.Model(&models.DailyBar{}).Select("COUNT(*), MIN(trade_date), MAX(trade_date)").Row()
	if err := row.Scan(&stats.Rows, &minDate, &maxDate); err != nil {
		return stats, fmt.Errorf("%w: 统计日线失败: %v", ErrStoreUnavailable, err)
	}
	stats.MinDate = minDate.String
	stats.MaxDate = maxDate.String
	return stats, nil
}

// Reset 删除全部行情表
func (s *Store) Reset(ctx context.Context) error {
	tables := []interface{}{&models.DailyBar{}, &models.MoneyFlow{}, &models.StockBasic{}}
	if err := s.db.WithContext(ctx).Migrator().DropTable(tables...); err != nil {
		return fmt.Errorf("%w: 删除数据表失败: %v", ErrStoreUnavailable, err)
	}
	s.migrated.Range(func(key, _ interface{}) bool {
		s.migrated.Delete(key)
		return true
	})
	return nil
}

// ensureTable 首次写入时建表
func (s *Store) ensureTable(ctx context.Context, model interface{}) error {
	key := fmt.Sprintf("%T", model)
	if _, ok := s.migrated.Load(key); ok {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(model); err != nil {
		return fmt.Errorf("%w: 建表失败: %v", ErrStoreUnavailable, err)
	}
	s.migrated.Store(key, struct{}{})
	return nil
}

// appendRows 单事务写入，一次调用要么全部落库要么全部回滚
func appendRows[T any](ctx context.Context, s *Store, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	var model T
	if err := s.ensureTable(ctx, &model); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ts_code"}, {Name: "trade_date"}},
			DoNothing: true,
		}).CreateInBatches(rows, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("%w: 写入 %T 失败: %v", ErrStoreUnavailable, model, err)
	}
	return nil
}

func queryRows[T any](ctx context.Context, s *Store, f QueryFilter) ([]T, error) {
	var model T
	rows := make([]T, 0)
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(&model) {
		return rows, nil
	}
	db = db.Model(&model)
	if f.StartDate != "" {
		db = db.Where("trade_date >= ?", f.StartDate)
	}
	if f.EndDate != "" {
		db = db.Where("trade_date <= ?", f.EndDate)
	}
	if len(f.Codes) > 0 {
		db = db.Where("ts_code IN ?", f.Codes)
	}
	if err := db.Order("ts_code").Order("trade_date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: 查询 %T 失败: %v", ErrStoreUnavailable, model, err)
	}
	return rows, nil
}
