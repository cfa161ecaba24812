package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Tushare  TushareConfig  `mapstructure:"tushare"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Log      LogConfig      `mapstructure:"log"`
}

// TushareConfig Tushare API 配置
type TushareConfig struct {
	Token     string `mapstructure:"token"`
	BaseURL   string `mapstructure:"base_url" validate:"required,url"`
	Timeout   int    `mapstructure:"timeout" validate:"gte=0"`
	RateLimit int    `mapstructure:"rate_limit" validate:"gte=0"` // 每分钟请求数，0 表示不限流
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type            string `mapstructure:"type" validate:"oneof=sqlite postgres mysql"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	BatchSize       int    `mapstructure:"batch_size"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// SyncConfig 增量同步配置
type SyncConfig struct {
	LookbackDaysIfEmpty  int           `mapstructure:"lookback_days_if_empty" validate:"gt=0"`
	CalendarLookbackDays int           `mapstructure:"calendar_lookback_days" validate:"gt=0"`
	MaxRetries           int           `mapstructure:"max_retries" validate:"gte=2"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	DayDelay             time.Duration `mapstructure:"day_delay"`
}

// StrategyConfig 选股策略参数
type StrategyConfig struct {
	BoxDays               int     `mapstructure:"box_days" validate:"gt=0"`
	VolMaDays             int     `mapstructure:"vol_ma_days" validate:"gt=0,ltefield=BoxDays"`
	VolMultiplier         float64 `mapstructure:"vol_multiplier" validate:"gt=0"`
	BreakoutThreshold     float64 `mapstructure:"breakout_threshold" validate:"gte=1"`
	FlowDays              int     `mapstructure:"flow_days" validate:"gt=0"`
	SectorTopPct          float64 `mapstructure:"sector_top_pct" validate:"gt=0,lte=1"`
	Benchmark             string  `mapstructure:"benchmark" validate:"required"`
	BatchSize             int     `mapstructure:"batch_size" validate:"gt=0"`
	Concurrency           int     `mapstructure:"concurrency" validate:"gt=0"`
	BaseScore             float64 `mapstructure:"base_score"`
	PctGainBonusThreshold float64 `mapstructure:"pct_gain_bonus_threshold"`
	PctGainBonus          float64 `mapstructure:"pct_gain_bonus"`
	RSBonusMultiple       float64 `mapstructure:"rs_bonus_multiple" validate:"gte=1"`
	RSBonus               float64 `mapstructure:"rs_bonus"`
}

// ScheduleConfig 定时任务配置（cron 表达式，带秒）
type ScheduleConfig struct {
	SyncCron string `mapstructure:"sync_cron"`
	ScanCron string `mapstructure:"scan_cron"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

var validate = validator.New()

// LoadConfig 加载配置文件，环境变量可覆盖（如 TUSHARE_TOKEN、DATABASE_PATH）
func LoadConfig(configPath string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tushare.token", "")
	v.SetDefault("tushare.base_url", "http://api.tushare.pro")
	v.SetDefault("tushare.timeout", 30)
	v.SetDefault("tushare.rate_limit", 200)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/quant.db")
	v.SetDefault("database.batch_size", 500)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("sync.lookback_days_if_empty", 120)
	v.SetDefault("sync.calendar_lookback_days", 30)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_initial_interval", "2s")
	v.SetDefault("sync.retry_max_interval", "30s")
	v.SetDefault("sync.day_delay", "300ms")

	v.SetDefault("strategy.box_days", 55)
	v.SetDefault("strategy.vol_ma_days", 20)
	v.SetDefault("strategy.vol_multiplier", 1.5)
	v.SetDefault("strategy.breakout_threshold", 1.01)
	v.SetDefault("strategy.flow_days", 3)
	v.SetDefault("strategy.sector_top_pct", 0.2)
	v.SetDefault("strategy.benchmark", "000300.SH")
	v.SetDefault("strategy.batch_size", 50)
	v.SetDefault("strategy.concurrency", 1)
	v.SetDefault("strategy.base_score", 80)
	v.SetDefault("strategy.pct_gain_bonus_threshold", 5)
	v.SetDefault("strategy.pct_gain_bonus", 10)
	v.SetDefault("strategy.rs_bonus_multiple", 2)
	v.SetDefault("strategy.rs_bonus", 10)

	v.SetDefault("schedule.sync_cron", "0 30 17 * * 1-5")
	v.SetDefault("schedule.scan_cron", "0 0 18 * * 1-5")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./logs/stock_radar.log")
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if config.Tushare.Token == "" || config.Tushare.Token == "your_tushare_token_here" {
		return errors.New("请配置有效的 Tushare Token")
	}

	if config.Database.Type == "sqlite" && config.Database.Path == "" {
		return errors.New("sqlite 数据库必须配置 path")
	}

	if config.Database.BatchSize <= 0 {
		config.Database.BatchSize = 500
	}

	if config.Strategy.Concurrency <= 0 {
		config.Strategy.Concurrency = 1
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "sqlite":
		return c.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Shanghai",
			c.Host, c.Port, c.User, c.Password, c.DBName)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	default:
		return ""
	}
}
