package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Feed        FeedConfig        `mapstructure:"feed"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment  string        `mapstructure:"environment"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// TradingConfig 描述模拟账户的初始状态与仓位限制。
type TradingConfig struct {
	InitialCapital      float64  `mapstructure:"initial_capital"`
	MaxLeverage         float64  `mapstructure:"max_leverage"`
	MaxPositionFraction float64  `mapstructure:"max_position_fraction"`
	TrackedSymbols      []string `mapstructure:"tracked_symbols"`
}

// SchedulerConfig 控制触发调度器的各级阈值。
type SchedulerConfig struct {
	ScheduledInterval       time.Duration `mapstructure:"scheduled_interval"`
	VolatilityThreshold     float64       `mapstructure:"volatility_threshold"`
	EmergencyThreshold      float64       `mapstructure:"emergency_threshold"`
	PositionRiskThreshold   float64       `mapstructure:"position_risk_threshold"`
	MarketVolatilityCoins   int           `mapstructure:"market_volatility_coin_count"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	DecayIntervalFraction   float64       `mapstructure:"decay_interval_fraction"`
	DecayVolatilityFraction float64       `mapstructure:"decay_volatility_fraction"`
}

// FeedConfig 描述行情数据源连接信息。
type FeedConfig struct {
	Exchange       string      `mapstructure:"exchange"`
	KlineTimeframe string      `mapstructure:"kline_timeframe"`
	KlineLimit     int         `mapstructure:"kline_limit"`
	Retry          RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PersistenceConfig 管理状态快照与历史数据的落盘行为。
type PersistenceConfig struct {
	DataDir             string `mapstructure:"data_dir"`
	SnapshotFile        string `mapstructure:"snapshot_file"`
	SaveEveryIterations int    `mapstructure:"save_every_iterations"`
	MaxHistoryItems     int    `mapstructure:"max_history_items"`
	PriceHistoryLimit   int    `mapstructure:"price_history_limit"`
}

// DatabaseConfig 管理事件库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// MonitorConfig 控制监控只读接口。
type MonitorConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.App.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("app.tick_interval 必须大于0"))
	}
	if c.Trading.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("trading.initial_capital 必须大于0"))
	}
	if c.Trading.MaxLeverage < 1 {
		err = multierr.Append(err, errors.New("trading.max_leverage 必须不小于1"))
	}
	if c.Trading.MaxPositionFraction <= 0 || c.Trading.MaxPositionFraction > 1 {
		err = multierr.Append(err, errors.New("trading.max_position_fraction 必须位于(0,1]"))
	}
	if len(c.Trading.TrackedSymbols) == 0 {
		err = multierr.Append(err, errors.New("trading.tracked_symbols 至少包含一个交易对"))
	}
	if c.Scheduler.ScheduledInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.scheduled_interval 必须大于0"))
	}
	if c.Scheduler.ScheduledInterval < c.App.TickInterval {
		err = multierr.Append(err, errors.New("scheduler.scheduled_interval 不应小于 app.tick_interval"))
	}
	if c.Scheduler.VolatilityThreshold <= 0 {
		err = multierr.Append(err, errors.New("scheduler.volatility_threshold 必须大于0"))
	}
	if c.Scheduler.EmergencyThreshold <= c.Scheduler.VolatilityThreshold {
		err = multierr.Append(err, errors.New("scheduler.emergency_threshold 必须大于 volatility_threshold"))
	}
	if c.Scheduler.PositionRiskThreshold <= 0 {
		err = multierr.Append(err, errors.New("scheduler.position_risk_threshold 必须大于0"))
	}
	if c.Scheduler.MarketVolatilityCoins < 1 {
		err = multierr.Append(err, errors.New("scheduler.market_volatility_coin_count 必须不小于1"))
	}
	if c.Scheduler.Cooldown < 0 {
		err = multierr.Append(err, errors.New("scheduler.cooldown 不能为负"))
	}
	if c.Scheduler.Cooldown > c.Scheduler.ScheduledInterval {
		err = multierr.Append(err, errors.New("scheduler.cooldown 不应大于 scheduled_interval"))
	}
	if c.Scheduler.DecayIntervalFraction <= 0 || c.Scheduler.DecayIntervalFraction >= 1 {
		err = multierr.Append(err, errors.New("scheduler.decay_interval_fraction 必须位于(0,1)"))
	}
	if c.Scheduler.DecayVolatilityFraction <= 0 || c.Scheduler.DecayVolatilityFraction > 1 {
		err = multierr.Append(err, errors.New("scheduler.decay_volatility_fraction 必须位于(0,1]"))
	}
	if c.Feed.Exchange == "" {
		err = multierr.Append(err, errors.New("feed.exchange 不能为空"))
	}
	if c.Feed.KlineTimeframe == "" {
		err = multierr.Append(err, errors.New("feed.kline_timeframe 不能为空"))
	}
	if c.Feed.KlineLimit <= 0 {
		err = multierr.Append(err, errors.New("feed.kline_limit 必须大于0"))
	}
	if c.Feed.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.max_attempts 必须大于0"))
	}
	if c.Feed.Retry.MinDelay <= 0 || c.Feed.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("feed.retry.delay 必须为正"))
	}
	if c.Feed.Retry.MinDelay > c.Feed.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("feed.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		err = multierr.Append(err, errors.New("openai.temperature 必须位于[0,2]"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Persistence.DataDir == "" {
		err = multierr.Append(err, errors.New("persistence.data_dir 不能为空"))
	}
	if c.Persistence.SnapshotFile == "" {
		err = multierr.Append(err, errors.New("persistence.snapshot_file 不能为空"))
	}
	if c.Persistence.SaveEveryIterations <= 0 {
		err = multierr.Append(err, errors.New("persistence.save_every_iterations 必须大于0"))
	}
	if c.Persistence.MaxHistoryItems <= 0 {
		err = multierr.Append(err, errors.New("persistence.max_history_items 必须大于0"))
	}
	if c.Persistence.PriceHistoryLimit <= 0 {
		err = multierr.Append(err, errors.New("persistence.price_history_limit 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Monitor.Enabled && c.Monitor.ListenAddr == "" {
		err = multierr.Append(err, errors.New("monitor.listen_addr 不能为空"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
