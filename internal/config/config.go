package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "trader"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.tick_interval", "30s")

	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.max_leverage", 20.0)
	v.SetDefault("trading.max_position_fraction", 1.0)
	v.SetDefault("trading.tracked_symbols", []string{
		"BTC/USDT", "ETH/USDT", "BNB/USDT", "SOL/USDT", "ADA/USDT",
	})

	v.SetDefault("scheduler.scheduled_interval", "5m")
	v.SetDefault("scheduler.volatility_threshold", 0.02)
	v.SetDefault("scheduler.emergency_threshold", 0.05)
	v.SetDefault("scheduler.position_risk_threshold", 0.03)
	v.SetDefault("scheduler.market_volatility_coin_count", 3)
	v.SetDefault("scheduler.cooldown", "2m")
	v.SetDefault("scheduler.decay_interval_fraction", 0.6)
	v.SetDefault("scheduler.decay_volatility_fraction", 0.75)

	v.SetDefault("feed.exchange", "binance")
	v.SetDefault("feed.kline_timeframe", "1h")
	v.SetDefault("feed.kline_limit", 50)
	v.SetDefault("feed.retry.max_attempts", 5)
	v.SetDefault("feed.retry.min_delay", "500ms")
	v.SetDefault("feed.retry.max_delay", "5s")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", "90s")

	v.SetDefault("persistence.data_dir", "data")
	v.SetDefault("persistence.snapshot_file", "trading_data.json")
	v.SetDefault("persistence.save_every_iterations", 10)
	v.SetDefault("persistence.max_history_items", 2000)
	v.SetDefault("persistence.price_history_limit", 500)

	v.SetDefault("database.path", "data/monitor.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.listen_addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
