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
	envPrefix         = "paper"
)

var defaults = map[string]interface{}{
	"app.environment": "development",

	"exchange.name":               "binanceusdm",
	"exchange.market":             "BTC/USDT:USDT",
	"exchange.use_sandbox":        false,
	"exchange.feed_interval":      "5s",
	"exchange.retry.max_attempts": 5,
	"exchange.retry.min_delay":    "500ms",
	"exchange.retry.max_delay":    "5s",

	"openai.base_url": "https://api.openai.com/v1",
	"openai.model":    "gpt-4.1",
	"openai.timeout":  "15s",

	"engine.slippage":  0.001,
	"engine.taker_fee": 0.0005,

	"scheduler.name":           "paper",
	"scheduler.tick_interval":  "1m",
	"scheduler.cooldown":       "1h",
	"scheduler.initial_cash":   10000,
	"scheduler.decide_timeout": "0s",

	"database.path":              "data/paper_trader.db",
	"database.max_open_conns":    4,
	"database.max_idle_conns":    4,
	"database.conn_max_lifetime": "1h",
	"database.in_memory":         false,

	"logging.level":              "info",
	"logging.encoding":           "console",
	"logging.development":        true,
	"logging.output_paths":       []string{"stdout"},
	"logging.error_output_paths": []string{"stderr"},

	"monitor.enabled":     true,
	"monitor.listen_addr": ":8787",
}

// Load 读取配置文件，叠加 PAPER_ 前缀的环境变量，返回校验后的配置。
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: 配置文件 %q 不存在: %w", path, err)
		}
		return nil, fmt.Errorf("config: 读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeOptions); err != nil {
		return nil, fmt.Errorf("config: 解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return v
}

func decodeOptions(dc *mapstructure.DecoderConfig) {
	dc.TagName = "mapstructure"
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
