package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 汇总各子系统的配置节。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 保存应用环境标识。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述行情数据源连接信息，模拟盘只读不下单。
type ExchangeConfig struct {
	Name         string        `mapstructure:"name"`
	Market       string        `mapstructure:"market"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	APIPass      string        `mapstructure:"api_password"`
	UseSandbox   bool          `mapstructure:"use_sandbox"`
	FeedInterval time.Duration `mapstructure:"feed_interval"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 约束行情接口的重试次数与退避窗口。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 保存大模型接入参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig 控制模拟撮合参数。
type EngineConfig struct {
	Slippage float64 `mapstructure:"slippage"`
	TakerFee float64 `mapstructure:"taker_fee"`
}

// SchedulerConfig 控制调度器节奏与账户初始状态。
// DecideTimeout 为 0 表示不限制决策耗时。
type SchedulerConfig struct {
	Name          string        `mapstructure:"name"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	InitialCash   float64       `mapstructure:"initial_cash"`
	DecideTimeout time.Duration `mapstructure:"decide_timeout"`
}

// DatabaseConfig 描述 SQLite 连接池参数。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志级别、编码与输出位置。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控服务。
type MonitorConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Validate 逐节校验配置，所有问题合并后一次性返回。
func (c *Config) Validate() error {
	err := multierr.Combine(
		c.App.validate(),
		c.Exchange.validate(),
		c.OpenAI.validate(),
		c.Engine.validate(),
		c.Scheduler.validate(),
		c.Database.validate(),
		c.Logging.validate(),
		c.Monitor.validate(),
	)
	if err != nil {
		return fmt.Errorf("config: 配置校验失败: %w", err)
	}
	return nil
}

func (a AppConfig) validate() error {
	if a.Environment == "" {
		return errors.New("app.environment 不能为空")
	}
	return nil
}

func (e ExchangeConfig) validate() error {
	var err error
	if e.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 未配置"))
	}
	if e.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 未配置"))
	}
	if e.FeedInterval <= 0 {
		err = multierr.Append(err, errors.New("exchange.feed_interval 必须为正"))
	}
	if e.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须为正"))
	}
	if e.Retry.MinDelay <= 0 || e.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 与 max_delay 均须为正"))
	}
	if e.Retry.MinDelay > e.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不应超过 max_delay"))
	}
	return err
}

func (o OpenAIConfig) validate() error {
	var err error
	if o.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 未配置"))
	}
	if o.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 未配置"))
	}
	if o.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须为正"))
	}
	return err
}

func (e EngineConfig) validate() error {
	var err error
	if e.Slippage < 0 || e.Slippage > 0.2 {
		err = multierr.Append(err, errors.New("engine.slippage 需在 [0, 0.2] 区间内"))
	}
	if e.TakerFee < 0 || e.TakerFee > 0.05 {
		err = multierr.Append(err, errors.New("engine.taker_fee 需在 [0, 0.05] 区间内"))
	}
	return err
}

func (s SchedulerConfig) validate() error {
	var err error
	if s.Name == "" {
		err = multierr.Append(err, errors.New("scheduler.name 不能为空"))
	}
	if s.TickInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.tick_interval 必须为正"))
	}
	if s.Cooldown < 0 {
		err = multierr.Append(err, errors.New("scheduler.cooldown 不能为负"))
	}
	if s.Cooldown > 0 && s.Cooldown < s.TickInterval {
		err = multierr.Append(err, errors.New("scheduler.cooldown 不应小于 tick_interval"))
	}
	if s.InitialCash <= 0 {
		err = multierr.Append(err, errors.New("scheduler.initial_cash 必须为正"))
	}
	if s.DecideTimeout < 0 {
		err = multierr.Append(err, errors.New("scheduler.decide_timeout 不能为负"))
	}
	return err
}

func (d DatabaseConfig) validate() error {
	var err error
	if d.Path == "" && !d.InMemory {
		err = multierr.Append(err, errors.New("database.path 未配置"))
	}
	if d.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须为正"))
	}
	if d.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不可为负值"))
	}
	if d.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不可为负值"))
	}
	return err
}

func (l LoggingConfig) validate() error {
	var err error
	if l.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 未配置"))
	}
	if l.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 未配置"))
	}
	if len(l.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 不能为空"))
	}
	if len(l.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 不能为空"))
	}
	return err
}

func (m MonitorConfig) validate() error {
	if m.Enabled && m.ListenAddr == "" {
		return errors.New("monitor.listen_addr 不能为空")
	}
	return nil
}
