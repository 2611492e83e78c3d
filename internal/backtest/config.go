package backtest

// Config 描述回测的账户与撮合参数。
type Config struct {
	Symbol      string  // 交易对名称
	InitialCash float64 // 初始资金
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.Symbol == "" {
		cfg.Symbol = "BTC/USDT:USDT"
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 10000
	}
	return cfg
}
