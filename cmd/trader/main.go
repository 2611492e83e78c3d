package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"paper-trader/internal/app"
	"paper-trader/internal/config"
	"paper-trader/internal/log"
	"paper-trader/internal/store"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 configs/config.yaml）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "paper-trader: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	defer func() {
		if cerr := sqliteStore.Close(); cerr != nil {
			logger.Warn("关闭数据库时出错", zap.Error(cerr))
		}
	}()

	if err := app.New(cfg, logger, sqliteStore).Run(ctx); err != nil {
		logger.Error("交易系统异常退出", zap.Error(err))
		return err
	}

	logger.Info("交易系统已退出")
	return nil
}
