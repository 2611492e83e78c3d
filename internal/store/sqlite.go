package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"paper-trader/internal/config"
)

const dsnParams = "_busy_timeout=5000&_foreign_keys=on"

// Store 封装 SQLite 连接，供监控日志与回测结果共享。
type Store struct {
	db *sql.DB
}

// NewSQLite 打开数据库并应用连接池与 PRAGMA 设置。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: 打开 SQLite 数据库失败: %w", err)
	}

	if cfg.InMemory {
		// 内存库的每个连接都是独立实例，必须收敛到单连接。
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("store: 执行 %q 失败: %w", pragma, err)
		}
	}

	return &Store{db: conn}, nil
}

func buildDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.InMemory {
		return ":memory:?" + dsnParams, nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("store: 创建数据目录 %q 失败: %w", dir, err)
		}
	}
	return cfg.Path + "?" + dsnParams, nil
}

// DB 暴露原生连接池，各模块在其上建表与查询。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 释放数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
