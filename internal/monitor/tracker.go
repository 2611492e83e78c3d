package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DailyTracker 按交易日（UTC）跟踪权益变化。
type DailyTracker struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDailyTracker 初始化每日权益跟踪器。
func NewDailyTracker(db *sql.DB, logger *zap.Logger) (*DailyTracker, error) {
	if db == nil {
		return nil, fmt.Errorf("monitor: db 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &DailyTracker{db: db, logger: logger}
	if err := t.initSchema(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *DailyTracker) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS daily_equity (
	trading_date TEXT PRIMARY KEY,
	start_equity REAL NOT NULL,
	current_equity REAL NOT NULL,
	updated_at TEXT NOT NULL
);
`
	if _, err := t.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化每日权益表失败: %w", err)
	}
	return nil
}

// Update 用最新权益刷新当日记录，首次调用时以该权益作为日初基准。
func (t *DailyTracker) Update(ctx context.Context, ts time.Time, equity float64) (status DailyStatus, err error) {
	day := tradingDay(ts)
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return DailyStatus{}, fmt.Errorf("monitor: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var startEquity float64
	row := tx.QueryRowContext(ctx,
		`SELECT start_equity FROM daily_equity WHERE trading_date = ?`, day)
	switch scanErr := row.Scan(&startEquity); {
	case scanErr == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE daily_equity SET current_equity = ?, updated_at = ? WHERE trading_date = ?`,
			equity, now, day)
		if err != nil {
			return DailyStatus{}, fmt.Errorf("monitor: 更新每日权益失败: %w", err)
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		startEquity = equity
		_, err = tx.ExecContext(ctx,
			`INSERT INTO daily_equity (trading_date, start_equity, current_equity, updated_at) VALUES (?, ?, ?, ?)`,
			day, startEquity, equity, now)
		if err != nil {
			return DailyStatus{}, fmt.Errorf("monitor: 写入每日权益失败: %w", err)
		}
	default:
		err = fmt.Errorf("monitor: 查询每日权益失败: %w", scanErr)
		return DailyStatus{}, err
	}

	if err = tx.Commit(); err != nil {
		return DailyStatus{}, fmt.Errorf("monitor: 提交事务失败: %w", err)
	}

	status = DailyStatus{
		TradingDate:   day,
		StartEquity:   startEquity,
		CurrentEquity: equity,
	}
	if startEquity > 0 {
		status.ChangePercent = (equity - startEquity) / startEquity * 100
	}
	return status, nil
}

// Status 返回指定时间所在交易日的权益记录。
func (t *DailyTracker) Status(ctx context.Context, ts time.Time) (DailyStatus, error) {
	day := tradingDay(ts)

	var (
		start   float64
		current float64
	)
	row := t.db.QueryRowContext(ctx,
		`SELECT start_equity, current_equity FROM daily_equity WHERE trading_date = ?`, day)
	if err := row.Scan(&start, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DailyStatus{}, fmt.Errorf("monitor: 当日尚无权益记录")
		}
		return DailyStatus{}, fmt.Errorf("monitor: 查询每日权益失败: %w", err)
	}

	status := DailyStatus{
		TradingDate:   day,
		StartEquity:   start,
		CurrentEquity: current,
	}
	if start > 0 {
		status.ChangePercent = (current - start) / start * 100
	}
	return status, nil
}

// tradingDay 以 UTC 日期作为交易日边界。
func tradingDay(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
