package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paper-trader/internal/account"
	"paper-trader/internal/ai"
	"paper-trader/internal/execution"
	"paper-trader/internal/store"
)

var eventDDL = []string{
	`CREATE TABLE IF NOT EXISTS monitor_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type)`,
}

const insertEventSQL = `INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`

// Service 负责持久化监控事件。记录失败只告警，不打断交易流程。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 基于共享的 SQLite 连接构建监控服务，并确保事件表就绪。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: 存储依赖不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{db: st.DB(), logger: logger}
	if err := svc.ensureSchema(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ensureSchema() error {
	for _, stmt := range eventDDL {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("monitor: 初始化事件表失败: %w", err)
		}
	}
	return nil
}

// Record 写入单个事件，时间戳缺省取当前 UTC 时间。
func (s *Service) Record(ctx context.Context, event Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 事件负载无法序列化: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, insertEventSQL,
		string(event.Type), string(body), ts.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("monitor: 事件写入失败: %w", err)
	}
	return nil
}

// recordQuietly 写入失败仅告警，不向调用方返回错误。
func (s *Service) recordQuietly(ctx context.Context, typ EventType, payload interface{}) {
	err := s.Record(ctx, Event{Type: typ, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		s.logger.Warn("监控事件落库失败",
			zap.String("event_type", string(typ)),
			zap.Error(err),
		)
	}
}

// RecordDecision 落库一次 AI 决策，失败只告警。
func (s *Service) RecordDecision(ctx context.Context, cycleID, symbol string, decision ai.Decision) {
	s.recordQuietly(ctx, EventDecision, DecisionPayload{
		CycleID:  cycleID,
		Symbol:   symbol,
		Decision: decision,
	})
}

// RecordExecution 记录模拟成交结果。
func (s *Service) RecordExecution(ctx context.Context, cycleID, symbol string, result execution.Result, elapsed time.Duration) {
	s.recordQuietly(ctx, EventExecution, ExecutionPayload{
		CycleID:   cycleID,
		Symbol:    symbol,
		Result:    result,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// RecordAccount 记录账户状态。
func (s *Service) RecordAccount(ctx context.Context, cycleID string, state account.State) {
	s.recordQuietly(ctx, EventAccount, AccountPayload{CycleID: cycleID, State: state})
}

// RecordError 落库一次运行异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	s.recordQuietly(ctx, EventError, ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	})
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if eventType == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT event_type, payload, created_at FROM monitor_events ORDER BY id DESC LIMIT ?`,
			limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT event_type, payload, created_at FROM monitor_events WHERE event_type = ? ORDER BY id DESC LIMIT ?`,
			string(eventType), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("monitor: 读取事件列表失败: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var typ, body, created string
		if err := rows.Scan(&typ, &body, &created); err != nil {
			return nil, fmt.Errorf("monitor: 扫描事件行失败: %w", err)
		}
		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: parseEventTime(created),
			Payload:   json.RawMessage(body),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 遍历事件失败: %w", err)
	}

	return events, nil
}

// parseEventTime 解析落库的时间戳，解析失败时退回当前时间。
func parseEventTime(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}
