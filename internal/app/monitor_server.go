package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-trader/internal/monitor"
	"paper-trader/internal/runner"
)

// monitorServer 暴露只读监控接口：事件流、账户快照与当日权益。
type monitorServer struct {
	srv     *http.Server
	events  *monitor.Service
	tracker *monitor.DailyTracker
	runner  *runner.Runner
	logger  *zap.Logger
}

func newMonitorServer(addr string, events *monitor.Service, tracker *monitor.DailyTracker, run *runner.Runner, logger *zap.Logger) *monitorServer {
	s := &monitorServer{
		events:  events,
		tracker: tracker,
		runner:  run,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/account", s.handleAccount)
	mux.HandleFunc("/daily", s.handleDaily)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start 启动监听，ctx 结束时自动优雅关闭。
func (s *monitorServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	s.logger.Info("监控接口已启动", zap.String("addr", s.srv.Addr))
}

func (s *monitorServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 200
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := monitor.EventType("")
	if typ := strings.TrimSpace(q.Get("type")); typ != "" {
		eventType = monitor.EventType(strings.ToLower(typ))
	}

	events, err := s.events.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, events)
}

func (s *monitorServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.runner.Snapshot())
}

func (s *monitorServer) handleDaily(w http.ResponseWriter, r *http.Request) {
	status, err := s.tracker.Status(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, status)
}

func (s *monitorServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("写入监控响应失败", zap.Error(err))
	}
}
