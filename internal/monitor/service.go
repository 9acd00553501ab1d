package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/execution"
	"paper-trades/internal/oracle"
	"paper-trades/internal/store"
)

// Service 把运行事件持久化到事件库，供只读接口查询。
// 事件写入失败只告警，从不中断交易循环。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	return nil
}

// RecordTrigger 记录一次触发判定。
func (s *Service) RecordTrigger(ctx context.Context, reason, detail string, iteration int64) {
	s.record(ctx, EventTrigger, TriggerPayload{
		Reason:    reason,
		Detail:    detail,
		Iteration: iteration,
	})
}

// RecordDecision 记录模型决策。
func (s *Service) RecordDecision(ctx context.Context, triggerReason string, decision oracle.Decision) {
	s.record(ctx, EventDecision, DecisionPayload{
		TriggerReason: triggerReason,
		Summary:       decision.Summary,
		Actions:       decision.Actions,
	})
}

// RecordActions 逐条记录指令执行结果。
func (s *Service) RecordActions(ctx context.Context, results []execution.ActionResult) {
	for _, result := range results {
		payload := ActionPayload{Action: result.Action}
		eventType := EventActionApplied
		if result.Err != nil {
			eventType = EventActionRejected
			payload.Error = result.Err.Error()
		}
		if result.Opened != nil {
			payload.PositionID = result.Opened.ID
		}
		if len(result.Closed) > 0 {
			payload.ClosedTrades = len(result.Closed)
			for _, trade := range result.Closed {
				payload.RealizedPnl += trade.Pnl
			}
		}
		s.record(ctx, eventType, payload)
	}
}

// RecordSnapshot 记录一次状态落盘。
func (s *Service) RecordSnapshot(ctx context.Context, path string, iteration int64) {
	s.record(ctx, EventSnapshotSaved, SnapshotPayload{Path: path, Iteration: iteration})
}

// RecordFeedDegraded 记录行情降级。
func (s *Service) RecordFeedDegraded(ctx context.Context, stale, missing []string) {
	if len(stale) == 0 && len(missing) == 0 {
		return
	}
	s.record(ctx, EventFeedDegraded, FeedDegradedPayload{Stale: stale, Missing: missing})
}

// RecordShutdown 记录停机阶段。
func (s *Service) RecordShutdown(ctx context.Context, phase string, closedPositions int, finalEquity float64) {
	s.record(ctx, EventShutdown, ShutdownPayload{
		Phase:           phase,
		ClosedPositions: closedPositions,
		FinalEquity:     finalEquity,
	})
}

func (s *Service) record(ctx context.Context, eventType EventType, payload interface{}) {
	if err := s.Record(ctx, Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录事件失败", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// ListEvents 按类型检索最近事件，最新在前。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}
	return events, nil
}
