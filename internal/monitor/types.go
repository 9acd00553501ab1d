package monitor

import (
	"time"

	"paper-trades/internal/oracle"
)

// EventType 表示事件日志里的事件类型。
type EventType string

const (
	EventTrigger        EventType = "trigger_fired"
	EventDecision       EventType = "decision_received"
	EventActionApplied  EventType = "action_applied"
	EventActionRejected EventType = "action_rejected"
	EventSnapshotSaved  EventType = "snapshot_saved"
	EventFeedDegraded   EventType = "feed_degraded"
	EventShutdown       EventType = "shutdown"
)

// Event 封装通用事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TriggerPayload 记录一次触发判定。
type TriggerPayload struct {
	Reason    string `json:"reason"`
	Detail    string `json:"detail,omitempty"`
	Iteration int64  `json:"iteration"`
}

// DecisionPayload 记录模型返回的决策。
type DecisionPayload struct {
	TriggerReason string          `json:"trigger_reason"`
	Summary       string          `json:"summary"`
	Actions       []oracle.Action `json:"actions"`
}

// ActionPayload 记录单条指令的执行情况。
type ActionPayload struct {
	Action       oracle.Action `json:"action"`
	Error        string        `json:"error,omitempty"`
	PositionID   string        `json:"position_id,omitempty"`
	ClosedTrades int           `json:"closed_trades,omitempty"`
	RealizedPnl  float64       `json:"realized_pnl,omitempty"`
}

// SnapshotPayload 记录一次状态落盘。
type SnapshotPayload struct {
	Path      string `json:"path"`
	Iteration int64  `json:"iteration"`
}

// FeedDegradedPayload 记录行情降级情况。
type FeedDegradedPayload struct {
	Stale   []string `json:"stale,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// ShutdownPayload 记录停机过程。
type ShutdownPayload struct {
	Phase           string  `json:"phase"`
	ClosedPositions int     `json:"closed_positions"`
	FinalEquity     float64 `json:"final_equity"`
}
