package snapshot

import "time"

// Snapshot 为一次完整落盘的引擎状态。字段允许缺省，便于 schema 向前演进。
type Snapshot struct {
	Timestamp      time.Time               `json:"timestamp"`
	IterationCount int                     `json:"iteration_count"`
	Account        AccountState            `json:"account"`
	Trigger        TriggerState            `json:"trigger"`
	ValueHistory   []ValuePoint            `json:"value_history,omitempty"`
	PriceHistory   map[string][]PricePoint `json:"price_history,omitempty"`
}

// AccountState 持久化账户资金、持仓与成交历史。
type AccountState struct {
	Capital       float64         `json:"capital"`
	OpenPositions []PositionState `json:"open_positions"`
	TradeHistory  []TradeState    `json:"trade_history"`
}

// PositionState 持久化单个未平仓仓位。
type PositionState struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	Leverage    float64   `json:"leverage"`
	OpenedAt    time.Time `json:"opened_at"`
	TargetPrice float64   `json:"target_price,omitempty"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
}

// TradeState 持久化单笔已平仓交易。
type TradeState struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Size        float64   `json:"size"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Leverage    float64   `json:"leverage"`
	Pnl         float64   `json:"pnl"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
	CloseReason string    `json:"close_reason,omitempty"`
}

// TriggerState 持久化调度状态，保证重启后"距上次决策"的语义连续。
type TriggerState struct {
	LastDecisionAt  time.Time          `json:"last_decision_at"`
	CooldownUntil   time.Time          `json:"cooldown_until"`
	ReferencePrices map[string]float64 `json:"reference_prices,omitempty"`
}

// ValuePoint 为净值曲线上的一个采样点。
type ValuePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// PricePoint 为价格曲线上的一个采样点。
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
