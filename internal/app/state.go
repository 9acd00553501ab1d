package app

import (
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/account"
	"paper-trades/internal/snapshot"
)

// Phase 表示系统生命周期阶段。
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return "running"
	}
}

// StateView 为一次轮询结束后对外发布的只读状态，发布后不再修改。
// 历史序列仅供报告渲染使用，不进入 /state 响应。
type StateView struct {
	Timestamp        time.Time                `json:"timestamp"`
	Iteration        int                      `json:"iteration"`
	Capital          float64                  `json:"capital"`
	AvailableCapital float64                  `json:"available_capital"`
	Equity           float64                  `json:"equity"`
	UnrealizedPnl    float64                  `json:"unrealized_pnl"`
	Prices           map[string]float64       `json:"prices"`
	StalePrices      []string                 `json:"stale_prices,omitempty"`
	Positions        []snapshot.PositionState `json:"open_positions"`
	Trades           []snapshot.TradeState    `json:"trade_history"`
	Stats            account.Stats            `json:"stats"`
	LastTrigger      string                   `json:"last_trigger,omitempty"`
	LastDecisionAt   time.Time                `json:"last_decision_at"`

	ValueHistory []snapshot.ValuePoint            `json:"-"`
	PriceHistory map[string][]snapshot.PricePoint `json:"-"`
}

func snapshotPositions(positions []account.Position) []snapshot.PositionState {
	out := make([]snapshot.PositionState, 0, len(positions))
	for _, pos := range positions {
		out = append(out, snapshot.PositionState{
			ID:          pos.ID,
			Symbol:      pos.Symbol,
			Side:        string(pos.Side),
			Size:        pos.Size,
			EntryPrice:  pos.EntryPrice,
			Leverage:    pos.Leverage,
			OpenedAt:    pos.OpenedAt,
			TargetPrice: pos.TargetPrice,
			StopLoss:    pos.StopLoss,
		})
	}
	return out
}

func snapshotTrades(trades []account.Trade) []snapshot.TradeState {
	out := make([]snapshot.TradeState, 0, len(trades))
	for _, trade := range trades {
		out = append(out, snapshot.TradeState{
			PositionID:  trade.PositionID,
			Symbol:      trade.Symbol,
			Side:        string(trade.Side),
			Size:        trade.Size,
			EntryPrice:  trade.EntryPrice,
			ExitPrice:   trade.ExitPrice,
			Leverage:    trade.Leverage,
			Pnl:         trade.Pnl,
			OpenedAt:    trade.OpenedAt,
			ClosedAt:    trade.ClosedAt,
			CloseReason: trade.CloseReason,
		})
	}
	return out
}

// restorePositions 把持久化仓位还原成账户仓位，方向非法的条目跳过并告警。
func restorePositions(states []snapshot.PositionState, logger *zap.Logger) []account.Position {
	out := make([]account.Position, 0, len(states))
	for _, state := range states {
		side, err := account.ParseSide(state.Side)
		if err != nil {
			logger.Warn("快照仓位方向非法，条目跳过",
				zap.String("position_id", state.ID),
				zap.String("side", state.Side))
			continue
		}
		out = append(out, account.Position{
			ID:          state.ID,
			Symbol:      state.Symbol,
			Side:        side,
			Size:        state.Size,
			EntryPrice:  state.EntryPrice,
			Leverage:    state.Leverage,
			OpenedAt:    state.OpenedAt,
			TargetPrice: state.TargetPrice,
			StopLoss:    state.StopLoss,
		})
	}
	return out
}

func restoreTrades(states []snapshot.TradeState) []account.Trade {
	out := make([]account.Trade, 0, len(states))
	for _, state := range states {
		out = append(out, account.Trade{
			PositionID:  state.PositionID,
			Symbol:      state.Symbol,
			Side:        account.Side(state.Side),
			Size:        state.Size,
			EntryPrice:  state.EntryPrice,
			ExitPrice:   state.ExitPrice,
			Leverage:    state.Leverage,
			Pnl:         state.Pnl,
			OpenedAt:    state.OpenedAt,
			ClosedAt:    state.ClosedAt,
			CloseReason: state.CloseReason,
		})
	}
	return out
}

func copyPrices(prices map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		out[symbol] = price
	}
	return out
}

func copyPriceHistory(history map[string][]snapshot.PricePoint) map[string][]snapshot.PricePoint {
	out := make(map[string][]snapshot.PricePoint, len(history))
	for symbol, points := range history {
		out[symbol] = append([]snapshot.PricePoint(nil), points...)
	}
	return out
}
