package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/account"
	"paper-trades/internal/oracle"
)

const defaultCloseReason = "model_close"

type positionBook interface {
	OpenPosition(req account.OpenRequest) (account.Position, error)
	ClosePosition(id string, exitPrice float64, reason string, closedAt time.Time) (account.Trade, error)
	FindPosition(id string) (account.Position, bool)
	OpenPositions() []account.Position
}

var _ positionBook = (*account.Manager)(nil)

// Executor 把模型决策逐条落到模拟账户上。
type Executor struct {
	book   positionBook
	logger *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(book positionBook, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{book: book, logger: logger}
}

// Apply 按顺序执行决策中的全部指令。
// 单条指令失败只记录结果，不影响后续指令。
func (e *Executor) Apply(ctx context.Context, decision oracle.Decision, prices map[string]float64, now time.Time) []ActionResult {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	results := make([]ActionResult, 0, len(decision.Actions))
	for _, action := range decision.Actions {
		if err := ctx.Err(); err != nil {
			results = append(results, ActionResult{Action: action, Err: err})
			continue
		}

		var result ActionResult
		switch action.Kind() {
		case oracle.ActionOpen:
			result = e.applyOpen(decision, action, prices, now)
		case oracle.ActionClose:
			result = e.applyClose(action, prices, now)
		default:
			result = ActionResult{Action: action, Err: fmt.Errorf("execution: 不支持的指令类型 %q", action.Action)}
		}
		e.logResult(result)
		results = append(results, result)
	}
	return results
}

func (e *Executor) applyOpen(decision oracle.Decision, action oracle.Action, prices map[string]float64, now time.Time) ActionResult {
	result := ActionResult{Action: action}

	price, ok := prices[action.Symbol]
	if !ok || price <= 0 {
		result.Err = fmt.Errorf("execution: %s 缺少可用现价，开仓指令跳过", action.Symbol)
		return result
	}
	side, err := account.ParseSide(action.PositionType)
	if err != nil {
		result.Err = err
		return result
	}

	req := account.OpenRequest{
		Symbol:   action.Symbol,
		Side:     side,
		Size:     action.Size,
		Price:    price,
		Leverage: action.Leverage,
		OpenedAt: now,
	}
	if reasoning, ok := decision.Reasoning[action.Symbol]; ok {
		if reasoning.TargetPrice > 0 {
			req.TargetPrice = reasoning.TargetPrice
		}
		if reasoning.StopLoss > 0 {
			req.StopLoss = reasoning.StopLoss
		}
	}

	position, err := e.book.OpenPosition(req)
	if err != nil {
		result.Err = err
		return result
	}
	result.Executed = true
	result.Opened = &position
	return result
}

func (e *Executor) applyClose(action oracle.Action, prices map[string]float64, now time.Time) ActionResult {
	result := ActionResult{Action: action}
	reason := strings.TrimSpace(action.Reason)
	if reason == "" {
		reason = defaultCloseReason
	}

	if action.PositionID != "" {
		position, ok := e.book.FindPosition(action.PositionID)
		if !ok {
			result.Err = &account.UnknownPositionError{ID: action.PositionID}
			return result
		}
		price, ok := prices[position.Symbol]
		if !ok || price <= 0 {
			result.Err = fmt.Errorf("execution: %s 缺少可用现价，平仓指令跳过", position.Symbol)
			return result
		}
		trade, err := e.book.ClosePosition(position.ID, price, reason, now)
		if err != nil {
			result.Err = err
			return result
		}
		result.Executed = true
		result.Closed = []account.Trade{trade}
		return result
	}

	price, ok := prices[action.Symbol]
	if !ok || price <= 0 {
		result.Err = fmt.Errorf("execution: %s 缺少可用现价，平仓指令跳过", action.Symbol)
		return result
	}
	var closed []account.Trade
	for _, position := range e.book.OpenPositions() {
		if position.Symbol != action.Symbol {
			continue
		}
		trade, err := e.book.ClosePosition(position.ID, price, reason, now)
		if err != nil {
			result.Err = err
			result.Closed = closed
			return result
		}
		closed = append(closed, trade)
	}
	if len(closed) == 0 {
		result.Err = fmt.Errorf("execution: %s 没有可平的持仓", action.Symbol)
		return result
	}
	result.Executed = true
	result.Closed = closed
	return result
}

func (e *Executor) logResult(result ActionResult) {
	if result.Err != nil {
		e.logger.Warn("指令执行失败",
			zap.String("action", result.Action.Kind()),
			zap.String("symbol", result.Action.Symbol),
			zap.Error(result.Err))
		return
	}
	fields := []zap.Field{
		zap.String("action", result.Action.Kind()),
		zap.String("symbol", result.Action.Symbol),
	}
	if result.Opened != nil {
		fields = append(fields,
			zap.String("position_id", result.Opened.ID),
			zap.String("side", string(result.Opened.Side)),
			zap.Float64("size", result.Opened.Size),
			zap.Float64("leverage", result.Opened.Leverage),
			zap.Float64("entry_price", result.Opened.EntryPrice))
	}
	if len(result.Closed) > 0 {
		fields = append(fields,
			zap.Int("closed", len(result.Closed)),
			zap.Float64("realized_pnl", totalPnl(result.Closed)))
	}
	e.logger.Info("指令执行成功", fields...)
}

func totalPnl(trades []account.Trade) float64 {
	sum := 0.0
	for _, trade := range trades {
		sum += trade.Pnl
	}
	return sum
}
