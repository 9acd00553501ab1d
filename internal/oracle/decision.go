package oracle

import (
	"errors"
	"fmt"
	"strings"
)

// 动作类型。
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// SymbolReasoning 表示模型对单个交易对的推理过程。
type SymbolReasoning struct {
	Signal        string  `json:"signal"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	TargetPrice   float64 `json:"target_price"`
	StopLoss      float64 `json:"stop_loss"`
	Leverage      float64 `json:"leverage"`
	RiskUSD       float64 `json:"risk_usd"`
}

// Action 表示一条具体交易指令。
type Action struct {
	Action       string  `json:"action"`
	Symbol       string  `json:"symbol"`
	PositionType string  `json:"position_type"`
	Size         float64 `json:"size"`
	Leverage     float64 `json:"leverage"`
	PositionID   string  `json:"position_id"`
	Reason       string  `json:"reason"`
}

// Decision 表示大模型返回的完整决策。
// Actions 为空表示本轮观望。
type Decision struct {
	Summary   string                     `json:"summary"`
	Reasoning map[string]SymbolReasoning `json:"chain_of_thought"`
	Actions   []Action                   `json:"actions"`
}

var (
	validActions = map[string]struct{}{
		ActionOpen:  {},
		ActionClose: {},
	}
	validPositionTypes = map[string]struct{}{
		"long":  {},
		"short": {},
	}
	validSignals = map[string]struct{}{
		"buy_long":  {},
		"buy_short": {},
		"hold":      {},
		"close":     {},
	}
)

// Validate 校验决策字段合法性。
func (d Decision) Validate() error {
	for symbol, reasoning := range d.Reasoning {
		signal := strings.ToLower(strings.TrimSpace(reasoning.Signal))
		if signal != "" {
			if _, ok := validSignals[signal]; !ok {
				return fmt.Errorf("chain_of_thought[%s].signal 取值非法: %s", symbol, reasoning.Signal)
			}
		}
		if reasoning.Confidence < 0 || reasoning.Confidence > 1 {
			return fmt.Errorf("chain_of_thought[%s].confidence 必须在 [0,1] 区间，目前为 %f", symbol, reasoning.Confidence)
		}
	}

	for i, action := range d.Actions {
		if err := action.validate(); err != nil {
			return fmt.Errorf("actions[%d] 非法: %w", i, err)
		}
	}

	return nil
}

func (a Action) validate() error {
	kind := strings.ToLower(strings.TrimSpace(a.Action))
	if kind == "" {
		return errors.New("action 不能为空")
	}
	if _, ok := validActions[kind]; !ok {
		return fmt.Errorf("action 取值非法: %s", a.Action)
	}

	switch kind {
	case ActionOpen:
		if strings.TrimSpace(a.Symbol) == "" {
			return errors.New("开仓指令缺少 symbol")
		}
		positionType := strings.ToLower(strings.TrimSpace(a.PositionType))
		if _, ok := validPositionTypes[positionType]; !ok {
			return fmt.Errorf("position_type 取值非法: %s", a.PositionType)
		}
		if a.Size <= 0 {
			return fmt.Errorf("开仓金额必须为正数，当前为 %f", a.Size)
		}
		if a.Leverage < 1 {
			return fmt.Errorf("杠杆倍数必须不小于1，当前为 %f", a.Leverage)
		}
	case ActionClose:
		if strings.TrimSpace(a.Symbol) == "" && strings.TrimSpace(a.PositionID) == "" {
			return errors.New("平仓指令必须携带 symbol 或 position_id")
		}
	}

	return nil
}

// Kind 返回规范化后的动作类型。
func (a Action) Kind() string {
	return strings.ToLower(strings.TrimSpace(a.Action))
}
