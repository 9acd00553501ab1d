package trigger

import (
	"fmt"
	"time"
)

// Reason 标识一次触发的原因。
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonTargetReached       Reason = "target_reached"
	ReasonStopLossHit         Reason = "stop_loss_hit"
	ReasonPositionRiskLong    Reason = "position_risk_long"
	ReasonPositionRiskShort   Reason = "position_risk_short"
	ReasonEmergencyVolatility Reason = "emergency_volatility"
	ReasonMarketVolatility    Reason = "market_volatility"
	ReasonScheduledInterval   Reason = "scheduled_interval"
	ReasonDecay               Reason = "decay_trigger"
)

// Decision 为单个轮询周期的触发判定结果。
type Decision struct {
	Fire      bool
	Reason    Reason
	Symbol    string
	Price     float64
	ChangePct float64
	Count     int
	Detail    string
}

// Tag 返回写入日志与事件流的触发标签。
func (d Decision) Tag() string {
	switch d.Reason {
	case ReasonTargetReached, ReasonStopLossHit:
		return fmt.Sprintf("%s_%s_$%.2f", d.Reason, d.Symbol, d.Price)
	case ReasonPositionRiskLong, ReasonPositionRiskShort, ReasonEmergencyVolatility, ReasonDecay:
		return fmt.Sprintf("%s_%s_%.1f%%", d.Reason, d.Symbol, d.ChangePct*100)
	case ReasonMarketVolatility:
		return fmt.Sprintf("%s_%d_coins_(%s)", d.Reason, d.Count, d.Detail)
	case ReasonScheduledInterval:
		return string(d.Reason)
	default:
		return "no_trigger"
	}
}

// State 记录两次触发之间的调度状态。唯一写者为主循环。
type State struct {
	LastDecisionAt  time.Time
	CooldownUntil   time.Time
	ReferencePrices map[string]float64
}

// NewState 以启动时间初始化调度状态，参考价等待首次观测填充。
func NewState(start time.Time) *State {
	return &State{
		LastDecisionAt:  start,
		ReferencePrices: make(map[string]float64),
	}
}

// ObserveInitial 记录首次观测到的参考价，已有参考价的品种保持不变。
// 保证首个周期的涨跌幅为 0，不会产生虚假的波动触发。
func (s *State) ObserveInitial(prices map[string]float64) {
	for symbol, price := range prices {
		if price <= 0 {
			continue
		}
		if _, ok := s.ReferencePrices[symbol]; !ok {
			s.ReferencePrices[symbol] = price
		}
	}
}

// Arm 在触发后重置调度状态：记录触发时间、冷却窗口与新的参考价。
// 对任何触发原因都无条件执行，避免风险触发后下一周期立刻再次触发波动条件。
func (s *State) Arm(now time.Time, cooldown time.Duration, prices map[string]float64) {
	s.LastDecisionAt = now
	s.CooldownUntil = now.Add(cooldown)
	for symbol, price := range prices {
		if price > 0 {
			s.ReferencePrices[symbol] = price
		}
	}
}

// InCooldown 判断当前时间是否处于冷却窗口内。
func (s *State) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}
