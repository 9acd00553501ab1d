package trigger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/account"
	"paper-trades/internal/config"
)

// Scheduler 在每个轮询周期判定是否需要请求一次决策。
// 判定按严格优先级进行：冷却否决 > 持仓风险 > 市场波动 > 定时 > 时间衰减，
// 命中第一个条件即停止评估。
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *zap.Logger
}

// NewScheduler 创建触发调度器。
func NewScheduler(cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, logger: logger}
}

// Evaluate 对当前周期做触发判定。除日志外不产生副作用；
// 触发后的状态重置由调用方通过 State.Arm 完成。
func (s *Scheduler) Evaluate(now time.Time, prices map[string]float64, state *State, positions []account.Position) Decision {
	if state.InCooldown(now) {
		return Decision{}
	}

	if d, ok := s.positionRisk(prices, state, positions); ok {
		return s.fired(d)
	}
	if d, ok := s.marketVolatility(prices, state); ok {
		return s.fired(d)
	}

	elapsed := now.Sub(state.LastDecisionAt)
	if elapsed >= s.cfg.ScheduledInterval {
		return s.fired(Decision{Fire: true, Reason: ReasonScheduledInterval})
	}
	if d, ok := s.decay(elapsed, prices, state); ok {
		return s.fired(d)
	}

	return Decision{}
}

func (s *Scheduler) fired(d Decision) Decision {
	s.logger.Debug("触发判定命中", zap.String("reason", d.Tag()))
	return d
}

// positionRisk 按开仓顺序检查每个持仓的目标价、止损价与逆向波动。
// 第一个命中的持仓决定触发原因，不比较波动幅度大小。
func (s *Scheduler) positionRisk(prices map[string]float64, state *State, positions []account.Position) (Decision, bool) {
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}

		if pos.TargetPrice > 0 {
			if (pos.Side == account.SideLong && price >= pos.TargetPrice) ||
				(pos.Side == account.SideShort && price <= pos.TargetPrice) {
				return Decision{Fire: true, Reason: ReasonTargetReached, Symbol: pos.Symbol, Price: price}, true
			}
		}
		if pos.StopLoss > 0 {
			if (pos.Side == account.SideLong && price <= pos.StopLoss) ||
				(pos.Side == account.SideShort && price >= pos.StopLoss) {
				return Decision{Fire: true, Reason: ReasonStopLossHit, Symbol: pos.Symbol, Price: price}, true
			}
		}

		ref, ok := state.ReferencePrices[pos.Symbol]
		if !ok || ref <= 0 {
			continue
		}
		changePct := (price - ref) / ref
		if pos.Side == account.SideLong && changePct <= -s.cfg.PositionRiskThreshold {
			return Decision{Fire: true, Reason: ReasonPositionRiskLong, Symbol: pos.Symbol, Price: price, ChangePct: changePct}, true
		}
		if pos.Side == account.SideShort && changePct >= s.cfg.PositionRiskThreshold {
			return Decision{Fire: true, Reason: ReasonPositionRiskShort, Symbol: pos.Symbol, Price: price, ChangePct: changePct}, true
		}
	}
	return Decision{}, false
}

type symbolChange struct {
	symbol    string
	price     float64
	changePct float64
}

// marketVolatility 先检查单一品种的紧急波动，再检查多品种的市场波动。
// 紧急波动在多个品种同时超阈时取绝对涨跌幅最大者。
func (s *Scheduler) marketVolatility(prices map[string]float64, state *State) (Decision, bool) {
	changes := collectChanges(prices, state.ReferencePrices)

	var emergency *symbolChange
	for i := range changes {
		c := changes[i]
		if math.Abs(c.changePct) > s.cfg.EmergencyThreshold {
			if emergency == nil || math.Abs(c.changePct) > math.Abs(emergency.changePct) {
				emergency = &changes[i]
			}
		}
	}
	if emergency != nil {
		return Decision{
			Fire:      true,
			Reason:    ReasonEmergencyVolatility,
			Symbol:    emergency.symbol,
			Price:     emergency.price,
			ChangePct: emergency.changePct,
		}, true
	}

	var volatile []symbolChange
	for _, c := range changes {
		if math.Abs(c.changePct) >= s.cfg.VolatilityThreshold {
			volatile = append(volatile, c)
		}
	}
	if len(volatile) >= s.cfg.MarketVolatilityCoins {
		sort.Slice(volatile, func(i, j int) bool {
			return math.Abs(volatile[i].changePct) > math.Abs(volatile[j].changePct)
		})
		shown := volatile
		if len(shown) > 3 {
			shown = shown[:3]
		}
		parts := make([]string, 0, len(shown))
		for _, c := range shown {
			parts = append(parts, fmt.Sprintf("%s:%.1f%%", c.symbol, c.changePct*100))
		}
		return Decision{
			Fire:   true,
			Reason: ReasonMarketVolatility,
			Count:  len(volatile),
			Detail: strings.Join(parts, ", "),
		}, true
	}

	return Decision{}, false
}

// decay 在超过定时间隔一定比例后，以降低后的波动阈值再做一次检查。
func (s *Scheduler) decay(elapsed time.Duration, prices map[string]float64, state *State) (Decision, bool) {
	window := time.Duration(float64(s.cfg.ScheduledInterval) * s.cfg.DecayIntervalFraction)
	if elapsed < window {
		return Decision{}, false
	}

	threshold := s.cfg.VolatilityThreshold * s.cfg.DecayVolatilityFraction
	changes := collectChanges(prices, state.ReferencePrices)

	var hit *symbolChange
	for i := range changes {
		c := changes[i]
		if math.Abs(c.changePct) >= threshold {
			if hit == nil || math.Abs(c.changePct) > math.Abs(hit.changePct) {
				hit = &changes[i]
			}
		}
	}
	if hit == nil {
		return Decision{}, false
	}
	return Decision{
		Fire:      true,
		Reason:    ReasonDecay,
		Symbol:    hit.symbol,
		Price:     hit.price,
		ChangePct: hit.changePct,
	}, true
}

// collectChanges 计算各品种相对参考价的涨跌幅，缺少参考价或现价的品种跳过。
// 结果按品种名排序，保证同一输入下输出稳定。
func collectChanges(prices, references map[string]float64) []symbolChange {
	out := make([]symbolChange, 0, len(prices))
	for symbol, price := range prices {
		if price <= 0 {
			continue
		}
		ref, ok := references[symbol]
		if !ok || ref <= 0 {
			continue
		}
		out = append(out, symbolChange{
			symbol:    symbol,
			price:     price,
			changePct: (price - ref) / ref,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}
