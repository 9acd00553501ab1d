package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"paper-trades/internal/config"
)

// Manager 独占管理模拟账户：资金、未平仓仓位与成交历史。
// 保证金只做记账预留，不从现金中扣除；平仓时按公式将已实现盈亏计入资金。
// Manager 不做并发保护，调用方须保证单一写者。
type Manager struct {
	initialCapital      float64
	maxLeverage         float64
	maxPositionFraction float64

	capital float64
	open    []*Position
	history []Trade

	logger *zap.Logger
}

// NewManager 创建账户管理器，资金初始化为配置的初始资金。
func NewManager(cfg config.TradingConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	fraction := cfg.MaxPositionFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	return &Manager{
		initialCapital:      cfg.InitialCapital,
		maxLeverage:         cfg.MaxLeverage,
		maxPositionFraction: fraction,
		capital:             cfg.InitialCapital,
		logger:              logger,
	}
}

// OpenPosition 校验并创建新仓位。任何校验失败都不会改动账户状态。
func (m *Manager) OpenPosition(req OpenRequest) (Position, error) {
	if req.Side != SideLong && req.Side != SideShort {
		return Position{}, fmt.Errorf("account: 未知的仓位方向 %q", req.Side)
	}
	if req.Size <= 0 {
		return Position{}, ErrInvalidSize
	}
	if req.Price <= 0 {
		return Position{}, ErrInvalidPrice
	}
	if req.Leverage < 1 || req.Leverage > m.maxLeverage {
		return Position{}, fmt.Errorf("%w: %.1fx 不在 [1, %.1f] 内", ErrInvalidLeverage, req.Leverage, m.maxLeverage)
	}

	margin := req.Size / req.Leverage
	available := m.AvailableCapital()
	if margin > m.maxPositionFraction*available {
		return Position{}, &InsufficientCapitalError{
			Symbol:    req.Symbol,
			Required:  margin,
			Available: available,
		}
	}

	openedAt := req.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}

	pos := &Position{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Size:        req.Size,
		EntryPrice:  req.Price,
		Leverage:    req.Leverage,
		OpenedAt:    openedAt,
		TargetPrice: req.TargetPrice,
		StopLoss:    req.StopLoss,
	}
	m.open = append(m.open, pos)

	m.logger.Info("开仓",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("size", pos.Size),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("leverage", pos.Leverage),
		zap.Float64("margin", margin),
	)

	return *pos, nil
}

// ClosePosition 平掉指定仓位：计算已实现盈亏、计入资金、移入成交历史。
// 查找失败或价格非法时账户状态保持不变。
func (m *Manager) ClosePosition(id string, exitPrice float64, reason string, closedAt time.Time) (Trade, error) {
	if exitPrice <= 0 {
		return Trade{}, ErrInvalidPrice
	}

	idx := -1
	for i, p := range m.open {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Trade{}, &UnknownPositionError{ID: id}
	}

	pos := m.open[idx]
	pnl := pos.Pnl(exitPrice)
	if closedAt.IsZero() {
		closedAt = time.Now()
	}

	trade := Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Size:        pos.Size,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Leverage:    pos.Leverage,
		Pnl:         pnl,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    closedAt,
		CloseReason: reason,
	}

	m.capital += pnl
	m.open = append(m.open[:idx], m.open[idx+1:]...)
	m.history = append(m.history, trade)

	m.logger.Info("平仓",
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("exit_price", trade.ExitPrice),
		zap.Float64("pnl", trade.Pnl),
		zap.String("reason", reason),
	)

	return trade, nil
}

// CloseAll 按开仓顺序平掉全部仓位。缺少现价的仓位保持未平仓并记入返回错误。
func (m *Manager) CloseAll(prices map[string]float64, reason string, closedAt time.Time) ([]Trade, error) {
	pending := make([]*Position, len(m.open))
	copy(pending, m.open)

	var errs error
	trades := make([]Trade, 0, len(pending))
	for _, pos := range pending {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("account: %s 缺少现价，仓位 %s 未平仓", pos.Symbol, pos.ID))
			continue
		}
		trade, err := m.ClosePosition(pos.ID, price, reason, closedAt)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, errs
}

// Capital 返回账户现金。
func (m *Manager) Capital() float64 {
	return m.capital
}

// AvailableCapital 返回可用于新开仓的资金：现金减去已预留的保证金。
func (m *Manager) AvailableCapital() float64 {
	available := m.capital
	for _, p := range m.open {
		available -= p.Margin()
	}
	return available
}

// UnrealizedPnl 返回全部未平仓仓位的浮动盈亏之和。缺价的仓位计 0。
func (m *Manager) UnrealizedPnl(prices map[string]float64) float64 {
	var total float64
	for _, p := range m.open {
		if price, ok := prices[p.Symbol]; ok && price > 0 {
			total += p.Pnl(price)
		}
	}
	return total
}

// Equity 返回账户净值：现金加全部浮动盈亏，按需计算，从不缓存。
func (m *Manager) Equity(prices map[string]float64) float64 {
	return m.capital + m.UnrealizedPnl(prices)
}

// OpenPositions 返回未平仓仓位的副本，保持开仓顺序。
func (m *Manager) OpenPositions() []Position {
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// FindPosition 按 id 查找未平仓仓位。
func (m *Manager) FindPosition(id string) (Position, bool) {
	for _, p := range m.open {
		if p.ID == id {
			return *p, true
		}
	}
	return Position{}, false
}

// TradeHistory 返回成交历史的副本。
func (m *Manager) TradeHistory() []Trade {
	return append([]Trade(nil), m.history...)
}

// Statistics 汇总当前账户统计。
func (m *Manager) Statistics(prices map[string]float64) Stats {
	equity := m.Equity(prices)
	totalPnl := equity - m.initialCapital

	var winning, losing int
	for _, t := range m.history {
		if t.Pnl > 0 {
			winning++
		} else {
			losing++
		}
	}

	winRate := 0.0
	if len(m.history) > 0 {
		winRate = float64(winning) / float64(len(m.history)) * 100
	}
	roi := 0.0
	if m.initialCapital > 0 {
		roi = totalPnl / m.initialCapital * 100
	}

	return Stats{
		InitialCapital: m.initialCapital,
		Capital:        m.capital,
		Equity:         equity,
		TotalPnl:       totalPnl,
		ROIPercent:     roi,
		OpenPositions:  len(m.open),
		ClosedTrades:   len(m.history),
		WinningTrades:  winning,
		LosingTrades:   losing,
		WinRatePercent: winRate,
	}
}

// Restore 以持久化状态整体替换账户内容，仅供启动恢复使用。
func (m *Manager) Restore(capital float64, positions []Position, trades []Trade) {
	m.capital = capital
	m.open = make([]*Position, 0, len(positions))
	for i := range positions {
		pos := positions[i]
		if pos.ID == "" {
			pos.ID = uuid.NewString()
		}
		m.open = append(m.open, &pos)
	}
	m.history = append([]Trade(nil), trades...)
}
