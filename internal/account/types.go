package account

import (
	"fmt"
	"strings"
	"time"
)

// Side 表示仓位方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide 解析仓位方向字符串。
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "long":
		return SideLong, nil
	case "short":
		return SideShort, nil
	default:
		return "", fmt.Errorf("account: 未知的仓位方向 %q", value)
	}
}

// Position 表示一笔未平仓的杠杆仓位。开仓后除平仓外不可变更。
type Position struct {
	ID          string
	Symbol      string
	Side        Side
	Size        float64 // 名义价值
	EntryPrice  float64
	Leverage    float64
	OpenedAt    time.Time
	TargetPrice float64 // 0 表示未设置
	StopLoss    float64 // 0 表示未设置
}

// Margin 返回仓位占用的保证金（名义价值/杠杆）。
func (p Position) Margin() float64 {
	if p.Leverage <= 0 {
		return p.Size
	}
	return p.Size / p.Leverage
}

// Pnl 按给定价格计算盈亏。多头按 (现价-开仓价)/开仓价，空头取反，
// 再乘以名义价值与杠杆。已实现与未实现盈亏共用该公式。
func (p Position) Pnl(currentPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	var changePct float64
	if p.Side == SideShort {
		changePct = (p.EntryPrice - currentPrice) / p.EntryPrice
	} else {
		changePct = (currentPrice - p.EntryPrice) / p.EntryPrice
	}
	return p.Size * changePct * p.Leverage
}

// Trade 记录一笔已平仓交易，创建后不可变。
type Trade struct {
	PositionID  string
	Symbol      string
	Side        Side
	Size        float64
	EntryPrice  float64
	ExitPrice   float64
	Leverage    float64
	Pnl         float64
	OpenedAt    time.Time
	ClosedAt    time.Time
	CloseReason string
}

// Stats 汇总账户统计信息。
type Stats struct {
	InitialCapital float64 `json:"initial_capital"`
	Capital        float64 `json:"capital"`
	Equity         float64 `json:"equity"`
	TotalPnl       float64 `json:"total_pnl"`
	ROIPercent     float64 `json:"roi_percent"`
	OpenPositions  int     `json:"open_positions"`
	ClosedTrades   int     `json:"closed_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRatePercent float64 `json:"win_rate_percent"`
}

// OpenRequest 描述一笔开仓请求。OpenedAt 为零值时取当前时间。
type OpenRequest struct {
	Symbol      string
	Side        Side
	Size        float64
	Price       float64
	Leverage    float64
	TargetPrice float64
	StopLoss    float64
	OpenedAt    time.Time
}
