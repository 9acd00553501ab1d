package report

import (
	"math"
	"time"

	"paper-trades/internal/account"
	"paper-trades/internal/snapshot"
)

// Summary 汇总一次运行的账户表现，供停机报告与只读接口使用。
type Summary struct {
	GeneratedAt time.Time
	Iterations  int
	Stats       account.Stats
	Performance Performance
}

// Performance 为净值曲线与成交历史导出的绩效指标。
type Performance struct {
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
	BestTrade   float64
	WorstTrade  float64
}

// Build 根据账户统计、净值曲线与成交历史生成运行摘要。
func Build(stats account.Stats, history []snapshot.ValuePoint, trades []account.Trade, iterations int, generatedAt time.Time) Summary {
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	return Summary{
		GeneratedAt: generatedAt,
		Iterations:  iterations,
		Stats:       stats,
		Performance: buildPerformance(history, trades),
	}
}

func buildPerformance(history []snapshot.ValuePoint, trades []account.Trade) Performance {
	equity := make([]float64, 0, len(history))
	for _, point := range history {
		equity = append(equity, point.Value)
	}

	perf := Performance{}
	if len(equity) > 0 {
		initial := equity[0]
		final := equity[len(equity)-1]
		if initial > 0 {
			perf.TotalReturn = final/initial - 1
		}
		perf.MaxDrawdown = computeDrawdown(equity)
		perf.SharpeRatio = computeSharpe(stepReturns(equity))
	}

	for i, trade := range trades {
		if i == 0 {
			perf.BestTrade = trade.Pnl
			perf.WorstTrade = trade.Pnl
			continue
		}
		if trade.Pnl > perf.BestTrade {
			perf.BestTrade = trade.Pnl
		}
		if trade.Pnl < perf.WorstTrade {
			perf.WorstTrade = trade.Pnl
		}
	}
	return perf
}

func stepReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i]/prev-1)
	}
	return returns
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

// computeSharpe 按采样步长计算夏普比率，采样间隔不固定，因此不做年化。
func computeSharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	if len(returns) > 1 {
		variance /= float64(len(returns) - 1)
	}

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
