package analysis

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/feed"
	"paper-trades/internal/indicator"
)

// SymbolReport 汇总单个交易对的技术面数据，用于后续提示词拼装。
type SymbolReport struct {
	Symbol          string
	Price           float64
	EMA20           float64
	SMA50           float64
	MACD            float64
	RSI7            float64
	RSI14           float64
	VolumeCurrent   float64
	VolumeAverage   float64
	Trend           string
	RSISignal       string
	BollingerSignal string
	Recent          indicator.RecentSeries
}

// Overview 为一次完整的市场技术面概览。
type Overview struct {
	GeneratedAt time.Time
	Reports     []SymbolReport
}

// Report 按交易对查找报告，未找到时返回 false。
func (o Overview) Report(symbol string) (SymbolReport, bool) {
	for _, report := range o.Reports {
		if report.Symbol == symbol {
			return report, true
		}
	}
	return SymbolReport{}, false
}

// Extractor 根据K线快照提取各交易对的技术面概览。
type Extractor struct {
	indicators *indicator.Calculator
	logger     *zap.Logger
}

// NewExtractor 创建技术面提取器。
func NewExtractor(calc *indicator.Calculator, logger *zap.Logger) *Extractor {
	if calc == nil {
		calc = indicator.NewCalculator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		indicators: calc,
		logger:     logger,
	}
}

// BuildOverview 为快照中的每个交易对计算指标并生成概览。
// livePrices 中的现价优先于K线收盘价；单个交易对指标失败时跳过该交易对。
func (e *Extractor) BuildOverview(ctx context.Context, snapshot feed.MarketSnapshot, livePrices map[string]float64) (Overview, error) {
	select {
	case <-ctx.Done():
		return Overview{}, ctx.Err()
	default:
	}

	symbols := make([]string, 0, len(snapshot.Candles))
	for symbol := range snapshot.Candles {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	timeframe := snapshot.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}

	overview := Overview{
		GeneratedAt: snapshot.RetrievedAt.UTC(),
		Reports:     make([]SymbolReport, 0, len(symbols)),
	}

	for _, symbol := range symbols {
		result, err := e.indicators.Compute(symbol, timeframe, snapshot.Candles[symbol])
		if err != nil {
			e.logger.Warn("指标计算失败，跳过该交易对",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}

		price := clean(result.Close)
		if live, ok := livePrices[symbol]; ok && live > 0 {
			price = live
		}

		overview.Reports = append(overview.Reports, SymbolReport{
			Symbol:          symbol,
			Price:           price,
			EMA20:           clean(result.EMA20),
			SMA50:           clean(result.SMA50),
			MACD:            clean(result.MACD.Value),
			RSI7:            clean(result.RSI7),
			RSI14:           clean(result.RSI14),
			VolumeCurrent:   clean(result.Volume.Current),
			VolumeAverage:   clean(result.Volume.Average20),
			Trend:           determineTrend(price, result.SMA20, result.SMA50),
			RSISignal:       determineRSIState(result.RSI14),
			BollingerSignal: determineBollingerSignal(price, result.Bollinger),
			Recent:          cleanRecent(result.Recent),
		})
	}

	if len(overview.Reports) == 0 {
		return Overview{}, errors.New("analysis: 没有任何交易对可生成技术面概览")
	}

	e.logger.Debug("技术面概览生成完成",
		zap.Int("symbols", len(overview.Reports)),
		zap.Time("generated_at", overview.GeneratedAt),
	)

	return overview, nil
}

func determineTrend(price, sma20, sma50 float64) string {
	if sma20 <= 0 || sma50 <= 0 {
		return "neutral"
	}

	switch {
	case price > sma20 && sma20 > sma50:
		return "strong_uptrend"
	case price > sma20 && sma20 < sma50:
		return "weak_uptrend"
	case price < sma20 && sma20 < sma50:
		return "strong_downtrend"
	case price < sma20 && sma20 > sma50:
		return "weak_downtrend"
	default:
		return "neutral"
	}
}

func determineRSIState(rsi float64) string {
	rsi = clean(rsi)
	switch {
	case rsi >= 70:
		return "overbought"
	case rsi <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}

func determineBollingerSignal(price float64, bb indicator.BollingerResult) string {
	switch {
	case bb.Upper > 0 && price > bb.Upper:
		return "above_upper_band"
	case bb.Lower > 0 && price < bb.Lower:
		return "below_lower_band"
	default:
		return "neutral"
	}
}

func cleanRecent(recent indicator.RecentSeries) indicator.RecentSeries {
	return indicator.RecentSeries{
		Closes:  cleanSlice(recent.Closes),
		EMA20:   cleanSlice(recent.EMA20),
		RSI7:    cleanSlice(recent.RSI7),
		RSI14:   cleanSlice(recent.RSI14),
		MACD:    cleanSlice(recent.MACD),
		Volumes: cleanSlice(recent.Volumes),
	}
}

func cleanSlice(values []float64) []float64 {
	dst := make([]float64, len(values))
	for i, v := range values {
		dst[i] = clean(v)
	}
	return dst
}

func clean(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
