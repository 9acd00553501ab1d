package indicator

import (
	"fmt"
	"math"
	"sync"

	talib "github.com/markcheno/go-talib"

	"paper-trades/internal/feed"
)

// minCandles 为 MACD(12,26,9) 所需的最小K线数量，低于该值 talib 会越界。
const minCandles = 26

// recentPoints 控制提供给决策提示词的近期序列长度。
const recentPoints = 10

// MACDResult 保存 MACD 关键值。
type MACDResult struct {
	Value         float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// BollingerResult 保存布林带数据。
type BollingerResult struct {
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64
	Position  float64
}

// VolumeResult 保存成交量相关统计。
type VolumeResult struct {
	Current   float64
	Average20 float64
	Ratio     float64
}

// RecentSeries 保存近期指标序列，按时间升序排列。
type RecentSeries struct {
	Closes  []float64
	EMA20   []float64
	RSI7    []float64
	RSI14   []float64
	MACD    []float64
	Volumes []float64
}

// Result 为一次指标计算的汇总。
type Result struct {
	Symbol        string
	Timeframe     string
	Series        Series
	SMA20         float64
	SMA50         float64
	EMA12         float64
	EMA20         float64
	RSI7          float64
	RSI14         float64
	MACD          MACDResult
	Bollinger     BollingerResult
	Volume        VolumeResult
	Close         float64
	PreviousClose float64
	Recent        RecentSeries
}

type cacheEntry struct {
	key    string
	result Result
}

// Calculator 提供技术指标计算并对每个交易对做简单缓存。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据给定K线计算常用技术指标。
func (c *Calculator) Compute(symbol, timeframe string, candles []feed.Candle) (Result, error) {
	if len(candles) == 0 {
		return Result{}, fmt.Errorf("计算指标失败: %s 输入K线为空", symbol)
	}
	if len(candles) < minCandles {
		return Result{}, fmt.Errorf("计算指标失败: %s K线数量 %d 不足 %d", symbol, len(candles), minCandles)
	}

	series := NewSeries(candles)
	cacheKey := fmt.Sprintf("%s:%d:%d", timeframe, series.Len(), series.Timestamps[len(series.Timestamps)-1].Unix())

	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	result := c.calculate(symbol, timeframe, series)

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{key: cacheKey, result: result}
	c.mu.Unlock()

	return result, nil
}

func (c *Calculator) calculate(symbol, timeframe string, series Series) Result {
	closePrices := series.Close
	volumes := series.Volume

	sma20 := talib.Sma(closePrices, 20)
	ema12 := talib.Ema(closePrices, 12)
	ema20 := talib.Ema(closePrices, 20)

	var sma50 float64
	if len(closePrices) >= 50 {
		sma50 = Last(talib.Sma(closePrices, 50))
	}

	macd, macdSignal, macdHist := talib.Macd(closePrices, 12, 26, 9)

	bbUpper, bbMiddle, bbLower := talib.BBands(closePrices, 20, 2, 2, talib.SMA)

	rsi7 := talib.Rsi(closePrices, 7)
	rsi14 := talib.Rsi(closePrices, 14)

	volumeAvg20 := average(SliceTail(volumes, 20))
	volumeCurrent := Last(volumes)
	volumeRatio := SafeDivide(volumeCurrent, volumeAvg20)

	lastClose := Last(closePrices)
	prevClose := Prev(closePrices)

	return Result{
		Symbol:        symbol,
		Timeframe:     timeframe,
		Series:        series,
		SMA20:         Last(sma20),
		SMA50:         sma50,
		EMA12:         Last(ema12),
		EMA20:         Last(ema20),
		RSI7:          Last(rsi7),
		RSI14:         Last(rsi14),
		MACD:          buildMACD(macd, macdSignal, macdHist),
		Bollinger:     buildBollinger(closePrices, bbUpper, bbMiddle, bbLower),
		Volume:        VolumeResult{Current: volumeCurrent, Average20: volumeAvg20, Ratio: volumeRatio},
		Close:         lastClose,
		PreviousClose: prevClose,
		Recent: RecentSeries{
			Closes:  SliceTail(closePrices, recentPoints),
			EMA20:   SliceTail(ema20, recentPoints),
			RSI7:    SliceTail(rsi7, recentPoints),
			RSI14:   SliceTail(rsi14, recentPoints),
			MACD:    SliceTail(macd, recentPoints),
			Volumes: SliceTail(volumes, recentPoints),
		},
	}
}

func buildMACD(macd, signal, hist []float64) MACDResult {
	return MACDResult{
		Value:         Last(macd),
		Signal:        Last(signal),
		Histogram:     Last(hist),
		PrevHistogram: Prev(hist),
	}
}

func buildBollinger(close, upper, middle, lower []float64) BollingerResult {
	u := Last(upper)
	m := Last(middle)
	l := Last(lower)
	histWidth := u - l
	bandwidth := SafeDivide(histWidth, m)

	position := 0.0
	if histWidth > 0 {
		position = SafeDivide(Last(close)-l, histWidth)
	}

	// 将位置限制在[0,1]区间，便于后续使用。
	position = math.Max(0, math.Min(1, position))

	return BollingerResult{
		Upper:     u,
		Middle:    m,
		Lower:     l,
		Bandwidth: bandwidth,
		Position:  position,
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
