package feed

import "time"

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Quotes 聚合一次轮询得到的各交易对现价。
// Stale 列出本次拉取失败、沿用上一次已知价格的交易对。
type Quotes struct {
	Prices    map[string]float64
	Stale     []string
	FetchedAt time.Time
}

// MarketSnapshot 聚合各交易对的K线序列，供指标计算使用。
// Missing 列出本次未能获取K线的交易对。
type MarketSnapshot struct {
	Candles     map[string][]Candle
	Missing     []string
	Timeframe   string
	RetrievedAt time.Time
}
