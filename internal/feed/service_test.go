package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paper-trades/internal/config"
)

func TestLatestPricesFetchesAllSymbols(t *testing.T) {
	stub := newStubMarket()
	stub.prices["BTC/USDT"] = 65000
	stub.prices["ETH/USDT"] = 3200
	stub.prices["SOL/USDT"] = 180

	svc := newTestService(stub, "BTC/USDT", "ETH/USDT", "SOL/USDT")

	quotes, err := svc.LatestPrices(context.Background())
	if err != nil {
		t.Fatalf("LatestPrices returned error: %v", err)
	}
	if len(quotes.Prices) != 3 {
		t.Fatalf("expected 3 prices, got %d", len(quotes.Prices))
	}
	if quotes.Prices["ETH/USDT"] != 3200 {
		t.Errorf("unexpected ETH price: %v", quotes.Prices["ETH/USDT"])
	}
	if len(quotes.Stale) != 0 {
		t.Errorf("expected no stale symbols, got %v", quotes.Stale)
	}
	if quotes.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
}

func TestLatestPricesReusesLastKnownPrice(t *testing.T) {
	stub := newStubMarket()
	stub.prices["BTC/USDT"] = 65000
	stub.prices["ETH/USDT"] = 3200

	svc := newTestService(stub, "BTC/USDT", "ETH/USDT")

	if _, err := svc.LatestPrices(context.Background()); err != nil {
		t.Fatalf("seed fetch returned error: %v", err)
	}

	stub.setPriceErr("ETH/USDT", errors.New("timeout"))
	stub.prices["BTC/USDT"] = 66000

	quotes, err := svc.LatestPrices(context.Background())
	if err != nil {
		t.Fatalf("LatestPrices returned error: %v", err)
	}
	if quotes.Prices["BTC/USDT"] != 66000 {
		t.Errorf("expected fresh BTC price 66000, got %v", quotes.Prices["BTC/USDT"])
	}
	if quotes.Prices["ETH/USDT"] != 3200 {
		t.Errorf("expected last known ETH price 3200, got %v", quotes.Prices["ETH/USDT"])
	}
	if len(quotes.Stale) != 1 || quotes.Stale[0] != "ETH/USDT" {
		t.Errorf("expected stale [ETH/USDT], got %v", quotes.Stale)
	}
}

func TestLatestPricesAllSymbolsUnavailable(t *testing.T) {
	stub := newStubMarket()
	stub.setPriceErr("BTC/USDT", errors.New("down"))
	stub.setPriceErr("ETH/USDT", errors.New("down"))

	svc := newTestService(stub, "BTC/USDT", "ETH/USDT")

	if _, err := svc.LatestPrices(context.Background()); err == nil {
		t.Fatal("expected error when no symbol has a usable price")
	}
}

func TestLatestPricesOmitsSymbolWithoutHistory(t *testing.T) {
	stub := newStubMarket()
	stub.prices["BTC/USDT"] = 65000
	stub.setPriceErr("ETH/USDT", errors.New("down"))

	svc := newTestService(stub, "BTC/USDT", "ETH/USDT")

	quotes, err := svc.LatestPrices(context.Background())
	if err != nil {
		t.Fatalf("LatestPrices returned error: %v", err)
	}
	if _, ok := quotes.Prices["ETH/USDT"]; ok {
		t.Error("expected ETH to be absent without last known price")
	}
	if len(quotes.Stale) != 0 {
		t.Errorf("symbol without history must not be marked stale, got %v", quotes.Stale)
	}
}

func TestCandleHistorySkipsFailedSymbols(t *testing.T) {
	stub := newStubMarket()
	stub.candles["BTC/USDT"] = makeCandles(50, 64000)
	stub.candles["SOL/USDT"] = makeCandles(50, 170)
	stub.setCandleErr("ETH/USDT", errors.New("timeout"))

	svc := newTestService(stub, "BTC/USDT", "ETH/USDT", "SOL/USDT")

	snapshot, err := svc.CandleHistory(context.Background())
	if err != nil {
		t.Fatalf("CandleHistory returned error: %v", err)
	}
	if len(snapshot.Candles) != 2 {
		t.Fatalf("expected candles for 2 symbols, got %d", len(snapshot.Candles))
	}
	if len(snapshot.Missing) != 1 || snapshot.Missing[0] != "ETH/USDT" {
		t.Errorf("expected missing [ETH/USDT], got %v", snapshot.Missing)
	}
	if got := len(snapshot.Candles["BTC/USDT"]); got != 50 {
		t.Errorf("expected 50 BTC candles, got %d", got)
	}
}

func TestCandleHistoryAllSymbolsUnavailable(t *testing.T) {
	stub := newStubMarket()
	stub.setCandleErr("BTC/USDT", errors.New("down"))

	svc := newTestService(stub, "BTC/USDT")

	if _, err := svc.CandleHistory(context.Background()); err == nil {
		t.Fatal("expected error when no symbol has candles")
	}
}

func TestLastKnownPricesReturnsCopy(t *testing.T) {
	stub := newStubMarket()
	stub.prices["BTC/USDT"] = 65000

	svc := newTestService(stub, "BTC/USDT")
	if _, err := svc.LatestPrices(context.Background()); err != nil {
		t.Fatalf("seed fetch returned error: %v", err)
	}

	known := svc.LastKnownPrices()
	known["BTC/USDT"] = 1

	again := svc.LastKnownPrices()
	if again["BTC/USDT"] != 65000 {
		t.Errorf("internal map mutated through returned copy: %v", again["BTC/USDT"])
	}
}

func newTestService(stub *stubMarket, symbols ...string) *Service {
	cfg := config.FeedConfig{
		Exchange:       "binance",
		KlineTimeframe: "1h",
		KlineLimit:     50,
	}
	return NewService(cfg, stub, symbols, nil)
}

func makeCandles(n int, base float64) []Candle {
	candles := make([]Candle, 0, n)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := base + float64(i)
		candles = append(candles, Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
		})
	}
	return candles
}

type stubMarket struct {
	mu         sync.Mutex
	prices     map[string]float64
	priceErrs  map[string]error
	candles    map[string][]Candle
	candleErrs map[string]error
}

func newStubMarket() *stubMarket {
	return &stubMarket{
		prices:     make(map[string]float64),
		priceErrs:  make(map[string]error),
		candles:    make(map[string][]Candle),
		candleErrs: make(map[string]error),
	}
}

func (s *stubMarket) setPriceErr(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceErrs[symbol] = err
}

func (s *stubMarket) setCandleErr(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candleErrs[symbol] = err
}

func (s *stubMarket) LastPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.priceErrs[symbol]; err != nil {
		return 0, err
	}
	return s.prices[symbol], nil
}

func (s *stubMarket) FetchCandles(_ context.Context, symbol, _ string, _ int64) ([]Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.candleErrs[symbol]; err != nil {
		return nil, err
	}
	return s.candles[symbol], nil
}
