package account

import (
	"errors"
	"strings"
	"testing"
	"time"

	"paper-trades/internal/config"
)

func TestShortPositionPnl(t *testing.T) {
	pos := Position{
		Symbol:     "BTC/USDT",
		Side:       SideShort,
		Size:       200,
		EntryPrice: 110000,
		Leverage:   15,
	}

	got := pos.Pnl(108000)
	want := 200 * ((110000.0 - 108000.0) / 110000.0) * 15
	if diff := abs(got - want); diff > 1e-2 {
		t.Errorf("profit case: got %.4f want %.4f", got, want)
	}
	if got <= 0 {
		t.Errorf("short position should profit on falling price, got %.4f", got)
	}

	got = pos.Pnl(111000)
	want = 200 * ((110000.0 - 111000.0) / 110000.0) * 15
	if diff := abs(got - want); diff > 1e-2 {
		t.Errorf("loss case: got %.4f want %.4f", got, want)
	}
	if got >= 0 {
		t.Errorf("short position should lose on rising price, got %.4f", got)
	}
}

func TestLongPositionPnl(t *testing.T) {
	pos := Position{
		Symbol:     "ETH/USDT",
		Side:       SideLong,
		Size:       500,
		EntryPrice: 2000,
		Leverage:   5,
	}

	got := pos.Pnl(2100)
	want := 500 * ((2100.0 - 2000.0) / 2000.0) * 5
	if diff := abs(got - want); diff > 1e-9 {
		t.Errorf("got %.6f want %.6f", got, want)
	}
}

func TestOpenPositionValidation(t *testing.T) {
	mgr := newTestManager()

	cases := []struct {
		name string
		req  OpenRequest
		want error
	}{
		{"zero size", OpenRequest{Symbol: "BTC/USDT", Side: SideLong, Size: 0, Price: 100, Leverage: 2}, ErrInvalidSize},
		{"negative price", OpenRequest{Symbol: "BTC/USDT", Side: SideLong, Size: 100, Price: -1, Leverage: 2}, ErrInvalidPrice},
		{"leverage below one", OpenRequest{Symbol: "BTC/USDT", Side: SideLong, Size: 100, Price: 100, Leverage: 0.5}, ErrInvalidLeverage},
		{"leverage above max", OpenRequest{Symbol: "BTC/USDT", Side: SideLong, Size: 100, Price: 100, Leverage: 50}, ErrInvalidLeverage},
	}

	for _, tc := range cases {
		if _, err := mgr.OpenPosition(tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}

	if _, err := mgr.OpenPosition(OpenRequest{Symbol: "BTC/USDT", Side: Side("hedge"), Size: 100, Price: 100, Leverage: 2}); err == nil {
		t.Errorf("expected error for unknown side")
	}

	if got := len(mgr.OpenPositions()); got != 0 {
		t.Fatalf("failed opens must not create positions, got %d", got)
	}
	if mgr.Capital() != 10000 {
		t.Fatalf("failed opens must not touch capital, got %.2f", mgr.Capital())
	}
}

func TestOpenPositionInsufficientCapital(t *testing.T) {
	mgr := newTestManager()

	// 保证金 6000 在可用 10000 内放得下，第二笔 6000 则不行。
	first, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideLong, Size: 12000, Price: 60000, Leverage: 2,
	})
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	_, err = mgr.OpenPosition(OpenRequest{
		Symbol: "ETH/USDT", Side: SideShort, Size: 12000, Price: 2000, Leverage: 2,
	})
	var insufficient *InsufficientCapitalError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCapitalError, got %v", err)
	}
	if insufficient.Required != 6000 {
		t.Errorf("required margin: got %.2f want 6000", insufficient.Required)
	}
	if insufficient.Available != 4000 {
		t.Errorf("available capital: got %.2f want 4000", insufficient.Available)
	}

	open := mgr.OpenPositions()
	if len(open) != 1 || open[0].ID != first.ID {
		t.Fatalf("rejection must leave the open set unchanged, got %d entries", len(open))
	}
	if mgr.Capital() != 10000 {
		t.Errorf("opening reserves margin without deducting cash, capital got %.2f", mgr.Capital())
	}
}

func TestAvailableCapitalReservesMargin(t *testing.T) {
	mgr := newTestManager()

	if _, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideLong, Size: 3000, Price: 60000, Leverage: 10,
	}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if got := mgr.AvailableCapital(); abs(got-9700) > 1e-9 {
		t.Errorf("available: got %.2f want 9700", got)
	}
	if got := mgr.Capital(); got != 10000 {
		t.Errorf("capital: got %.2f want 10000", got)
	}
}

func TestClosePositionCreditsRealizedPnl(t *testing.T) {
	mgr := newTestManager()

	pos, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideShort, Size: 200, Price: 110000, Leverage: 15,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	trade, err := mgr.ClosePosition(pos.ID, 108000, "target_reached", time.Now())
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	wantPnl := 200 * ((110000.0 - 108000.0) / 110000.0) * 15
	if diff := abs(trade.Pnl - wantPnl); diff > 1e-9 {
		t.Errorf("trade pnl: got %.4f want %.4f", trade.Pnl, wantPnl)
	}
	if diff := abs(mgr.Capital() - (10000 + wantPnl)); diff > 1e-9 {
		t.Errorf("capital after close: got %.4f want %.4f", mgr.Capital(), 10000+wantPnl)
	}
	if trade.CloseReason != "target_reached" {
		t.Errorf("close reason: got %q", trade.CloseReason)
	}
	if len(mgr.OpenPositions()) != 0 {
		t.Errorf("closed position still in open set")
	}

	history := mgr.TradeHistory()
	if len(history) != 1 || history[0].PositionID != pos.ID {
		t.Fatalf("trade not recorded in history")
	}
}

func TestClosePositionUnknownID(t *testing.T) {
	mgr := newTestManager()

	if _, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideLong, Size: 1000, Price: 60000, Leverage: 5,
	}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, err := mgr.ClosePosition("missing", 61000, "manual", time.Now())
	var unknown *UnknownPositionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownPositionError, got %v", err)
	}
	if unknown.ID != "missing" {
		t.Errorf("error id: got %q", unknown.ID)
	}
	if len(mgr.OpenPositions()) != 1 {
		t.Errorf("failed close must not change the open set")
	}
	if mgr.Capital() != 10000 {
		t.Errorf("failed close must not change capital, got %.2f", mgr.Capital())
	}
}

func TestEquityIncludesUnrealizedPnl(t *testing.T) {
	mgr := newTestManager()

	if _, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideLong, Size: 1000, Price: 50000, Leverage: 10,
	}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := mgr.OpenPosition(OpenRequest{
		Symbol: "ETH/USDT", Side: SideShort, Size: 500, Price: 2000, Leverage: 4,
	}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	prices := map[string]float64{"BTC/USDT": 51000, "ETH/USDT": 1900}
	wantBTC := 1000 * ((51000.0 - 50000.0) / 50000.0) * 10
	wantETH := 500 * ((2000.0 - 1900.0) / 2000.0) * 4
	if got := mgr.Equity(prices); abs(got-(10000+wantBTC+wantETH)) > 1e-9 {
		t.Errorf("equity: got %.4f want %.4f", got, 10000+wantBTC+wantETH)
	}

	// 缺少现价的品种不计浮动盈亏。
	if got := mgr.Equity(map[string]float64{"BTC/USDT": 51000}); abs(got-(10000+wantBTC)) > 1e-9 {
		t.Errorf("equity with missing price: got %.4f want %.4f", got, 10000+wantBTC)
	}
}

func TestCloseAllInsertionOrderAndMissingPrice(t *testing.T) {
	mgr := newTestManager()

	for _, sym := range []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"} {
		if _, err := mgr.OpenPosition(OpenRequest{
			Symbol: sym, Side: SideLong, Size: 1000, Price: 100, Leverage: 5,
		}); err != nil {
			t.Fatalf("open %s failed: %v", sym, err)
		}
	}

	prices := map[string]float64{"BTC/USDT": 110, "ETH/USDT": 90}
	trades, err := mgr.CloseAll(prices, "shutdown", time.Now())
	if err == nil || !strings.Contains(err.Error(), "SOL/USDT") {
		t.Fatalf("expected missing-price error for SOL/USDT, got %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Symbol != "BTC/USDT" || trades[1].Symbol != "ETH/USDT" {
		t.Errorf("close order mismatch: got %s then %s", trades[0].Symbol, trades[1].Symbol)
	}

	open := mgr.OpenPositions()
	if len(open) != 1 || open[0].Symbol != "SOL/USDT" {
		t.Fatalf("position without a price must stay open")
	}
}

func TestStatistics(t *testing.T) {
	mgr := newTestManager()

	winner, err := mgr.OpenPosition(OpenRequest{
		Symbol: "BTC/USDT", Side: SideLong, Size: 1000, Price: 100, Leverage: 2,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	loser, err := mgr.OpenPosition(OpenRequest{
		Symbol: "ETH/USDT", Side: SideLong, Size: 1000, Price: 100, Leverage: 2,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, err := mgr.ClosePosition(winner.ID, 110, "target_reached", time.Now()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := mgr.ClosePosition(loser.ID, 95, "stop_loss_hit", time.Now()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	stats := mgr.Statistics(nil)
	if stats.ClosedTrades != 2 {
		t.Errorf("closed trades: got %d want 2", stats.ClosedTrades)
	}
	if stats.WinningTrades != 1 || stats.LosingTrades != 1 {
		t.Errorf("win/loss split: got %d/%d want 1/1", stats.WinningTrades, stats.LosingTrades)
	}
	if abs(stats.WinRatePercent-50) > 1e-9 {
		t.Errorf("win rate: got %.2f want 50", stats.WinRatePercent)
	}

	wantCapital := 10000 + 1000*0.10*2 - 1000*0.05*2
	if diff := abs(stats.Capital - wantCapital); diff > 1e-9 {
		t.Errorf("capital: got %.4f want %.4f", stats.Capital, wantCapital)
	}
	if diff := abs(stats.TotalPnl - (wantCapital - 10000)); diff > 1e-9 {
		t.Errorf("total pnl: got %.4f", stats.TotalPnl)
	}
}

func TestRestoreReplacesState(t *testing.T) {
	mgr := newTestManager()

	positions := []Position{
		{ID: "p-1", Symbol: "BTC/USDT", Side: SideShort, Size: 300, EntryPrice: 65000, Leverage: 3, OpenedAt: time.Now()},
	}
	trades := []Trade{
		{PositionID: "p-0", Symbol: "ETH/USDT", Side: SideLong, Size: 100, EntryPrice: 2000, ExitPrice: 2100, Leverage: 2, Pnl: 10},
	}

	mgr.Restore(9800, positions, trades)

	if mgr.Capital() != 9800 {
		t.Errorf("capital: got %.2f want 9800", mgr.Capital())
	}
	open := mgr.OpenPositions()
	if len(open) != 1 || open[0].ID != "p-1" {
		t.Fatalf("restored open set mismatch: %+v", open)
	}
	history := mgr.TradeHistory()
	if len(history) != 1 || history[0].PositionID != "p-0" {
		t.Fatalf("restored history mismatch: %+v", history)
	}
}

func newTestManager() *Manager {
	return NewManager(config.TradingConfig{
		InitialCapital:      10000,
		MaxLeverage:         20,
		MaxPositionFraction: 1.0,
	}, nil)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
