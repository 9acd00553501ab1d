package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"paper-trades/internal/account"
	"paper-trades/internal/config"
	"paper-trades/internal/oracle"
)

func TestApplyOpenUsesReasoningTargets(t *testing.T) {
	manager := newTestManager(t, 10000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Reasoning: map[string]oracle.SymbolReasoning{
			"BTCUSDT": {Signal: "buy_long", TargetPrice: 70000, StopLoss: 62000},
		},
		Actions: []oracle.Action{
			{Action: "open", Symbol: "BTCUSDT", PositionType: "long", Size: 200, Leverage: 10},
		},
	}
	prices := map[string]float64{"BTCUSDT": 65000}

	results := executor.Apply(context.Background(), decision, prices, time.Now())
	if len(results) != 1 {
		t.Fatalf("Apply returned %d results, want 1", len(results))
	}
	result := results[0]
	if !result.Executed || result.Err != nil {
		t.Fatalf("open action not executed: %v", result.Err)
	}
	if result.Opened == nil {
		t.Fatal("open result has no position")
	}
	if result.Opened.TargetPrice != 70000 {
		t.Errorf("TargetPrice = %v, want 70000", result.Opened.TargetPrice)
	}
	if result.Opened.StopLoss != 62000 {
		t.Errorf("StopLoss = %v, want 62000", result.Opened.StopLoss)
	}
	if result.Opened.EntryPrice != 65000 {
		t.Errorf("EntryPrice = %v, want 65000", result.Opened.EntryPrice)
	}
	if ExecutedCount(results) != 1 {
		t.Errorf("ExecutedCount = %d, want 1", ExecutedCount(results))
	}
}

func TestApplyContinuesAfterInsufficientCapital(t *testing.T) {
	manager := newTestManager(t, 1000)
	openPosition(t, manager, "ETHUSDT", account.SideLong, 100, 3000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{
			{Action: "open", Symbol: "BTCUSDT", PositionType: "long", Size: 5000, Leverage: 2},
			{Action: "close", Symbol: "ETHUSDT", Reason: "take profit"},
		},
	}
	prices := map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3100}

	results := executor.Apply(context.Background(), decision, prices, time.Now())
	if len(results) != 2 {
		t.Fatalf("Apply returned %d results, want 2", len(results))
	}

	var insufficient *account.InsufficientCapitalError
	if results[0].Executed || !errors.As(results[0].Err, &insufficient) {
		t.Fatalf("first action: Executed=%v err=%v, want InsufficientCapitalError", results[0].Executed, results[0].Err)
	}
	if !results[1].Executed || results[1].Err != nil {
		t.Fatalf("second action not executed after first failed: %v", results[1].Err)
	}
	if len(results[1].Closed) != 1 {
		t.Fatalf("close result has %d trades, want 1", len(results[1].Closed))
	}
	if results[1].Closed[0].CloseReason != "take profit" {
		t.Errorf("CloseReason = %q, want %q", results[1].Closed[0].CloseReason, "take profit")
	}
	if got := len(manager.OpenPositions()); got != 0 {
		t.Errorf("open positions after batch = %d, want 0", got)
	}
}

func TestApplyCloseBySymbolClosesAllMatches(t *testing.T) {
	manager := newTestManager(t, 10000)
	openPosition(t, manager, "BTCUSDT", account.SideLong, 200, 60000)
	openPosition(t, manager, "ETHUSDT", account.SideShort, 150, 3000)
	openPosition(t, manager, "BTCUSDT", account.SideShort, 100, 64000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{{Action: "close", Symbol: "BTCUSDT"}},
	}
	prices := map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3000}

	results := executor.Apply(context.Background(), decision, prices, time.Now())
	if !results[0].Executed {
		t.Fatalf("close action failed: %v", results[0].Err)
	}
	if len(results[0].Closed) != 2 {
		t.Fatalf("closed %d trades, want 2", len(results[0].Closed))
	}
	for _, trade := range results[0].Closed {
		if trade.Symbol != "BTCUSDT" {
			t.Errorf("closed trade symbol = %q, want BTCUSDT", trade.Symbol)
		}
		if trade.CloseReason != defaultCloseReason {
			t.Errorf("CloseReason = %q, want %q", trade.CloseReason, defaultCloseReason)
		}
	}

	remaining := manager.OpenPositions()
	if len(remaining) != 1 || remaining[0].Symbol != "ETHUSDT" {
		t.Fatalf("remaining positions = %+v, want single ETHUSDT", remaining)
	}
}

func TestApplyCloseByPositionID(t *testing.T) {
	manager := newTestManager(t, 10000)
	first := openPosition(t, manager, "BTCUSDT", account.SideLong, 200, 60000)
	second := openPosition(t, manager, "BTCUSDT", account.SideLong, 100, 61000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{{Action: "close", PositionID: second.ID}},
	}
	prices := map[string]float64{"BTCUSDT": 65000}

	results := executor.Apply(context.Background(), decision, prices, time.Now())
	if !results[0].Executed {
		t.Fatalf("close action failed: %v", results[0].Err)
	}
	if len(results[0].Closed) != 1 || results[0].Closed[0].PositionID != second.ID {
		t.Fatalf("closed trades = %+v, want only %s", results[0].Closed, second.ID)
	}

	remaining := manager.OpenPositions()
	if len(remaining) != 1 || remaining[0].ID != first.ID {
		t.Fatalf("remaining positions = %+v, want only %s", remaining, first.ID)
	}
}

func TestApplyCloseUnknownPositionID(t *testing.T) {
	manager := newTestManager(t, 10000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{{Action: "close", PositionID: "missing"}},
	}

	results := executor.Apply(context.Background(), decision, map[string]float64{}, time.Now())
	var unknown *account.UnknownPositionError
	if results[0].Executed || !errors.As(results[0].Err, &unknown) {
		t.Fatalf("Executed=%v err=%v, want UnknownPositionError", results[0].Executed, results[0].Err)
	}
}

func TestApplyCloseWithoutOpenPositions(t *testing.T) {
	manager := newTestManager(t, 10000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{{Action: "close", Symbol: "BTCUSDT"}},
	}
	prices := map[string]float64{"BTCUSDT": 65000}

	results := executor.Apply(context.Background(), decision, prices, time.Now())
	if results[0].Executed || results[0].Err == nil {
		t.Fatalf("close without positions: Executed=%v err=%v, want recorded failure", results[0].Executed, results[0].Err)
	}
}

func TestApplyOpenSkipsSymbolWithoutPrice(t *testing.T) {
	manager := newTestManager(t, 10000)
	executor := NewExecutor(manager, nil)

	decision := oracle.Decision{
		Actions: []oracle.Action{
			{Action: "open", Symbol: "SOLUSDT", PositionType: "long", Size: 100, Leverage: 5},
		},
	}

	results := executor.Apply(context.Background(), decision, map[string]float64{"BTCUSDT": 65000}, time.Now())
	if results[0].Executed || results[0].Err == nil {
		t.Fatalf("open without price: Executed=%v err=%v, want recorded failure", results[0].Executed, results[0].Err)
	}
	if got := len(manager.OpenPositions()); got != 0 {
		t.Errorf("open positions = %d, want 0", got)
	}
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	manager := newTestManager(t, 10000)
	executor := NewExecutor(manager, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision := oracle.Decision{
		Actions: []oracle.Action{
			{Action: "open", Symbol: "BTCUSDT", PositionType: "long", Size: 100, Leverage: 5},
		},
	}

	results := executor.Apply(ctx, decision, map[string]float64{"BTCUSDT": 65000}, time.Now())
	if results[0].Executed || !errors.Is(results[0].Err, context.Canceled) {
		t.Fatalf("Executed=%v err=%v, want context.Canceled", results[0].Executed, results[0].Err)
	}
	if got := len(manager.OpenPositions()); got != 0 {
		t.Errorf("open positions = %d, want 0", got)
	}
}

func newTestManager(t *testing.T, capital float64) *account.Manager {
	t.Helper()
	cfg := config.TradingConfig{
		InitialCapital:      capital,
		MaxLeverage:         50,
		MaxPositionFraction: 1,
	}
	return account.NewManager(cfg, nil)
}

func openPosition(t *testing.T, manager *account.Manager, symbol string, side account.Side, size, price float64) account.Position {
	t.Helper()
	position, err := manager.OpenPosition(account.OpenRequest{
		Symbol:   symbol,
		Side:     side,
		Size:     size,
		Price:    price,
		Leverage: 10,
		OpenedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("OpenPosition(%s) failed: %v", symbol, err)
	}
	return position
}
