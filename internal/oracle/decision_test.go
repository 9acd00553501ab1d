package oracle

import (
	"strings"
	"testing"
)

func TestDecisionValidate(t *testing.T) {
	cases := []struct {
		name    string
		d       Decision
		wantErr string
	}{
		{
			name: "valid open and close",
			d: Decision{
				Summary: "BTC bullish, ETH exit",
				Reasoning: map[string]SymbolReasoning{
					"BTC/USDT": {Signal: "buy_long", Confidence: 0.8, TargetPrice: 70000, StopLoss: 62000, Leverage: 10},
				},
				Actions: []Action{
					{Action: "open", Symbol: "BTC/USDT", PositionType: "long", Size: 200, Leverage: 10},
					{Action: "close", Symbol: "ETH/USDT"},
				},
			},
		},
		{
			name: "empty decision is a hold",
			d:    Decision{Summary: "wait"},
		},
		{
			name: "close by position id only",
			d: Decision{
				Actions: []Action{{Action: "close", PositionID: "abc-123"}},
			},
		},
		{
			name:    "unknown action type",
			d:       Decision{Actions: []Action{{Action: "hedge", Symbol: "BTC/USDT"}}},
			wantErr: "action 取值非法",
		},
		{
			name:    "open without size",
			d:       Decision{Actions: []Action{{Action: "open", Symbol: "BTC/USDT", PositionType: "long", Leverage: 10}}},
			wantErr: "开仓金额必须为正数",
		},
		{
			name:    "open with bad position type",
			d:       Decision{Actions: []Action{{Action: "open", Symbol: "BTC/USDT", PositionType: "sideways", Size: 100, Leverage: 10}}},
			wantErr: "position_type 取值非法",
		},
		{
			name:    "open with leverage below one",
			d:       Decision{Actions: []Action{{Action: "open", Symbol: "BTC/USDT", PositionType: "long", Size: 100, Leverage: 0.5}}},
			wantErr: "杠杆倍数必须不小于1",
		},
		{
			name:    "close without symbol or id",
			d:       Decision{Actions: []Action{{Action: "close"}}},
			wantErr: "必须携带 symbol 或 position_id",
		},
		{
			name: "invalid reasoning signal",
			d: Decision{
				Reasoning: map[string]SymbolReasoning{
					"BTC/USDT": {Signal: "moon", Confidence: 0.5},
				},
			},
			wantErr: "signal 取值非法",
		},
		{
			name: "confidence out of range",
			d: Decision{
				Reasoning: map[string]SymbolReasoning{
					"BTC/USDT": {Signal: "hold", Confidence: 1.5},
				},
			},
			wantErr: "confidence 必须在 [0,1] 区间",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid decision, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestActionKind(t *testing.T) {
	a := Action{Action: " Open "}
	if a.Kind() != "open" {
		t.Errorf("Kind() = %q, want open", a.Kind())
	}
}
