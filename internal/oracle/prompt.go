package oracle

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"paper-trades/internal/account"
	"paper-trades/internal/analysis"
)

const decisionTemplate = `你是一名激进的加密货币交易员，精通技术分析、市场结构与杠杆交易。请基于以下市场数据做出主动的交易决策，多空两个方向的机会都要考虑。

距离开始交易已经过去 {{ .ElapsedMinutes }} 分钟，当前时间为 {{ .CurrentTime }}，这是第 {{ .InvocationCount }} 次唤醒。本次唤醒原因: {{ .TriggerReason }}。

以下所有价格与指标序列均按时间排序：最旧 → 最新。

========== 市场状态 ==========
{{ range .Reports }}
---------- {{ coin .Symbol }} ----------
current_price = {{ f2 .Price }}, current_ema20 = {{ f3 .EMA20 }}, current_macd = {{ f3 .MACD }}, current_rsi_7 = {{ f3 .RSI7 }}

近期序列：
Prices: {{ series2 .Recent.Closes }}
EMA-20: {{ series3 .Recent.EMA20 }}
MACD: {{ series3 .Recent.MACD }}
RSI-7: {{ series3 .Recent.RSI7 }}
RSI-14: {{ series3 .Recent.RSI14 }}

中长期背景：
  20周期EMA: {{ f3 .EMA20 }} vs. 50周期SMA: {{ f3 .SMA50 }}
  当前成交量: {{ f2 .VolumeCurrent }} vs. 平均成交量: {{ f2 .VolumeAverage }}
  趋势: {{ .Trend }}
  RSI信号: {{ .RSISignal }}
  布林带信号: {{ .BollingerSignal }}
{{ end }}
========== 账户与绩效 ==========
总收益率: {{ f2 .Stats.ROIPercent }}%
可用资金: ${{ f2 .AvailableCash }}
账户净值: ${{ f2 .Stats.Equity }}
{{ if .Positions }}当前持仓：
{{ range .Positions }}  - {{ .Symbol }}: {{ .Side }} ${{ f2 .Size }} @ ${{ f2 .EntryPrice }}, 现价: ${{ f2 .CurrentPrice }}, 盈亏: ${{ f2s .Pnl }} ({{ f2s .PnlPercent }}%), 杠杆: {{ f0 .Leverage }}x
{{ end }}{{ else }}当前持仓: 无
{{ end }}
累计交易 {{ .Stats.ClosedTrades }} 笔，盈利 {{ .Stats.WinningTrades }} 笔，亏损 {{ .Stats.LosingTrades }} 笔，胜率 {{ f2 .Stats.WinRatePercent }}%。

单笔最大可用金额: ${{ f2 .MaxPositionSize }}

交易纪律：
1. 积极寻找机会：RSI < 30 为超卖（考虑做多），RSI > 70 为超买（考虑做空）；
2. MACD 上穿考虑做多，下穿考虑做空；价格位于 EMA-20 上方偏多，下方偏空；放量确认趋势；
3. 中等把握使用 10-15 倍杠杆，高把握（confidence > 0.8）可用 15-20 倍，最低不低于 5 倍；
4. 单笔使用可用资金的 15-25%，可同时持有多个交易对的多空仓位；
5. 持仓亏损超过 -8% 应考虑止损，盈利达到 +12-15% 应考虑止盈；
6. 不确定时保持观望，actions 返回空数组。

请严格输出唯一的 JSON 对象，不要附加任何其他文本，格式如下：
{
  "summary": "...",
  "chain_of_thought": {
    "BTC/USDT": {
      "signal": "buy_long|buy_short|hold|close",
      "confidence": 0.0,
      "justification": "...",
      "target_price": 0.0,
      "stop_loss": 0.0,
      "leverage": 10,
      "risk_usd": 0.0
    }
  },
  "actions": [
    {
      "action": "open|close",
      "symbol": "BTC/USDT",
      "position_type": "long|short",
      "size": 100.0,
      "leverage": 10.0,
      "position_id": "",
      "reason": "..."
    }
  ]
}

注意事项：
- 所有价格与金额字段必须为数值，不要返回字符串；
- actions 中的 symbol 必须来自上方列出的交易对；
- 开仓时 position_type、size、leverage 必填，并在 chain_of_thought 中给出 target_price 与 stop_loss；
- 平仓时 position_id 可留空，留空则平掉该 symbol 下的全部仓位；
- 观望时 actions 返回 []。
`

var promptFuncs = template.FuncMap{
	"f0":      func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"f2":      func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f3":      func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"f2s":     func(v float64) string { return fmt.Sprintf("%+.2f", v) },
	"series2": func(values []float64) string { return formatSeries(values, 2) },
	"series3": func(values []float64) string { return formatSeries(values, 3) },
	"coin":    coinName,
}

var tmpl = template.Must(template.New("decision").Funcs(promptFuncs).Parse(decisionTemplate))

// DecisionRequest 汇集一次决策所需的全部上下文。
// ElapsedMinutes 与 InvocationCount 由客户端在调用时填充。
type DecisionRequest struct {
	TriggerReason   string
	Overview        analysis.Overview
	Stats           account.Stats
	Positions       []account.Position
	Prices          map[string]float64
	AvailableCash   float64
	MaxPositionSize float64
	ElapsedMinutes  int
	InvocationCount int
	CurrentTime     time.Time
}

type promptPosition struct {
	Symbol       string
	Side         string
	Size         float64
	EntryPrice   float64
	CurrentPrice float64
	Pnl          float64
	PnlPercent   float64
	Leverage     float64
}

type promptContext struct {
	ElapsedMinutes  int
	CurrentTime     string
	InvocationCount int
	TriggerReason   string
	Reports         []analysis.SymbolReport
	Stats           account.Stats
	Positions       []promptPosition
	AvailableCash   float64
	MaxPositionSize float64
}

// BuildPrompt 将市场概览、账户状态与持仓渲染成提示词字符串。
func BuildPrompt(req DecisionRequest) (string, error) {
	reason := strings.TrimSpace(req.TriggerReason)
	if reason == "" {
		reason = "scheduled_interval"
	}

	now := req.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}

	ctx := promptContext{
		ElapsedMinutes:  req.ElapsedMinutes,
		CurrentTime:     now.Format("2006-01-02 15:04:05"),
		InvocationCount: req.InvocationCount,
		TriggerReason:   reason,
		Reports:         req.Overview.Reports,
		Stats:           req.Stats,
		Positions:       buildPromptPositions(req.Positions, req.Prices),
		AvailableCash:   req.AvailableCash,
		MaxPositionSize: req.MaxPositionSize,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}

// buildPromptPositions 计算各持仓的浮动盈亏，缺少现价的持仓不纳入提示词。
func buildPromptPositions(positions []account.Position, prices map[string]float64) []promptPosition {
	views := make([]promptPosition, 0, len(positions))
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}
		pnl := pos.Pnl(price)
		views = append(views, promptPosition{
			Symbol:       pos.Symbol,
			Side:         strings.ToUpper(string(pos.Side)),
			Size:         pos.Size,
			EntryPrice:   pos.EntryPrice,
			CurrentPrice: price,
			Pnl:          pnl,
			PnlPercent:   pnl / pos.Size * 100,
			Leverage:     pos.Leverage,
		})
	}
	return views
}

func formatSeries(values []float64, precision int) string {
	if len(values) == 0 {
		return "[]"
	}

	var builder strings.Builder
	builder.WriteString("[")
	for i, v := range values {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fmt.Sprintf("%.*f", precision, v))
	}
	builder.WriteString("]")
	return builder.String()
}

func coinName(symbol string) string {
	if idx := strings.Index(symbol, "/"); idx > 0 {
		return symbol[:idx]
	}
	return strings.TrimSuffix(symbol, "USDT")
}
