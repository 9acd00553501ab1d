package report

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"paper-trades/internal/snapshot"
)

const (
	chartWidthPx        = 1200
	equityChartHeightPx = 420
	priceChartHeightPx  = 300

	colorEquity = "#3b82f6"
	colorPrice  = "#fbbf24"
)

// RenderHTML 把净值曲线与各交易对价格曲线渲染成单页 HTML 报告。
func RenderHTML(summary Summary, history []snapshot.ValuePoint, prices map[string][]snapshot.PricePoint) ([]byte, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("report: 净值历史为空，无法生成报告")
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityChart(summary, history))

	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		points := prices[symbol]
		if len(points) == 0 {
			continue
		}
		page.AddCharts(buildPriceChart(symbol, points))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("report: 渲染报告失败: %w", err)
	}
	return buf.Bytes(), nil
}

func buildEquityChart(summary Summary, history []snapshot.ValuePoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", equityChartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "账户净值",
			Subtitle: fmt.Sprintf("收益率 %+.2f%% | 最大回撤 %.2f%% | 胜率 %.1f%%",
				summary.Performance.TotalReturn*100,
				summary.Performance.MaxDrawdown*100,
				summary.Stats.WinRatePercent),
			Left: "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, len(history))
	data := make([]opts.LineData, len(history))
	for i, point := range history {
		xAxis[i] = formatAxisTime(point.Timestamp)
		data[i] = opts.LineData{Value: point.Value}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

func buildPriceChart(symbol string, points []snapshot.PricePoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", priceChartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: symbol, Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, len(points))
	data := make([]opts.LineData, len(points))
	for i, point := range points {
		xAxis[i] = formatAxisTime(point.Timestamp)
		data[i] = opts.LineData{Value: point.Price}
	}
	line.SetXAxis(xAxis)
	line.AddSeries(symbol, data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorPrice, Width: 2}))
	return line
}

func formatAxisTime(t time.Time) string {
	return t.UTC().Format("01-02 15:04")
}
