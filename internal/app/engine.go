package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/account"
	"paper-trades/internal/analysis"
	"paper-trades/internal/config"
	"paper-trades/internal/execution"
	"paper-trades/internal/feed"
	"paper-trades/internal/monitor"
	"paper-trades/internal/oracle"
	"paper-trades/internal/report"
	"paper-trades/internal/snapshot"
	"paper-trades/internal/trigger"
)

const reportFileName = "report.html"

type marketFeed interface {
	LatestPrices(ctx context.Context) (feed.Quotes, error)
	CandleHistory(ctx context.Context) (feed.MarketSnapshot, error)
	LastKnownPrices() map[string]float64
}

type decisionOracle interface {
	Decide(ctx context.Context, req oracle.DecisionRequest) (oracle.Decision, error)
}

var (
	_ marketFeed     = (*feed.Service)(nil)
	_ decisionOracle = (*oracle.Client)(nil)
)

// Dependencies 聚合引擎运行所需的全部组件。
type Dependencies struct {
	Account   *account.Manager
	Feed      marketFeed
	Analyzer  *analysis.Extractor
	Oracle    decisionOracle
	Executor  *execution.Executor
	Scheduler *trigger.Scheduler
	Events    *monitor.Service
	Snapshots *snapshot.Store
}

// Engine 驱动单线程的轮询主循环：行情采样、触发判定、模型决策与指令执行
// 全部在同一个循环里串行完成，对外只通过原子发布的 StateView 暴露状态。
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	account   *account.Manager
	feed      marketFeed
	analyzer  *analysis.Extractor
	oracle    decisionOracle
	executor  *execution.Executor
	scheduler *trigger.Scheduler
	events    *monitor.Service
	snapshots *snapshot.Store

	state        *trigger.State
	iteration    int
	valueHistory []snapshot.ValuePoint
	priceHistory map[string][]snapshot.PricePoint
	lastTrigger  string

	phase atomic.Int32
	view  atomic.Pointer[StateView]
}

// NewEngine 创建主循环引擎。
func NewEngine(cfg *config.Config, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置不能为空")
	}
	if deps.Account == nil || deps.Feed == nil || deps.Analyzer == nil || deps.Oracle == nil ||
		deps.Executor == nil || deps.Scheduler == nil || deps.Events == nil || deps.Snapshots == nil {
		return nil, fmt.Errorf("app: 引擎依赖不完整")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:          cfg,
		logger:       logger,
		account:      deps.Account,
		feed:         deps.Feed,
		analyzer:     deps.Analyzer,
		oracle:       deps.Oracle,
		executor:     deps.Executor,
		scheduler:    deps.Scheduler,
		events:       deps.Events,
		snapshots:    deps.Snapshots,
		state:        trigger.NewState(time.Now().UTC()),
		priceHistory: make(map[string][]snapshot.PricePoint),
	}, nil
}

// Restore 在启动时恢复或清空持久化状态。
// restart 为真时删除既有快照并以初始资金重新开始。
func (e *Engine) Restore(restart bool) error {
	if restart {
		if err := e.snapshots.Clear(); err != nil {
			return fmt.Errorf("app: 清空快照失败: %w", err)
		}
		e.logger.Info("以全新状态启动", zap.Float64("initial_capital", e.cfg.Trading.InitialCapital))
		return nil
	}

	snap := e.snapshots.Load()
	if snap == nil {
		e.logger.Info("未发现历史快照，以初始资金启动",
			zap.Float64("initial_capital", e.cfg.Trading.InitialCapital))
		return nil
	}

	e.account.Restore(
		snap.Account.Capital,
		restorePositions(snap.Account.OpenPositions, e.logger),
		restoreTrades(snap.Account.TradeHistory),
	)
	e.iteration = snap.IterationCount
	e.valueHistory = append([]snapshot.ValuePoint(nil), snap.ValueHistory...)
	e.priceHistory = copyPriceHistory(snap.PriceHistory)
	if e.priceHistory == nil {
		e.priceHistory = make(map[string][]snapshot.PricePoint)
	}

	now := time.Now().UTC()
	e.state.LastDecisionAt = snap.Trigger.LastDecisionAt
	if e.state.LastDecisionAt.IsZero() {
		e.state.LastDecisionAt = now
	}
	e.state.CooldownUntil = snap.Trigger.CooldownUntil
	for symbol, price := range snap.Trigger.ReferencePrices {
		if price > 0 {
			e.state.ReferencePrices[symbol] = price
		}
	}

	e.logger.Info("历史状态已恢复",
		zap.Int("iteration", e.iteration),
		zap.Float64("capital", snap.Account.Capital),
		zap.Int("open_positions", len(snap.Account.OpenPositions)),
		zap.Int("trades", len(snap.Account.TradeHistory)),
	)
	return nil
}

// Tick 执行一个轮询周期。行情整体不可用时跳过本周期，错误不向上传播。
func (e *Engine) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	e.iteration++

	quotes, err := e.feed.LatestPrices(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("本轮行情不可用，跳过该周期", zap.Error(err))
		return nil
	}
	e.events.RecordFeedDegraded(ctx, quotes.Stale, nil)

	prices := quotes.Prices
	e.state.ObserveInitial(prices)
	e.recordHistories(now, prices)

	cause := e.scheduler.Evaluate(now, prices, e.state, e.account.OpenPositions())
	if cause.Fire {
		e.state.Arm(now, e.cfg.Scheduler.Cooldown, prices)
		e.lastTrigger = cause.Tag()
		e.events.RecordTrigger(ctx, string(cause.Reason), cause.Tag(), int64(e.iteration))
		e.logger.Info("触发决策",
			zap.String("trigger", cause.Tag()),
			zap.Int("iteration", e.iteration))

		if err := e.runDecisionCycle(ctx, cause, prices, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("决策周期失败，本轮跳过", zap.Error(err))
		}
	}

	e.publishView(now, quotes)
	e.logger.Debug("轮询周期完成",
		zap.Int("iteration", e.iteration),
		zap.Int("prices", len(prices)),
		zap.Float64("equity", e.account.Equity(prices)))

	if e.iteration%e.cfg.Persistence.SaveEveryIterations == 0 {
		e.saveSnapshot(ctx, now)
	}
	return nil
}

func (e *Engine) runDecisionCycle(ctx context.Context, cause trigger.Decision, prices map[string]float64, now time.Time) error {
	market, err := e.feed.CandleHistory(ctx)
	if err != nil {
		return fmt.Errorf("app: 拉取K线历史失败: %w", err)
	}
	e.events.RecordFeedDegraded(ctx, nil, market.Missing)

	overview, err := e.analyzer.BuildOverview(ctx, market, prices)
	if err != nil {
		return fmt.Errorf("app: 技术面概览生成失败: %w", err)
	}

	available := e.account.AvailableCapital()
	decision, err := e.oracle.Decide(ctx, oracle.DecisionRequest{
		TriggerReason:   cause.Tag(),
		Overview:        overview,
		Stats:           e.account.Statistics(prices),
		Positions:       e.account.OpenPositions(),
		Prices:          prices,
		AvailableCash:   available,
		MaxPositionSize: maxPositionSize(e.cfg.Trading, available),
		CurrentTime:     now,
	})
	if err != nil {
		return fmt.Errorf("app: 模型决策失败: %w", err)
	}
	e.events.RecordDecision(ctx, cause.Tag(), decision)

	results := e.executor.Apply(ctx, decision, prices, now)
	e.events.RecordActions(ctx, results)
	e.logger.Info("决策执行完成",
		zap.String("trigger", cause.Tag()),
		zap.Int("actions", len(results)),
		zap.Int("executed", execution.ExecutedCount(results)))
	return nil
}

func (e *Engine) recordHistories(now time.Time, prices map[string]float64) {
	e.valueHistory = append(e.valueHistory, snapshot.ValuePoint{
		Timestamp: now,
		Value:     e.account.Equity(prices),
	})
	if limit := e.cfg.Persistence.MaxHistoryItems; limit > 0 && len(e.valueHistory) > limit {
		e.valueHistory = e.valueHistory[len(e.valueHistory)-limit:]
	}

	limit := e.cfg.Persistence.PriceHistoryLimit
	for symbol, price := range prices {
		points := append(e.priceHistory[symbol], snapshot.PricePoint{Timestamp: now, Price: price})
		if limit > 0 && len(points) > limit {
			points = points[len(points)-limit:]
		}
		e.priceHistory[symbol] = points
	}
}

// publishView 发布本周期的只读状态。历史序列共享底层数组：
// 主循环只会向尾部追加或整体换新，不会改写已发布区间。
func (e *Engine) publishView(now time.Time, quotes feed.Quotes) {
	prices := quotes.Prices
	history := make(map[string][]snapshot.PricePoint, len(e.priceHistory))
	for symbol, points := range e.priceHistory {
		history[symbol] = points
	}

	e.view.Store(&StateView{
		Timestamp:        now,
		Iteration:        e.iteration,
		Capital:          e.account.Capital(),
		AvailableCapital: e.account.AvailableCapital(),
		Equity:           e.account.Equity(prices),
		UnrealizedPnl:    e.account.UnrealizedPnl(prices),
		Prices:           copyPrices(prices),
		StalePrices:      append([]string(nil), quotes.Stale...),
		Positions:        snapshotPositions(e.account.OpenPositions()),
		Trades:           snapshotTrades(e.account.TradeHistory()),
		Stats:            e.account.Statistics(prices),
		LastTrigger:      e.lastTrigger,
		LastDecisionAt:   e.state.LastDecisionAt,
		ValueHistory:     e.valueHistory,
		PriceHistory:     history,
	})
}

// View 返回最近发布的状态，主循环尚未完成首个周期时为 nil。
func (e *Engine) View() *StateView {
	return e.view.Load()
}

// Phase 返回当前生命周期阶段。
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

func (e *Engine) saveSnapshot(ctx context.Context, now time.Time) {
	snap := &snapshot.Snapshot{
		Timestamp:      now,
		IterationCount: e.iteration,
		Account: snapshot.AccountState{
			Capital:       e.account.Capital(),
			OpenPositions: snapshotPositions(e.account.OpenPositions()),
			TradeHistory:  snapshotTrades(e.account.TradeHistory()),
		},
		Trigger: snapshot.TriggerState{
			LastDecisionAt:  e.state.LastDecisionAt,
			CooldownUntil:   e.state.CooldownUntil,
			ReferencePrices: copyPrices(e.state.ReferencePrices),
		},
		ValueHistory: append([]snapshot.ValuePoint(nil), e.valueHistory...),
		PriceHistory: copyPriceHistory(e.priceHistory),
	}

	if err := e.snapshots.Save(snap); err != nil {
		e.logger.Warn("状态落盘失败", zap.Error(err))
		return
	}
	e.events.RecordSnapshot(ctx, e.snapshots.Path(), int64(e.iteration))
}

// Shutdown 执行有序停机：按现价平掉全部仓位、落盘最终状态并生成运行报告。
func (e *Engine) Shutdown(ctx context.Context) error {
	e.setPhase(PhaseStopping)
	now := time.Now().UTC()
	e.logger.Info("开始有序停机", zap.Int("open_positions", len(e.account.OpenPositions())))

	prices := e.finalPrices(ctx)
	trades, err := e.account.CloseAll(prices, "session_end", now)
	if err != nil {
		e.logger.Warn("停机平仓部分失败，未平仓位保留在快照中", zap.Error(err))
	}

	e.recordHistories(now, prices)
	e.publishView(now, feed.Quotes{Prices: prices, FetchedAt: now})
	e.saveSnapshot(ctx, now)
	e.writeReport(now)

	stats := e.account.Statistics(prices)
	e.logger.Info("运行结束",
		zap.Int("iterations", e.iteration),
		zap.Int("closed_on_shutdown", len(trades)),
		zap.Float64("final_equity", stats.Equity),
		zap.Float64("total_pnl", stats.TotalPnl),
		zap.Float64("roi_percent", stats.ROIPercent),
		zap.Int("total_trades", stats.ClosedTrades),
		zap.Float64("win_rate_percent", stats.WinRatePercent),
	)
	e.events.RecordShutdown(ctx, "stopped", len(trades), stats.Equity)

	e.setPhase(PhaseStopped)
	return nil
}

func (e *Engine) finalPrices(ctx context.Context) map[string]float64 {
	quotes, err := e.feed.LatestPrices(ctx)
	if err != nil {
		e.logger.Warn("停机取价失败，使用最近已知价格", zap.Error(err))
		return e.feed.LastKnownPrices()
	}
	return quotes.Prices
}

// RenderReport 按最近发布的状态渲染 HTML 运行报告。
func (e *Engine) RenderReport(now time.Time) ([]byte, error) {
	view := e.view.Load()
	if view == nil || len(view.ValueHistory) == 0 {
		return nil, fmt.Errorf("app: 尚无可用状态，无法生成报告")
	}
	summary := report.Build(view.Stats, view.ValueHistory, restoreTrades(view.Trades), view.Iteration, now)
	return report.RenderHTML(summary, view.ValueHistory, view.PriceHistory)
}

func (e *Engine) writeReport(now time.Time) {
	html, err := e.RenderReport(now)
	if err != nil {
		e.logger.Warn("生成运行报告失败", zap.Error(err))
		return
	}
	path := filepath.Join(e.cfg.Persistence.DataDir, reportFileName)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		e.logger.Warn("写入运行报告失败", zap.String("path", path), zap.Error(err))
		return
	}
	e.logger.Info("运行报告已生成", zap.String("path", path))
}

func maxPositionSize(cfg config.TradingConfig, available float64) float64 {
	if available <= 0 {
		return 0
	}
	fraction := cfg.MaxPositionFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	return available * fraction
}
