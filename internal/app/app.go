package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"paper-trades/internal/account"
	"paper-trades/internal/analysis"
	"paper-trades/internal/config"
	"paper-trades/internal/execution"
	"paper-trades/internal/feed"
	"paper-trades/internal/indicator"
	"paper-trades/internal/monitor"
	"paper-trades/internal/oracle"
	"paper-trades/internal/snapshot"
	"paper-trades/internal/store"
	"paper-trades/internal/trigger"
)

const shutdownTimeout = 30 * time.Second

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	restart bool
}

// New 创建 App 实例。restart 为真时丢弃历史快照，以初始资金重新开始。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store, restart bool) *App {
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		restart: restart,
	}
}

// Run 组装引擎并驱动主循环，ctx 取消后完成有序停机再返回。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("模拟交易系统启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("symbols", a.cfg.Trading.TrackedSymbols),
		zap.Float64("initial_capital", a.cfg.Trading.InitialCapital),
	)

	engine, err := a.buildEngine()
	if err != nil {
		return err
	}
	if err := engine.Restore(a.restart); err != nil {
		return err
	}

	if a.cfg.Monitor.Enabled {
		if err := startServer(ctx, engine, a.cfg.Monitor, a.logger); err != nil {
			return err
		}
	}

	if err := engine.Tick(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("首个周期执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(a.cfg.App.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("收到退出信号，进入停机流程")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return engine.Shutdown(shutdownCtx)
		case <-ticker.C:
			if err := engine.Tick(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error("轮询周期执行失败", zap.Error(err))
			}
		}
	}
}

func (a *App) buildEngine() (*Engine, error) {
	feedClient, err := feed.NewClient(a.cfg.Feed, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化行情客户端失败: %w", err)
	}
	feedSvc := feed.NewService(a.cfg.Feed, feedClient, a.cfg.Trading.TrackedSymbols, a.logger)

	oracleClient, err := oracle.NewClient(a.cfg.OpenAI, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化模型客户端失败: %w", err)
	}

	events, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化事件服务失败: %w", err)
	}

	snapshots, err := snapshot.NewStore(
		filepath.Join(a.cfg.Persistence.DataDir, a.cfg.Persistence.SnapshotFile),
		a.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("初始化快照存储失败: %w", err)
	}

	manager := account.NewManager(a.cfg.Trading, a.logger)

	return NewEngine(a.cfg, Dependencies{
		Account:   manager,
		Feed:      feedSvc,
		Analyzer:  analysis.NewExtractor(indicator.NewCalculator(), a.logger),
		Oracle:    oracleClient,
		Executor:  execution.NewExecutor(manager, a.logger),
		Scheduler: trigger.NewScheduler(a.cfg.Scheduler, a.logger),
		Events:    events,
		Snapshots: snapshots,
	}, a.logger)
}
