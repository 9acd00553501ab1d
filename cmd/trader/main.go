package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"paper-trades/internal/app"
	"paper-trades/internal/config"
	"paper-trades/internal/log"
	"paper-trades/internal/store"
)

func main() {
	var (
		configPath string
		restart    bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&restart, "restart", false, "丢弃历史快照，以初始资金重新开始")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	eventStore, err := store.Open(cfg.Database)
	if err != nil {
		logger.Error("初始化事件库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := eventStore.Close(); closeErr != nil {
			logger.Warn("关闭事件库失败", zap.Error(closeErr))
		}
	}()

	tradingApp := app.New(cfg, logger, eventStore, restart)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始有序停机；再次发送信号将立即退出")
		cancel()
		<-sigCh
		logger.Warn("再次收到退出信号，立即退出")
		os.Exit(1)
	}()

	if err := tradingApp.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
