package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paper-trades/internal/config"
)

// marketClient 抽象行情客户端，便于在测试中替换。
type marketClient interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error)
}

// Service 面向多交易对聚合行情数据。
// 单个交易对拉取失败时沿用上一次已知价格，全部失败才视为本轮行情不可用。
type Service struct {
	cfg     config.FeedConfig
	client  marketClient
	symbols []string
	logger  *zap.Logger

	mu        sync.Mutex
	lastKnown map[string]float64
}

// NewService 创建行情聚合服务。
func NewService(cfg config.FeedConfig, client marketClient, symbols []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	tracked := make([]string, len(symbols))
	copy(tracked, symbols)
	return &Service{
		cfg:       cfg,
		client:    client,
		symbols:   tracked,
		logger:    logger,
		lastKnown: make(map[string]float64),
	}
}

// LatestPrices 并行拉取全部交易对的现价。
func (s *Service) LatestPrices(ctx context.Context) (Quotes, error) {
	prices := make([]float64, len(s.symbols))
	failures := make([]error, len(s.symbols))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, symbol := range s.symbols {
		i, symbol := i, symbol
		group.Go(func() error {
			price, err := s.client.LastPrice(groupCtx, symbol)
			if err != nil {
				failures[i] = err
				return nil
			}
			prices[i] = price
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Quotes{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Quotes{}, ctxErr
	}

	quotes := Quotes{
		Prices:    make(map[string]float64, len(s.symbols)),
		FetchedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	for i, symbol := range s.symbols {
		if failures[i] == nil && prices[i] > 0 {
			quotes.Prices[symbol] = prices[i]
			s.lastKnown[symbol] = prices[i]
			continue
		}

		if last, ok := s.lastKnown[symbol]; ok {
			quotes.Prices[symbol] = last
			quotes.Stale = append(quotes.Stale, symbol)
			s.logger.Warn("行情拉取失败，沿用上一次价格",
				zap.String("symbol", symbol),
				zap.Float64("last_price", last),
				zap.Error(failures[i]),
			)
			continue
		}

		s.logger.Warn("行情拉取失败且无历史价格可用",
			zap.String("symbol", symbol),
			zap.Error(failures[i]),
		)
	}
	s.mu.Unlock()

	if len(quotes.Prices) == 0 {
		return Quotes{}, errors.New("feed: 所有交易对行情均不可用")
	}

	sort.Strings(quotes.Stale)
	return quotes, nil
}

// CandleHistory 并行拉取全部交易对的K线序列。
func (s *Service) CandleHistory(ctx context.Context) (MarketSnapshot, error) {
	series := make([][]Candle, len(s.symbols))
	failures := make([]error, len(s.symbols))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, symbol := range s.symbols {
		i, symbol := i, symbol
		group.Go(func() error {
			candles, err := s.client.FetchCandles(groupCtx, symbol, s.cfg.KlineTimeframe, int64(s.cfg.KlineLimit))
			if err != nil {
				failures[i] = err
				return nil
			}
			series[i] = candles
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return MarketSnapshot{}, ctxErr
	}

	snapshot := MarketSnapshot{
		Candles:     make(map[string][]Candle, len(s.symbols)),
		Timeframe:   s.cfg.KlineTimeframe,
		RetrievedAt: time.Now().UTC(),
	}

	for i, symbol := range s.symbols {
		if failures[i] != nil {
			snapshot.Missing = append(snapshot.Missing, symbol)
			s.logger.Warn("K线拉取失败，本轮跳过该交易对",
				zap.String("symbol", symbol),
				zap.Error(failures[i]),
			)
			continue
		}
		snapshot.Candles[symbol] = series[i]
	}

	if len(snapshot.Candles) == 0 {
		return MarketSnapshot{}, errors.New("feed: 所有交易对K线均不可用")
	}

	sort.Strings(snapshot.Missing)
	s.logger.Debug("K线快照获取完成",
		zap.Int("symbols", len(snapshot.Candles)),
		zap.Int("missing", len(snapshot.Missing)),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
	)

	return snapshot, nil
}

// LastKnownPrices 返回最近一次成功获取的价格副本。
func (s *Service) LastKnownPrices() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]float64, len(s.lastKnown))
	for symbol, price := range s.lastKnown {
		known[symbol] = price
	}
	return known
}
