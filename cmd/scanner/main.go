// Package main 是 CEX-DEX 套利扫描器的入口点。
// 扫描器对比链上流动性池与中心化交易所订单簿：每个新区块
// 通过 QuoterV2 取得链上兑换报价，对订单簿做逐档执行模拟，
// 扣除 gas 与 taker 手续费后评估双向套利空间，并为最优机会
// 构造 universal router calldata 写入日志。
//
// 重要：本系统仅做评估与记录，从不提交任何交易。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cex-dex-arb-scanner/internal/arb"
	"cex-dex-arb-scanner/internal/chain/quoter"
	"cex-dex-arb-scanner/internal/chain/rpc"
	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/exchange/binance"
	"cex-dex-arb-scanner/internal/orderbook"
	"cex-dex-arb-scanner/internal/output/jsonl"
	"cex-dex-arb-scanner/internal/txbuilder"
	"cex-dex-arb-scanner/internal/util/mailbox"
	"cex-dex-arb-scanner/internal/util/timeutil"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	pool := cfg.Pool()

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	logger.Info("扫描器启动",
		zap.String("pool", cfg.ActivePool),
		zap.String("pair", pool.BaseSymbol+"/"+pool.QuoteSymbol))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	chainClient := rpc.NewClient(&cfg.Chain, logger)
	pairClient := binance.NewClient(pool.PairFeedWSURL, "pair", &cfg.CEX, logger)
	gasClient := binance.NewClient(cfg.CEX.GasFeedWSURL, "gas", &cfg.CEX, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()

	if err := chainClient.Connect(startCtx); err != nil {
		logger.Error("链节点连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := pairClient.Connect(startCtx); err != nil {
		logger.Error("交易对行情连接失败", zap.Error(err))
		os.Exit(1)
	}
	if err := gasClient.Connect(startCtx); err != nil {
		logger.Error("gas 参考行情连接失败", zap.Error(err))
		os.Exit(1)
	}

	go chainClient.Run(ctx)
	go pairClient.Run(ctx)
	go gasClient.Run(ctx)

	quoterClient := quoter.NewClient(chainClient, cfg.Chain.QuoterAddress, &pool, logger)

	// 池指纹校验：tickSpacing 不一致说明配置指向了错误的池
	if err := quoterClient.VerifyTickSpacing(startCtx); err != nil {
		logger.Error("池校验失败", zap.Error(err))
		os.Exit(1)
	}

	heads, err := chainClient.SubscribeNewHeads(startCtx)
	if err != nil {
		logger.Error("订阅新区块失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("已订阅新区块头")

	// 等待两条行情都有首个快照后再进入评估循环
	if !awaitFeeds(ctx, logger, pairClient, gasClient) {
		return
	}

	streams, err := jsonl.OpenStreams(&cfg.Output, logger)
	if err != nil {
		logger.Error("打开输出日志流失败", zap.Error(err))
		os.Exit(1)
	}

	pricing := arb.NewPricing(&cfg.Gas, &pool)
	evaluator := arb.NewEvaluator(
		quoterClient,
		orderbook.NewSimulator(cfg.Fees.TakerFeeBps.Decimal),
		arb.NewGasCalc(&cfg.Gas),
		pricing,
		&pool,
		logger)
	builder := txbuilder.NewBuilder(&cfg.Router, &pool)

	logger.Info("就绪，进入套利评估循环")

	runErr := runScanner(ctx, logger, cfg, chainClient, pairClient, gasClient, heads, evaluator, pricing, builder, streams)
	if runErr != nil {
		logger.Error("评估循环异常退出", zap.Error(runErr))
	}

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = chainClient.Close()
		_ = pairClient.Close()
		_ = gasClient.Close()
		_ = streams.Close()
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}

	if runErr != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
}

// awaitFeeds 阻塞到两条交易所行情都收到过快照
// ctx 取消时返回 false。
func awaitFeeds(ctx context.Context, logger *zap.Logger, pairClient, gasClient *binance.Client) bool {
	logger.Info("等待交易所行情首个快照")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if pairClient.IsConnected() && pairClient.LastUpdateUnixNs() > 0 &&
				gasClient.IsConnected() && gasClient.LastUpdateUnixNs() > 0 {
				return true
			}
		}
	}
}

// runScanner 评估主循环
// 状态机：等待区块 → 读行情 → 评估 → 选优 → 记录 → 等待区块。
// 行情缺失、gas 查询失败、无定价路径都回到等待状态（跳过周期），
// 只有 ctx 取消才退出。
func runScanner(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	chainClient *rpc.Client,
	pairClient *binance.Client,
	gasClient *binance.Client,
	heads *mailbox.Mailbox[*rpc.ChainHead],
	evaluator *arb.Evaluator,
	pricing *arb.Pricing,
	builder *txbuilder.Builder,
	streams *jsonl.Streams,
) error {
	blockWait := time.Duration(cfg.Chain.BlockWaitTimeoutMs) * time.Millisecond

	var blocksProcessed, profitableFound int64
	defer func() {
		logger.Info("评估循环结束",
			zap.Int64("blocks", blocksProcessed),
			zap.Int64("profitable", profitableFound))
	}()

	for {
		head, err := heads.Take(ctx, blockWait)
		if err != nil {
			if errors.Is(err, mailbox.ErrTimeout) {
				// 超时回到等待状态，顺带给关闭信号让路
				continue
			}
			return nil
		}
		blocksProcessed++

		book := pairClient.Orderbook()
		if book == nil || book.IsEmpty() {
			logger.Debug("交易对行情快照缺失，跳过本区块", zap.Uint64("block", head.Number))
			continue
		}

		gasPriceWei, err := chainClient.GasPrice(ctx)
		if err != nil {
			logger.Warn("查询 gas 价格失败，跳过本区块", zap.Error(err))
			continue
		}

		pairMid, ok := pairClient.DepthWeightedMid(cfg.Arb.DepthWeightedLevels)
		if !ok {
			logger.Debug("交易对加权中间价不可用，跳过本区块", zap.Uint64("block", head.Number))
			continue
		}
		gasMid, ok := gasClient.DepthWeightedMid(cfg.Arb.DepthWeightedLevels)
		if !ok {
			logger.Debug("gas 参考加权中间价不可用，跳过本区块", zap.Uint64("block", head.Number))
			continue
		}
		quotePriceUSD, ok := pricing.QuotePriceUSD(pairMid, gasMid)
		if !ok {
			logger.Warn("quote 代币无 USD 换算路径，跳过本区块")
			continue
		}

		evalStart := time.Now()
		opps, err := evaluator.EvaluateBlock(ctx, &arb.BlockInput{
			BlockNumber: head.Number,
			Book:        book,
			GasPriceWei: gasPriceWei,
			PairMid:     pairMid,
			GasMid:      gasMid,
		})
		if err != nil {
			if errors.Is(err, arb.ErrNoGasReference) {
				logger.Warn("无 gas 定价路径，跳过本区块", zap.Uint64("block", head.Number))
				continue
			}
			return err
		}
		evalMs := time.Since(evalStart).Milliseconds()

		for _, opp := range opps {
			netUSD := pricing.NetProfitUSD(opp, pairMid, quotePriceUSD)
			opp.IsProfitable = netUSD.Sign() > 0
			if opp.IsProfitable {
				profitableFound++
			}

			rec := jsonl.NewEvaluationRecord(opp, netUSD, pricing.GasCostUSD(opp, quotePriceUSD), profitBpsOf(pricing, opp, pairMid, quotePriceUSD))
			streams.LogEvaluation(rec)
		}

		best, bestNet := pricing.SelectBest(opps, pairMid, quotePriceUSD)
		if best != nil {
			deadline := int64(head.TimestampUnixSec) + cfg.Router.DeadlineSeconds
			payload, err := builder.Build(best, deadline)
			if err != nil {
				logger.Error("构造最优成交载荷失败", zap.Error(err))
			} else {
				streams.LogBestTrade(jsonl.NewBestTradeRecord(best, bestNet,
					pricing.GasCostUSD(best, quotePriceUSD),
					profitBpsOf(pricing, best, pairMid, quotePriceUSD),
					payload))
			}
		}

		recvDelayMs := timeutil.DurationMs(int64(head.TimestampUnixSec)*int64(time.Second), head.ReceivedAtUnixNs)
		logger.Info("区块评估完成",
			zap.Uint64("block", head.Number),
			zap.Float64("recv_delay_ms", recvDelayMs),
			zap.String("pair_mid", pairMid.String()),
			zap.String("gas_price_wei", gasPriceWei.String()),
			zap.Int64("eval_ms", evalMs),
			zap.Int("opportunities", len(opps)),
			zap.Bool("has_best", best != nil))
	}
}

// profitBpsOf 计算利润基点，无定义时返回 nil（日志输出 null）
func profitBpsOf(pricing *arb.Pricing, opp *model.Opportunity, pairMid, quotePriceUSD decimal.Decimal) *decimal.Decimal {
	bps, ok := pricing.ProfitBps(opp, pairMid, quotePriceUSD)
	if !ok {
		return nil
	}
	return &bps
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
