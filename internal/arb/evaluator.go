package arb

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/orderbook"
	"cex-dex-arb-scanner/internal/util/timeutil"
)

// DEXQuoter 链上报价协作方的最小接口
type DEXQuoter interface {
	// QuoteQuoteToBase 用 quote 买入 base 的报价
	QuoteQuoteToBase(ctx context.Context, amountQuote decimal.Decimal, blockNumber uint64) (*model.DEXQuote, error)
	// QuoteBaseToQuote 卖出 base 换 quote 的报价
	QuoteBaseToQuote(ctx context.Context, amountBase decimal.Decimal, blockNumber uint64) (*model.DEXQuote, error)
}

// BlockInput 一个区块的评估输入
// 由编排循环在 ReadFeeds 阶段组装，评估期间只读。
type BlockInput struct {
	// BlockNumber 区块高度
	BlockNumber uint64
	// Book 交易对订单簿快照（深拷贝）
	Book *model.Book
	// GasPriceWei 本区块 gas 价格
	GasPriceWei *big.Int
	// PairMid 交易对深度加权中间价（base/quote）
	PairMid decimal.Decimal
	// GasMid gas 参考行情中间价（native/gas 参考资产）
	GasMid decimal.Decimal
}

// Evaluator 套利评估器
// 每个区块按配置规模做一轮双向扫描：quote 计价规模评估
// DEX 买入方向，base 计价规模评估 DEX 卖出方向。
// 单个规模的任何失败只跳过该规模，绝不中断整轮扫描。
type Evaluator struct {
	// quoter 链上报价协作方
	quoter DEXQuoter
	// sim CEX 执行模拟器
	sim *orderbook.Simulator
	// gas gas 成本计算器
	gas *GasCalc
	// pricing 定价规则
	pricing *Pricing
	// pool 池配置
	pool *config.PoolConfig
	// sizesQuote quote 计价的扫描规模（升序配置序）
	sizesQuote []decimal.Decimal
	// sizesBase base 计价的扫描规模
	sizesBase []decimal.Decimal
	// logger 日志记录器
	logger *zap.Logger
}

// NewEvaluator 创建套利评估器
func NewEvaluator(quoter DEXQuoter, sim *orderbook.Simulator, gas *GasCalc, pricing *Pricing, pool *config.PoolConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		quoter:     quoter,
		sim:        sim,
		gas:        gas,
		pricing:    pricing,
		pool:       pool,
		sizesQuote: pool.SizesQuote(),
		sizesBase:  pool.SizesBase(),
		logger:     logger.Named("evaluator"),
	}
}

// EvaluateBlock 对一个区块做完整双向扫描
// 先解析 gas 定价路径（失败返回 ErrNoGasReference，整块跳过），
// 再按扫描顺序产出机会：A 方向 quote 规模升序，B 方向 base 规模
// 升序。结果不按利润排序。
func (e *Evaluator) EvaluateBlock(ctx context.Context, in *BlockInput) ([]*model.Opportunity, error) {
	nativePriceQuote, err := e.pricing.NativePriceQuote(in.PairMid, in.GasMid)
	if err != nil {
		return nil, err
	}

	// gas 成本每区块只算一次
	gasCostNative := e.gas.CostNative(in.GasPriceWei)
	gasCostQuote := e.gas.CostQuote(in.GasPriceWei, nativePriceQuote)
	ts := timeutil.NowNano()

	opps := make([]*model.Opportunity, 0, len(e.sizesQuote)+len(e.sizesBase))
	for _, size := range e.sizesQuote {
		if opp := e.evaluateDEXBuyCEXSell(ctx, in, size, ts, gasCostNative, gasCostQuote); opp != nil {
			opps = append(opps, opp)
		}
	}
	for _, size := range e.sizesBase {
		if opp := e.evaluateDEXSellCEXBuy(ctx, in, size, ts, gasCostNative, gasCostQuote); opp != nil {
			opps = append(opps, opp)
		}
	}
	return opps, nil
}

// evaluateDEXBuyCEXSell A 方向：DEX 用 quote 买 base，CEX 把 base 卖进 bids
// 利润以 quote 计价。任何失败返回 nil（跳过该规模）。
func (e *Evaluator) evaluateDEXBuyCEXSell(ctx context.Context, in *BlockInput, sizeQuote decimal.Decimal, ts int64, gasCostNative, gasCostQuote decimal.Decimal) *model.Opportunity {
	dexQuote, err := e.quoter.QuoteQuoteToBase(ctx, sizeQuote, in.BlockNumber)
	if err != nil {
		e.logger.Warn("DEX 买入腿报价失败",
			zap.String("size_quote", sizeQuote.String()),
			zap.Error(err))
		return nil
	}

	baseOut := dexQuote.AmountOut
	if baseOut.Sign() <= 0 {
		return nil
	}

	cexQuote, err := e.sim.SimulateSell(baseOut, in.Book.Bids, e.pool.BaseSymbol, e.pool.QuoteSymbol)
	if err != nil {
		e.logger.Info("跳过 DEX 买入方向: CEX bids 流动性不足",
			zap.String("size_quote", sizeQuote.String()),
			zap.String("base_qty", baseOut.String()),
			zap.String("bid_base_liq", in.Book.BidLiquidity().String()))
		return nil
	}

	grossProfit := cexQuote.AmountOut.Sub(sizeQuote)
	return &model.Opportunity{
		TimestampUnixNs:  ts,
		BlockNumber:      in.BlockNumber,
		Direction:        model.DirectionDEXBuyCEXSell,
		TradeSizeBase:    baseOut,
		DEXQuote:         *dexQuote,
		CEXQuote:         *cexQuote,
		GasPriceWei:      in.GasPriceWei,
		GasCostNative:    gasCostNative,
		GasCostQuote:     gasCostQuote,
		ProfitToken:      e.pool.QuoteSymbol,
		GrossProfitToken: grossProfit,
		NetProfitToken:   grossProfit,
		DEXPrice:         sizeQuote.Div(baseOut),
		CEXPrice:         cexQuote.AveragePrice,
	}
}

// evaluateDEXSellCEXBuy B 方向：DEX 卖 base 换 quote，CEX 用 quote 从 asks 买回 base
// 利润以 base 计价。
func (e *Evaluator) evaluateDEXSellCEXBuy(ctx context.Context, in *BlockInput, sizeBase decimal.Decimal, ts int64, gasCostNative, gasCostQuote decimal.Decimal) *model.Opportunity {
	dexQuote, err := e.quoter.QuoteBaseToQuote(ctx, sizeBase, in.BlockNumber)
	if err != nil {
		e.logger.Warn("DEX 卖出腿报价失败",
			zap.String("size_base", sizeBase.String()),
			zap.Error(err))
		return nil
	}

	quoteOut := dexQuote.AmountOut
	if quoteOut.Sign() <= 0 {
		return nil
	}

	cexQuote, err := e.sim.SimulateBuy(quoteOut, in.Book.Asks, e.pool.QuoteSymbol, e.pool.BaseSymbol)
	if err != nil {
		// 诊断给出最优 ask 价下该笔 quote 名义对应的 base 数量
		impliedBase := decimal.Zero
		if bestAsk, ok := in.Book.BestAsk(); ok && bestAsk.Price.Sign() > 0 {
			impliedBase = quoteOut.Div(bestAsk.Price)
		}
		e.logger.Info("跳过 DEX 卖出方向: CEX asks 流动性不足",
			zap.String("size_base", sizeBase.String()),
			zap.String("implied_base_qty", impliedBase.String()),
			zap.String("ask_base_liq", in.Book.AskLiquidity().String()))
		return nil
	}

	grossProfit := cexQuote.AmountOut.Sub(sizeBase)
	return &model.Opportunity{
		TimestampUnixNs:  ts,
		BlockNumber:      in.BlockNumber,
		Direction:        model.DirectionDEXSellCEXBuy,
		TradeSizeBase:    sizeBase,
		DEXQuote:         *dexQuote,
		CEXQuote:         *cexQuote,
		GasPriceWei:      in.GasPriceWei,
		GasCostNative:    gasCostNative,
		GasCostQuote:     gasCostQuote,
		ProfitToken:      e.pool.BaseSymbol,
		GrossProfitToken: grossProfit,
		NetProfitToken:   grossProfit,
		DEXPrice:         quoteOut.Div(sizeBase),
		CEXPrice:         cexQuote.AveragePrice,
	}
}
