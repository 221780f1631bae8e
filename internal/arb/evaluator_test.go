// Package arb 评估器逐档扫描单元测试与属性测试
package arb

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/orderbook"
)

// fakeQuoter 可编程的链上报价桩
type fakeQuoter struct {
	quoteToBase func(amount decimal.Decimal) (*model.DEXQuote, error)
	baseToQuote func(amount decimal.Decimal) (*model.DEXQuote, error)
}

func (f *fakeQuoter) QuoteQuoteToBase(_ context.Context, amount decimal.Decimal, _ uint64) (*model.DEXQuote, error) {
	return f.quoteToBase(amount)
}

func (f *fakeQuoter) QuoteBaseToQuote(_ context.Context, amount decimal.Decimal, _ uint64) (*model.DEXQuote, error) {
	return f.baseToQuote(amount)
}

// dexQuoteAt 以固定 base/quote 价格构造 DEX 报价桩结果
func dexQuoteAt(tokenIn, tokenOut string, amountIn, amountOut decimal.Decimal) *model.DEXQuote {
	return &model.DEXQuote{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		AmountInRaw:  big.NewInt(1),
		AmountOutRaw: big.NewInt(1),
		GasEstimate:  90000,
	}
}

func evalPool() *config.PoolConfig {
	return &config.PoolConfig{
		BaseSymbol:      "WETH",
		QuoteSymbol:     "USDC",
		TradeSizesQuote: []config.Decimal{config.NewDecimal(d("3000")), config.NewDecimal(d("6000"))},
		TradeSizesBase:  []config.Decimal{config.NewDecimal(d("1"))},
	}
}

func newEvaluator(q DEXQuoter, pool *config.PoolConfig) *Evaluator {
	gc := &config.GasConfig{
		GasLimit:            150000,
		NativeSymbol:        "ETH",
		WrappedNativeSymbol: "WETH",
		NativeDecimals:      18,
		QuoteSymbol:         "USDC",
	}
	return NewEvaluator(q,
		orderbook.NewSimulator(decimal.Zero),
		NewGasCalc(gc),
		NewPricing(gc, pool),
		pool,
		zap.NewNop())
}

func evalInput() *BlockInput {
	return &BlockInput{
		BlockNumber: 100,
		Book: &model.Book{
			Bids: []model.Level{{Price: d("3000"), Qty: d("5")}, {Price: d("2990"), Qty: d("5")}},
			Asks: []model.Level{{Price: d("3001"), Qty: d("5")}, {Price: d("3010"), Qty: d("5")}},
		},
		GasPriceWei: big.NewInt(1_000_000_000),
		PairMid:     d("3000.5"),
		GasMid:      d("3000.5"),
	}
}

func TestEvaluateBlock_SweepOrderAndDirections(t *testing.T) {
	// DEX 价格优于 CEX：每 3000 USDC 买到 1.01 WETH，卖出 1 WETH 得 3010 USDC
	q := &fakeQuoter{
		quoteToBase: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("USDC", "WETH", amount, amount.Div(d("3000")).Mul(d("1.01"))), nil
		},
		baseToQuote: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("WETH", "USDC", amount, amount.Mul(d("3010"))), nil
		},
	}
	e := newEvaluator(q, evalPool())

	opps, err := e.EvaluateBlock(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(opps) != 3 {
		t.Fatalf("应产出 3 个机会: %d", len(opps))
	}

	// 扫描顺序: A 方向 quote 规模升序，然后 B 方向 base 规模升序
	if opps[0].Direction != model.DirectionDEXBuyCEXSell || !opps[0].DEXQuote.AmountIn.Equal(d("3000")) {
		t.Fatalf("第一个机会错误: %+v", opps[0])
	}
	if opps[1].Direction != model.DirectionDEXBuyCEXSell || !opps[1].DEXQuote.AmountIn.Equal(d("6000")) {
		t.Fatalf("第二个机会错误: %+v", opps[1])
	}
	if opps[2].Direction != model.DirectionDEXSellCEXBuy || !opps[2].TradeSizeBase.Equal(d("1")) {
		t.Fatalf("第三个机会错误: %+v", opps[2])
	}

	// A 方向利润以 quote 计价: 1.01 WETH 入 bids 得 3030，毛利 30
	if opps[0].ProfitToken != "USDC" || !opps[0].GrossProfitToken.Equal(d("30")) {
		t.Fatalf("A 方向利润错误: %s %s", opps[0].ProfitToken, opps[0].GrossProfitToken)
	}
	if !opps[0].TradeSizeBase.Equal(d("1.01")) {
		t.Fatalf("A 方向 base 规模应为 DEX 输出: %s", opps[0].TradeSizeBase)
	}
	if !opps[0].NetProfitToken.Equal(opps[0].GrossProfitToken) {
		t.Fatalf("本模型净利应等于毛利")
	}

	// B 方向利润以 base 计价: 3010 USDC 入 asks 买回 ≈1.002999 WETH
	if opps[2].ProfitToken != "WETH" || opps[2].GrossProfitToken.Sign() <= 0 {
		t.Fatalf("B 方向利润错误: %s %s", opps[2].ProfitToken, opps[2].GrossProfitToken)
	}

	// gas 成本每区块一次: 1 gwei × 150000 = 0.00015 ETH
	if !opps[0].GasCostNative.Equal(d("0.00015")) {
		t.Fatalf("原生 gas 成本错误: %s", opps[0].GasCostNative)
	}
	// base 为包装原生资产，参考价即交易对中间价
	if !opps[0].GasCostQuote.Equal(d("0.00015").Mul(d("3000.5"))) {
		t.Fatalf("quote gas 成本错误: %s", opps[0].GasCostQuote)
	}
}

func TestEvaluateBlock_NoGasReference(t *testing.T) {
	pool := evalPool()
	pool.BaseSymbol, pool.QuoteSymbol = "WBTC", "DAI"
	e := newEvaluator(&fakeQuoter{}, pool)

	_, err := e.EvaluateBlock(context.Background(), evalInput())
	if !errors.Is(err, ErrNoGasReference) {
		t.Fatalf("无 gas 定价路径应整块跳过: %v", err)
	}
}

func TestEvaluateBlock_QuoterErrorSkipsOnlyThatSize(t *testing.T) {
	q := &fakeQuoter{
		quoteToBase: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			if amount.Equal(d("3000")) {
				return nil, errors.New("execution reverted")
			}
			return dexQuoteAt("USDC", "WETH", amount, amount.Div(d("3000"))), nil
		},
		baseToQuote: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("WETH", "USDC", amount, amount.Mul(d("3000"))), nil
		},
	}
	e := newEvaluator(q, evalPool())

	opps, err := e.EvaluateBlock(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("单规模失败不应中断扫描: %v", err)
	}
	if len(opps) != 2 {
		t.Fatalf("失败规模之外应全部产出: %d", len(opps))
	}
	if !opps[0].DEXQuote.AmountIn.Equal(d("6000")) {
		t.Fatalf("存活的 A 方向机会错误: %s", opps[0].DEXQuote.AmountIn)
	}
}

func TestEvaluateBlock_NonPositiveDEXOutputSkipped(t *testing.T) {
	q := &fakeQuoter{
		quoteToBase: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("USDC", "WETH", amount, decimal.Zero), nil
		},
		baseToQuote: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("WETH", "USDC", amount, d("-1")), nil
		},
	}
	e := newEvaluator(q, evalPool())

	opps, err := e.EvaluateBlock(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("非正 DEX 输出应全部跳过: %d", len(opps))
	}
}

func TestEvaluateBlock_InsufficientCEXLiquiditySkipped(t *testing.T) {
	// DEX 输出远超 CEX 单侧流动性
	q := &fakeQuoter{
		quoteToBase: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("USDC", "WETH", amount, d("1000")), nil
		},
		baseToQuote: func(amount decimal.Decimal) (*model.DEXQuote, error) {
			return dexQuoteAt("WETH", "USDC", amount, d("100000000")), nil
		},
	}
	e := newEvaluator(q, evalPool())

	opps, err := e.EvaluateBlock(context.Background(), evalInput())
	if err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(opps) != 0 {
		t.Fatalf("CEX 流动性不足应跳过: %d", len(opps))
	}
}

// **Feature: 评估器健壮性, Property 1: 任意报价桩输出下扫描不中断且产出数有界**
func TestEvaluateBlock_RobustnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	pool := evalPool()
	input := evalInput()
	maxOpps := len(pool.TradeSizesQuote) + len(pool.TradeSizesBase)

	properties.Property("评估总是成功且 len(opps) ≤ 配置规模数", prop.ForAll(
		func(baseOutMilli int64, quoteOut int64, fail bool) bool {
			q := &fakeQuoter{
				quoteToBase: func(amount decimal.Decimal) (*model.DEXQuote, error) {
					if fail {
						return nil, errors.New("rpc timeout")
					}
					out := decimal.NewFromInt(baseOutMilli).Shift(-3)
					return dexQuoteAt("USDC", "WETH", amount, out), nil
				},
				baseToQuote: func(amount decimal.Decimal) (*model.DEXQuote, error) {
					return dexQuoteAt("WETH", "USDC", amount, decimal.NewFromInt(quoteOut)), nil
				},
			}
			e := newEvaluator(q, pool)

			opps, err := e.EvaluateBlock(context.Background(), input)
			if err != nil {
				return false
			}
			return len(opps) <= maxOpps
		},
		gen.Int64Range(-5000, 5000),
		gen.Int64Range(-20000, 20000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
