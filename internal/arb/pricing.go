package arb

import (
	"errors"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
)

// ErrNoGasReference 无法用 quote 代币为 gas 定价
// 池的两个代币与原生资产、gas 参考资产均无交集时返回，
// 该区块应整体跳过评估。
var ErrNoGasReference = errors.New("arb: 无可用的 gas 定价路径")

var one = decimal.NewFromInt(1)

// Pricing 固定三分支定价规则
// 绑定池代币符号与 gas 配置符号，所有方法都是纯函数。
// pairMid 指交易对行情的深度加权中间价（base/quote）,
// gasMid 指 gas 参考行情的中间价（native/gas 参考资产）。
type Pricing struct {
	// pool 池配置
	pool *config.PoolConfig
	// nativeSymbol 原生代币符号
	nativeSymbol string
	// wrappedNativeSymbol 包装原生代币符号
	wrappedNativeSymbol string
	// gasQuoteSymbol gas 参考资产符号
	gasQuoteSymbol string
}

// NewPricing 创建定价规则
// 参数 gasCfg: gas 配置（提供原生/包装/参考资产符号）
// 参数 pool: 池配置
func NewPricing(gasCfg *config.GasConfig, pool *config.PoolConfig) *Pricing {
	return &Pricing{
		pool:                pool,
		nativeSymbol:        gasCfg.NativeSymbol,
		wrappedNativeSymbol: gasCfg.WrappedNativeSymbol,
		gasQuoteSymbol:      gasCfg.QuoteSymbol,
	}
}

// isNativeOrWrapped 代币是否为原生资产或其包装形式
func (p *Pricing) isNativeOrWrapped(symbol string) bool {
	return symbol == p.nativeSymbol || symbol == p.wrappedNativeSymbol
}

// NativePriceQuote 解析原生代币以池 quote 计价的参考价格
// 三分支规则：
//  1. quote 即原生资产 ⇒ 比率为 1；
//  2. base 即原生资产 ⇒ 交易对中间价本身就是 native/quote；
//  3. quote 等于 gas 参考资产 ⇒ 使用 gas 行情中间价。
//
// 均不满足时返回 ErrNoGasReference，调用方跳过整个区块。
func (p *Pricing) NativePriceQuote(pairMid, gasMid decimal.Decimal) (decimal.Decimal, error) {
	if p.isNativeOrWrapped(p.pool.QuoteSymbol) {
		return one, nil
	}
	if p.isNativeOrWrapped(p.pool.BaseSymbol) {
		return pairMid, nil
	}
	if p.pool.QuoteSymbol == p.gasQuoteSymbol {
		return gasMid, nil
	}
	return decimal.Zero, ErrNoGasReference
}

// QuotePriceUSD 解析 1 个池 quote 代币的美元近似价格
// gas 参考资产视作美元锚定。无换算路径时第二返回值为 false。
func (p *Pricing) QuotePriceUSD(pairMid, gasMid decimal.Decimal) (decimal.Decimal, bool) {
	if p.pool.QuoteSymbol == p.gasQuoteSymbol {
		return one, true
	}
	if p.isNativeOrWrapped(p.pool.QuoteSymbol) {
		return gasMid, true
	}
	// 例如 WETH/WBTC 池: (native/usd) / (native/wbtc) = wbtc/usd
	if p.isNativeOrWrapped(p.pool.BaseSymbol) {
		if pairMid.Sign() <= 0 {
			return decimal.Zero, false
		}
		return gasMid.Div(pairMid), true
	}
	return decimal.Zero, false
}

// ProfitTokenUSD 计算利润的美元近似值
// 利润以 quote 计价时直接乘 quote 美元价；以 base 计价时
// 先经交易对中间价换算到 quote。未知计价代币返回 0。
func (p *Pricing) ProfitTokenUSD(opp *model.Opportunity, pairMid, quotePriceUSD decimal.Decimal) decimal.Decimal {
	switch opp.ProfitToken {
	case p.pool.QuoteSymbol:
		return opp.GrossProfitToken.Mul(quotePriceUSD)
	case p.pool.BaseSymbol:
		return opp.GrossProfitToken.Mul(pairMid).Mul(quotePriceUSD)
	}
	return decimal.Zero
}

// GasCostUSD 计算 gas 成本的美元近似值
func (p *Pricing) GasCostUSD(opp *model.Opportunity, quotePriceUSD decimal.Decimal) decimal.Decimal {
	return opp.GasCostQuote.Mul(quotePriceUSD)
}

// NetProfitUSD 计算美元口径净利润
// 利润换算到美元后扣除 gas 成本。
func (p *Pricing) NetProfitUSD(opp *model.Opportunity, pairMid, quotePriceUSD decimal.Decimal) decimal.Decimal {
	return p.ProfitTokenUSD(opp, pairMid, quotePriceUSD).Sub(p.GasCostUSD(opp, quotePriceUSD))
}

// notionalQuote DEX 腿投入资金的 quote 计价名义规模
func (p *Pricing) notionalQuote(opp *model.Opportunity, pairMid decimal.Decimal) decimal.Decimal {
	switch opp.DEXQuote.TokenIn {
	case p.pool.QuoteSymbol:
		return opp.DEXQuote.AmountIn
	case p.pool.BaseSymbol:
		return opp.DEXQuote.AmountIn.Mul(pairMid)
	}
	return decimal.Zero
}

// ProfitBps 计算相对投入资本的利润基点
// 资本 = 名义规模 + gas 成本（均为美元口径）;
// 资本不为正时无定义，第二返回值为 false。
func (p *Pricing) ProfitBps(opp *model.Opportunity, pairMid, quotePriceUSD decimal.Decimal) (decimal.Decimal, bool) {
	notionalUSD := p.notionalQuote(opp, pairMid).Mul(quotePriceUSD)
	capitalUSD := notionalUSD.Add(p.GasCostUSD(opp, quotePriceUSD))
	if capitalUSD.Sign() <= 0 {
		return decimal.Zero, false
	}
	net := p.NetProfitUSD(opp, pairMid, quotePriceUSD)
	return net.Div(capitalUSD).Mul(decimal.NewFromInt(10000)), true
}

// SelectBest 在候选中选出美元净利润最大的一笔
// 只考虑净利润严格为正的候选；比较使用严格大于，
// 相等利润保留扫描顺序中先出现的一笔。无合格候选返回 nil。
func (p *Pricing) SelectBest(opps []*model.Opportunity, pairMid, quotePriceUSD decimal.Decimal) (*model.Opportunity, decimal.Decimal) {
	var best *model.Opportunity
	var bestNet decimal.Decimal

	for _, opp := range opps {
		net := p.NetProfitUSD(opp, pairMid, quotePriceUSD)
		if net.Sign() <= 0 {
			continue
		}
		if best == nil || net.GreaterThan(bestNet) {
			best = opp
			bestNet = net
		}
	}
	return best, bestNet
}
