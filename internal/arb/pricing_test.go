// Package arb 定价规则与最优选择单元测试
package arb

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
)

func gasCfg() *config.GasConfig {
	return &config.GasConfig{
		NativeSymbol:        "ETH",
		WrappedNativeSymbol: "WETH",
		QuoteSymbol:         "USDC",
	}
}

func poolOf(base, quote string) *config.PoolConfig {
	return &config.PoolConfig{BaseSymbol: base, QuoteSymbol: quote}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNativePriceQuote_ThreeWay(t *testing.T) {
	pairMid := d("3000")
	gasMid := d("3005")

	tests := []struct {
		name     string
		base     string
		quote    string
		expected decimal.Decimal
		wantErr  bool
	}{
		{"quote 为包装原生资产", "WBTC", "WETH", d("1"), false},
		{"quote 为原生资产", "WBTC", "ETH", d("1"), false},
		{"base 为包装原生资产", "WETH", "USDC", pairMid, false},
		{"base 为包装原生资产优先于 gas 参考", "WETH", "WBTC", pairMid, false},
		{"quote 为 gas 参考资产", "WBTC", "USDC", gasMid, false},
		{"无定价路径", "WBTC", "DAI", decimal.Zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPricing(gasCfg(), poolOf(tt.base, tt.quote))
			got, err := p.NativePriceQuote(pairMid, gasMid)
			if tt.wantErr {
				if !errors.Is(err, ErrNoGasReference) {
					t.Fatalf("应返回 ErrNoGasReference: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("不应报错: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Fatalf("参考价错误: got=%s want=%s", got, tt.expected)
			}
		})
	}
}

func TestQuotePriceUSD_ThreeWay(t *testing.T) {
	pairMid := d("20") // WETH/WBTC 场景下 base/quote 中间价
	gasMid := d("3000")

	tests := []struct {
		name     string
		base     string
		quote    string
		expected decimal.Decimal
		ok       bool
	}{
		{"quote 即 gas 参考资产", "WETH", "USDC", d("1"), true},
		{"quote 为包装原生资产", "WBTC", "WETH", gasMid, true},
		{"base 为包装原生资产经两段换算", "WETH", "WBTC", d("150"), true},
		{"无换算路径", "WBTC", "DAI", decimal.Zero, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPricing(gasCfg(), poolOf(tt.base, tt.quote))
			got, ok := p.QuotePriceUSD(pairMid, gasMid)
			if ok != tt.ok {
				t.Fatalf("可用性错误: got=%v want=%v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.expected) {
				t.Fatalf("USD 价格错误: got=%s want=%s", got, tt.expected)
			}
		})
	}
}

func TestQuotePriceUSD_NonPositivePairMid(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "WBTC"))
	if _, ok := p.QuotePriceUSD(decimal.Zero, d("3000")); ok {
		t.Fatalf("中间价非正时不应返回可用价格")
	}
}

func oppWith(profitToken, dexTokenIn string, gross, gasQuote, dexAmountIn decimal.Decimal) *model.Opportunity {
	return &model.Opportunity{
		ProfitToken:      profitToken,
		GrossProfitToken: gross,
		GasCostQuote:     gasQuote,
		DEXQuote:         model.DEXQuote{TokenIn: dexTokenIn, AmountIn: dexAmountIn},
	}
}

func TestNetProfitUSD(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))
	pairMid := d("3000")
	quoteUSD := d("1")

	// quote 计价利润: 2 USDC 毛利 − 0.5 USDC gas = 1.5 USD
	oppA := oppWith("USDC", "USDC", d("2"), d("0.5"), d("4500"))
	if got := p.NetProfitUSD(oppA, pairMid, quoteUSD); !got.Equal(d("1.5")) {
		t.Fatalf("quote 利润换算错误: %s", got)
	}

	// base 计价利润: 0.001 WETH × 3000 − 0.5 = 2.5 USD
	oppB := oppWith("WETH", "WETH", d("0.001"), d("0.5"), d("1.5"))
	if got := p.NetProfitUSD(oppB, pairMid, quoteUSD); !got.Equal(d("2.5")) {
		t.Fatalf("base 利润换算错误: %s", got)
	}
}

func TestProfitBps(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))
	pairMid := d("3000")
	quoteUSD := d("1")

	// 资本 = 4500 + 0.5，净利 1.5
	opp := oppWith("USDC", "USDC", d("2"), d("0.5"), d("4500"))
	bps, ok := p.ProfitBps(opp, pairMid, quoteUSD)
	if !ok {
		t.Fatalf("资本为正时应可计算 bps")
	}
	expected := d("1.5").Div(d("4500.5")).Mul(d("10000"))
	if !bps.Equal(expected) {
		t.Fatalf("bps 错误: got=%s want=%s", bps, expected)
	}
}

func TestProfitBps_ZeroCapital(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))
	opp := oppWith("USDC", "USDC", d("2"), decimal.Zero, decimal.Zero)
	if _, ok := p.ProfitBps(opp, d("3000"), d("1")); ok {
		t.Fatalf("资本非正时 bps 无定义")
	}
}

func TestSelectBest(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))
	pairMid := d("3000")
	quoteUSD := d("1")

	lose := oppWith("USDC", "USDC", d("-1"), d("0.5"), d("100"))
	small := oppWith("USDC", "USDC", d("1"), d("0.5"), d("100"))
	large := oppWith("USDC", "USDC", d("5"), d("0.5"), d("100"))

	best, net := p.SelectBest([]*model.Opportunity{lose, small, large}, pairMid, quoteUSD)
	if best != large {
		t.Fatalf("应选净利润最大的候选")
	}
	if !net.Equal(d("4.5")) {
		t.Fatalf("净利润错误: %s", net)
	}
}

func TestSelectBest_TieKeepsSweepOrder(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))

	first := oppWith("USDC", "USDC", d("3"), d("1"), d("100"))
	second := oppWith("USDC", "USDC", d("3"), d("1"), d("200"))

	best, _ := p.SelectBest([]*model.Opportunity{first, second}, d("3000"), d("1"))
	if best != first {
		t.Fatalf("利润相等时应保留扫描顺序靠前的候选")
	}
}

func TestSelectBest_NonePositive(t *testing.T) {
	p := NewPricing(gasCfg(), poolOf("WETH", "USDC"))

	breakeven := oppWith("USDC", "USDC", d("1"), d("1"), d("100"))
	lose := oppWith("USDC", "USDC", d("0.2"), d("1"), d("100"))

	best, _ := p.SelectBest([]*model.Opportunity{breakeven, lose}, d("3000"), d("1"))
	if best != nil {
		t.Fatalf("净利润非正的候选不应入选")
	}
}
