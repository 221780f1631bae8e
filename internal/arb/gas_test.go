// Package arb gas 成本计算单元测试与属性测试
package arb

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/config"
)

func testGasCalc() *GasCalc {
	return NewGasCalc(&config.GasConfig{
		GasLimit:       150000,
		NativeDecimals: 18,
	})
}

func TestCostNative(t *testing.T) {
	g := testGasCalc()

	// 1 gwei × 150000 = 150000 gwei = 0.00015 ETH
	got := g.CostNative(big.NewInt(1_000_000_000))
	if !got.Equal(decimal.RequireFromString("0.00015")) {
		t.Fatalf("原生 gas 成本错误: %s", got)
	}
}

func TestCostNative_ZeroPrice(t *testing.T) {
	g := testGasCalc()
	if got := g.CostNative(big.NewInt(0)); !got.IsZero() {
		t.Fatalf("零 gas 价格成本应为 0: %s", got)
	}
}

func TestCostQuote(t *testing.T) {
	g := testGasCalc()

	// 0.00015 ETH × 3000 USDC/ETH = 0.45 USDC
	got := g.CostQuote(big.NewInt(1_000_000_000), decimal.RequireFromString("3000"))
	if !got.Equal(decimal.RequireFromString("0.45")) {
		t.Fatalf("quote gas 成本错误: %s", got)
	}
}

// **Feature: gas 成本计算, Property 1: 对 gas 价格严格线性**
func TestCostNative_Linearity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	g := testGasCalc()
	two := decimal.NewFromInt(2)

	properties.Property("gasCostNative(2p) == 2·gasCostNative(p)", prop.ForAll(
		func(priceWei int64) bool {
			p := big.NewInt(priceWei)
			doubled := new(big.Int).Mul(p, big.NewInt(2))
			return g.CostNative(doubled).Equal(g.CostNative(p).Mul(two))
		},
		gen.Int64Range(0, 1_000_000_000_000),
	))

	properties.Property("quote 成本与参考价同乘同倍", prop.ForAll(
		func(priceWei int64, refInt int64) bool {
			p := big.NewInt(priceWei)
			ref := decimal.NewFromInt(refInt)
			expected := g.CostNative(p).Mul(ref)
			return g.CostQuote(p, ref).Equal(expected)
		},
		gen.Int64Range(1, 1_000_000_000_000),
		gen.Int64Range(1, 100_000),
	))

	properties.TestingRun(t)
}
