// Package arb 实现套利评估核心：gas 成本计算、定价规则与逐档扫描评估器。
package arb

import (
	"math/big"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/config"
)

// GasCalc gas 成本计算器
// 无状态纯计算，只持有部署期固定的 gas 上限与原生代币精度。
type GasCalc struct {
	// gasLimit 单笔交易 gas 上限（固定估计值）
	gasLimit uint64
	// nativeDecimals 原生代币精度
	nativeDecimals int32
}

// NewGasCalc 创建 gas 成本计算器
// 参数 cfg: gas 配置
func NewGasCalc(cfg *config.GasConfig) *GasCalc {
	return &GasCalc{
		gasLimit:       cfg.GasLimit,
		nativeDecimals: cfg.NativeDecimals,
	}
}

// Limit 获取固定 gas 上限
func (g *GasCalc) Limit() uint64 {
	return g.gasLimit
}

// CostNative 计算 gas 成本（原生代币单位）
// gasPriceWei · gasLimit / 10^nativeDecimals，对 gas 价格严格线性。
func (g *GasCalc) CostNative(gasPriceWei *big.Int) decimal.Decimal {
	wei := decimal.NewFromBigInt(gasPriceWei, 0)
	limit := decimal.NewFromBigInt(new(big.Int).SetUint64(g.gasLimit), 0)
	return wei.Mul(limit).Shift(-g.nativeDecimals)
}

// CostQuote 计算 gas 成本（池 quote 代币单位）
// 参数 nativePriceQuote: 原生代币以 quote 计价的参考价格，
// 由调用方按定价规则解析；无有效参考价时不得调用本方法。
func (g *GasCalc) CostQuote(gasPriceWei *big.Int, nativePriceQuote decimal.Decimal) decimal.Decimal {
	return g.CostNative(gasPriceWei).Mul(nativePriceQuote)
}
