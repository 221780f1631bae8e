// Package orderbook 实现 CEX 订单簿执行模拟器。
// 对任意规模的 taker 订单，沿订单簿逐档撮合，预测成交价格、数量与手续费。
// 重要：仅做离线模拟，绝不向交易所下单。
package orderbook

import (
	"errors"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/core/model"
)

// ErrInsufficientLiquidity 订单簿深度不足以完全成交
// 模拟器不报告部分成交 —— 调用方应缩小规模后重试。
var ErrInsufficientLiquidity = errors.New("orderbook: 流动性不足")

var bpsDivisor = decimal.NewFromInt(10000)

// Simulator CEX 执行模拟器
// 手续费率在构造时固定：taker fee（基点）÷ 10000。
type Simulator struct {
	// feeRate taker 手续费率（比例值，如 0.0001）
	feeRate decimal.Decimal
}

// NewSimulator 创建执行模拟器
// 参数 takerFeeBps: taker 手续费（基点）
func NewSimulator(takerFeeBps decimal.Decimal) *Simulator {
	return &Simulator{feeRate: takerFeeBps.Div(bpsDivisor)}
}

// FeeRate 获取手续费率（比例值）
func (s *Simulator) FeeRate() decimal.Decimal {
	return s.feeRate
}

// SimulateBuy 模拟用 quote 买入 base
// 从最优卖价逐档向上扫：每档成交 min(档位数量, 剩余 notional / 档位价格)，
// 消耗 fill·price 的 notional；notional 耗尽或档位耗尽时停止。
// 扫完所有档位仍有剩余 notional 则返回 ErrInsufficientLiquidity。
// 手续费作用在买到的 base 数量上（费用以买入资产支付）。
// 成交均价 = 花费的 quote / 扣费后的 base。
// 非正价格或数量的档位被跳过，不视为错误。
func (s *Simulator) SimulateBuy(maxQuote decimal.Decimal, asks []model.Level, tokenIn, tokenOut string) (*model.CEXQuote, error) {
	if maxQuote.Sign() <= 0 || len(asks) == 0 {
		return nil, ErrInsufficientLiquidity
	}

	remainingQuote := maxQuote
	totalQuoteSpent := decimal.Zero
	totalBaseFilled := decimal.Zero

	for _, level := range asks {
		if level.Price.Sign() <= 0 || level.Qty.Sign() <= 0 {
			continue
		}

		levelCost := level.Price.Mul(level.Qty)

		var fillBase, fillQuote decimal.Decimal
		if levelCost.LessThanOrEqual(remainingQuote) {
			fillBase = level.Qty
			fillQuote = levelCost
		} else {
			fillBase = remainingQuote.Div(level.Price)
			fillQuote = remainingQuote
		}

		totalBaseFilled = totalBaseFilled.Add(fillBase)
		totalQuoteSpent = totalQuoteSpent.Add(fillQuote)
		remainingQuote = remainingQuote.Sub(fillQuote)

		if remainingQuote.Sign() <= 0 {
			break
		}
	}

	if remainingQuote.Sign() > 0 {
		return nil, ErrInsufficientLiquidity
	}

	// 费用从买到的 base 中扣除
	netBase := totalBaseFilled.Sub(totalBaseFilled.Mul(s.feeRate))

	avgPrice := decimal.Zero
	if netBase.Sign() > 0 {
		avgPrice = totalQuoteSpent.Div(netBase)
	}

	return &model.CEXQuote{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     totalQuoteSpent,
		AmountOut:    netBase,
		AveragePrice: avgPrice,
	}, nil
}

// SimulateSell 模拟卖出 base 换 quote
// 从最优买价逐档向下扫：每档成交 min(档位数量, 剩余 base)，累计收到的
// notional；目标数量成交完或档位耗尽时停止，目标未满足则流动性不足。
// 手续费作用在收到的 notional 上（费用以换入资产支付）。
// 成交均价 = 扣费后的 quote / 卖出的 base。
func (s *Simulator) SimulateSell(targetBase decimal.Decimal, bids []model.Level, tokenIn, tokenOut string) (*model.CEXQuote, error) {
	if targetBase.Sign() <= 0 || len(bids) == 0 {
		return nil, ErrInsufficientLiquidity
	}

	remainingBase := targetBase
	totalQuoteReceived := decimal.Zero
	totalBaseSold := decimal.Zero

	for _, level := range bids {
		if level.Price.Sign() <= 0 || level.Qty.Sign() <= 0 {
			continue
		}

		fillBase := decimal.Min(remainingBase, level.Qty)
		fillQuote := fillBase.Mul(level.Price)

		totalBaseSold = totalBaseSold.Add(fillBase)
		totalQuoteReceived = totalQuoteReceived.Add(fillQuote)
		remainingBase = remainingBase.Sub(fillBase)

		if remainingBase.Sign() <= 0 {
			break
		}
	}

	if remainingBase.Sign() > 0 {
		return nil, ErrInsufficientLiquidity
	}

	// 费用从收到的 quote 中扣除
	netQuote := totalQuoteReceived.Sub(totalQuoteReceived.Mul(s.feeRate))

	avgPrice := decimal.Zero
	if totalBaseSold.Sign() > 0 {
		avgPrice = netQuote.Div(totalBaseSold)
	}

	return &model.CEXQuote{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     totalBaseSold,
		AmountOut:    netQuote,
		AveragePrice: avgPrice,
	}, nil
}
