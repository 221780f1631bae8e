// Package model 定义扫描器中使用的核心数据结构。
// 包含订单簿、DEX/CEX 两腿报价、套利机会等核心类型。
// 所有货币数量使用 decimal.Decimal，禁止在任何影响交易/利润判断的
// 比较或累加中使用浮点数。
package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/util/timeutil"
)

// Direction 套利方向
type Direction string

const (
	// DirectionDEXBuyCEXSell 在 DEX 用 quote 买入 base，再在 CEX 卖出 base
	DirectionDEXBuyCEXSell Direction = "dex_buy_cex_sell"
	// DirectionDEXSellCEXBuy 在 DEX 卖出 base 换 quote，再在 CEX 买回 base
	DirectionDEXSellCEXBuy Direction = "dex_sell_cex_buy"
)

// DEXQuote DEX 链上腿报价
// Raw 整数字段（最小单位）是构造交易 calldata 的权威值，
// decimal 字段是除以 10^decimals 得到的经济单位视图。
type DEXQuote struct {
	// TokenIn 卖出代币符号
	TokenIn string `json:"token_in"`
	// TokenOut 买入代币符号
	TokenOut string `json:"token_out"`
	// AmountIn 卖出数量（经济单位）
	AmountIn decimal.Decimal `json:"amount_in"`
	// AmountOut 买入数量（经济单位）
	AmountOut decimal.Decimal `json:"amount_out"`
	// AmountInRaw 卖出数量（最小单位整数，权威值）
	AmountInRaw *big.Int `json:"amount_in_raw"`
	// AmountOutRaw 买入数量（最小单位整数，权威值）
	AmountOutRaw *big.Int `json:"amount_out_raw"`
	// GasEstimate Quoter 返回的 gas 估计
	GasEstimate uint64 `json:"gas_estimate"`
}

// CEXQuote CEX 执行模拟腿报价
// AmountOut 已扣除 taker 手续费。
type CEXQuote struct {
	// TokenIn 卖出代币符号
	TokenIn string `json:"token_in"`
	// TokenOut 买入代币符号
	TokenOut string `json:"token_out"`
	// AmountIn 卖出数量
	AmountIn decimal.Decimal `json:"amount_in"`
	// AmountOut 买入数量（净值，已扣 taker fee）
	AmountOut decimal.Decimal `json:"amount_out"`
	// AveragePrice 成交均价
	AveragePrice decimal.Decimal `json:"average_price"`
}

// Opportunity 一次完整评估得到的候选套利交易
// 每个 (block, trade size, direction) 评估产生一条，创建后只读；
// 唯一例外是 IsProfitable 标志，由编排循环在获得 USD 上下文后设置一次。
type Opportunity struct {
	// TimestampUnixNs 评估时刻（纳秒）
	TimestampUnixNs int64 `json:"ts_unix_ns"`
	// BlockNumber 区块高度
	BlockNumber uint64 `json:"block_number"`
	// Direction 套利方向
	Direction Direction `json:"direction"`
	// TradeSizeBase 本次交易涉及的 base 数量
	TradeSizeBase decimal.Decimal `json:"trade_size_base"`
	// DEXQuote 链上腿
	DEXQuote DEXQuote `json:"dex_quote"`
	// CEXQuote 交易所腿
	CEXQuote CEXQuote `json:"cex_quote"`
	// GasPriceWei 本区块 gas 价格（wei）
	GasPriceWei *big.Int `json:"gas_price_wei"`
	// GasCostNative gas 成本（原生代币单位）
	GasCostNative decimal.Decimal `json:"gas_cost_native"`
	// GasCostQuote gas 成本（池 quote 代币单位）
	GasCostQuote decimal.Decimal `json:"gas_cost_quote"`
	// ProfitToken 利润计价代币符号
	ProfitToken string `json:"profit_token"`
	// GrossProfitToken 毛利润（ProfitToken 单位）
	GrossProfitToken decimal.Decimal `json:"gross_profit_token"`
	// NetProfitToken 净利润（ProfitToken 单位）
	// 本模型中与毛利润一致：模拟器之外不叠加额外滑点模型。
	NetProfitToken decimal.Decimal `json:"net_profit_token"`
	// DEXPrice DEX 腿有效价格
	DEXPrice decimal.Decimal `json:"dex_price"`
	// CEXPrice CEX 腿有效价格（成交均价）
	CEXPrice decimal.Decimal `json:"cex_price"`
	// IsProfitable 扣除 USD 口径 gas 成本后是否为正
	// 由编排循环设置，Opportunity 上唯一可变字段。
	IsProfitable bool `json:"is_profitable"`
}

// Timestamp 获取评估时刻的 time.Time 表示
func (o *Opportunity) Timestamp() time.Time {
	return timeutil.NanoToTime(o.TimestampUnixNs)
}
