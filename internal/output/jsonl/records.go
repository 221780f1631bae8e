package jsonl

import (
	"time"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/txbuilder"
)

const gweiShift int32 = 9

// DEXLeg 评估记录中的链上腿
type DEXLeg struct {
	TokenIn     string          `json:"token_in"`
	TokenOut    string          `json:"token_out"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	Price       decimal.Decimal `json:"price"`
	GasEstimate uint64          `json:"gas_estimate"`
}

// CEXLeg 评估记录中的交易所腿
type CEXLeg struct {
	TokenIn   string          `json:"token_in"`
	TokenOut  string          `json:"token_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

// EvaluationRecord 一次评估的完整经济摘要
// 写入全量评估流；最优成交流在此之上附加交易载荷。
type EvaluationRecord struct {
	Timestamp         string           `json:"timestamp"`
	Block             uint64           `json:"block"`
	NetProfitUSD      decimal.Decimal  `json:"net_profit_usd"`
	Direction         model.Direction  `json:"direction"`
	DEX               DEXLeg           `json:"dex"`
	CEX               CEXLeg           `json:"cex"`
	GasPriceGwei      decimal.Decimal  `json:"gas_price_gwei"`
	GasCostUSD        decimal.Decimal  `json:"gas_cost_usd"`
	ProfitToken       string           `json:"profit_token"`
	ProfitTokenAmount decimal.Decimal  `json:"profit_token_amount"`
	ProfitBps         *decimal.Decimal `json:"profit_bps"`
	IsProfitable      bool             `json:"is_profitable"`
}

// BestTradeRecord 每区块最优成交记录
type BestTradeRecord struct {
	EvaluationRecord
	// Tx 为最优机会构造的交易载荷
	Tx *txbuilder.Payload `json:"tx"`
}

// NewEvaluationRecord 从机会构造评估记录
// USD 口径数值由调用方按当前参考价计算后传入；
// profitBps 无定义时传 nil。
func NewEvaluationRecord(opp *model.Opportunity, netProfitUSD, gasCostUSD decimal.Decimal, profitBps *decimal.Decimal) *EvaluationRecord {
	return &EvaluationRecord{
		Timestamp:    opp.Timestamp().Format(time.RFC3339Nano),
		Block:        opp.BlockNumber,
		NetProfitUSD: netProfitUSD,
		Direction:    opp.Direction,
		DEX: DEXLeg{
			TokenIn:     opp.DEXQuote.TokenIn,
			TokenOut:    opp.DEXQuote.TokenOut,
			AmountIn:    opp.DEXQuote.AmountIn,
			AmountOut:   opp.DEXQuote.AmountOut,
			Price:       opp.DEXPrice,
			GasEstimate: opp.DEXQuote.GasEstimate,
		},
		CEX: CEXLeg{
			TokenIn:   opp.CEXQuote.TokenIn,
			TokenOut:  opp.CEXQuote.TokenOut,
			AmountIn:  opp.CEXQuote.AmountIn,
			AmountOut: opp.CEXQuote.AmountOut,
			AvgPrice:  opp.CEXQuote.AveragePrice,
		},
		GasPriceGwei:      decimal.NewFromBigInt(opp.GasPriceWei, 0).Shift(-gweiShift),
		GasCostUSD:        gasCostUSD,
		ProfitToken:       opp.ProfitToken,
		ProfitTokenAmount: opp.GrossProfitToken,
		ProfitBps:         profitBps,
		IsProfitable:      opp.IsProfitable,
	}
}

// NewBestTradeRecord 从最优机会与其交易载荷构造最优成交记录
func NewBestTradeRecord(opp *model.Opportunity, netProfitUSD, gasCostUSD decimal.Decimal, profitBps *decimal.Decimal, tx *txbuilder.Payload) *BestTradeRecord {
	return &BestTradeRecord{
		EvaluationRecord: *NewEvaluationRecord(opp, netProfitUSD, gasCostUSD, profitBps),
		Tx:               tx,
	}
}
