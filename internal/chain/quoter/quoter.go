// Package quoter 实现 QuoterV2 合约的 eth_call 报价客户端。
// 对指定池模拟一笔 exact-in 兑换，返回输出数量、兑换后的池价、
// 穿越的 tick 数与 gas 估计。调用复用链客户端已有的 WebSocket
// 连接，不新开 HTTP 通道。
package quoter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
)

// ContractCaller 执行只读合约调用的最小接口
type ContractCaller interface {
	// CallContract 执行 eth_call
	CallContract(ctx context.Context, to, data string, blockNumber uint64) ([]byte, error)
}

// Result QuoterV2 单次报价结果
type Result struct {
	// AmountOut 输出数量（最小单位）
	AmountOut *big.Int
	// SqrtPriceX96After 兑换后的池 sqrt 价格
	SqrtPriceX96After *big.Int
	// TicksCrossed 兑换穿越的初始化 tick 数
	TicksCrossed uint32
	// GasEstimate 合约估计的兑换 gas 消耗
	GasEstimate uint64
}

// quoteExactInputSingle 的 ABI 编解码器，包级构建一次。
// 参数为单个 struct:
//
//	(address tokenIn, address tokenOut, uint256 amountIn,
//	 int24 tickSpacing, uint160 sqrtPriceLimitX96)
//
// 返回值:
//
//	(uint256 amountOut, uint160 sqrtPriceX96After,
//	 uint32 initializedTicksCrossed, uint256 gasEstimate)
var (
	quoteSelector []byte
	quoteInputs   abi.Arguments
	quoteOutputs  abi.Arguments

	tickSpacingSelector []byte
	tickSpacingOutputs  abi.Arguments
)

func init() {
	paramsType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "tickSpacing", Type: "int24"},
		{Name: "sqrtPriceLimitX96", Type: "uint160"},
	})
	if err != nil {
		panic(fmt.Sprintf("构建 quoteExactInputSingle 参数类型失败: %v", err))
	}
	uint256Type, _ := abi.NewType("uint256", "", nil)
	uint160Type, _ := abi.NewType("uint160", "", nil)
	uint32Type, _ := abi.NewType("uint32", "", nil)
	int24Type, _ := abi.NewType("int24", "", nil)

	quoteSelector = crypto.Keccak256(
		[]byte("quoteExactInputSingle((address,address,uint256,int24,uint160))"))[:4]
	quoteInputs = abi.Arguments{{Type: paramsType}}
	quoteOutputs = abi.Arguments{
		{Type: uint256Type}, // amountOut
		{Type: uint160Type}, // sqrtPriceX96After
		{Type: uint32Type},  // initializedTicksCrossed
		{Type: uint256Type}, // gasEstimate
	}

	tickSpacingSelector = crypto.Keccak256([]byte("tickSpacing()"))[:4]
	tickSpacingOutputs = abi.Arguments{{Type: int24Type}}
}

// quoteParams 与 ABI tuple 字段一一对应的打包载体
type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	TickSpacing       *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Client QuoterV2 报价客户端
// 绑定到一个池：token 地址、精度与 tickSpacing 都来自池配置。
type Client struct {
	// caller 链只读调用执行器
	caller ContractCaller
	// quoterAddr QuoterV2 合约地址
	quoterAddr string
	// pool 池配置
	pool *config.PoolConfig
	// baseAddr base 代币地址
	baseAddr common.Address
	// quoteAddr quote 代币地址
	quoteAddr common.Address
	// logger 日志记录器
	logger *zap.Logger
}

// NewClient 创建报价客户端
// 参数 caller: 链只读调用执行器（通常为 rpc.Client）
// 参数 quoterAddr: QuoterV2 合约地址
// 参数 pool: 池配置
// 参数 logger: 日志记录器
func NewClient(caller ContractCaller, quoterAddr string, pool *config.PoolConfig, logger *zap.Logger) *Client {
	return &Client{
		caller:     caller,
		quoterAddr: quoterAddr,
		pool:       pool,
		baseAddr:   common.HexToAddress(pool.BaseAddress),
		quoteAddr:  common.HexToAddress(pool.QuoteAddress),
		logger:     logger.Named("quoter"),
	}
}

// Quote 对池执行一次 exact-in 报价
// 参数 tokenIn/tokenOut: 兑换两端代币地址
// 参数 amountInRaw: 输入数量（最小单位）
// 参数 blockNumber: 报价锚定的区块高度；0 表示 latest
func (c *Client) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountInRaw *big.Int, blockNumber uint64) (*Result, error) {
	calldata, err := EncodeQuoteCall(tokenIn, tokenOut, amountInRaw, c.pool.TickSpacing)
	if err != nil {
		return nil, err
	}

	ret, err := c.caller.CallContract(ctx, c.quoterAddr, hexutil.Encode(calldata), blockNumber)
	if err != nil {
		return nil, fmt.Errorf("quoter 调用失败: %w", err)
	}

	return DecodeQuoteResult(ret)
}

// QuoteQuoteToBase 用 quote 代币买入 base 代币的报价
// 参数 amountQuote: 输入的 quote 数量（经济单位）
// 返回的 DEXQuote 同时携带 raw 整数与经济单位两种视图。
func (c *Client) QuoteQuoteToBase(ctx context.Context, amountQuote decimal.Decimal, blockNumber uint64) (*model.DEXQuote, error) {
	amountInRaw := toRaw(amountQuote, c.pool.QuoteDecimals)
	if amountInRaw.Sign() <= 0 {
		return nil, fmt.Errorf("报价数量无效: %s %s", amountQuote, c.pool.QuoteSymbol)
	}

	res, err := c.Quote(ctx, c.quoteAddr, c.baseAddr, amountInRaw, blockNumber)
	if err != nil {
		return nil, err
	}

	return &model.DEXQuote{
		TokenIn:      c.pool.QuoteSymbol,
		TokenOut:     c.pool.BaseSymbol,
		AmountIn:     amountQuote,
		AmountOut:    fromRaw(res.AmountOut, c.pool.BaseDecimals),
		AmountInRaw:  amountInRaw,
		AmountOutRaw: res.AmountOut,
		GasEstimate:  res.GasEstimate,
	}, nil
}

// QuoteBaseToQuote 卖出 base 代币换取 quote 代币的报价
// 参数 amountBase: 输入的 base 数量（经济单位）
func (c *Client) QuoteBaseToQuote(ctx context.Context, amountBase decimal.Decimal, blockNumber uint64) (*model.DEXQuote, error) {
	amountInRaw := toRaw(amountBase, c.pool.BaseDecimals)
	if amountInRaw.Sign() <= 0 {
		return nil, fmt.Errorf("报价数量无效: %s %s", amountBase, c.pool.BaseSymbol)
	}

	res, err := c.Quote(ctx, c.baseAddr, c.quoteAddr, amountInRaw, blockNumber)
	if err != nil {
		return nil, err
	}

	return &model.DEXQuote{
		TokenIn:      c.pool.BaseSymbol,
		TokenOut:     c.pool.QuoteSymbol,
		AmountIn:     amountBase,
		AmountOut:    fromRaw(res.AmountOut, c.pool.QuoteDecimals),
		AmountInRaw:  amountInRaw,
		AmountOutRaw: res.AmountOut,
		GasEstimate:  res.GasEstimate,
	}, nil
}

// VerifyTickSpacing 校验池合约的 tickSpacing 与配置一致
// 应在启动时调用一次；不一致说明配置指向了错误的池或错误的
// tickSpacing，继续运行会让所有报价走错 fee tier。
func (c *Client) VerifyTickSpacing(ctx context.Context) error {
	ret, err := c.caller.CallContract(ctx, c.pool.Address, hexutil.Encode(tickSpacingSelector), 0)
	if err != nil {
		return fmt.Errorf("读取池 tickSpacing 失败: %w", err)
	}

	vals, err := tickSpacingOutputs.Unpack(ret)
	if err != nil {
		return fmt.Errorf("解码池 tickSpacing 失败: %w", err)
	}
	onchain, ok := vals[0].(*big.Int)
	if !ok {
		return fmt.Errorf("池 tickSpacing 返回类型异常: %T", vals[0])
	}

	if onchain.Int64() != c.pool.TickSpacing {
		return fmt.Errorf("池 tickSpacing 不一致: 链上=%d 配置=%d (pool=%s)",
			onchain.Int64(), c.pool.TickSpacing, c.pool.Address)
	}

	c.logger.Info("池 tickSpacing 校验通过",
		zap.String("pool", c.pool.Address),
		zap.Int64("tick_spacing", c.pool.TickSpacing))
	return nil
}

// EncodeQuoteCall 构造 quoteExactInputSingle 的完整 calldata
// sqrtPriceLimitX96 固定为 0（不设价格下限）。
func EncodeQuoteCall(tokenIn, tokenOut common.Address, amountInRaw *big.Int, tickSpacing int64) ([]byte, error) {
	packed, err := quoteInputs.Pack(quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountInRaw,
		TickSpacing:       big.NewInt(tickSpacing),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("编码 quoter 参数失败: %w", err)
	}
	return append(append([]byte{}, quoteSelector...), packed...), nil
}

// DecodeQuoteResult 解码 quoteExactInputSingle 的返回数据
func DecodeQuoteResult(ret []byte) (*Result, error) {
	vals, err := quoteOutputs.Unpack(ret)
	if err != nil {
		return nil, fmt.Errorf("解码 quoter 返回失败: %w", err)
	}

	amountOut, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("amountOut 类型异常: %T", vals[0])
	}
	sqrtAfter, ok := vals[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("sqrtPriceX96After 类型异常: %T", vals[1])
	}
	ticksCrossed, ok := vals[2].(uint32)
	if !ok {
		return nil, fmt.Errorf("ticksCrossed 类型异常: %T", vals[2])
	}
	gasEstimate, ok := vals[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("gasEstimate 类型异常: %T", vals[3])
	}

	return &Result{
		AmountOut:         amountOut,
		SqrtPriceX96After: sqrtAfter,
		TicksCrossed:      ticksCrossed,
		GasEstimate:       gasEstimate.Uint64(),
	}, nil
}

// toRaw 经济单位转最小单位整数（向零截断）
func toRaw(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

// fromRaw 最小单位整数转经济单位
func fromRaw(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}
