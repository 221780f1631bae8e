// Package txbuilder 构造 universal router 的 exact-in 兑换 calldata。
// 只为每区块选出的最优机会构造一次：外层为
// execute(bytes commands, bytes[] inputs, uint256 deadline)，
// 单条命令 V3_SWAP_EXACT_IN，输出仅写入最优成交日志，从不上链提交。
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
)

// CommandV3SwapExactIn universal router 的 V3 exact-in 兑换命令字节
const CommandV3SwapExactIn byte = 0x00

// payerIsUser 由签名账户直接支付输入代币（不经 router 余额）
const payerIsUser = true

var (
	executeSelector []byte
	executeArgs     abi.Arguments
	swapInputArgs   abi.Arguments
)

func init() {
	bytesType, _ := abi.NewType("bytes", "", nil)
	bytesArrayType, _ := abi.NewType("bytes[]", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	boolType, _ := abi.NewType("bool", "", nil)

	executeSelector = crypto.Keccak256([]byte("execute(bytes,bytes[],uint256)"))[:4]
	executeArgs = abi.Arguments{
		{Type: bytesType},      // commands
		{Type: bytesArrayType}, // inputs
		{Type: uint256Type},    // deadline
	}
	// V3_SWAP_EXACT_IN 的 input 布局
	swapInputArgs = abi.Arguments{
		{Type: addressType}, // recipient
		{Type: uint256Type}, // amountIn
		{Type: uint256Type}, // amountOutMin
		{Type: bytesType},   // path
		{Type: boolType},    // payerIsUser
	}
}

// Payload 构造好的交易载荷
// 字段展开到可直接写入最优成交日志的程度。
type Payload struct {
	// To router 合约地址
	To string `json:"to"`
	// Data 完整 calldata（0x 前缀）
	Data string `json:"data"`
	// Value 附带的原生代币数量（恒为 0）
	Value int64 `json:"value"`
	// Deadline 交易截止时间戳（秒）
	Deadline int64 `json:"deadline"`
	// Commands 命令字节串
	Commands string `json:"commands"`
	// Inputs 每条命令的 ABI 编码输入
	Inputs []string `json:"inputs"`
	// Path v3 兑换路径
	Path string `json:"path"`
	// TokenIn 输入代币地址
	TokenIn string `json:"token_in"`
	// TokenOut 输出代币地址
	TokenOut string `json:"token_out"`
	// AmountInRaw 输入数量（最小单位）
	AmountInRaw string `json:"amount_in_raw"`
	// AmountOutMinRaw 最小输出数量（最小单位）
	AmountOutMinRaw string `json:"amount_out_min_raw"`
	// Recipient 输出代币接收地址
	Recipient string `json:"recipient"`
	// PayerIsUser 是否由签名账户直接付款
	PayerIsUser bool `json:"payer_is_user"`
	// TickSpacing 池 tickSpacing
	TickSpacing int64 `json:"tick_spacing"`
}

// Builder 交易载荷构造器
type Builder struct {
	// router router 合约地址
	router common.Address
	// recipient 输出接收地址
	recipient common.Address
	// tickSpacing 池 tickSpacing
	tickSpacing int64
	// addrBySymbol 代币符号到地址的映射
	addrBySymbol map[string]common.Address
}

// NewBuilder 创建交易载荷构造器
// 参数 routerCfg: router 配置
// 参数 pool: 池配置（提供代币地址与 tickSpacing）
func NewBuilder(routerCfg *config.RouterConfig, pool *config.PoolConfig) *Builder {
	return &Builder{
		router:      common.HexToAddress(routerCfg.Address),
		recipient:   common.HexToAddress(routerCfg.Recipient),
		tickSpacing: pool.TickSpacing,
		addrBySymbol: map[string]common.Address{
			pool.BaseSymbol:  common.HexToAddress(pool.BaseAddress),
			pool.QuoteSymbol: common.HexToAddress(pool.QuoteAddress),
		},
	}
}

// Build 为一个机会的 DEX 腿构造 calldata
// 最小输出取报价返回的输出数量（raw 权威值）。
// 参数 deadlineUnix: 截止时间戳（秒），通常为区块时间 + 配置秒数
func (b *Builder) Build(opp *model.Opportunity, deadlineUnix int64) (*Payload, error) {
	tokenIn, ok := b.addrBySymbol[opp.DEXQuote.TokenIn]
	if !ok {
		return nil, fmt.Errorf("未知输入代币: %s", opp.DEXQuote.TokenIn)
	}
	tokenOut, ok := b.addrBySymbol[opp.DEXQuote.TokenOut]
	if !ok {
		return nil, fmt.Errorf("未知输出代币: %s", opp.DEXQuote.TokenOut)
	}
	if opp.DEXQuote.AmountInRaw == nil || opp.DEXQuote.AmountOutRaw == nil {
		return nil, fmt.Errorf("DEX 腿缺少 raw 数量")
	}

	path := EncodeV3Path(tokenIn, tokenOut, b.tickSpacing)

	input, err := swapInputArgs.Pack(
		b.recipient,
		opp.DEXQuote.AmountInRaw,
		opp.DEXQuote.AmountOutRaw,
		path,
		payerIsUser,
	)
	if err != nil {
		return nil, fmt.Errorf("编码兑换输入失败: %w", err)
	}

	commands := []byte{CommandV3SwapExactIn}
	body, err := executeArgs.Pack(commands, [][]byte{input}, big.NewInt(deadlineUnix))
	if err != nil {
		return nil, fmt.Errorf("编码 execute 参数失败: %w", err)
	}

	return &Payload{
		To:              b.router.Hex(),
		Data:            hexutil.Encode(append(append([]byte{}, executeSelector...), body...)),
		Value:           0,
		Deadline:        deadlineUnix,
		Commands:        hexutil.Encode(commands),
		Inputs:          []string{hexutil.Encode(input)},
		Path:            hexutil.Encode(path),
		TokenIn:         tokenIn.Hex(),
		TokenOut:        tokenOut.Hex(),
		AmountInRaw:     opp.DEXQuote.AmountInRaw.String(),
		AmountOutMinRaw: opp.DEXQuote.AmountOutRaw.String(),
		Recipient:       b.recipient.Hex(),
		PayerIsUser:     payerIsUser,
		TickSpacing:     b.tickSpacing,
	}, nil
}

// EncodeV3Path 编码单跳 v3 兑换路径
// 布局: tokenIn(20 字节) ‖ tickSpacing(3 字节大端) ‖ tokenOut(20 字节)
func EncodeV3Path(tokenIn, tokenOut common.Address, tickSpacing int64) []byte {
	path := make([]byte, 0, 43)
	path = append(path, tokenIn.Bytes()...)
	path = append(path, byte(tickSpacing>>16), byte(tickSpacing>>8), byte(tickSpacing))
	path = append(path, tokenOut.Bytes()...)
	return path
}
