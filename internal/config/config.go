// Package config 负责加载和验证 YAML 配置文件。
// 配置在启动时一次性解析为不可变结构体，显式传入各组件构造函数，
// 不提供任何全局可变状态或环境查找。
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal YAML 友好的精确十进制数
// 直接从标量字面量文本解析，避免经过 float64 损失精度。
type Decimal struct {
	decimal.Decimal
}

// NewDecimal 从 decimal.Decimal 构造配置数值
func NewDecimal(v decimal.Decimal) Decimal {
	return Decimal{Decimal: v}
}

// UnmarshalYAML 实现 yaml.Unmarshaler
func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("期望标量数值，got kind=%d", value.Kind)
	}
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("解析十进制数值失败: %w", err)
	}
	d.Decimal = v
	return nil
}

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Chain 链节点连接配置
	Chain ChainConfig `yaml:"chain"`
	// CEX 交易所行情连接配置
	CEX CEXConfig `yaml:"cex"`
	// ActivePool 当前激活的池名称（Pools 的 key）
	ActivePool string `yaml:"active_pool"`
	// Pools 池目录
	Pools map[string]PoolConfig `yaml:"pools"`
	// Fees 手续费配置
	Fees FeesConfig `yaml:"fees"`
	// Gas gas 计价配置
	Gas GasConfig `yaml:"gas"`
	// Arb 评估参数配置
	Arb ArbConfig `yaml:"arb"`
	// Router universal router 配置（仅用于构造 calldata，不提交）
	Router RouterConfig `yaml:"router"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// ChainConfig 链节点连接配置
type ChainConfig struct {
	// WSURL 节点 WebSocket JSON-RPC 地址
	WSURL string `yaml:"ws_url"`
	// QuoterAddress QuoterV2 合约地址
	QuoterAddress string `yaml:"quoter_address"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	// 必须大于心跳间隔：pong 逾期未到即视为连接假死，触发重连。
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// CallTimeoutMs 单次 RPC 请求超时（毫秒）
	CallTimeoutMs int `yaml:"call_timeout_ms"`
	// ReconnectDelayMs 断线后的固定重连延迟（毫秒）
	// 有意不做指数退避：行情源放弃重连比永远重试更糟。
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
	// BlockWaitTimeoutMs 等待新区块的单次超时（毫秒）
	// 超时后回到等待状态，给优雅退出留出检查点。
	BlockWaitTimeoutMs int `yaml:"block_wait_timeout_ms"`
}

// CEXConfig 交易所行情连接配置
// 交易对深度流地址在 PoolConfig 中按池配置，这里是公共部分。
type CEXConfig struct {
	// GasFeedWSURL 原生代币/gas 参考资产深度流地址（如 ethusdc）
	GasFeedWSURL string `yaml:"gas_feed_ws_url"`
	// PingIntervalMs 心跳间隔（毫秒）
	PingIntervalMs int `yaml:"ping_interval_ms"`
	// ReadTimeoutMs 读取超时（毫秒）
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// ReconnectDelayMs 断线后的固定重连延迟（毫秒）
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
}

// PoolConfig 单个池的静态配置
type PoolConfig struct {
	// Address 池合约地址
	Address string `yaml:"address"`
	// BaseSymbol base 代币符号
	BaseSymbol string `yaml:"base_symbol"`
	// QuoteSymbol quote 代币符号
	QuoteSymbol string `yaml:"quote_symbol"`
	// BaseAddress base 代币合约地址
	BaseAddress string `yaml:"base_address"`
	// QuoteAddress quote 代币合约地址
	QuoteAddress string `yaml:"quote_address"`
	// BaseDecimals base 代币精度
	BaseDecimals int32 `yaml:"base_decimals"`
	// QuoteDecimals quote 代币精度
	QuoteDecimals int32 `yaml:"quote_decimals"`
	// TickSpacing 池 tick spacing（启动时与链上核对）
	TickSpacing int64 `yaml:"tick_spacing"`
	// PairFeedWSURL 该池对应的交易对深度流地址
	PairFeedWSURL string `yaml:"pair_feed_ws_url"`
	// TradeSizesBase base 计价的评估规模列表（DEX 卖出方向）
	TradeSizesBase []Decimal `yaml:"trade_sizes_base"`
	// TradeSizesQuote quote 计价的评估规模列表（DEX 买入方向）
	TradeSizesQuote []Decimal `yaml:"trade_sizes_quote"`
}

// FeesConfig 手续费配置
type FeesConfig struct {
	// TakerFeeBps CEX taker 手续费（基点）
	// 允许为负：测试时可模拟返佣口径快速触发可盈利套利。
	TakerFeeBps Decimal `yaml:"taker_fee_bps"`
}

// GasConfig gas 计价配置
type GasConfig struct {
	// GasLimit 固定 gas 上限估计（所有利润计算按最坏情况全额消耗）
	GasLimit uint64 `yaml:"gas_limit"`
	// NativeSymbol 链原生代币符号
	NativeSymbol string `yaml:"native_symbol"`
	// WrappedNativeSymbol 原生代币的 wrapped 形式符号
	WrappedNativeSymbol string `yaml:"wrapped_native_symbol"`
	// NativeDecimals 原生代币精度
	NativeDecimals int32 `yaml:"native_decimals"`
	// QuoteSymbol gas 计价参考资产符号（gas feed 的 quote 侧）
	QuoteSymbol string `yaml:"quote_symbol"`
}

// ArbConfig 评估参数配置
type ArbConfig struct {
	// DepthWeightedLevels 深度加权中间价取用的档位数
	DepthWeightedLevels int `yaml:"depth_weighted_levels"`
}

// RouterConfig universal router 配置
type RouterConfig struct {
	// Address universal router 合约地址
	Address string `yaml:"address"`
	// Recipient 交易接收地址（交易发起钱包）
	Recipient string `yaml:"recipient"`
	// DeadlineSeconds calldata 中的交易截止时间（相对区块时间戳，秒）
	DeadlineSeconds int64 `yaml:"deadline_seconds"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// LogAllEvaluations 是否记录全部评估（false 时只记录可盈利的）
	LogAllEvaluations bool `yaml:"log_all_evaluations"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cex-dex-arb-scanner"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	// 链连接默认值
	if c.Chain.PingIntervalMs == 0 {
		c.Chain.PingIntervalMs = 20000 // 20 秒
	}
	if c.Chain.ReadTimeoutMs == 0 {
		c.Chain.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.Chain.CallTimeoutMs == 0 {
		c.Chain.CallTimeoutMs = 5000 // 5 秒
	}
	if c.Chain.ReconnectDelayMs == 0 {
		c.Chain.ReconnectDelayMs = 2000 // 2 秒
	}
	if c.Chain.BlockWaitTimeoutMs == 0 {
		c.Chain.BlockWaitTimeoutMs = 1000 // 1 秒
	}

	// 交易所连接默认值
	if c.CEX.PingIntervalMs == 0 {
		c.CEX.PingIntervalMs = 20000 // 20 秒
	}
	if c.CEX.ReadTimeoutMs == 0 {
		c.CEX.ReadTimeoutMs = 30000 // 30 秒
	}
	if c.CEX.ReconnectDelayMs == 0 {
		c.CEX.ReconnectDelayMs = 2000 // 2 秒
	}

	// gas 计价默认值
	if c.Gas.GasLimit == 0 {
		c.Gas.GasLimit = 150000
	}
	if c.Gas.NativeSymbol == "" {
		c.Gas.NativeSymbol = "ETH"
	}
	if c.Gas.WrappedNativeSymbol == "" {
		c.Gas.WrappedNativeSymbol = "WETH"
	}
	if c.Gas.NativeDecimals == 0 {
		c.Gas.NativeDecimals = 18
	}
	if c.Gas.QuoteSymbol == "" {
		c.Gas.QuoteSymbol = "USDC"
	}

	// 评估默认值
	if c.Arb.DepthWeightedLevels == 0 {
		c.Arb.DepthWeightedLevels = 5
	}

	// router 默认值
	if c.Router.DeadlineSeconds == 0 {
		c.Router.DeadlineSeconds = 4
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Chain.WSURL == "" {
		errs = append(errs, "chain.ws_url: 链节点 WebSocket 地址不能为空")
	}
	if c.Chain.QuoterAddress == "" {
		errs = append(errs, "chain.quoter_address: Quoter 合约地址不能为空")
	}
	if c.Chain.ReconnectDelayMs < 0 {
		errs = append(errs, "chain.reconnect_delay_ms: 重连延迟不能为负数")
	}

	if c.CEX.GasFeedWSURL == "" {
		errs = append(errs, "cex.gas_feed_ws_url: gas 行情流地址不能为空")
	}

	if c.ActivePool == "" {
		errs = append(errs, "active_pool: 必须指定激活的池")
	} else if _, ok := c.Pools[c.ActivePool]; !ok {
		errs = append(errs, fmt.Sprintf("active_pool: 池 '%s' 不在 pools 目录中", c.ActivePool))
	}

	for name, pool := range c.Pools {
		prefix := fmt.Sprintf("pools.%s", name)
		if pool.Address == "" {
			errs = append(errs, prefix+".address: 池地址不能为空")
		}
		if pool.BaseSymbol == "" || pool.QuoteSymbol == "" {
			errs = append(errs, prefix+": base_symbol/quote_symbol 不能为空")
		}
		if pool.BaseAddress == "" || pool.QuoteAddress == "" {
			errs = append(errs, prefix+": base_address/quote_address 不能为空")
		}
		if pool.BaseDecimals <= 0 || pool.QuoteDecimals <= 0 {
			errs = append(errs, prefix+": 代币精度必须为正数")
		}
		if pool.TickSpacing <= 0 {
			errs = append(errs, prefix+".tick_spacing: 必须为正数")
		}
		if pool.PairFeedWSURL == "" {
			errs = append(errs, prefix+".pair_feed_ws_url: 交易对行情流地址不能为空")
		}
		if len(pool.TradeSizesBase) == 0 && len(pool.TradeSizesQuote) == 0 {
			errs = append(errs, prefix+": 至少需要一个评估规模")
		}
		for i, size := range pool.TradeSizesBase {
			if size.Sign() <= 0 {
				errs = append(errs, fmt.Sprintf("%s.trade_sizes_base[%d]: 规模必须为正数", prefix, i))
			}
		}
		for i, size := range pool.TradeSizesQuote {
			if size.Sign() <= 0 {
				errs = append(errs, fmt.Sprintf("%s.trade_sizes_quote[%d]: 规模必须为正数", prefix, i))
			}
		}
	}

	if c.Gas.GasLimit == 0 {
		errs = append(errs, "gas.gas_limit: 必须为正数")
	}
	if c.Gas.NativeDecimals <= 0 {
		errs = append(errs, "gas.native_decimals: 必须为正数")
	}

	if c.Arb.DepthWeightedLevels <= 0 {
		errs = append(errs, "arb.depth_weighted_levels: 必须为正数")
	}

	if c.Router.Address == "" {
		errs = append(errs, "router.address: universal router 地址不能为空")
	}
	if c.Router.Recipient == "" {
		errs = append(errs, "router.recipient: 接收地址不能为空")
	}
	if c.Router.DeadlineSeconds <= 0 {
		errs = append(errs, "router.deadline_seconds: 必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Pool 获取当前激活的池配置
// 必须在 Validate 通过后调用。
func (c *Config) Pool() PoolConfig {
	return c.Pools[c.ActivePool]
}

// SizesBase 获取激活池的 base 计价规模列表（decimal 切片）
func (p *PoolConfig) SizesBase() []decimal.Decimal {
	return toDecimals(p.TradeSizesBase)
}

// SizesQuote 获取激活池的 quote 计价规模列表（decimal 切片）
func (p *PoolConfig) SizesQuote() []decimal.Decimal {
	return toDecimals(p.TradeSizesQuote)
}

func toDecimals(in []Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(in))
	for i, v := range in {
		out[i] = v.Decimal
	}
	return out
}
