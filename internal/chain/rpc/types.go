// Package rpc 定义链节点 JSON-RPC 线上协议类型。
package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request JSON-RPC 请求
// 标准形状: {jsonrpc, id, method, params}
type Request struct {
	// JSONRPC 协议版本，恒为 "2.0"
	JSONRPC string `json:"jsonrpc"`
	// ID 请求 ID（连接内单调递增）
	ID uint64 `json:"id"`
	// Method 方法名，如 eth_gasPrice
	Method string `json:"method"`
	// Params 参数列表
	Params []any `json:"params"`
}

// Error JSON-RPC 错误负载
type Error struct {
	// Code 错误码
	Code int `json:"code"`
	// Message 错误描述
	Message string `json:"message"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return fmt.Sprintf("RPC 错误 (code=%d): %s", e.Code, e.Message)
}

// inbound 入站消息信封
// 三类消息共用一个信封，按字段存在性分类：
// - 携带 id: 对应某个在途请求的响应（result 或 error 二选一）
// - method 为 eth_subscription: 订阅推送，按 subscription id 路由
// - 其它: 未知消息，丢弃
type inbound struct {
	ID     *uint64           `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  *Error            `json:"error"`
	Method string            `json:"method"`
	Params *subscriptionPush `json:"params"`
}

// subscriptionPush 订阅推送参数
type subscriptionPush struct {
	// Subscription 订阅 ID
	Subscription string `json:"subscription"`
	// Result 推送负载
	Result json.RawMessage `json:"result"`
}

// ChainHead 新区块头
// newHeads 订阅推送的归一化形式，附带本机接收时间用于延迟测量。
type ChainHead struct {
	// Number 区块高度
	Number uint64
	// TimestampUnixSec 区块时间戳（秒）
	TimestampUnixSec uint64
	// Hash 区块哈希
	Hash string
	// ParentHash 父区块哈希
	ParentHash string
	// ReceivedAtUnixNs 本机收到该区块头的时间戳（纳秒）
	ReceivedAtUnixNs int64
}

// headPayload newHeads 推送的线上形状（数值为 0x 十六进制）
type headPayload struct {
	Number     hexutil.Uint64 `json:"number"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	Hash       string         `json:"hash"`
	ParentHash string         `json:"parentHash"`
}

// ConnectionMetrics 连接质量指标
// 仅用于运维日志观测，不参与评估语义。
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// InflightRequests 在途请求数
	InflightRequests int `json:"inflight_requests"`
}
