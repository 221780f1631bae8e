// Package rpc 实现链节点的 JSON-RPC-over-WebSocket 客户端。
// 一条双工连接上复用请求/响应与订阅推送：携带 id 的入站消息
// 解析为对应在途请求的结果；eth_subscription 推送按订阅 id 路由到
// 单槽信箱（只保留最新区块头，慢消费者不会看到 backlog）。
// 断线后固定延迟无限重连，并自动重发所有逻辑订阅。
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/util/mailbox"
	"cex-dex-arb-scanner/internal/util/retry"
	"cex-dex-arb-scanner/internal/util/timeutil"
)

// ErrNotConnected 连接尚未建立或已断开
var ErrNotConnected = errors.New("rpc: 未连接到链节点")

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("rpc: 客户端已关闭")

// callResult 在途请求的单次完成信号
type callResult struct {
	result json.RawMessage
	err    error
}

// subscription 逻辑订阅
// 断线重连后按 method/params 重发 eth_subscribe，
// 并把同一个信箱重新绑定到新的订阅 id 上，
// 调用方持有的信箱句柄跨重连保持有效。
type subscription struct {
	// params eth_subscribe 参数（如 ["newHeads"]）
	params []any
	// id 当前订阅 id（重连后更新）
	id string
	// mb 推送信箱（容量 1，覆盖写）
	mb *mailbox.Mailbox[*ChainHead]
}

// Client 链节点 JSON-RPC 客户端
type Client struct {
	// cfg 链连接配置
	cfg *config.ChainConfig
	// logger 日志记录器
	logger *zap.Logger

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁（写消息也经由此锁串行化）
	connMu sync.Mutex

	// nextID 请求 id 计数器（连接生命周期内单调递增）
	nextID atomic.Uint64

	// pending 在途请求表: 请求 id -> 单次完成通道
	pending map[uint64]chan callResult
	// pendingMu 在途请求表锁
	pendingMu sync.Mutex

	// subs 逻辑订阅列表（重连后重发）
	subs []*subscription
	// subsByID 按当前订阅 id 的路由表
	subsByID map[string]*subscription
	// subsMu 订阅表锁
	subsMu sync.Mutex

	// connected 连接状态（1=已连接）
	connected int32
	// closed 是否已关闭
	closed int32
	// running readLoop 是否已启动
	running int32
	// done readLoop 退出时关闭
	done chan struct{}

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.Mutex
}

// NewClient 创建链节点客户端
// 参数 cfg: 链连接配置
// 参数 logger: 日志记录器
func NewClient(cfg *config.ChainConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger.Named("chainrpc"),
		pending:  make(map[uint64]chan callResult),
		subsByID: make(map[string]*subscription),
		done:     make(chan struct{}),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("连接链节点失败: %w", err)
	}

	// 读取超时由 pong 续期：pong 逾期未到说明连接假死（NAT 超时、
	// 对端静默消失），让 ReadMessage 以超时错误退出并进入重连。
	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}

	c.conn = conn
	atomic.StoreInt32(&c.connected, 1)
	c.logger.Info("链节点连接成功", zap.String("url", c.cfg.WSURL))
	return nil
}

// Run 启动客户端主循环（阻塞）
// 包含读取循环和心跳；退出时关闭 done 通道。
func (c *Client) Run(ctx context.Context) {
	atomic.StoreInt32(&c.running, 1)
	defer close(c.done)

	go c.pingLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.closed) == 1 {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closed) == 1 || ctx.Err() != nil {
				return
			}
			c.logger.Warn("读取链节点消息失败", zap.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		c.handleMessage(data)
	}
}

// handleMessage 分类处理一条入站消息
// 携带 id 的消息解析对应在途请求；eth_subscription 推送路由到信箱；
// 其它消息忽略。协议错误只丢弃该消息，流继续。
func (c *Client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.incrementParseErrorCount()
		c.logger.Warn("解析链节点消息失败", zap.Error(err))
		return
	}

	if msg.ID != nil {
		c.resolvePending(*msg.ID, msg)
		return
	}

	if msg.Method == "eth_subscription" && msg.Params != nil {
		c.dispatchPush(msg.Params)
		return
	}
}

func (c *Client) resolvePending(id uint64, msg inbound) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		// 响应晚于调用方超时到达，丢弃
		return
	}

	if msg.Error != nil {
		ch <- callResult{err: msg.Error}
		return
	}
	ch <- callResult{result: msg.Result}
}

func (c *Client) dispatchPush(push *subscriptionPush) {
	c.subsMu.Lock()
	sub := c.subsByID[push.Subscription]
	c.subsMu.Unlock()

	if sub == nil {
		return
	}

	var payload headPayload
	if err := json.Unmarshal(push.Result, &payload); err != nil {
		c.incrementParseErrorCount()
		c.logger.Warn("解析区块头失败", zap.Error(err))
		return
	}

	sub.mb.Put(&ChainHead{
		Number:           uint64(payload.Number),
		TimestampUnixSec: uint64(payload.Timestamp),
		Hash:             payload.Hash,
		ParentHash:       payload.ParentHash,
		ReceivedAtUnixNs: timeutil.NowNano(),
	})
}

// Call 同步 JSON-RPC 请求
// 结果 JSON 解码到 out（out 为 nil 时丢弃结果）。
// 错误负载以 *Error 返回；超时或连接断开返回相应错误。
func (c *Client) Call(ctx context.Context, out any, method string, params ...any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	if params == nil {
		params = []any{}
	}

	id := c.nextID.Add(1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.writeMessage(data); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return err
	}

	timeout := time.Duration(c.cfg.CallTimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.result, out); err != nil {
			return fmt.Errorf("解码 %s 结果失败: %w", method, err)
		}
		return nil
	case <-timer.C:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("%s 请求超时 (%s)", method, timeout)
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	}
}

func (c *Client) writeMessage(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	return nil
}

// GasPrice 查询当前 gas 价格（wei）
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.Call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	return (*big.Int)(&price), nil
}

// CallContract 执行 eth_call
// 参数 to: 合约地址（0x 前缀）
// 参数 data: ABI 编码的调用数据（0x 前缀）
// 参数 blockNumber: 目标区块高度；0 表示 latest
// 返回: ABI 编码的返回数据
func (c *Client) CallContract(ctx context.Context, to, data string, blockNumber uint64) ([]byte, error) {
	blockTag := "latest"
	if blockNumber > 0 {
		blockTag = hexutil.EncodeUint64(blockNumber)
	}

	var out hexutil.Bytes
	callObj := map[string]string{"to": to, "data": data}
	if err := c.Call(ctx, &out, "eth_call", callObj, blockTag); err != nil {
		return nil, fmt.Errorf("eth_call 失败: %w", err)
	}
	return out, nil
}

// SubscribeNewHeads 订阅新区块头
// 返回承载推送的单槽信箱；信箱句柄跨重连保持有效
//（重连后客户端自动重发订阅并重新绑定）。
func (c *Client) SubscribeNewHeads(ctx context.Context) (*mailbox.Mailbox[*ChainHead], error) {
	sub := &subscription{
		params: []any{"newHeads"},
		mb:     mailbox.New[*ChainHead](),
	}

	if err := c.establish(ctx, sub); err != nil {
		return nil, err
	}

	c.subsMu.Lock()
	c.subs = append(c.subs, sub)
	c.subsMu.Unlock()

	return sub.mb, nil
}

// establish 发送 eth_subscribe 并绑定订阅 id
func (c *Client) establish(ctx context.Context, sub *subscription) error {
	var subID string
	if err := c.Call(ctx, &subID, "eth_subscribe", sub.params...); err != nil {
		return fmt.Errorf("订阅失败: %w", err)
	}

	c.subsMu.Lock()
	if sub.id != "" {
		delete(c.subsByID, sub.id)
	}
	sub.id = subID
	c.subsByID[subID] = sub
	c.subsMu.Unlock()

	c.logger.Info("订阅已建立", zap.String("sub_id", subID))
	return nil
}

// reconnect 固定延迟后重连并重发订阅
// 返回 false 表示 ctx 已取消，调用方应退出循环。
func (c *Client) reconnect(ctx context.Context) bool {
	c.closeConn()
	c.failPending(ErrNotConnected)
	c.incrementReconnectCount()

	delay := time.Duration(c.cfg.ReconnectDelayMs) * time.Millisecond
	c.logger.Info("链节点准备重连", zap.Duration("delay", delay))

	if err := retry.Wait(ctx, delay); err != nil {
		return false
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("链节点重连失败", zap.Error(err))
		return ctx.Err() == nil
	}

	// 重发订阅必须在单独的 goroutine 中执行：
	// establish 经由 Call 等待响应，而响应只能由本读取循环解析。
	go c.resubscribeAll(ctx)
	return true
}

func (c *Client) resubscribeAll(ctx context.Context) {
	c.subsMu.Lock()
	subs := make([]*subscription, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.Unlock()

	for _, sub := range subs {
		if err := c.establish(ctx, sub); err != nil {
			c.logger.Error("重发订阅失败", zap.Error(err))
		}
	}
}

// failPending 以给定错误终结所有在途请求
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		ch <- callResult{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	intervalMs := c.cfg.PingIntervalMs
	if intervalMs <= 0 {
		intervalMs = 20000
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.closed) == 1 {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}
			deadline := time.Now().Add(5 * time.Second)
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn("发送链节点 ping 失败", zap.Error(err))
			}
		}
	}
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	atomic.StoreInt32(&c.connected, 0)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close 关闭客户端（协作式）
// 标记关闭、终结在途请求、断开连接，并等待读取循环退出。
// 调用方应先取消传给 Run 的 ctx。
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.failPending(ErrClosed)
	c.closeConn()
	if atomic.LoadInt32(&c.running) == 1 {
		<-c.done
	}
	c.logger.Info("链节点客户端已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.Lock()
	m := c.metrics
	c.metricsMu.Unlock()

	c.pendingMu.Lock()
	m.InflightRequests = len(c.pending)
	c.pendingMu.Unlock()
	return m
}

func (c *Client) incrementReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) incrementParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}
