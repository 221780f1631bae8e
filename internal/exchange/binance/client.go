// Package binance 实现 Binance 深度流 WebSocket 客户端。
// 连接地址示例: wss://stream.binance.com:9443/ws/ethusdc@depth10@100ms
// 每条深度消息整体替换持有的订单簿快照；对外只提供快照拷贝。
// 断线后以固定延迟无限重连（见 internal/util/retry）。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/util/retry"
	"cex-dex-arb-scanner/internal/util/timeutil"
)

// Client Binance 深度流客户端
// 快照由 readLoop 单写者独占写入；其它 goroutine 只能通过
// Orderbook()/DepthWeightedMid() 拿到拷贝或派生值。
type Client struct {
	// url 深度流地址
	url string
	// label 日志标签，区分 pair 流与 gas 流
	label string
	// cfg 交易所连接配置
	cfg *config.CEXConfig
	// logger 日志记录器
	logger *zap.Logger
	// parser 消息解析器
	parser *Parser

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁
	connMu sync.Mutex

	// book 最新订单簿快照（整体替换，不做增量合并）
	book *model.Book
	// bookMu 快照锁
	bookMu sync.RWMutex

	// lastUpdateNs 最后快照时间（纳秒）
	lastUpdateNs int64
	// connected 连接状态（1=已连接）
	connected int32
	// closed 是否已关闭
	closed int32
	// running readLoop 是否已启动
	running int32
	// done readLoop 退出时关闭，Close 以此等待后台任务终止
	done chan struct{}

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.Mutex

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount uint64
	// lastParseErrLogNs 上次解析错误日志时间（纳秒）
	lastParseErrLogNs int64
}

// NewClient 创建 Binance 深度流客户端
// 参数 url: 深度流地址
// 参数 label: 日志标签（pair / gas）
// 参数 cfg: 交易所连接配置
// 参数 logger: 日志记录器
func NewClient(url, label string, cfg *config.CEXConfig, logger *zap.Logger) *Client {
	return &Client{
		url:    url,
		label:  label,
		cfg:    cfg,
		logger: logger.Named("binance").With(zap.String("feed", label)),
		parser: NewParser(),
		done:   make(chan struct{}),
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消连接
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", "cex-dex-arb-scanner/1.0")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("连接 Binance 深度流失败: %w", err)
	}

	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}

	c.conn = conn
	atomic.StoreInt32(&c.connected, 1)
	c.logger.Info("Binance 深度流连接成功", zap.String("url", c.url))
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
			c.logger.Warn("读取 Binance 消息失败", zap.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		book, err := c.parser.Parse(data)
		if err != nil {
			c.incrementParseErrorCount()
			c.maybeLogParseError(err, data)
			continue
		}
		if book == nil {
			// 非深度消息，no-op
			continue
		}

		c.bookMu.Lock()
		c.book = book
		c.bookMu.Unlock()
		atomic.StoreInt64(&c.lastUpdateNs, book.UpdatedAtUnixNs)
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
				c.logger.Warn("发送 Binance ping 失败", zap.Error(err))
			}
		}
	}
}

// reconnect 固定延迟后重连
// 返回 false 表示 ctx 已取消，调用方应退出循环。
func (c *Client) reconnect(ctx context.Context) bool {
	c.closeConn()
	c.incrementReconnectCount()

	delay := time.Duration(c.cfg.ReconnectDelayMs) * time.Millisecond
	c.logger.Info("Binance 准备重连", zap.Duration("delay", delay))

	if err := retry.Wait(ctx, delay); err != nil {
		return false
	}

	if err := c.Connect(ctx); err != nil {
		c.logger.Error("Binance 重连失败", zap.Error(err))
		// 连接仍为 nil，下一轮循环再次进入 reconnect
		return ctx.Err() == nil
	}
	return true
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
// 标记关闭、断开连接，并等待后台读取循环退出。
// 调用方应先取消传给 Run 的 ctx。
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	c.closeConn()
	if atomic.LoadInt32(&c.running) == 1 {
		<-c.done
	}
	c.logger.Info("Binance 深度流客户端已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// LastUpdateUnixNs 获取最后快照时间（纳秒）
// 从未收到快照时返回 0。
func (c *Client) LastUpdateUnixNs() int64 {
	return atomic.LoadInt64(&c.lastUpdateNs)
}

// Orderbook 获取当前订单簿快照的拷贝
// 从未收到快照时返回 nil。返回值与内部状态完全隔离。
func (c *Client) Orderbook() *model.Book {
	c.bookMu.RLock()
	defer c.bookMu.RUnlock()
	return c.book.Clone()
}

// DepthWeightedMid 计算当前快照的深度加权中间价
// 语义见 model.Book.DepthWeightedMid。
func (c *Client) DepthWeightedMid(levels int) (decimal.Decimal, bool) {
	c.bookMu.RLock()
	defer c.bookMu.RUnlock()
	return c.book.DepthWeightedMid(levels)
}

// Metrics 获取连接指标
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.Lock()
	m := c.metrics
	c.metricsMu.Unlock()

	if last := atomic.LoadInt64(&c.lastUpdateNs); last > 0 {
		m.LastUpdateAgeMs = timeutil.SinceNano(last).Milliseconds()
	}
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

// maybeLogParseError 采样记录解析错误原始消息，避免刷盘
// 采样策略：每 100 次错误记录 1 条，且同一类日志至少间隔 1 分钟。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := atomic.AddUint64(&c.parseErrSampleCount, 1)
	if count%100 != 1 {
		return
	}

	nowNs := timeutil.NowNano()
	last := atomic.LoadInt64(&c.lastParseErrLogNs)
	if last > 0 && nowNs-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&c.lastParseErrLogNs, nowNs)

	sample := data
	if len(sample) > 200 {
		sample = sample[:200]
	}
	c.logger.Warn("解析 Binance 消息失败（采样）", zap.Error(err), zap.ByteString("data", sample))
}
