// Package binance 定义 Binance 深度流消息类型。
package binance

// DepthMessage Binance 深度推送消息
// 同一 payload 形状存在两套字段命名：
// - 部分深度流（depth10@100ms 直连）: {"bids": [...], "asks": [...]}
// - 增量/合流变体: {"b": [...], "a": [...]}
// 两套都是 [priceString, qtyString] 数组；解析边界将两种形状
// 归一化为同一个 model.Book。
type DepthMessage struct {
	// Bids 买盘档位（长字段名变体）
	Bids [][]string `json:"bids"`
	// Asks 卖盘档位（长字段名变体）
	Asks [][]string `json:"asks"`
	// ShortBids 买盘档位（短字段名变体）
	ShortBids [][]string `json:"b"`
	// ShortAsks 卖盘档位（短字段名变体）
	ShortAsks [][]string `json:"a"`
	// EventTimeMs 事件时间（毫秒，仅部分变体携带）
	EventTimeMs int64 `json:"E"`
}

// ConnectionMetrics 连接质量指标
// 仅用于运维日志观测，不参与评估语义。
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数
	ParseErrorCount int64 `json:"parse_error_count"`
	// LastUpdateAgeMs 最后快照距今时间（毫秒）
	LastUpdateAgeMs int64 `json:"last_update_age_ms"`
}
