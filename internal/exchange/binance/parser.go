// Package binance 实现 Binance 深度流消息解析。
// 两套字段命名（bids/asks 与 b/a）在这里归一化为统一快照。
package binance

import (
	"encoding/json"
	"fmt"

	"cex-dex-arb-scanner/internal/core/model"
	"cex-dex-arb-scanner/internal/util/fastparse"
	"cex-dex-arb-scanner/internal/util/timeutil"
)

// Parser Binance 深度消息解析器
type Parser struct{}

// NewParser 创建深度消息解析器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解析深度消息为订单簿快照
// 两套字段命名按长字段名优先归一化；任意一侧缺失都视为 no-op，
// 返回 (nil, nil) 而非错误 —— 单边消息不得覆盖已持有的双边快照。
// 档位价格/数量字符串解析失败返回错误，由调用方丢弃整条消息（流继续）。
func (p *Parser) Parse(data []byte) (*model.Book, error) {
	arrivedAt := timeutil.NowNano()

	var msg DepthMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解析深度消息失败: %w", err)
	}

	rawBids, rawAsks := msg.Bids, msg.Asks
	if rawBids == nil && rawAsks == nil {
		rawBids, rawAsks = msg.ShortBids, msg.ShortAsks
	}

	// 缺少任意一侧：非深度消息或单边消息，no-op
	if len(rawBids) == 0 || len(rawAsks) == 0 {
		return nil, nil
	}

	bids, err := parseLevels(rawBids)
	if err != nil {
		return nil, fmt.Errorf("解析买盘失败: %w", err)
	}
	asks, err := parseLevels(rawAsks)
	if err != nil {
		return nil, fmt.Errorf("解析卖盘失败: %w", err)
	}

	return &model.Book{
		Bids:            bids,
		Asks:            asks,
		UpdatedAtUnixNs: arrivedAt,
	}, nil
}

// parseLevels 解析 [priceString, qtyString] 数组
// 非正档位保留原样 —— 由消费方（模拟器/加权中间价）剔除。
func parseLevels(raw [][]string) ([]model.Level, error) {
	levels := make([]model.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("档位字段不足: %v", pair)
		}
		price, err := fastparse.ParseDecimal(pair[0])
		if err != nil {
			return nil, fmt.Errorf("解析价格失败: %w", err)
		}
		qty, err := fastparse.ParseDecimal(pair[1])
		if err != nil {
			return nil, fmt.Errorf("解析数量失败: %w", err)
		}
		levels = append(levels, model.Level{Price: price, Qty: qty})
	}
	return levels, nil
}
