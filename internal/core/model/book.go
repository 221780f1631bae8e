package model

import (
	"github.com/shopspring/decimal"
)

// Level 订单簿深度档位
// 表示某一价格档位的价格和数量。价格或数量非正的档位
// 由消费方跳过，不在解析阶段拒绝。
type Level struct {
	// Price 价格
	Price decimal.Decimal
	// Qty 数量
	Qty decimal.Decimal
}

// Book 订单簿快照
// Bids 按价格从高到低排序，Asks 按价格从低到高排序。
// 每条行情消息到达时整体替换（不做增量合并）；快照由其
// Stream Client 独占持有，读取方只能拿到拷贝，避免并发撕裂。
type Book struct {
	// Bids 买盘档位（最优价在前，降序）
	Bids []Level
	// Asks 卖盘档位（最优价在前，升序）
	Asks []Level
	// UpdatedAtUnixNs 本机收到该快照的时间戳（纳秒）
	UpdatedAtUnixNs int64
}

// IsEmpty 检查快照是否缺少任意一侧
func (b *Book) IsEmpty() bool {
	return b == nil || len(b.Bids) == 0 || len(b.Asks) == 0
}

// BestBid 获取最优买价档位
// 若买盘为空返回零值和 false。
func (b *Book) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk 获取最优卖价档位
// 若卖盘为空返回零值和 false。
func (b *Book) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// DepthWeightedMid 计算深度加权中间价
// 对买卖双方各取前 levels 档，按数量加权平均：Σ(price·qty)/Σ(qty)。
// 非正价格或数量的档位被剔除。以下情况返回 false（价格不可用）：
// levels <= 0、任意一侧无档位、剔除后总权重为零。
func (b *Book) DepthWeightedMid(levels int) (decimal.Decimal, bool) {
	if b == nil || levels <= 0 || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Decimal{}, false
	}

	totalQty := decimal.Zero
	totalValue := decimal.Zero

	accumulate := func(side []Level) {
		for i, level := range side {
			if i >= levels {
				break
			}
			if level.Price.Sign() <= 0 || level.Qty.Sign() <= 0 {
				continue
			}
			totalQty = totalQty.Add(level.Qty)
			totalValue = totalValue.Add(level.Price.Mul(level.Qty))
		}
	}
	accumulate(b.Bids)
	accumulate(b.Asks)

	if totalQty.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return totalValue.Div(totalQty), true
}

// BidLiquidity 统计买盘可用 base 总量（剔除非正档位）
// 用于流动性不足时的诊断日志。
func (b *Book) BidLiquidity() decimal.Decimal {
	return sideLiquidity(b.Bids)
}

// AskLiquidity 统计卖盘可用 base 总量（剔除非正档位）
func (b *Book) AskLiquidity() decimal.Decimal {
	return sideLiquidity(b.Asks)
}

func sideLiquidity(side []Level) decimal.Decimal {
	total := decimal.Zero
	for _, level := range side {
		if level.Price.Sign() <= 0 || level.Qty.Sign() <= 0 {
			continue
		}
		total = total.Add(level.Qty)
	}
	return total
}

// Clone 创建 Book 的深拷贝
// Stream Client 对外提供快照时使用，保证读取方拿不到可变引用。
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	clone := &Book{UpdatedAtUnixNs: b.UpdatedAtUnixNs}
	if b.Bids != nil {
		clone.Bids = make([]Level, len(b.Bids))
		copy(clone.Bids, b.Bids)
	}
	if b.Asks != nil {
		clone.Asks = make([]Level, len(b.Asks))
		copy(clone.Asks, b.Asks)
	}
	return clone
}
