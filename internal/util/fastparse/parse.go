// Package fastparse 提供行情热路径上的数值解析函数。
// 行情消息中的价格/数量是十进制字符串，这里统一封装解析入口，
// 避免在各解析器重复错误处理。
package fastparse

import (
	"github.com/shopspring/decimal"
)

// ParseDecimal 解析十进制数值字符串
// 参数 s: 待解析的字符串，如 "3012.45"
// 返回: 精确 decimal 值和可能的错误
func ParseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
