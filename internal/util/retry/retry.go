// Package retry 实现固定间隔的重连等待。
// 行情连接断开后以固定延迟无限重试：不做指数退避、不设重试上限。
// 这是有意为之 —— 放弃重连的行情源比永远重试的更糟，
// 而逐渐拉长的退避只会放大数据陈旧窗口。
package retry

import (
	"context"
	"time"
)

// Wait 等待固定的重连延迟
// 等待期间观察 ctx 取消；被取消返回 ctx.Err()，正常到期返回 nil。
// delay 非正时立即返回。
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
