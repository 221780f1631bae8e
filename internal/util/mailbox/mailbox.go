// Package mailbox 实现单槽覆盖式信箱。
// 订阅推送的投递语义：容量恒为 1，写入时若槽位已满则先丢弃旧值，
// 慢消费者永远只会读到最新值，不会积压 backlog。
// 有意弱于 FIFO —— 用新鲜度换顺序，防止无界陈旧。
package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout 限时读取在超时前未等到任何值
var ErrTimeout = errors.New("mailbox: 读取超时")

// Mailbox 单元素覆盖信箱
// Put 为 try-replace 语义（永不阻塞），Take 为带超时的阻塞读取。
// 内部是容量 1 的 channel：写满时先抽干旧值再写入新值。
type Mailbox[T any] struct {
	slot chan T
}

// New 创建新的单槽信箱
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{slot: make(chan T, 1)}
}

// Put 写入最新值（try-replace）
// 若槽位已被占用，先丢弃旧值再放入新值；调用方永不阻塞。
func (m *Mailbox[T]) Put(v T) {
	for {
		select {
		case m.slot <- v:
			return
		default:
		}
		// 槽位满：抽干旧值后重试写入
		select {
		case <-m.slot:
		default:
		}
	}
}

// Take 阻塞读取最新值，最长等待 timeout
// 超时返回 ErrTimeout；ctx 取消返回 ctx.Err()。
func (m *Mailbox[T]) Take(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-m.slot:
		return v, nil
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryTake 非阻塞读取
// 槽位为空时返回 false。
func (m *Mailbox[T]) TryTake() (T, bool) {
	select {
	case v := <-m.slot:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
