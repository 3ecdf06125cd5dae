package swarm

import "sync"

// Mailbox 无界消息队列
//
// 后台 goroutine 通过 Post 投递结果，事件循环在 Poll 中用 Drain 取出。
// 投递后调用 waker 唤醒事件循环。
type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	waker func()
}

// NewMailbox 创建消息队列
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// SetWaker 设置唤醒函数
func (m *Mailbox[T]) SetWaker(fn func()) {
	m.mu.Lock()
	m.waker = fn
	m.mu.Unlock()
}

// Post 投递一条消息
func (m *Mailbox[T]) Post(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	wake := m.waker
	m.mu.Unlock()

	if wake != nil {
		wake()
	}
}

// Drain 按投递顺序取出至多 max 条消息（max <= 0 表示全部）
//
// more 表示队列中仍有剩余。
func (m *Mailbox[T]) Drain(max int) (items []T, more bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.items)
	if n == 0 {
		return nil, false
	}
	if max > 0 && n > max {
		n = max
	}
	items = make([]T, n)
	copy(items, m.items[:n])

	rest := copy(m.items, m.items[n:])
	clear(m.items[rest:])
	m.items = m.items[:rest]
	return items, rest > 0
}

// Len 返回积压消息数
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
