package transport

import (
	"context"
	"sync"
)

// inbox 读泵与 Receive 之间的有界队列
//
// 读泵（或回调）通过 push 投递消息，队列满时阻塞而不是丢弃。
// 读泵退出时调用 finish，之后 Receive 先取完已投递的消息，再对每次调用返回 ErrConnectionClosed。
type inbox struct {
	kind Kind
	addr string

	msgs chan []byte
	done chan struct{} // 本地关闭，解除 push 阻塞

	recvMu sync.Mutex // Receive 之间互斥

	mu       sync.RWMutex
	finished bool
	cause    error

	stopOnce sync.Once
}

func newInbox(kind Kind, addr string, size int) *inbox {
	return &inbox{
		kind: kind,
		addr: addr,
		msgs: make(chan []byte, size),
		done: make(chan struct{}),
	}
}

// push 投递一条消息，实例已关闭时返回 false
func (b *inbox) push(m []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.finished {
		return false
	}
	select {
	case b.msgs <- m:
		return true
	case <-b.done:
		return false
	}
}

// finish 标记读端结束并记录原因，可重复调用
func (b *inbox) finish(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return
	}
	b.finished = true
	b.cause = cause
	close(b.msgs)
}

// stop 本地关闭
func (b *inbox) stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

func (b *inbox) receive(ctx context.Context) ([]byte, error) {
	b.recvMu.Lock()
	defer b.recvMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case m, ok := <-b.msgs:
		if !ok {
			return nil, b.closedErr()
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *inbox) closedErr() error {
	b.mu.RLock()
	cause := b.cause
	b.mu.RUnlock()
	return opError("receive", b.kind, b.addr, ErrConnectionClosed, cause)
}
