// Package transport 提供统一的传输层抽象
//
// 调用方通过 Connect（发起方）或 Listen（接受方）获得一个 Conn 实例，
// 之后在该实例上收发不透明的二进制消息，不依赖具体传输的 API。
// 传输种类是封闭集合（QUIC、WebSocket、WebRTC DataChannel、WebTransport），
// Conn 接口只能由本包内的适配器实现。
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// Kind 传输种类
type Kind int

const (
	KindUnknown      Kind = iota
	KindQUIC              // QUIC 端点，单条双向流
	KindWebSocket         // WebSocket 消息流
	KindWebRTC            // WebRTC DataChannel
	KindWebTransport      // 浏览器 WebTransport 数据报
)

// String 返回种类名称，与配置文件中的取值一致
func (k Kind) String() string {
	switch k {
	case KindQUIC:
		return "quic"
	case KindWebSocket:
		return "websocket"
	case KindWebRTC:
		return "webrtc"
	case KindWebTransport:
		return "webtransport"
	default:
		return "unknown"
	}
}

// ParseKind 解析种类名称（大小写不敏感）
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quic":
		return KindQUIC, nil
	case "websocket", "ws":
		return KindWebSocket, nil
	case "webrtc", "datachannel":
		return KindWebRTC, nil
	case "webtransport", "wt":
		return KindWebTransport, nil
	default:
		return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
	}
}

// State 实例状态
//
// 构造失败不会返回实例，所以不存在 Unconnected 状态的 Conn。
type State int32

const (
	StateConnected State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "connected"
}

// Conn 一个已建立的传输实例，只绑定一个对端
//
// Send 之间互斥、Receive 之间互斥，Send 与 Receive 可以并发。
// 并发 Send 的先后由锁的获取顺序决定，不保证与调用顺序一致（公平但非 FIFO）。
type Conn interface {
	// Kind 返回传输种类
	Kind() Kind
	// ID 实例唯一标识，用于日志和指标
	ID() string
	// LocalAddr 本地地址
	LocalAddr() string
	// RemoteAddr 对端地址
	RemoteAddr() string
	// State 当前状态
	State() State

	// Send 发送一条消息，连接损坏或已关闭时返回 ErrSend / ErrConnectionClosed
	Send(ctx context.Context, data []byte) error
	// Receive 阻塞直到下一条消息到达；连接关闭后每次调用都返回 ErrConnectionClosed
	Receive(ctx context.Context) ([]byte, error)
	// Close 释放底层连接，可重复调用
	Close() error

	sealed()
}

// Connect 按种类建立出站连接
func Connect(ctx context.Context, kind Kind, addr string, opts ...Option) (Conn, error) {
	o := newOptions(opts)
	switch kind {
	case KindQUIC:
		return connectQUIC(ctx, addr, o)
	case KindWebSocket:
		return connectWebSocket(ctx, addr, o)
	case KindWebRTC:
		return connectWebRTC(ctx, addr, o)
	case KindWebTransport:
		return connectWebTransport(ctx, addr, o)
	default:
		return nil, opError("connect", kind, addr, ErrUnsupported, fmt.Errorf("unknown kind %d", int(kind)))
	}
}

// Listen 绑定本地地址并阻塞到恰好一个对端接入
//
// 没有超时，需要有界等待时由调用方通过 ctx 控制。
func Listen(ctx context.Context, kind Kind, addr string, opts ...Option) (Conn, error) {
	o := newOptions(opts)
	switch kind {
	case KindQUIC:
		return listenQUIC(ctx, addr, o)
	case KindWebSocket:
		return listenWebSocket(ctx, addr, o)
	case KindWebRTC:
		return nil, opError("listen", kind, addr, ErrUnsupported, errWebRTCListen)
	case KindWebTransport:
		return nil, opError("listen", kind, addr, ErrUnsupported, errWebTransportListen)
	default:
		return nil, opError("listen", kind, addr, ErrUnsupported, fmt.Errorf("unknown kind %d", int(kind)))
	}
}

// connState 各适配器共用的状态机
type connState struct {
	v atomic.Int32
}

func (s *connState) load() State { return State(s.v.Load()) }

// markClosed 切换到 Closed，只有第一次调用返回 true
func (s *connState) markClosed() bool {
	return s.v.CompareAndSwap(int32(StateConnected), int32(StateClosed))
}
