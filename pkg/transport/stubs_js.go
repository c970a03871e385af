//go:build js

package transport

import (
	"context"
	"errors"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

// 浏览器沙箱内没有原始 socket，只有 WebTransport 可用
var errSandboxed = errors.New("not available in the sandboxed runtime")

func connectQUIC(ctx context.Context, addr string, o *Options) (Conn, error) {
	return nil, opError("connect", KindQUIC, addr, ErrUnsupported, errSandboxed)
}

func listenQUIC(ctx context.Context, addr string, o *Options) (Conn, error) {
	return nil, opError("listen", KindQUIC, addr, ErrUnsupported, errSandboxed)
}

func connectWebSocket(ctx context.Context, addr string, o *Options) (Conn, error) {
	return nil, opError("connect", KindWebSocket, addr, ErrUnsupported, errSandboxed)
}

func listenWebSocket(ctx context.Context, addr string, o *Options) (Conn, error) {
	return nil, opError("listen", KindWebSocket, addr, ErrUnsupported, errSandboxed)
}

func connectWebRTC(ctx context.Context, addr string, o *Options) (Conn, error) {
	return nil, opError("connect", KindWebRTC, addr, ErrUnsupported, errSandboxed)
}

// AcceptWebRTC 沙箱构建不支持
func AcceptWebRTC(ctx context.Context, ans signaling.Answerer, opts ...Option) (Conn, error) {
	return nil, opError("accept", KindWebRTC, "", ErrUnsupported, errSandboxed)
}
