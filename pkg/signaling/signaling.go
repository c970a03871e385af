// Package signaling 实现 WebRTC 建连所需的带外信令
//
// 传输层只依赖 Signaler（发起方）与 Answerer（应答方）两个接口；
// 本包提供基于 WebSocket 的中继服务（Relay）、中继客户端（Client）和进程内实现（Pipe）。
// 信令使用非 trickle 模式：offer/answer 中已包含全部 ICE candidate。
package signaling

import (
	"context"
	"errors"
)

var (
	ErrClosed       = errors.New("signaling: closed")
	ErrNoPeerID     = errors.New("signaling: peer id required")
	ErrUnexpectedSD = errors.New("signaling: unexpected session description type")
)

// Description SDP 会话描述
type Description struct {
	Type string `msgpack:"type"` // offer / answer
	SDP  string `msgpack:"sdp"`
}

// Signaler 发起方信令：把 offer 交给目标对端并等待 answer
type Signaler interface {
	Offer(ctx context.Context, peerID string, offer Description) (Description, error)
}

// Answerer 应答方信令：等待下一个发给自己的 offer
type Answerer interface {
	NextOffer(ctx context.Context) (*IncomingOffer, error)
}

// IncomingOffer 收到的 offer，必须调用 Answer 或 Reject 之一
type IncomingOffer struct {
	From      string
	SessionID string
	Offer     Description

	reply  func(ctx context.Context, answer Description) error
	reject func(ctx context.Context, code int, msg string) error
}

// Answer 回复 answer
func (o *IncomingOffer) Answer(ctx context.Context, answer Description) error {
	return o.reply(ctx, answer)
}

// Reject 拒绝 offer
func (o *IncomingOffer) Reject(ctx context.Context, code int, msg string) error {
	return o.reject(ctx, code, msg)
}
