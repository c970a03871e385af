package transport

import (
	"errors"
	"fmt"
)

// 错误分类，调用方用 errors.Is 按原因分支
var (
	ErrAddressParse     = errors.New("address parse error")
	ErrConnection       = errors.New("connection error")
	ErrBind             = errors.New("bind error")
	ErrUnsupported      = errors.New("unsupported operation")
	ErrSend             = errors.New("send error")
	ErrConnectionClosed = errors.New("connection closed")
	ErrMessageTooLarge  = errors.New("message too large")
)

var (
	errWebRTCListen       = errors.New("webrtc peer connections are initiated through signaling, not bound")
	errWebTransportListen = errors.New("webtransport cannot accept inbound sessions")
)

// OpError 描述一次失败的传输操作
//
// 同时包装分类错误（Class）和底层原因（Err）。
type OpError struct {
	Op    string // connect, listen, send, receive
	Kind  Kind
	Addr  string
	Class error
	Err   error
}

func (e *OpError) Error() string {
	s := e.Kind.String() + " " + e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	s += ": " + e.Class.Error()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

func opError(op string, kind Kind, addr string, class, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Addr: addr, Class: class, Err: err}
}

// ClassOf 返回错误所属的分类，用于指标标签
func ClassOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAddressParse):
		return "address_parse"
	case errors.Is(err, ErrBind):
		return "bind"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	case errors.Is(err, ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, ErrSend):
		return "send"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "other"
	}
}

func tooLarge(n, max int) error {
	return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrMessageTooLarge, n, max)
}
