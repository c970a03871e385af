package signaling

import "fmt"

// 错误码定义
const (
	ErrCodeSuccess        = 0 // 成功
	ErrCodeInternalError  = 1 // 内部错误
	ErrCodeInvalidRequest = 2 // 无效请求

	// 认证相关 (1xxx)
	ErrCodeAuthFailed   = 1001 // 认证失败
	ErrCodeTokenExpired = 1002 // Token 过期

	// 对端相关 (2xxx)
	ErrCodePeerNotFound = 2001 // 目标对端不在线
	ErrCodePeerExists   = 2002 // peer id 已被占用

	// 协商相关 (3xxx)
	ErrCodeRejected    = 3001 // 对端拒绝 offer
	ErrCodeNegotiation = 3002 // SDP 处理失败
)

// ErrCodeMessage 错误码对应的消息
var ErrCodeMessage = map[int]string{
	ErrCodeSuccess:        "success",
	ErrCodeInternalError:  "internal_error",
	ErrCodeInvalidRequest: "invalid_request",
	ErrCodeAuthFailed:     "auth_failed",
	ErrCodeTokenExpired:   "token_expired",
	ErrCodePeerNotFound:   "peer_not_found",
	ErrCodePeerExists:     "peer_exists",
	ErrCodeRejected:       "rejected",
	ErrCodeNegotiation:    "negotiation_failed",
}

// RemoteError 对端或中继返回的错误
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	name, ok := ErrCodeMessage[e.Code]
	if !ok {
		name = "unknown"
	}
	if e.Message == "" {
		return fmt.Sprintf("signaling: %s (%d)", name, e.Code)
	}
	return fmt.Sprintf("signaling: %s (%d): %s", name, e.Code, e.Message)
}
