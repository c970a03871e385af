package transport

import (
	"context"
	"fmt"
	"strings"
)

// 选择策略：启动时按执行环境与角色静态选定一种传输，不做运行时协商，也没有回退或竞速。

// Target 执行环境
type Target int

const (
	TargetNative    Target = iota // 可以使用原始 socket
	TargetSandboxed               // 浏览器沙箱（js/wasm）
)

func (t Target) String() string {
	if t == TargetSandboxed {
		return "sandboxed"
	}
	return "native"
}

// ParseTarget 解析 native / sandboxed，空串表示当前构建目标
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return CurrentTarget, nil
	case "native":
		return TargetNative, nil
	case "sandboxed", "browser", "wasm":
		return TargetSandboxed, nil
	default:
		return 0, fmt.Errorf("unknown target %q", s)
	}
}

// Role 实例角色
type Role int

const (
	RoleInitiator Role = iota // Connect
	RoleAcceptor              // Listen
)

func (r Role) String() string {
	if r == RoleAcceptor {
		return "acceptor"
	}
	return "initiator"
}

// ParseRole 解析 initiator/connect 与 acceptor/listen
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiator", "connect", "client", "":
		return RoleInitiator, nil
	case "acceptor", "listen", "server":
		return RoleAcceptor, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Available 返回执行环境可用的传输种类
//
// 原生环境也包含 WebTransport，但只能作为发起方（基于 webtransport-go 数据报），Listen 始终返回 ErrUnsupported。
func Available(t Target) []Kind {
	if t == TargetSandboxed {
		return []Kind{KindWebTransport}
	}
	return []Kind{KindQUIC, KindWebSocket, KindWebRTC, KindWebTransport}
}

func available(t Target, k Kind) bool {
	for _, a := range Available(t) {
		if a == k {
			return true
		}
	}
	return false
}

// acceptable 能否作为接受方
func acceptable(k Kind) bool {
	switch k {
	case KindQUIC, KindWebSocket:
		return true
	default:
		return false
	}
}

// DefaultKind 未显式配置种类时的选择
func DefaultKind(t Target, r Role) Kind {
	if t == TargetSandboxed {
		return KindWebTransport
	}
	return KindWebSocket
}

// Plan 一次静态选择的结果
type Plan struct {
	Target  Target
	Role    Role
	Kind    Kind
	Address string
}

// Validate 在任何 I/O 之前检查组合是否可行
func (p Plan) Validate() error {
	op := "connect"
	if p.Role == RoleAcceptor {
		op = "listen"
	}
	if p.Kind == KindUnknown {
		return opError(op, p.Kind, p.Address, ErrUnsupported, fmt.Errorf("no transport kind selected"))
	}
	if !available(p.Target, p.Kind) {
		return opError(op, p.Kind, p.Address, ErrUnsupported, fmt.Errorf("%s is not available on %s targets", p.Kind, p.Target))
	}
	if p.Role == RoleAcceptor && !acceptable(p.Kind) {
		return opError(op, p.Kind, p.Address, ErrUnsupported, fmt.Errorf("%s cannot accept inbound connections", p.Kind))
	}
	if strings.TrimSpace(p.Address) == "" {
		return opError(op, p.Kind, p.Address, ErrAddressParse, fmt.Errorf("empty address"))
	}
	return nil
}

// Open 校验计划后按角色调用 Connect 或 Listen
func Open(ctx context.Context, p Plan, opts ...Option) (Conn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Role == RoleAcceptor {
		return Listen(ctx, p.Kind, p.Address, opts...)
	}
	return Connect(ctx, p.Kind, p.Address, opts...)
}
