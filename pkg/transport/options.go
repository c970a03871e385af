package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

// 默认值
const (
	DefaultMaxMessageSize = 1 << 20 // 1MB，与帧格式上限一致
	DefaultInboxSize      = 64
	DefaultPath           = "/"
	DefaultALPN           = "linkkit"
	DefaultDataLabel      = "linkkit"

	// MaxDatagramSize WebTransport 单个数据报的安全上限
	MaxDatagramSize = 1200
	// MaxDataChannelMessage WebRTC 单条消息上限（SCTP）
	MaxDataChannelMessage = 65535
)

// Options 传输实例的可选参数
type Options struct {
	Logger *zap.Logger

	// OnBound 监听地址绑定成功后、阻塞等待对端前回调
	OnBound func(net.Addr)

	// 通用
	MaxMessageSize int
	InboxSize      int

	// TLS（QUIC、wss、WebTransport）
	TLSConfig          *tls.Config
	InsecureSkipVerify bool
	CertFile           string
	KeyFile            string

	WebSocket WebSocketOptions
	QUIC      QUICOptions
	WebRTC    WebRTCOptions
}

// WebSocketOptions WebSocket 参数
type WebSocketOptions struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	Path             string
	Header           http.Header
}

// QUICOptions QUIC 参数
type QUICOptions struct {
	ALPN             string
	HandshakeTimeout time.Duration
	KeepAlive        time.Duration
	MaxIdleTimeout   time.Duration
}

// WebRTCOptions WebRTC 参数
type WebRTCOptions struct {
	ICEServers []string
	Label      string
	// LoopbackCandidates 收集 127.0.0.1 候选，用于单机联调
	LoopbackCandidates bool
	// Signaler 发起方的信令通道，Connect 必需
	Signaler signaling.Signaler
}

// Option 修改 Options
type Option func(*Options)

func newOptions(opts []Option) *Options {
	o := &Options{
		MaxMessageSize: DefaultMaxMessageSize,
		InboxSize:      DefaultInboxSize,
		WebSocket: WebSocketOptions{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			Path:             DefaultPath,
		},
		QUIC: QUICOptions{
			ALPN:             DefaultALPN,
			HandshakeTimeout: 10 * time.Second,
			KeepAlive:        15 * time.Second,
			MaxIdleTimeout:   30 * time.Second,
		},
		WebRTC: WebRTCOptions{Label: DefaultDataLabel},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	return o
}

// WithLogger 注入日志，默认不输出任何日志
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// OnBound 设置绑定回调，监听 :0 时用来获取实际端口
func OnBound(fn func(net.Addr)) Option {
	return func(o *Options) { o.OnBound = fn }
}

func WithMaxMessageSize(n int) Option {
	return func(o *Options) { o.MaxMessageSize = n }
}

func WithInboxSize(n int) Option {
	return func(o *Options) { o.InboxSize = n }
}

// WithTLSConfig 覆盖默认 TLS 配置
func WithTLSConfig(c *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = c }
}

// WithInsecureSkipVerify 跳过证书校验（开发环境自签证书）
func WithInsecureSkipVerify(v bool) Option {
	return func(o *Options) { o.InsecureSkipVerify = v }
}

// WithCertificate 服务端证书文件，未设置时生成临时自签证书
func WithCertificate(certFile, keyFile string) Option {
	return func(o *Options) {
		o.CertFile = certFile
		o.KeyFile = keyFile
	}
}

func WithWebSocket(ws WebSocketOptions) Option {
	return func(o *Options) {
		if ws.ReadBufferSize > 0 {
			o.WebSocket.ReadBufferSize = ws.ReadBufferSize
		}
		if ws.WriteBufferSize > 0 {
			o.WebSocket.WriteBufferSize = ws.WriteBufferSize
		}
		if ws.HandshakeTimeout > 0 {
			o.WebSocket.HandshakeTimeout = ws.HandshakeTimeout
		}
		if ws.WriteTimeout > 0 {
			o.WebSocket.WriteTimeout = ws.WriteTimeout
		}
		if ws.Path != "" {
			o.WebSocket.Path = ws.Path
		}
		o.WebSocket.PingInterval = ws.PingInterval
		o.WebSocket.Header = ws.Header
	}
}

func WithQUIC(q QUICOptions) Option {
	return func(o *Options) {
		if q.ALPN != "" {
			o.QUIC.ALPN = q.ALPN
		}
		if q.HandshakeTimeout > 0 {
			o.QUIC.HandshakeTimeout = q.HandshakeTimeout
		}
		if q.KeepAlive > 0 {
			o.QUIC.KeepAlive = q.KeepAlive
		}
		if q.MaxIdleTimeout > 0 {
			o.QUIC.MaxIdleTimeout = q.MaxIdleTimeout
		}
	}
}

// WithSignaler 设置 WebRTC 信令通道
func WithSignaler(s signaling.Signaler) Option {
	return func(o *Options) { o.WebRTC.Signaler = s }
}

func WithICEServers(urls ...string) Option {
	return func(o *Options) { o.WebRTC.ICEServers = urls }
}

// WithLoopbackCandidates 允许 ICE 使用回环地址
func WithLoopbackCandidates(v bool) Option {
	return func(o *Options) { o.WebRTC.LoopbackCandidates = v }
}

func WithDataChannelLabel(label string) Option {
	return func(o *Options) {
		if label != "" {
			o.WebRTC.Label = label
		}
	}
}
