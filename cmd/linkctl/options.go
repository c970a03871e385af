package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/config"
	"github.com/qiminjie89/linkkit/pkg/logger"
	"github.com/qiminjie89/linkkit/pkg/signaling"
	"github.com/qiminjie89/linkkit/pkg/transport"
)

// buildPlan 由配置和命令行地址得到传输计划
func buildPlan(cfg *config.LinkConfig, role transport.Role, addr string) (transport.Plan, error) {
	t, err := transport.ParseTarget(cfg.Transport.Target)
	if err != nil {
		return transport.Plan{}, err
	}
	kind := transport.DefaultKind(t, role)
	if cfg.Transport.Kind != "" {
		if kind, err = transport.ParseKind(cfg.Transport.Kind); err != nil {
			return transport.Plan{}, err
		}
	}
	if addr == "" {
		addr = cfg.Transport.Address
	}
	p := transport.Plan{Target: t, Role: role, Kind: kind, Address: addr}
	return p, p.Validate()
}

// transportOptions 把配置映射为传输选项
func transportOptions(cfg *config.LinkConfig, kind transport.Kind) []transport.Option {
	opts := []transport.Option{
		transport.WithLogger(logger.Named("transport")),
		transport.OnBound(func(a net.Addr) {
			logger.Info("bound, waiting for peer", zap.String("addr", a.String()))
		}),
	}

	switch kind {
	case transport.KindWebSocket:
		opts = append(opts,
			transport.WithMaxMessageSize(cfg.WebSocket.MaxMessageSize),
			transport.WithWebSocket(transport.WebSocketOptions{
				ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
				WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
				HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
				WriteTimeout:     cfg.WebSocket.WriteTimeout,
				PingInterval:     cfg.WebSocket.PingInterval,
				Path:             cfg.WebSocket.Path,
			}),
			transport.WithInsecureSkipVerify(insecure),
		)
	case transport.KindQUIC:
		opts = append(opts,
			transport.WithMaxMessageSize(cfg.QUIC.MaxMessageSize),
			transport.WithQUIC(transport.QUICOptions{
				ALPN:             cfg.QUIC.ALPN,
				HandshakeTimeout: cfg.QUIC.HandshakeTimeout,
				KeepAlive:        cfg.QUIC.KeepAlive,
			}),
			transport.WithInsecureSkipVerify(cfg.QUIC.InsecureSkipVerify),
			transport.WithCertificate(cfg.QUIC.CertFile, cfg.QUIC.KeyFile),
		)
	case transport.KindWebRTC:
		opts = append(opts,
			transport.WithICEServers(cfg.WebRTC.ICEServers...),
			transport.WithDataChannelLabel(cfg.WebRTC.Label),
		)
	case transport.KindWebTransport:
		opts = append(opts, transport.WithInsecureSkipVerify(cfg.WebTransport.InsecureSkipVerify))
	}
	return opts
}

// dialSignaling 连接信令中继
func dialSignaling(ctx context.Context, cfg *config.LinkConfig) (*signaling.Client, error) {
	sc := cfg.WebRTC.Signaling
	return signaling.Dial(ctx, sc.URL, sc.PeerID, signaling.ClientOptions{
		Token:  sc.Token,
		Logger: logger.Named("signaling"),
	})
}

// commandContext 收到 SIGINT/SIGTERM 或超过 --timeout 时取消
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}
