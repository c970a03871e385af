//go:build !js

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
	"go.uber.org/zap"
)

// WebTransport 映射：会话上的不可靠数据报，一次 Send 对应一个数据报。
// 原生构建通过 HTTP/3 建立会话，浏览器构建见 webtransport_js.go。

const wtCodeNormal webtransport.SessionErrorCode = 0

type wtConn struct {
	id      string
	session *webtransport.Session
	local   string
	remote  string
	opts    *Options
	log     *zap.Logger
	limit   int

	state  connState
	in     *inbox
	sendMu sync.Mutex
	cancel context.CancelFunc
}

func connectWebTransport(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := dialWebTransport(ctx, addr, o)
	observeOpen(o.Logger, KindWebTransport, "connect", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialWebTransport(ctx context.Context, addr string, o *Options) (*wtConn, error) {
	u, err := parseURL(addr, "https")
	if err != nil {
		return nil, opError("connect", KindWebTransport, addr, ErrAddressParse, err)
	}

	d := webtransport.Dialer{
		TLSClientConfig: clientTLS(o, "", tls.VersionTLS13),
		QUICConfig: &quic.Config{
			HandshakeIdleTimeout: o.QUIC.HandshakeTimeout,
			MaxIdleTimeout:       o.QUIC.MaxIdleTimeout,
			KeepAlivePeriod:      o.QUIC.KeepAlive,
			EnableDatagrams:      true,
		},
	}
	rsp, session, err := d.Dial(ctx, u.String(), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, opError("connect", KindWebTransport, addr, ErrConnection, ctx.Err())
		}
		return nil, opError("connect", KindWebTransport, addr, ErrConnection, err)
	}
	if rsp != nil && rsp.Body != nil {
		rsp.Body.Close()
	}

	c := newWTConn(session, o)
	c.log.Info("webtransport connected", zap.String("remote_addr", c.remote))
	return c, nil
}

func newWTConn(session *webtransport.Session, o *Options) *wtConn {
	limit := o.MaxMessageSize
	if limit > MaxDatagramSize {
		limit = MaxDatagramSize
	}
	c := &wtConn{
		id:      uuid.NewString(),
		session: session,
		local:   session.LocalAddr().String(),
		remote:  session.RemoteAddr().String(),
		opts:    o,
		limit:   limit,
	}
	c.log = o.Logger.With(zap.String("kind", KindWebTransport.String()), zap.String("conn_id", c.id))
	c.in = newInbox(KindWebTransport, c.remote, o.InboxSize)

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())
	go c.datagramPump(ctx)
	return c
}

func (c *wtConn) Kind() Kind         { return KindWebTransport }
func (c *wtConn) ID() string         { return c.id }
func (c *wtConn) LocalAddr() string  { return c.local }
func (c *wtConn) RemoteAddr() string { return c.remote }
func (c *wtConn) State() State       { return c.state.load() }
func (c *wtConn) sealed()            {}

func (c *wtConn) datagramPump(ctx context.Context) {
	var cause error
	reason := "read_error"
	defer func() {
		c.in.finish(cause)
		c.shutdown(reason)
	}()

	for {
		data, err := c.session.ReceiveDatagram(ctx)
		if err != nil {
			cause = err
			var sessErr *webtransport.SessionError
			if errors.As(err, &sessErr) && sessErr.Remote {
				reason = "remote_closed"
			}
			c.log.Debug("webtransport datagram pump stopped", zap.Error(err))
			return
		}
		if !c.in.push(data) {
			cause = net.ErrClosed
			return
		}
		observeReceive(KindWebTransport, len(data))
	}
}

func (c *wtConn) Send(ctx context.Context, data []byte) error {
	err := c.send(ctx, data)
	observeSend(KindWebTransport, len(data), err)
	return err
}

func (c *wtConn) send(ctx context.Context, data []byte) error {
	if len(data) > c.limit {
		return opError("send", KindWebTransport, c.remote, ErrSend, tooLarge(len(data), c.limit))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.state.load() == StateClosed {
		return opError("send", KindWebTransport, c.remote, ErrConnectionClosed, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.session.SendDatagram(data); err != nil {
		if c.session.Context().Err() != nil {
			c.shutdown("write_error")
			return opError("send", KindWebTransport, c.remote, ErrConnectionClosed, err)
		}
		// 数据报发送失败不影响会话
		return opError("send", KindWebTransport, c.remote, ErrSend, err)
	}
	return nil
}

func (c *wtConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

// Close 关闭会话
func (c *wtConn) Close() error {
	return c.shutdown("local")
}

func (c *wtConn) shutdown(reason string) error {
	if !c.state.markClosed() {
		return nil
	}
	c.in.stop()
	c.cancel()

	err := c.session.CloseWithError(wtCodeNormal, reason)
	observeClose(c.log, KindWebTransport, c.id, reason)
	return err
}
