//go:build !js

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/internal/frame"
)

// QUIC 映射：每个实例一条专用双向流，消息按 internal/frame 分帧，保证可靠有序。
// 发起方打开流后先写 4 字节前导，接受方据此 AcceptStream，之后才交换业务消息。

var quicPreamble = []byte("LKQ1")

const (
	quicCodeNormal   quic.ApplicationErrorCode = 0x0
	quicCodeProtocol quic.ApplicationErrorCode = 0x1

	// 本地关闭后等待对端读完 FIN 的上限
	quicCloseLinger = 3 * time.Second
)

type quicConn struct {
	id     string
	conn   *quic.Conn
	stream *quic.Stream
	tr     *quic.Transport // 仅接受方持有
	local  string
	remote string
	opts   *Options
	log    *zap.Logger

	state   connState
	in      *inbox
	sendMu  sync.Mutex
	peerFin chan struct{} // 读到对端 FIN
}

func quicConfig(o *Options) *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: o.QUIC.HandshakeTimeout,
		MaxIdleTimeout:       o.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:      o.QUIC.KeepAlive,
	}
}

func connectQUIC(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := dialQUIC(ctx, addr, o)
	observeOpen(o.Logger, KindQUIC, "connect", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialQUIC(ctx context.Context, addr string, o *Options) (*quicConn, error) {
	hostport, err := parseHostPort(addr)
	if err != nil {
		return nil, opError("connect", KindQUIC, addr, ErrAddressParse, err)
	}

	conn, err := quic.DialAddr(ctx, hostport, clientTLS(o, o.QUIC.ALPN, tls.VersionTLS13), quicConfig(o))
	if err != nil {
		return nil, opError("connect", KindQUIC, addr, ErrConnection, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(quicCodeProtocol, "open stream failed")
		return nil, opError("connect", KindQUIC, addr, ErrConnection, err)
	}
	stream.SetWriteDeadline(time.Now().Add(o.QUIC.HandshakeTimeout))
	if _, err := stream.Write(quicPreamble); err != nil {
		conn.CloseWithError(quicCodeProtocol, "preamble write failed")
		return nil, opError("connect", KindQUIC, addr, ErrConnection, err)
	}
	stream.SetWriteDeadline(time.Time{})

	c := newQUICConn(conn, stream, nil, o)
	c.log.Info("quic connected", zap.String("remote_addr", c.remote))
	return c, nil
}

func listenQUIC(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := acceptQUIC(ctx, addr, o)
	observeOpen(o.Logger, KindQUIC, "listen", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// acceptQUIC 绑定端点并接受第一个完成前导握手的连接
func acceptQUIC(ctx context.Context, addr string, o *Options) (*quicConn, error) {
	hostport, err := parseHostPort(addr)
	if err != nil {
		return nil, opError("listen", KindQUIC, addr, ErrAddressParse, err)
	}
	tlsConf, err := serverTLS(o, o.QUIC.ALPN, tls.VersionTLS13)
	if err != nil {
		return nil, opError("listen", KindQUIC, addr, ErrBind, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, opError("listen", KindQUIC, addr, ErrAddressParse, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, opError("listen", KindQUIC, addr, ErrBind, err)
	}
	// Transport 由实例持有，接受对端后只关闭 Listener
	tr := &quic.Transport{Conn: udpConn}
	ln, err := tr.Listen(tlsConf, quicConfig(o))
	if err != nil {
		tr.Close()
		return nil, opError("listen", KindQUIC, addr, ErrBind, err)
	}
	defer ln.Close()

	accepted := false
	defer func() {
		if !accepted {
			tr.Close()
		}
	}()

	o.Logger.Info("quic listening", zap.String("addr", ln.Addr().String()))
	if o.OnBound != nil {
		o.OnBound(ln.Addr())
	}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, opError("listen", KindQUIC, addr, ErrConnection, err)
		}

		stream, err := acceptPreamble(ctx, conn, o)
		if err != nil {
			o.Logger.Warn("quic peer rejected",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			conn.CloseWithError(quicCodeProtocol, "bad preamble")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		accepted = true
		c := newQUICConn(conn, stream, tr, o)
		c.log.Info("quic peer accepted", zap.String("remote_addr", c.remote))
		return c, nil
	}
}

func acceptPreamble(ctx context.Context, conn *quic.Conn, o *Options) (*quic.Stream, error) {
	hctx, cancel := context.WithTimeout(ctx, o.QUIC.HandshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(hctx)
	if err != nil {
		return nil, err
	}
	stream.SetReadDeadline(time.Now().Add(o.QUIC.HandshakeTimeout))
	got := make([]byte, len(quicPreamble))
	if _, err := io.ReadFull(stream, got); err != nil {
		return nil, err
	}
	if !bytes.Equal(got, quicPreamble) {
		return nil, fmt.Errorf("unexpected preamble %x", got)
	}
	stream.SetReadDeadline(time.Time{})
	return stream, nil
}

func newQUICConn(conn *quic.Conn, stream *quic.Stream, tr *quic.Transport, o *Options) *quicConn {
	c := &quicConn{
		id:      uuid.NewString(),
		conn:    conn,
		stream:  stream,
		tr:      tr,
		local:   conn.LocalAddr().String(),
		remote:  conn.RemoteAddr().String(),
		opts:    o,
		peerFin: make(chan struct{}),
	}
	c.log = o.Logger.With(zap.String("kind", KindQUIC.String()), zap.String("conn_id", c.id))
	c.in = newInbox(KindQUIC, c.remote, o.InboxSize)
	go c.readLoop()
	return c
}

func (c *quicConn) Kind() Kind         { return KindQUIC }
func (c *quicConn) ID() string         { return c.id }
func (c *quicConn) LocalAddr() string  { return c.local }
func (c *quicConn) RemoteAddr() string { return c.remote }
func (c *quicConn) State() State       { return c.state.load() }
func (c *quicConn) sealed()            {}

func (c *quicConn) readLoop() {
	var cause error
	reason := "read_error"
	defer func() {
		c.in.finish(cause)
		c.shutdown(reason, quicCodeNormal)
	}()

	for {
		data, err := frame.Read(c.stream, c.opts.MaxMessageSize)
		if err != nil {
			cause = err
			var appErr *quic.ApplicationError
			switch {
			case errors.Is(err, io.EOF):
				close(c.peerFin)
				reason = "remote_closed"
			case errors.As(err, &appErr) && appErr.Remote:
				reason = "remote_closed"
			case errors.Is(err, frame.ErrPayloadTooLarge):
				reason = "protocol_error"
			}
			c.log.Debug("quic read loop stopped", zap.Error(err))
			return
		}
		if !c.in.push(data) {
			cause = net.ErrClosed
			return
		}
		observeReceive(KindQUIC, len(data))
	}
}

func (c *quicConn) Send(ctx context.Context, data []byte) error {
	err := c.send(ctx, data)
	observeSend(KindQUIC, len(data), err)
	return err
}

func (c *quicConn) send(ctx context.Context, data []byte) error {
	if len(data) > c.opts.MaxMessageSize {
		return opError("send", KindQUIC, c.remote, ErrSend, tooLarge(len(data), c.opts.MaxMessageSize))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.state.load() == StateClosed {
		return opError("send", KindQUIC, c.remote, ErrConnectionClosed, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.stream.SetWriteDeadline(deadline)

	if err := frame.Write(c.stream, data); err != nil {
		class := ErrSend
		var appErr *quic.ApplicationError
		if c.state.load() == StateClosed || errors.As(err, &appErr) {
			class = ErrConnectionClosed
		}
		c.shutdown("write_error", quicCodeProtocol)
		return opError("send", KindQUIC, c.remote, class, err)
	}
	return nil
}

func (c *quicConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

// Close 关闭流和整条 QUIC 连接
func (c *quicConn) Close() error {
	return c.shutdown("local", quicCodeNormal)
}

// linger 等待对端读完本端数据
//
// CloseWithError 会丢弃尚未确认的流数据。对端读到 FIN 后会关闭自己的流和连接，
// 因此等到连接结束或本端读到对端 FIN 再关闭。
func (c *quicConn) linger() {
	t := time.NewTimer(quicCloseLinger)
	defer t.Stop()
	select {
	case <-c.conn.Context().Done():
	case <-c.peerFin:
	case <-t.C:
		c.log.Debug("quic close linger expired")
	}
}

func (c *quicConn) shutdown(reason string, code quic.ApplicationErrorCode) error {
	if !c.state.markClosed() {
		return nil
	}
	c.in.stop()

	_ = c.stream.Close()
	if reason == "local" {
		c.linger()
	}
	err := c.conn.CloseWithError(code, reason)
	if c.tr != nil {
		c.tr.Close()
	}
	observeClose(c.log, KindQUIC, c.id, reason)
	return err
}
