//go:build !js

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn WebSocket 传输实例
//
// 唯一的读泵负责 ReadMessage，Receive 从 inbox 取消息，因此取消 Receive 不会破坏连接。
// Send 持有 sendMu 完成一次 WriteMessage，保证两次 Send 的帧不会交错。
type wsConn struct {
	id     string
	ws     *websocket.Conn
	local  string
	remote string
	opts   *Options
	log    *zap.Logger

	state    connState
	in       *inbox
	sendMu   sync.Mutex
	readWait time.Duration // 启用保活时单次读等待上限
}

func connectWebSocket(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := dialWebSocket(ctx, addr, o)
	observeOpen(o.Logger, KindWebSocket, "connect", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialWebSocket(ctx context.Context, addr string, o *Options) (*wsConn, error) {
	u, err := parseURL(addr, "ws", "wss")
	if err != nil {
		return nil, opError("connect", KindWebSocket, addr, ErrAddressParse, err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: o.WebSocket.HandshakeTimeout,
		ReadBufferSize:   o.WebSocket.ReadBufferSize,
		WriteBufferSize:  o.WebSocket.WriteBufferSize,
		TLSClientConfig:  clientTLS(o, "", tls.VersionTLS12),
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), o.WebSocket.Header)
	if err != nil {
		return nil, opError("connect", KindWebSocket, addr, ErrConnection, err)
	}

	c := newWSConn(ws, o)
	c.log.Info("websocket connected", zap.String("remote_addr", c.remote))
	return c, nil
}

func listenWebSocket(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := acceptWebSocket(ctx, addr, o)
	observeOpen(o.Logger, KindWebSocket, "listen", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// acceptWebSocket 绑定地址，升级第一个对端后关闭 HTTP 监听
func acceptWebSocket(ctx context.Context, addr string, o *Options) (*wsConn, error) {
	hostport, path, err := parseListenAddr(addr, o.WebSocket.Path)
	if err != nil {
		return nil, opError("listen", KindWebSocket, addr, ErrAddressParse, err)
	}

	ln, err := net.Listen("tcp", hostport)
	if err != nil {
		return nil, opError("listen", KindWebSocket, addr, ErrBind, err)
	}
	if strings.HasPrefix(strings.ToLower(addr), "wss://") {
		tlsConf, err := serverTLS(o, "", tls.VersionTLS12)
		if err != nil {
			ln.Close()
			return nil, opError("listen", KindWebSocket, addr, ErrBind, err)
		}
		ln = tls.NewListener(ln, tlsConf)
	}

	o.Logger.Info("websocket listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", path),
	)
	if o.OnBound != nil {
		o.OnBound(ln.Addr())
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:   o.WebSocket.ReadBufferSize,
		WriteBufferSize:  o.WebSocket.WriteBufferSize,
		HandshakeTimeout: o.WebSocket.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	accepted := make(chan *websocket.Conn, 1)
	var taken atomic.Bool

	// abandoned 之后升级成功的连接由 handler 自行关闭
	var handoff sync.Mutex
	abandoned := false

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		// 只接受一个对端
		if !taken.CompareAndSwap(false, true) {
			http.Error(w, "peer already accepted", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			o.Logger.Warn("websocket upgrade failed",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			taken.Store(false)
			return
		}
		handoff.Lock()
		defer handoff.Unlock()
		if abandoned {
			ws.Close()
			return
		}
		accepted <- ws
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: o.WebSocket.HandshakeTimeout,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	// Close 只关闭监听和未升级的连接，已 Hijack 的连接不受影响
	defer srv.Close()

	abandon := func() {
		srv.Close()
		handoff.Lock()
		abandoned = true
		handoff.Unlock()
		select {
		case ws := <-accepted:
			ws.Close()
		default:
		}
	}

	select {
	case ws := <-accepted:
		c := newWSConn(ws, o)
		c.log.Info("websocket peer accepted", zap.String("remote_addr", c.remote))
		return c, nil
	case err := <-serveErr:
		abandon()
		return nil, opError("listen", KindWebSocket, addr, ErrBind, err)
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

func newWSConn(ws *websocket.Conn, o *Options) *wsConn {
	c := &wsConn{
		id:     uuid.NewString(),
		ws:     ws,
		local:  ws.LocalAddr().String(),
		remote: ws.RemoteAddr().String(),
		opts:   o,
	}
	c.log = o.Logger.With(zap.String("kind", KindWebSocket.String()), zap.String("conn_id", c.id))
	c.in = newInbox(KindWebSocket, c.remote, o.InboxSize)

	ws.SetReadLimit(int64(o.MaxMessageSize))
	if iv := o.WebSocket.PingInterval; iv > 0 {
		c.readWait = 2 * iv
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.readWait))
		})
		// 对端的 ping 同样证明其存活；对端读泵因背压阻塞时不会回 pong，但仍会发 ping
		ws.SetPingHandler(func(data string) error {
			ws.SetReadDeadline(time.Now().Add(c.readWait))
			err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(o.WebSocket.WriteTimeout))
			var ne net.Error
			if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &ne) && ne.Timeout()) {
				return nil
			}
			return err
		})
		go c.pingLoop(iv)
	}

	go c.readLoop()
	return c
}

func (c *wsConn) Kind() Kind         { return KindWebSocket }
func (c *wsConn) ID() string         { return c.id }
func (c *wsConn) LocalAddr() string  { return c.local }
func (c *wsConn) RemoteAddr() string { return c.remote }
func (c *wsConn) State() State       { return c.state.load() }
func (c *wsConn) sealed()            {}

// readLoop 读循环
func (c *wsConn) readLoop() {
	var cause error
	reason := "read_error"
	defer func() {
		c.in.finish(cause)
		c.shutdown(reason)
	}()

	for {
		// 读超时只在等待网络时计时，push 阻塞期间不计
		if c.readWait > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.readWait))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			cause = err
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "remote_closed"
			}
			c.log.Debug("websocket read loop stopped", zap.Error(err))
			return
		}
		if !c.in.push(data) {
			cause = net.ErrClosed
			return
		}
		observeReceive(KindWebSocket, len(data))
	}
}

func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.in.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WebSocket.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("websocket ping failed", zap.Error(err))
				c.shutdown("ping_failed")
				return
			}
		}
	}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	err := c.send(ctx, data)
	observeSend(KindWebSocket, len(data), err)
	return err
}

func (c *wsConn) send(ctx context.Context, data []byte) error {
	if len(data) > c.opts.MaxMessageSize {
		return opError("send", KindWebSocket, c.remote, ErrSend, tooLarge(len(data), c.opts.MaxMessageSize))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.state.load() == StateClosed {
		return opError("send", KindWebSocket, c.remote, ErrConnectionClosed, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.WebSocket.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		class := ErrSend
		if c.state.load() == StateClosed || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
			class = ErrConnectionClosed
		}
		// 写失败后连接不可再用
		c.shutdown("write_error")
		return opError("send", KindWebSocket, c.remote, class, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

// Close 发送关闭帧并释放连接
func (c *wsConn) Close() error {
	return c.shutdown("local")
}

func (c *wsConn) shutdown(reason string) error {
	if !c.state.markClosed() {
		return nil
	}
	c.in.stop()

	if reason == "local" {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	err := c.ws.Close()
	observeClose(c.log, KindWebSocket, c.id, reason)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
