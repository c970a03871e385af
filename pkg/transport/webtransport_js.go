//go:build js && wasm

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall/js"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNoWebTransport = errors.New("WebTransport is not available in this runtime")

// wtConn 浏览器 WebTransport 会话，收发走 datagrams 的 ReadableStream/WritableStream
type wtConn struct {
	id     string
	wt     js.Value
	reader js.Value
	writer js.Value
	remote string
	opts   *Options
	log    *zap.Logger
	limit  int

	state  connState
	in     *inbox
	sendMu sync.Mutex
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
	ctor := js.Global().Get("WebTransport")
	if ctor.IsUndefined() {
		return nil, opError("connect", KindWebTransport, addr, ErrUnsupported, errNoWebTransport)
	}

	var wt js.Value
	if err := jsTry(func() { wt = ctor.New(u.String()) }); err != nil {
		return nil, opError("connect", KindWebTransport, addr, ErrConnection, err)
	}
	if _, err := await(ctx, wt.Get("ready")); err != nil {
		_ = jsTry(func() { wt.Call("close") })
		if ctx.Err() != nil {
			return nil, opError("connect", KindWebTransport, addr, ErrConnection, ctx.Err())
		}
		return nil, opError("connect", KindWebTransport, addr, ErrConnection, err)
	}

	limit := o.MaxMessageSize
	if limit > MaxDatagramSize {
		limit = MaxDatagramSize
	}
	dg := wt.Get("datagrams")
	if n := dg.Get("maxDatagramSize"); n.Type() == js.TypeNumber && n.Int() > 0 && n.Int() < limit {
		limit = n.Int()
	}

	c := &wtConn{
		id:     uuid.NewString(),
		wt:     wt,
		reader: dg.Get("readable").Call("getReader"),
		writer: dg.Get("writable").Call("getWriter"),
		remote: u.Host,
		opts:   o,
		limit:  limit,
	}
	c.log = o.Logger.With(zap.String("kind", KindWebTransport.String()), zap.String("conn_id", c.id))
	c.in = newInbox(KindWebTransport, c.remote, o.InboxSize)
	go c.readLoop()

	c.log.Info("webtransport connected", zap.String("remote_addr", c.remote))
	return c, nil
}

func (c *wtConn) Kind() Kind         { return KindWebTransport }
func (c *wtConn) ID() string         { return c.id }
func (c *wtConn) LocalAddr() string  { return "browser" }
func (c *wtConn) RemoteAddr() string { return c.remote }
func (c *wtConn) State() State       { return c.state.load() }
func (c *wtConn) sealed()            {}

func (c *wtConn) readLoop() {
	var cause error
	reason := "read_error"
	defer func() {
		c.in.finish(cause)
		c.shutdown(reason)
	}()

	for {
		res, err := await(context.Background(), c.reader.Call("read"))
		if err != nil {
			cause = err
			return
		}
		if res.Get("done").Bool() {
			cause, reason = io.EOF, "remote_closed"
			return
		}
		chunk := res.Get("value")
		data := make([]byte, chunk.Get("byteLength").Int())
		js.CopyBytesToGo(data, chunk)
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

	buf := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(buf, data)
	var p js.Value
	if err := jsTry(func() { p = c.writer.Call("write", buf) }); err != nil {
		c.shutdown("write_error")
		return opError("send", KindWebTransport, c.remote, ErrConnectionClosed, err)
	}
	if _, err := await(ctx, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.shutdown("write_error")
		return opError("send", KindWebTransport, c.remote, ErrConnectionClosed, err)
	}
	return nil
}

func (c *wtConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

func (c *wtConn) Close() error {
	return c.shutdown("local")
}

func (c *wtConn) shutdown(reason string) error {
	if !c.state.markClosed() {
		return nil
	}
	c.in.stop()
	err := jsTry(func() { c.wt.Call("close") })
	c.in.finish(net.ErrClosed)
	observeClose(c.log, KindWebTransport, c.id, reason)
	return err
}

// await 等待 JS Promise；ctx 取消后回调仍保留到 Promise 结束
func await(ctx context.Context, p js.Value) (js.Value, error) {
	type result struct {
		v   js.Value
		err error
	}
	ch := make(chan result, 1)

	var onOK, onErr js.Func
	release := func() {
		onOK.Release()
		onErr.Release()
	}
	onOK = js.FuncOf(func(_ js.Value, args []js.Value) any {
		release()
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		ch <- result{v: v}
		return nil
	})
	onErr = js.FuncOf(func(_ js.Value, args []js.Value) any {
		release()
		err := errors.New("promise rejected")
		if len(args) > 0 {
			err = js.Error{Value: args[0]}
		}
		ch <- result{err: err}
		return nil
	})
	p.Call("then", onOK, onErr)

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return js.Undefined(), ctx.Err()
	}
}

// jsTry 把 JS 异常（syscall/js 以 panic 抛出）转为 error
func jsTry(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(js.Error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
