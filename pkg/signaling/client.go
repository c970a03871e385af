package signaling

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientOptions 中继客户端参数
type ClientOptions struct {
	Token            string
	Header           http.Header
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Client 连接信令中继的对端，同时实现 Signaler 与 Answerer
type Client struct {
	id  string
	ws  *websocket.Conn
	log *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Envelope // session → 回复

	offers chan *IncomingOffer

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial 以 peerID 身份注册到中继
func Dial(ctx context.Context, rawURL, peerID string, opts ClientOptions) (*Client, error) {
	if peerID == "" {
		return nil, ErrNoPeerID
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("signaling: parse url: %w", err)
	}
	q := u.Query()
	q.Set("peer", peerID)
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	if opts.Header != nil {
		hdr = opts.Header.Clone()
	}
	if opts.Token != "" {
		hdr.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  opts.TLSConfig,
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("signaling: dial %s: %s: %w", u.Host, resp.Status, err)
		}
		return nil, fmt.Errorf("signaling: dial %s: %w", u.Host, err)
	}
	ws.SetReadLimit(maxEnvelopeSize)

	c := &Client{
		id:      peerID,
		ws:      ws,
		log:     opts.Logger.With(zap.String("component", "signaling_client"), zap.String("peer_id", peerID)),
		pending: make(map[string]chan *Envelope),
		offers:  make(chan *IncomingOffer, 8),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID 注册使用的 peer id
func (c *Client) ID() string { return c.id }

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		env, err := Decode(data)
		if err != nil {
			c.log.Warn("decode envelope failed", zap.Error(err))
			continue
		}

		switch env.Type {
		case MsgOffer:
			if env.SDP == nil {
				c.log.Warn("offer without sdp", zap.String("from", env.From))
				continue
			}
			select {
			case c.offers <- c.incoming(env):
			case <-c.done:
				return
			}
		case MsgAnswer, MsgError:
			c.mu.Lock()
			ch := c.pending[env.Session]
			delete(c.pending, env.Session)
			c.mu.Unlock()
			if ch == nil {
				if env.Type == MsgError {
					c.log.Warn("relay error", zap.Int("code", env.Code), zap.String("msg", env.Message))
				}
				continue
			}
			ch <- env
		default:
			c.log.Debug("unknown envelope type", zap.Uint8("type", uint8(env.Type)))
		}
	}
}

func (c *Client) incoming(env *Envelope) *IncomingOffer {
	from, sid := env.From, env.Session
	return &IncomingOffer{
		From:      from,
		SessionID: sid,
		Offer:     *env.SDP,
		reply: func(ctx context.Context, answer Description) error {
			return c.write(ctx, &Envelope{Type: MsgAnswer, Session: sid, To: from, SDP: &answer})
		},
		reject: func(ctx context.Context, code int, msg string) error {
			return c.write(ctx, &Envelope{Type: MsgError, Session: sid, To: from, Code: code, Message: msg})
		},
	}
}

func (c *Client) write(ctx context.Context, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("signaling: write %s: %w", env.Type, err)
	}
	return nil
}

// Offer 把 offer 发给 peerID 并等待 answer
func (c *Client) Offer(ctx context.Context, peerID string, offer Description) (Description, error) {
	if peerID == "" {
		return Description{}, ErrNoPeerID
	}
	sid := uuid.NewString()
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	c.pending[sid] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, sid)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, &Envelope{Type: MsgOffer, Session: sid, To: peerID, SDP: &offer}); err != nil {
		return Description{}, err
	}

	select {
	case env := <-ch:
		if env.Type == MsgError {
			return Description{}, &RemoteError{Code: env.Code, Message: env.Message}
		}
		if env.SDP == nil || env.SDP.Type != "answer" {
			return Description{}, ErrUnexpectedSD
		}
		return *env.SDP, nil
	case <-ctx.Done():
		return Description{}, ctx.Err()
	case <-c.done:
		return Description{}, c.closedErr()
	}
}

// NextOffer 等待下一个发给本对端的 offer
func (c *Client) NextOffer(ctx context.Context) (*IncomingOffer, error) {
	select {
	case in := <-c.offers:
		return in, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}
}

func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.ws.Close()
	})
}

func (c *Client) closedErr() error {
	if c.err == nil {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.err)
}

// Close 断开与中继的连接
func (c *Client) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.fail(nil)
	return nil
}
