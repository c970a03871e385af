//go:build !js

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

// WebRTC 映射：一条有序可靠的 DataChannel，一次 Send 对应一条 DataChannel 消息。
// 信令为非 trickle 模式，offer/answer 在 ICE 收集完成后才交换。

const (
	rtcMaxBuffered   = 1 << 20
	rtcLowWatermark  = rtcMaxBuffered / 2
	rtcRemoteAddrFmt = "webrtc://%s"

	// 本地关闭前等待发送缓冲清空的上限
	rtcCloseLinger = 3 * time.Second
)

var (
	errNoSignaler        = errors.New("webrtc connect requires a signaler")
	errDataChannelClosed = errors.New("data channel closed")
	errPeerFailed        = errors.New("peer connection failed")
)

type rtcConn struct {
	id     string
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	peer   string
	local  string
	remote string
	opts   *Options
	log    *zap.Logger
	limit  int

	state  connState
	in     *inbox
	sendMu sync.Mutex

	opened     chan struct{}
	openOnce   sync.Once
	broken     chan struct{}
	brokenOnce sync.Once
	low        chan struct{} // BufferedAmountLow 通知
}

func newPeerConnection(o *Options) (*webrtc.PeerConnection, error) {
	var servers []webrtc.ICEServer
	if len(o.WebRTC.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: o.WebRTC.ICEServers}}
	}
	var se webrtc.SettingEngine
	if o.WebRTC.LoopbackCandidates {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

func connectWebRTC(ctx context.Context, addr string, o *Options) (Conn, error) {
	start := time.Now()
	c, err := dialWebRTC(ctx, addr, o)
	observeOpen(o.Logger, KindWebRTC, "connect", addr, start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dialWebRTC(ctx context.Context, addr string, o *Options) (*rtcConn, error) {
	peerID, err := parsePeerID(addr)
	if err != nil {
		return nil, opError("connect", KindWebRTC, addr, ErrAddressParse, err)
	}
	if o.WebRTC.Signaler == nil {
		return nil, opError("connect", KindWebRTC, addr, ErrConnection, errNoSignaler)
	}

	pc, err := newPeerConnection(o)
	if err != nil {
		return nil, opError("connect", KindWebRTC, addr, ErrConnection, err)
	}
	ordered := true
	dc, err := pc.CreateDataChannel(o.WebRTC.Label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, opError("connect", KindWebRTC, addr, ErrConnection, err)
	}
	c := newRTCConn(pc, dc, peerID, o)

	fail := func(err error) (*rtcConn, error) {
		c.discard()
		if ctx.Err() != nil {
			return nil, opError("connect", KindWebRTC, addr, ErrConnection, ctx.Err())
		}
		return nil, opError("connect", KindWebRTC, addr, ErrConnection, err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(err)
	}
	local, err := gatherLocal(ctx, pc, offer)
	if err != nil {
		return fail(err)
	}

	answer, err := o.WebRTC.Signaler.Offer(ctx, peerID, signaling.Description{Type: local.Type.String(), SDP: local.SDP})
	if err != nil {
		return fail(fmt.Errorf("signaling: %w", err))
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fail(err)
	}

	if err := c.waitOpen(ctx); err != nil {
		return fail(err)
	}
	c.log.Info("webrtc connected", zap.String("peer_id", peerID), zap.String("local_addr", c.local))
	return c, nil
}

// AcceptWebRTC 应答方：等待一个 offer，完成协商后返回对端创建的第一条 DataChannel
func AcceptWebRTC(ctx context.Context, ans signaling.Answerer, opts ...Option) (Conn, error) {
	o := newOptions(opts)
	start := time.Now()
	c, err := acceptWebRTC(ctx, ans, o)
	observeOpen(o.Logger, KindWebRTC, "accept", "", start, err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func acceptWebRTC(ctx context.Context, ans signaling.Answerer, o *Options) (*rtcConn, error) {
	if ans == nil {
		return nil, opError("accept", KindWebRTC, "", ErrConnection, errNoSignaler)
	}
	in, err := ans.NextOffer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, opError("accept", KindWebRTC, "", ErrConnection, ctx.Err())
		}
		return nil, opError("accept", KindWebRTC, "", ErrConnection, err)
	}
	addr := fmt.Sprintf(rtcRemoteAddrFmt, in.From)

	pc, err := newPeerConnection(o)
	if err != nil {
		_ = in.Reject(ctx, signaling.ErrCodeInternalError, err.Error())
		return nil, opError("accept", KindWebRTC, addr, ErrConnection, err)
	}

	conns := make(chan *rtcConn, 1)
	var first sync.Once
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		taken := true
		first.Do(func() {
			taken = false
			// 在回调内注册处理函数，保证不丢失打开后的第一条消息
			conns <- newRTCConn(pc, dc, in.From, o)
		})
		if taken {
			dc.Close()
		}
	})

	fail := func(err error) (*rtcConn, error) {
		select {
		case c := <-conns:
			c.discard()
		default:
			pc.Close()
		}
		if ctx.Err() != nil {
			return nil, opError("accept", KindWebRTC, addr, ErrConnection, ctx.Err())
		}
		return nil, opError("accept", KindWebRTC, addr, ErrConnection, err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: in.Offer.SDP}); err != nil {
		_ = in.Reject(ctx, signaling.ErrCodeNegotiation, err.Error())
		return fail(err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = in.Reject(ctx, signaling.ErrCodeNegotiation, err.Error())
		return fail(err)
	}
	local, err := gatherLocal(ctx, pc, answer)
	if err != nil {
		return fail(err)
	}
	if err := in.Answer(ctx, signaling.Description{Type: local.Type.String(), SDP: local.SDP}); err != nil {
		return fail(fmt.Errorf("signaling: %w", err))
	}

	var c *rtcConn
	select {
	case c = <-conns:
	case <-ctx.Done():
		return fail(ctx.Err())
	}
	if err := c.waitOpen(ctx); err != nil {
		c.discard()
		if ctx.Err() != nil {
			return nil, opError("accept", KindWebRTC, addr, ErrConnection, ctx.Err())
		}
		return nil, opError("accept", KindWebRTC, addr, ErrConnection, err)
	}
	c.log.Info("webrtc peer accepted", zap.String("peer_id", in.From), zap.String("local_addr", c.local))
	return c, nil
}

// gatherLocal 设置本地描述并等待 ICE 收集完成
func gatherLocal(ctx context.Context, pc *webrtc.PeerConnection, sd webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(sd); err != nil {
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	local := pc.LocalDescription()
	if local == nil {
		return nil, errors.New("no local description")
	}
	return local, nil
}

func newRTCConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, peerID string, o *Options) *rtcConn {
	limit := o.MaxMessageSize
	if limit > MaxDataChannelMessage {
		limit = MaxDataChannelMessage
	}
	c := &rtcConn{
		id:     uuid.NewString(),
		pc:     pc,
		dc:     dc,
		peer:   peerID,
		local:  "webrtc",
		remote: fmt.Sprintf(rtcRemoteAddrFmt, peerID),
		opts:   o,
		limit:  limit,
		opened: make(chan struct{}),
		broken: make(chan struct{}),
		low:    make(chan struct{}, 1),
	}
	c.log = o.Logger.With(zap.String("kind", KindWebRTC.String()), zap.String("conn_id", c.id))
	c.in = newInbox(KindWebRTC, c.remote, o.InboxSize)

	dc.SetBufferedAmountLowThreshold(rtcLowWatermark)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.low <- struct{}{}:
		default:
		}
	})
	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if len(msg.Data) > c.limit {
			c.log.Warn("webrtc message exceeds limit", zap.Int("size", len(msg.Data)))
			c.peerGone(tooLarge(len(msg.Data), c.limit), "protocol_error")
			return
		}
		if !c.in.push(msg.Data) {
			return
		}
		observeReceive(KindWebRTC, len(msg.Data))
	})
	dc.OnClose(func() {
		c.peerGone(errDataChannelClosed, "remote_closed")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Debug("peer connection state", zap.String("state", s.String()))
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.peerGone(errPeerFailed, "ice_failed")
		case webrtc.PeerConnectionStateClosed:
			c.peerGone(errDataChannelClosed, "remote_closed")
		}
	})
	return c
}

func (c *rtcConn) Kind() Kind         { return KindWebRTC }
func (c *rtcConn) ID() string         { return c.id }
func (c *rtcConn) LocalAddr() string  { return c.local }
func (c *rtcConn) RemoteAddr() string { return c.remote }
func (c *rtcConn) State() State       { return c.state.load() }
func (c *rtcConn) sealed()            {}

func (c *rtcConn) waitOpen(ctx context.Context) error {
	select {
	case <-c.opened:
	case <-c.broken:
		return errPeerFailed
	case <-ctx.Done():
		return ctx.Err()
	}
	if pair := c.selectedPair(); pair != nil {
		c.local = net.JoinHostPort(pair.Local.Address, fmt.Sprint(pair.Local.Port))
	}
	return nil
}

func (c *rtcConn) selectedPair() *webrtc.ICECandidatePair {
	sctp := c.pc.SCTP()
	if sctp == nil || sctp.Transport() == nil || sctp.Transport().ICETransport() == nil {
		return nil
	}
	pair, err := sctp.Transport().ICETransport().GetSelectedCandidatePair()
	if err != nil {
		return nil
	}
	return pair
}

// peerGone 对端关闭或 ICE 失败，pion 回调中调用
func (c *rtcConn) peerGone(cause error, reason string) {
	c.brokenOnce.Do(func() { close(c.broken) })
	c.in.finish(cause)
	// 不在 pion 回调内同步关闭 PeerConnection
	go c.shutdown(reason)
}

func (c *rtcConn) Send(ctx context.Context, data []byte) error {
	err := c.send(ctx, data)
	observeSend(KindWebRTC, len(data), err)
	return err
}

func (c *rtcConn) send(ctx context.Context, data []byte) error {
	if len(data) > c.limit {
		return opError("send", KindWebRTC, c.remote, ErrSend, tooLarge(len(data), c.limit))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.state.load() == StateClosed {
		return opError("send", KindWebRTC, c.remote, ErrConnectionClosed, nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 发送缓冲超过上限时等待回落
	for c.dc.BufferedAmount() > rtcMaxBuffered {
		select {
		case <-c.low:
		case <-c.broken:
			return opError("send", KindWebRTC, c.remote, ErrConnectionClosed, errDataChannelClosed)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.dc.Send(data); err != nil {
		class := ErrSend
		if c.state.load() == StateClosed || c.dc.ReadyState() != webrtc.DataChannelStateOpen {
			class = ErrConnectionClosed
		}
		c.shutdown("write_error")
		return opError("send", KindWebRTC, c.remote, class, err)
	}
	return nil
}

func (c *rtcConn) Receive(ctx context.Context) ([]byte, error) {
	return c.in.receive(ctx)
}

// Close 关闭 DataChannel 与 PeerConnection
func (c *rtcConn) Close() error {
	return c.shutdown("local")
}

func (c *rtcConn) shutdown(reason string) error {
	if !c.state.markClosed() {
		return nil
	}
	c.in.stop()
	c.in.finish(net.ErrClosed)

	if reason == "local" {
		c.flush()
	}
	_ = c.dc.Close()
	err := c.pc.Close()
	observeClose(c.log, KindWebRTC, c.id, reason)
	return err
}

// flush 等待 SCTP 确认已缓冲的数据，关闭 PeerConnection 会丢弃未确认的数据
func (c *rtcConn) flush() {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	c.dc.SetBufferedAmountLowThreshold(0)

	t := time.NewTimer(rtcCloseLinger)
	defer t.Stop()
	for c.dc.BufferedAmount() > 0 {
		select {
		case <-c.low:
		case <-c.broken:
			return
		case <-t.C:
			c.log.Debug("webrtc close linger expired", zap.Uint64("buffered", c.dc.BufferedAmount()))
			return
		}
	}
}

// discard 建连失败时释放资源，实例从未交给调用方
func (c *rtcConn) discard() {
	if !c.state.markClosed() {
		return
	}
	c.in.stop()
	c.in.finish(net.ErrClosed)
	_ = c.pc.Close()
}
