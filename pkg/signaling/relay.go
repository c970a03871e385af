package signaling

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qiminjie89/linkkit/pkg/auth"
	"github.com/qiminjie89/linkkit/pkg/metrics"
)

const (
	maxEnvelopeSize     = 256 * 1024 // SDP 含全部 candidate，留足余量
	defaultWriteTimeout = 10 * time.Second
)

// RelayOptions 中继参数
type RelayOptions struct {
	// Validator 为 nil 时不做认证，peer id 取自 ?peer= 参数
	Validator *auth.JWTValidator
	// AuthRequired 为 false 时允许 dev_ token（ValidateOrMock）
	AuthRequired bool
	Logger       *zap.Logger
	WriteTimeout time.Duration
	// Events 可选的事件出口（如 Kafka）
	Events EventSink
}

// Relay 信令中继，实现 http.Handler
//
// 每个对端以 ws(s)://host/signal?peer=<id> 注册，之后发送的 Envelope 按 To 转发给目标对端，
// From 字段由中继按注册身份改写。
type Relay struct {
	opts     RelayOptions
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[string]*relayPeer
}

type relayPeer struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (p *relayPeer) write(e *Envelope, timeout time.Duration) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.ws.SetWriteDeadline(time.Now().Add(timeout))
	return p.ws.WriteMessage(websocket.BinaryMessage, data)
}

// NewRelay 创建中继
func NewRelay(opts RelayOptions) *Relay {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Relay{
		opts: opts,
		log:  opts.Logger.With(zap.String("component", "signaling_relay")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源，生产环境应该限制
			},
		},
		peers: make(map[string]*relayPeer),
	}
}

// Peers 当前在线对端数
func (r *Relay) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	peerID, code, err := r.authenticate(req)
	if err != nil {
		r.reject(w, req, code, err)
		return
	}
	if r.lookup(peerID) != nil {
		r.reject(w, req, ErrCodePeerExists, errors.New("peer id already registered"))
		return
	}

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed",
			zap.String("remote_addr", req.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	p := &relayPeer{id: peerID, ws: ws}
	if !r.register(p) {
		// 升级期间被同名对端抢先注册
		_ = p.write(&Envelope{Type: MsgError, Code: ErrCodePeerExists, Message: peerID}, r.opts.WriteTimeout)
		ws.Close()
		metrics.SignalingRejected.WithLabelValues(ErrCodeMessage[ErrCodePeerExists]).Inc()
		r.emit(Event{Type: EventRejected, Peer: peerID, Code: ErrCodePeerExists})
		return
	}

	r.log.Info("peer registered",
		zap.String("peer_id", peerID),
		zap.String("remote_addr", req.RemoteAddr),
	)
	r.emit(Event{Type: EventRegistered, Peer: peerID})
	r.serve(p)
}

func (r *Relay) authenticate(req *http.Request) (string, int, error) {
	requested := req.URL.Query().Get("peer")
	if r.opts.Validator == nil {
		if requested == "" {
			return "", ErrCodeInvalidRequest, ErrNoPeerID
		}
		return requested, ErrCodeSuccess, nil
	}

	token := auth.TokenFromRequest(req)
	var claims *auth.Claims
	var err error
	if r.opts.AuthRequired {
		claims, err = r.opts.Validator.Validate(token)
	} else {
		claims, err = r.opts.Validator.ValidateOrMock(token, requested)
	}
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", ErrCodeTokenExpired, err
		}
		return "", ErrCodeAuthFailed, err
	}
	if requested != "" && requested != claims.PeerID {
		return "", ErrCodeAuthFailed, errors.New("peer id does not match token")
	}
	return claims.PeerID, ErrCodeSuccess, nil
}

func (r *Relay) reject(w http.ResponseWriter, req *http.Request, code int, err error) {
	status := http.StatusBadRequest
	switch code {
	case ErrCodeAuthFailed, ErrCodeTokenExpired:
		status = http.StatusUnauthorized
	case ErrCodePeerExists:
		status = http.StatusConflict
	}
	metrics.SignalingRejected.WithLabelValues(ErrCodeMessage[code]).Inc()
	r.emit(Event{Type: EventRejected, Peer: req.URL.Query().Get("peer"), Code: code})
	r.log.Warn("peer rejected",
		zap.String("remote_addr", req.RemoteAddr),
		zap.Int("code", code),
		zap.Error(err),
	)
	http.Error(w, ErrCodeMessage[code], status)
}

func (r *Relay) register(p *relayPeer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.id]; ok {
		return false
	}
	r.peers[p.id] = p
	metrics.SignalingPeers.Inc()
	return true
}

func (r *Relay) release(p *relayPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[p.id]; ok && cur == p {
		delete(r.peers, p.id)
		metrics.SignalingPeers.Dec()
	}
}

func (r *Relay) lookup(id string) *relayPeer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[id]
}

// serve 读循环，直到对端断开
func (r *Relay) serve(p *relayPeer) {
	defer func() {
		r.release(p)
		p.ws.Close()
		r.log.Info("peer unregistered", zap.String("peer_id", p.id))
		r.emit(Event{Type: EventUnregistered, Peer: p.id})
	}()

	p.ws.SetReadLimit(maxEnvelopeSize)
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn("peer read error", zap.String("peer_id", p.id), zap.Error(err))
			}
			return
		}
		env, err := Decode(data)
		if err != nil {
			r.log.Warn("decode envelope failed", zap.String("peer_id", p.id), zap.Error(err))
			r.replyError(p, "", ErrCodeInvalidRequest, "malformed envelope")
			continue
		}
		r.route(p, env)
	}
}

func (r *Relay) route(from *relayPeer, env *Envelope) {
	switch env.Type {
	case MsgOffer, MsgAnswer, MsgError:
	default:
		r.replyError(from, env.Session, ErrCodeInvalidRequest, "unknown message type")
		return
	}
	if env.To == "" {
		r.replyError(from, env.Session, ErrCodeInvalidRequest, "missing target peer")
		return
	}

	env.From = from.id
	target := r.lookup(env.To)
	if target == nil {
		metrics.SignalingRejected.WithLabelValues(ErrCodeMessage[ErrCodePeerNotFound]).Inc()
		r.emit(Event{Type: EventRejected, Peer: from.id, To: env.To, Msg: env.Type.String(), Session: env.Session, Code: ErrCodePeerNotFound})
		// answer/error 的目标下线时无人可通知
		if env.Type == MsgOffer {
			r.replyError(from, env.Session, ErrCodePeerNotFound, env.To)
		}
		return
	}

	if err := target.write(env, r.opts.WriteTimeout); err != nil {
		r.log.Warn("relay write failed",
			zap.String("from", from.id),
			zap.String("to", env.To),
			zap.Error(err),
		)
		return
	}
	metrics.SignalingRelayed.WithLabelValues(env.Type.String()).Inc()
	r.emit(Event{Type: EventRelayed, Peer: from.id, To: env.To, Msg: env.Type.String(), Session: env.Session, Code: env.Code})
	r.log.Debug("envelope relayed",
		zap.String("type", env.Type.String()),
		zap.String("session", env.Session),
		zap.String("from", from.id),
		zap.String("to", env.To),
	)
}

func (r *Relay) replyError(p *relayPeer, session string, code int, msg string) {
	err := p.write(&Envelope{Type: MsgError, Session: session, Code: code, Message: msg}, r.opts.WriteTimeout)
	if err != nil {
		r.log.Debug("reply error failed", zap.String("peer_id", p.id), zap.Error(err))
	}
}

func (r *Relay) emit(e Event) {
	if r.opts.Events == nil {
		return
	}
	e.At = time.Now()
	r.opts.Events.Publish(e)
}

// Close 断开所有对端
func (r *Relay) Close() error {
	r.mu.Lock()
	peers := make([]*relayPeer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()

	for _, p := range peers {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
		_ = p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		p.ws.Close()
	}
	return nil
}
