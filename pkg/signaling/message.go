package signaling

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgType 信令消息类型
type MsgType uint8

const (
	MsgOffer  MsgType = 1 // 发起方 → 应答方
	MsgAnswer MsgType = 2 // 应答方 → 发起方
	MsgError  MsgType = 3 // 中继或应答方 → 发起方
)

func (t MsgType) String() string {
	switch t {
	case MsgOffer:
		return "offer"
	case MsgAnswer:
		return "answer"
	case MsgError:
		return "error"
	default:
		return "unknown"
	}
}

// Envelope 中继上传输的信令消息，一条 WebSocket 二进制消息对应一个 Envelope
type Envelope struct {
	Type    MsgType      `msgpack:"t"`
	Session string       `msgpack:"sid"`
	From    string       `msgpack:"from,omitempty"` // 由中继填写
	To      string       `msgpack:"to,omitempty"`
	SDP     *Description `msgpack:"sdp,omitempty"`
	Code    int          `msgpack:"code,omitempty"`
	Message string       `msgpack:"msg,omitempty"`
}

// Encode 使用 msgpack 编码
func Encode(e *Envelope) ([]byte, error) {
	return msgpack.Marshal(e)
}

// Decode 使用 msgpack 解码
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
