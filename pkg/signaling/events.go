package signaling

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EventType 中继事件类型
type EventType string

const (
	EventRegistered   EventType = "registered"
	EventUnregistered EventType = "unregistered"
	EventRelayed      EventType = "relayed"
	EventRejected     EventType = "rejected"
)

// Event 中继上发生的一次注册、转发或拒绝，用于审计
type Event struct {
	Type    EventType `msgpack:"type"`
	Peer    string    `msgpack:"peer"`
	To      string    `msgpack:"to,omitempty"`
	Msg     string    `msgpack:"msg,omitempty"` // offer / answer / error
	Session string    `msgpack:"sid,omitempty"`
	Code    int       `msgpack:"code,omitempty"`
	At      time.Time `msgpack:"at"`
}

// EventSink 接收中继事件，Publish 不能阻塞中继
type EventSink interface {
	Publish(e Event)
}

// EncodeEvent 使用 msgpack 编码
func EncodeEvent(e Event) ([]byte, error) {
	return msgpack.Marshal(&e)
}

// DecodeEvent 使用 msgpack 解码
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	err := msgpack.Unmarshal(data, &e)
	return e, err
}
