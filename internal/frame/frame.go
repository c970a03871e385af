// Package frame 定义流式传输上的消息分帧
package frame

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

/*
流上的消息帧格式：
+----------+------------------+
|  Length  |     Payload      |
|  4 bytes |       变长        |
+----------+------------------+
Length 为大端序，允许 0 长度负载。
*/

const (
	HeaderSize    = 4
	MaxPayloadLen = 1 << 20 // 1MB
)

var ErrPayloadTooLarge = errors.New("payload too large")

// Encode 编码一个帧
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Read 从 reader 读取一个帧；流在帧边界结束时返回 io.EOF
func Read(r io.Reader, max int) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > int64(limit(max)) {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Write 写入一个帧，头部和负载合并为一次 Write
func Write(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return ErrPayloadTooLarge
	}
	_, err := w.Write(Encode(payload))
	return err
}

func limit(max int) int {
	if max <= 0 {
		return MaxPayloadLen
	}
	return max
}
