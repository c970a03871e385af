//go:build !js

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qiminjie89/linkkit/pkg/signaling"
)

func rtcPair(t *testing.T) (client, server Conn) {
	t.Helper()
	if testing.Short() {
		t.Skip("webrtc negotiation skipped in short mode")
	}

	pipe := signaling.NewPipe()
	t.Cleanup(func() { pipe.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := make(chan listenResult, 1)
	go func() {
		c, err := AcceptWebRTC(ctx, pipe, WithLoopbackCandidates(true))
		res <- listenResult{c, err}
	}()

	client, err := Connect(ctx, KindWebRTC, "webrtc://answerer", WithSignaler(pipe), WithLoopbackCandidates(true))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	r := <-res
	if r.err != nil {
		client.Close()
		t.Fatalf("accept: %v", r.err)
	}
	server = r.c

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestWebRTCRoundTrip(t *testing.T) {
	client, server := rtcPair(t)

	if client.RemoteAddr() != "webrtc://answerer" {
		t.Fatalf("client remote = %s", client.RemoteAddr())
	}
	if server.RemoteAddr() != "webrtc://pipe" {
		t.Fatalf("server remote = %s", server.RemoteAddr())
	}

	mustSend(t, client, []byte("Hello via WebRTC!"))
	mustReceive(t, server, []byte("Hello via WebRTC!"))

	for _, n := range []int{0, 1, 1000, MaxDataChannelMessage} {
		data := payload(n)
		mustSend(t, server, data)
		mustReceive(t, client, data)
	}

	err := client.Send(testCtx(t), payload(MaxDataChannelMessage+1))
	if !errors.Is(err, ErrSend) || !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("oversized send: %v", err)
	}
}

func TestWebRTCPeerClose(t *testing.T) {
	client, server := rtcPair(t)

	mustSend(t, client, []byte("ready"))
	mustReceive(t, server, []byte("ready"))

	client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := server.Receive(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("receive after peer close: %v", err)
	}
	if err := client.Send(testCtx(t), []byte("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestWebRTCRejectedOffer(t *testing.T) {
	pipe := signaling.NewPipe()
	defer pipe.Close()

	go func() {
		in, err := pipe.NextOffer(context.Background())
		if err != nil {
			return
		}
		in.Reject(context.Background(), signaling.ErrCodePeerNotFound, "nobody home")
	}()

	_, err := Connect(testCtx(t), KindWebRTC, "webrtc://nobody", WithSignaler(pipe), WithLoopbackCandidates(true))
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	var remote *signaling.RemoteError
	if !errors.As(err, &remote) || remote.Code != signaling.ErrCodePeerNotFound {
		t.Fatalf("err = %v, want remote peer-not-found", err)
	}
}

func TestWebRTCWithoutSignaler(t *testing.T) {
	if _, err := Connect(testCtx(t), KindWebRTC, "webrtc://peer"); !errors.Is(err, ErrConnection) {
		t.Fatalf("connect: %v", err)
	}
	if _, err := AcceptWebRTC(testCtx(t), nil); !errors.Is(err, ErrConnection) {
		t.Fatalf("accept: %v", err)
	}
}

func TestWebRTCAcceptCancel(t *testing.T) {
	pipe := signaling.NewPipe()
	defer pipe.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := AcceptWebRTC(ctx, pipe)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v", err)
	}
}

func TestWebRTCSendThenClose(t *testing.T) {
	testSendThenClose(t, 3, 60000, rtcPair)
}

func TestWebRTCConnectCancel(t *testing.T) {
	pipe := signaling.NewPipe()
	defer pipe.Close()

	// 没有应答方
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Connect(ctx, KindWebRTC, "webrtc://nobody", WithSignaler(pipe), WithLoopbackCandidates(true))
	if !errors.Is(err, ErrConnection) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}
