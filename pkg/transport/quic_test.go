//go:build !js

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func quicTarget(a net.Addr) string { return a.String() }

func quicPair(t *testing.T, opts ...Option) (client, server Conn) {
	t.Helper()
	opts = append(opts, WithInsecureSkipVerify(true))
	return connectPair(t, KindQUIC, "127.0.0.1:0", quicTarget, opts...)
}

func TestQUICRoundTrip(t *testing.T) {
	client, server := quicPair(t)

	if client.Kind() != KindQUIC || server.Kind() != KindQUIC {
		t.Fatalf("kinds = %s/%s", client.Kind(), server.Kind())
	}
	if client.RemoteAddr() != server.LocalAddr() {
		t.Fatalf("client remote %s, server local %s", client.RemoteAddr(), server.LocalAddr())
	}

	for _, n := range []int{0, 1, 4096, DefaultMaxMessageSize} {
		data := payload(n)
		mustSend(t, client, data)
		mustReceive(t, server, data)
		mustSend(t, server, data)
		mustReceive(t, client, data)
	}
}

func TestQUICConcurrentSends(t *testing.T) {
	client, server := quicPair(t)
	testConcurrentSends(t, client, server, 16<<10)
}

func TestQUICMessageTooLarge(t *testing.T) {
	client, server := quicPair(t, WithMaxMessageSize(512))

	err := client.Send(testCtx(t), payload(513))
	if !errors.Is(err, ErrSend) || !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("err = %v", err)
	}
	mustSend(t, client, payload(512))
	mustReceive(t, server, payload(512))
}

func TestQUICPeerClose(t *testing.T) {
	client, server := quicPair(t)

	mustSend(t, client, []byte("ready"))
	mustReceive(t, server, []byte("ready"))

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := server.Receive(testCtx(t)); !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("receive %d after peer close: %v", i, err)
		}
	}
	if err := client.Send(testCtx(t), []byte("x")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestQUICListenCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c, err := Listen(ctx, KindQUIC, "127.0.0.1:0")
	if c != nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("listen = %v, %v", c, err)
	}
}

func TestQUICBindError(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer pc.Close()

	if _, err := Listen(testCtx(t), KindQUIC, pc.LocalAddr().String()); !errors.Is(err, ErrBind) {
		t.Fatalf("err = %v, want ErrBind", err)
	}
}

func TestQUICConnectUntrusted(t *testing.T) {
	addr, _ := startListen(t, KindQUIC, "127.0.0.1:0")

	// 自签证书且未跳过校验
	c, err := Connect(testCtx(t), KindQUIC, addr.String())
	if c != nil || !errors.Is(err, ErrConnection) {
		t.Fatalf("connect = %v, %v", c, err)
	}
}

func TestQUICSendThenClose(t *testing.T) {
	testSendThenClose(t, 10, 256<<10, func(t *testing.T) (Conn, Conn) {
		return quicPair(t)
	})
}
