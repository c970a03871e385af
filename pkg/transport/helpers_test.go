package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

type listenResult struct {
	c   Conn
	err error
}

// startListen 后台 Listen，返回绑定地址和最终结果
func startListen(t *testing.T, kind Kind, addr string, opts ...Option) (net.Addr, <-chan listenResult) {
	t.Helper()
	bound := make(chan net.Addr, 1)
	res := make(chan listenResult, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	opts = append(opts, OnBound(func(a net.Addr) { bound <- a }))
	go func() {
		c, err := Listen(ctx, kind, addr, opts...)
		res <- listenResult{c, err}
	}()

	select {
	case a := <-bound:
		return a, res
	case r := <-res:
		t.Fatalf("%s listen %s: %v", kind, addr, r.err)
	case <-time.After(5 * time.Second):
		t.Fatalf("%s listen %s: never bound", kind, addr)
	}
	return nil, nil
}

// connectPair 建立一对实例，测试结束时关闭
func connectPair(t *testing.T, kind Kind, listenAddr string, target func(net.Addr) string, opts ...Option) (client, server Conn) {
	t.Helper()
	addr, res := startListen(t, kind, listenAddr, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := Connect(ctx, kind, target(addr), opts...)
	if err != nil {
		t.Fatalf("%s connect: %v", kind, err)
	}

	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("%s listen: %v", kind, r.err)
		}
		server = r.c
	case <-time.After(10 * time.Second):
		t.Fatalf("%s listen: no peer accepted", kind)
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSend(t *testing.T, c Conn, data []byte) {
	t.Helper()
	if err := c.Send(testCtx(t), data); err != nil {
		t.Fatalf("%s send %d bytes: %v", c.Kind(), len(data), err)
	}
}

func mustReceive(t *testing.T, c Conn, want []byte) {
	t.Helper()
	got, err := c.Receive(testCtx(t))
	if err != nil {
		t.Fatalf("%s receive: %v", c.Kind(), err)
	}
	if len(got) != len(want) || !bytes.Equal(got, want) {
		t.Fatalf("%s receive: got %d bytes, want %d", c.Kind(), len(got), len(want))
	}
}

// payload 生成确定内容的测试数据
func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

func wsTarget(a net.Addr) string { return "ws://" + a.String() }

// testSendThenClose 发送后立即关闭，对端必须先收到完整消息再看到关闭
func testSendThenClose(t *testing.T, rounds, size int, pair func(*testing.T) (Conn, Conn)) {
	t.Helper()
	data := payload(size)
	for i := 0; i < rounds; i++ {
		client, server := pair(t)
		mustSend(t, client, data)
		client.Close()

		got, err := server.Receive(testCtx(t))
		if err != nil {
			t.Fatalf("round %d: message sent before close was lost: %v", i, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round %d: got %d bytes, want %d", i, len(got), len(data))
		}
		if _, err := server.Receive(testCtx(t)); !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("round %d: receive after close = %v", i, err)
		}
	}
}
