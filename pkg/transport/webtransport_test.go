//go:build !js

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestWebTransportAddress(t *testing.T) {
	for _, addr := range []string{"", "wss://host:443/x", "http://host:443/x", "https://:443/x"} {
		if _, err := Connect(testCtx(t), KindWebTransport, addr); !errors.Is(err, ErrAddressParse) {
			t.Errorf("Connect(%q) = %v, want ErrAddressParse", addr, err)
		}
	}
}

func TestWebTransportNoServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	c, err := Connect(ctx, KindWebTransport, "https://"+addr+"/link", WithInsecureSkipVerify(true))
	if c != nil {
		t.Fatal("connected to nothing")
	}
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err = %v", err)
	}
}
