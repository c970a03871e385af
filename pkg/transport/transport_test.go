package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"quic", KindQUIC, true},
		{"WebSocket", KindWebSocket, true},
		{"ws", KindWebSocket, true},
		{" webrtc ", KindWebRTC, true},
		{"datachannel", KindWebRTC, true},
		{"webtransport", KindWebTransport, true},
		{"wt", KindWebTransport, true},
		{"tcp", KindUnknown, false},
		{"", KindUnknown, false},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseKind(%q) = %v, %v", tc.in, got, err)
		}
		if tc.ok && got.String() == "unknown" {
			t.Errorf("%v has no name", got)
		}
	}
}

func TestListenUnsupported(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, kind := range []Kind{KindWebRTC, KindWebTransport} {
		for _, addr := range []string{"", "127.0.0.1:0", "webrtc://peer", "https://example.com:443/wt", "::::"} {
			c, err := Listen(ctx, kind, addr)
			if c != nil {
				t.Fatalf("%s listen %q returned an instance", kind, addr)
			}
			if !errors.Is(err, ErrUnsupported) {
				t.Fatalf("%s listen %q: err = %v, want ErrUnsupported", kind, addr, err)
			}
		}
	}
}

func TestUnknownKind(t *testing.T) {
	ctx := context.Background()
	if _, err := Connect(ctx, Kind(42), "x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("connect: %v", err)
	}
	if _, err := Listen(ctx, KindUnknown, "x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("listen: %v", err)
	}
}

func TestAddressParseFailsFast(t *testing.T) {
	cases := []struct {
		kind Kind
		addr string
	}{
		{KindWebSocket, ""},
		{KindWebSocket, "127.0.0.1:8080"},
		{KindWebSocket, "http://127.0.0.1:8080"},
		{KindWebSocket, "ws://:8080"},
		{KindWebSocket, "ws://127.0.0.1:99999"},
		{KindQUIC, "localhost"},
		{KindQUIC, "127.0.0.1:abc"},
		{KindQUIC, "quic://127.0.0.1:4433"},
		{KindWebRTC, "bob"},
		{KindWebRTC, "webrtc://"},
		{KindWebRTC, "webrtc://bob:5000"},
		{KindWebTransport, "ws://127.0.0.1:4433"},
		{KindWebTransport, "https://"},
	}
	for _, tc := range cases {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		c, err := Connect(ctx, tc.kind, tc.addr)
		cancel()
		if c != nil {
			t.Fatalf("%s connect %q returned an instance", tc.kind, tc.addr)
		}
		if !errors.Is(err, ErrAddressParse) {
			t.Errorf("%s connect %q: err = %v, want ErrAddressParse", tc.kind, tc.addr, err)
		}
		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.Op != "connect" || opErr.Kind != tc.kind {
			t.Errorf("%s connect %q: not an OpError: %v", tc.kind, tc.addr, err)
		}
	}

	for _, addr := range []string{"", "8080", "ws://127.0.0.1/path", "http://127.0.0.1:80"} {
		if _, err := Listen(context.Background(), KindWebSocket, addr); !errors.Is(err, ErrAddressParse) {
			t.Errorf("websocket listen %q: err = %v, want ErrAddressParse", addr, err)
		}
	}
}

func TestClassOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{opError("connect", KindQUIC, "", ErrAddressParse, nil), "address_parse"},
		{opError("listen", KindQUIC, "", ErrBind, errors.New("in use")), "bind"},
		{opError("send", KindWebSocket, "", ErrSend, tooLarge(10, 5)), "too_large"},
		{opError("receive", KindWebSocket, "", ErrConnectionClosed, nil), "closed"},
		{context.Canceled, "other"},
	}
	for _, tc := range cases {
		if got := ClassOf(tc.err); got != tc.want {
			t.Errorf("ClassOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestOpErrorUnwrap(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	err := opError("connect", KindWebSocket, "ws://x:1", ErrConnection, cause)
	if !errors.Is(err, ErrConnection) {
		t.Fatal("class not reachable")
	}
	var ne *net.OpError
	if !errors.As(err, &ne) {
		t.Fatal("cause not reachable")
	}
	want := "websocket connect ws://x:1: connection error: dial tcp: refused"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
