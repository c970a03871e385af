package signaling

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qiminjie89/linkkit/pkg/auth"
)

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) count(t EventType, msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t && (msg == "" || e.Msg == msg) {
			n++
		}
	}
	return n
}

func newRelayServer(t *testing.T, opts RelayOptions) (*Relay, string) {
	t.Helper()
	relay := NewRelay(opts)
	srv := httptest.NewServer(relay)
	t.Cleanup(func() {
		relay.Close()
		srv.Close()
	})
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/signal"
}

func waitPeers(t *testing.T, r *Relay, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Peers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("peers = %d, want %d", r.Peers(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, url, peer, token string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, peer, ClientOptions{Token: token})
	if err != nil {
		t.Fatalf("dial %s: %v", peer, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRelayOfferAnswer(t *testing.T) {
	v := auth.NewJWTValidator("secret")
	sink := &recordSink{}
	relay, url := newRelayServer(t, RelayOptions{Validator: v, AuthRequired: true, Events: sink})

	tokenA, _ := v.GenerateToken("alice", time.Minute)
	tokenB, _ := v.GenerateToken("bob", time.Minute)
	alice := dial(t, url, "alice", tokenA)
	bob := dial(t, url, "bob", tokenB)
	waitPeers(t, relay, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		in, err := bob.NextOffer(ctx)
		if err != nil {
			done <- err
			return
		}
		if in.From != "alice" || in.Offer.SDP != "offer-sdp" {
			done <- errors.New("unexpected offer " + in.From + " " + in.Offer.SDP)
			return
		}
		done <- in.Answer(ctx, Description{Type: "answer", SDP: "answer-sdp"})
	}()

	answer, err := alice.Offer(ctx, "bob", Description{Type: "offer", SDP: "offer-sdp"})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if answer.SDP != "answer-sdp" {
		t.Fatalf("answer = %+v", answer)
	}
	if err := <-done; err != nil {
		t.Fatalf("answerer: %v", err)
	}

	if n := sink.count(EventRegistered, ""); n != 2 {
		t.Errorf("registered events = %d", n)
	}
	if sink.count(EventRelayed, "offer") != 1 || sink.count(EventRelayed, "answer") != 1 {
		t.Errorf("relayed events = %+v", sink.events)
	}
}

func TestRelayPeerNotFound(t *testing.T) {
	relay, url := newRelayServer(t, RelayOptions{})
	alice := dial(t, url, "alice", "")
	waitPeers(t, relay, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := alice.Offer(ctx, "nobody", Description{Type: "offer", SDP: "x"})
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != ErrCodePeerNotFound {
		t.Fatalf("err = %v, want peer_not_found", err)
	}
}

func TestRelayRejectedOffer(t *testing.T) {
	relay, url := newRelayServer(t, RelayOptions{})
	alice := dial(t, url, "alice", "")
	bob := dial(t, url, "bob", "")
	waitPeers(t, relay, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		if in, err := bob.NextOffer(ctx); err == nil {
			in.Reject(ctx, ErrCodeRejected, "busy")
		}
	}()

	_, err := alice.Offer(ctx, "bob", Description{Type: "offer", SDP: "x"})
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != ErrCodeRejected || re.Message != "busy" {
		t.Fatalf("err = %v, want rejected", err)
	}
}

func TestRelayAuth(t *testing.T) {
	v := auth.NewJWTValidator("secret")
	relay, url := newRelayServer(t, RelayOptions{Validator: v, AuthRequired: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Dial(ctx, url, "alice", ClientOptions{}); err == nil {
		t.Fatal("dial without token succeeded")
	}
	if _, err := Dial(ctx, url, "alice", ClientOptions{Token: "dev_x"}); err == nil {
		t.Fatal("dev token accepted while auth is required")
	}
	tokenB, _ := v.GenerateToken("bob", time.Minute)
	if _, err := Dial(ctx, url, "alice", ClientOptions{Token: tokenB}); err == nil {
		t.Fatal("token for another peer accepted")
	}
	if relay.Peers() != 0 {
		t.Fatalf("peers = %d after rejected dials", relay.Peers())
	}
}

func TestRelayDevToken(t *testing.T) {
	relay, url := newRelayServer(t, RelayOptions{Validator: auth.NewJWTValidator("secret")})
	dial(t, url, "alice", "dev_alice")
	waitPeers(t, relay, 1)
}

func TestRelayDuplicatePeer(t *testing.T) {
	relay, url := newRelayServer(t, RelayOptions{})
	dial(t, url, "alice", "")
	waitPeers(t, relay, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, url, "alice", ClientOptions{}); err == nil {
		t.Fatal("duplicate peer id accepted")
	}
}

func TestClientCloseUnblocksWaiters(t *testing.T) {
	relay, url := newRelayServer(t, RelayOptions{})
	alice := dial(t, url, "alice", "")
	waitPeers(t, relay, 1)

	errc := make(chan error, 1)
	go func() {
		_, err := alice.NextOffer(context.Background())
		errc <- err
	}()
	alice.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NextOffer still blocked after Close")
	}
	waitPeers(t, relay, 0)
}

func TestEnvelopeCodec(t *testing.T) {
	in := &Envelope{Type: MsgOffer, Session: "s1", To: "bob", SDP: &Description{Type: "offer", SDP: "v=0"}}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != MsgOffer || out.To != "bob" || out.SDP == nil || out.SDP.SDP != "v=0" {
		t.Fatalf("decoded = %+v", out)
	}
	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Fatal("decoding garbage succeeded")
	}
}
