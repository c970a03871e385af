package signaling

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPipe(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		in, err := p.NextOffer(ctx)
		if err != nil {
			return
		}
		in.Answer(ctx, Description{Type: "answer", SDP: "a:" + in.Offer.SDP})
	}()

	answer, err := p.Offer(ctx, "ignored", Description{Type: "offer", SDP: "o"})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if answer.SDP != "a:o" {
		t.Fatalf("answer = %+v", answer)
	}
}

func TestPipeReject(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		if in, err := p.NextOffer(ctx); err == nil {
			in.Reject(ctx, ErrCodeNegotiation, "bad sdp")
		}
	}()

	_, err := p.Offer(ctx, "", Description{Type: "offer"})
	var re *RemoteError
	if !errors.As(err, &re) || re.Code != ErrCodeNegotiation {
		t.Fatalf("err = %v", err)
	}
	if re.Error() != "signaling: negotiation_failed (3002): bad sdp" {
		t.Fatalf("message = %q", re.Error())
	}
}

func TestPipeClose(t *testing.T) {
	p := NewPipe()
	p.Close()
	if _, err := p.NextOffer(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("NextOffer err = %v", err)
	}
	if _, err := p.Offer(context.Background(), "", Description{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Offer err = %v", err)
	}
}
