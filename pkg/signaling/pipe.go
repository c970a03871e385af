package signaling

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pipe 进程内信令，发起方与应答方直接相连，忽略 peer id
type Pipe struct {
	offers chan *IncomingOffer
	done   chan struct{}
	once   sync.Once
}

func NewPipe() *Pipe {
	return &Pipe{
		offers: make(chan *IncomingOffer),
		done:   make(chan struct{}),
	}
}

type pipeReply struct {
	answer Description
	err    error
}

func (p *Pipe) Offer(ctx context.Context, peerID string, offer Description) (Description, error) {
	replies := make(chan pipeReply, 1)
	in := &IncomingOffer{
		From:      "pipe",
		SessionID: uuid.NewString(),
		Offer:     offer,
		reply: func(ctx context.Context, answer Description) error {
			select {
			case replies <- pipeReply{answer: answer}:
			default:
			}
			return nil
		},
		reject: func(ctx context.Context, code int, msg string) error {
			select {
			case replies <- pipeReply{err: &RemoteError{Code: code, Message: msg}}:
			default:
			}
			return nil
		},
	}

	select {
	case p.offers <- in:
	case <-ctx.Done():
		return Description{}, ctx.Err()
	case <-p.done:
		return Description{}, ErrClosed
	}

	select {
	case r := <-replies:
		return r.answer, r.err
	case <-ctx.Done():
		return Description{}, ctx.Err()
	case <-p.done:
		return Description{}, ErrClosed
	}
}

func (p *Pipe) NextOffer(ctx context.Context) (*IncomingOffer, error) {
	select {
	case in := <-p.offers:
		return in, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
