package linestream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Poller exposes the framer as a non-blocking probe.
//
// Poll either returns a message, io.EOF at end of stream, a fatal error, or
// ErrWouldBlock while a read is in flight. Every piece of progress state
// lives in the Poller itself, so Poll may be called any number of times
// while waiting.
type Poller struct {
	ctx    context.Context
	cancel context.CancelFunc
	src    Source
	f      *framer
	codec  Codec

	// inflight delivers the result of the running read, nil when idle.
	// The read goroutine owns the buffer's free region until it is received.
	inflight chan readResult

	mu   sync.Mutex
	wake func()

	closed atomic.Bool
}

type readResult struct {
	n   int
	err error
}

// NewPoller returns a Poller over src. Reads are bound to ctx; Close
// cancels them.
func NewPoller(ctx context.Context, src Source, opt ...Option) *Poller {
	opts := buildOptions(opt)
	ctx, cancel := context.WithCancel(ctx)
	return &Poller{
		ctx:    ctx,
		cancel: cancel,
		src:    src,
		f:      newFramer(&opts),
		codec:  opts.codec,
	}
}

// Poll tries to produce the next message without blocking.
//
// When it returns ErrWouldBlock, wake is called once the pending read
// completes, possibly from another goroutine. Only the wake function from
// the latest Poll is called. After Close, Poll returns io.EOF without
// touching the source.
func (p *Poller) Poll(wake func()) (Message, error) {
	if p.closed.Load() {
		return nil, io.EOF
	}

	if p.inflight != nil {
		// Publish wake before probing so a read finishing in between
		// cannot miss it.
		p.setWake(wake)
		select {
		case res := <-p.inflight:
			p.inflight = nil
			if err := p.f.ingest(p.ctx, res.n, res.err); err != nil {
				return nil, err
			}
		default:
			return nil, ErrWouldBlock
		}
	}

	action, err := p.f.step()
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionFrame:
		return p.f.decode(p.codec)
	case ActionClosed:
		return nil, io.EOF
	}

	p.setWake(wake)
	p.startRead()
	return nil, ErrWouldBlock
}

func (p *Poller) startRead() {
	region := p.f.readRegion()
	done := make(chan readResult, 1)
	p.inflight = done

	go func() {
		n, err := p.src.Read(p.ctx, region)
		done <- readResult{n: n, err: err}

		p.mu.Lock()
		wake := p.wake
		p.mu.Unlock()
		if wake != nil {
			wake()
		}
	}()
}

func (p *Poller) setWake(wake func()) {
	p.mu.Lock()
	p.wake = wake
	p.mu.Unlock()
}

// Close cancels any in-flight read and waits for it to return. The
// Poller yields no further messages.
func (p *Poller) Close() error {
	p.closed.Store(true)
	p.cancel()
	if p.inflight != nil {
		<-p.inflight
		p.inflight = nil
	}
	return nil
}

// PollNext drives p until it produces a message, the stream ends, or ctx
// is done.
func PollNext(ctx context.Context, p *Poller) (Message, error) {
	ready := make(chan struct{}, 1)
	wake := func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	for {
		msg, err := p.Poll(wake)
		if err != ErrWouldBlock {
			return msg, err
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// PollSequence adapts a Poller to the Sequence interface.
type PollSequence struct {
	*Poller
}

var _ Sequence = PollSequence{}

// Next calls PollNext.
func (s PollSequence) Next(ctx context.Context) (Message, error) {
	return PollNext(ctx, s.Poller)
}
