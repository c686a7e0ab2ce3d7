package linestream

import (
	"context"
	"io"
	"time"
)

// Source is the byte stream a framer consumes.
//
// Read fills a prefix of p and returns the number of bytes written. It
// returns io.EOF once the stream has ended; a read may carry bytes together
// with io.EOF. A return of (0, nil) means no progress and the stream stays
// open; after 100 such reads in a row the framer gives up with a
// TransportError wrapping io.ErrNoProgress. When ctx is canceled Read
// should return promptly with ctx.Err().
type Source interface {
	Read(ctx context.Context, p []byte) (int, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, p []byte) (int, error)

// Read calls fn(ctx, p).
func (fn SourceFunc) Read(ctx context.Context, p []byte) (int, error) {
	return fn(ctx, p)
}

// deadlineReader is implemented by net.Conn and os.File.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// NewSource wraps r as a Source.
//
// When r supports read deadlines, canceling the context interrupts a
// blocked read and idle, if positive, bounds how long a single read may
// wait. Other readers are only checked for cancellation before each read.
func NewSource(r io.Reader, idle time.Duration) Source {
	if dr, ok := r.(deadlineReader); ok {
		return &deadlineSource{r: dr, idle: idle}
	}
	return readerSource{r: r}
}

type readerSource struct {
	r io.Reader
}

func (s readerSource) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.r.Read(p)
}

// aLongTimeAgo is a deadline in the past that unblocks pending reads.
var aLongTimeAgo = time.Unix(1, 0)

type deadlineSource struct {
	r    deadlineReader
	idle time.Duration
}

func (s *deadlineSource) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var deadline time.Time
	if s.idle > 0 {
		deadline = time.Now().Add(s.idle)
	}
	_ = s.r.SetReadDeadline(deadline)

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = s.r.SetReadDeadline(aLongTimeAgo)
		close(interrupted)
	})

	n, err := s.r.Read(p)
	if !stop() {
		<-interrupted
		_ = s.r.SetReadDeadline(time.Time{})
		if err != nil {
			err = ctx.Err()
		}
	}
	return n, err
}
