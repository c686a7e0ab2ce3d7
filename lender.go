package linestream

import (
	"context"
	"io"
)

// Lender returns frames as views into its own buffer instead of copies.
//
// A view is handed out inside a Lease. While a lease is live the Lender
// refuses to advance: the next call to Next must present that lease, which
// consumes it, or the lease must be released first. A consumed or released
// lease returns nil from Bytes, so a stale view is never silently reused.
// Slices obtained from Bytes must not be retained past that point.
type Lender struct {
	src   Source
	f     *framer
	lease *Lease
}

// Lease is a borrowed frame. It is valid until presented to, or released
// before, the next Lender.Next call.
type Lease struct {
	owner *Lender
	frame []byte
}

// NewLender returns a Lender framing bytes from src. The codec option is
// ignored; leases carry raw frames.
func NewLender(src Source, opt ...Option) *Lender {
	opts := buildOptions(opt)
	return &Lender{src: src, f: newFramer(&opts)}
}

// Next returns a lease on the next frame, or io.EOF at end of stream.
//
// prev must be the lease returned by the previous call, or nil if that
// lease was released. Once prev is accepted it is consumed whether or not
// Next succeeds.
func (l *Lender) Next(ctx context.Context, prev *Lease) (*Lease, error) {
	if prev != nil {
		if prev != l.lease {
			return nil, ErrStaleLease
		}
		prev.release()
	}
	if l.lease != nil {
		return nil, ErrLeaseOutstanding
	}

	for {
		action, err := l.f.step()
		if err != nil {
			return nil, err
		}

		switch action {
		case ActionFrame:
			l.lease = &Lease{owner: l, frame: l.f.take()}
			return l.lease, nil
		case ActionClosed:
			return nil, io.EOF
		}

		if err := l.f.read(ctx, l.src); err != nil {
			return nil, err
		}
	}
}

// Bytes returns the leased frame, without its delimiter, or nil once the
// lease has been consumed or released.
func (l *Lease) Bytes() []byte {
	if l == nil {
		return nil
	}
	return l.frame
}

// Release ends the lease so that the next Lender.Next may be called with
// a nil lease. Releasing twice is a no-op.
func (l *Lease) Release() {
	if l == nil || l.owner == nil {
		return
	}
	l.release()
}

func (l *Lease) release() {
	if l.owner.lease == l {
		l.owner.lease = nil
	}
	l.owner = nil
	l.frame = nil
}

// LendingReader decodes frames borrowed from a Lender. Each lease is
// handed back to the Lender by the following Next call.
type LendingReader struct {
	lender *Lender
	codec  Codec
	lease  *Lease
}

var _ Sequence = (*LendingReader)(nil)

// NewLendingReader returns a Sequence backed by a Lender over src.
func NewLendingReader(src Source, opt ...Option) *LendingReader {
	opts := buildOptions(opt)
	return &LendingReader{lender: NewLender(src, opt...), codec: opts.codec}
}

// Next borrows the next frame and decodes it.
func (r *LendingReader) Next(ctx context.Context) (Message, error) {
	lease, err := r.lender.Next(ctx, r.lease)
	r.lease = nil
	if err != nil {
		return nil, err
	}

	msg, err := r.codec.Decode(lease.Bytes())
	if err != nil {
		err = r.lender.f.fail(malformed(lease.Bytes(), err))
		lease.Release()
		return nil, err
	}
	r.lease = lease
	return msg, nil
}
