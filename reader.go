package linestream

import (
	"context"
	"io"
)

// Sequence is a demand-driven stream of messages.
//
// Next blocks until a message is available and returns io.EOF once the
// stream has ended cleanly. Any other error is fatal: later calls return it
// again. A Sequence is not safe for concurrent use.
type Sequence interface {
	Next(ctx context.Context) (Message, error)
}

// Reader decodes messages from a Source one blocking call at a time.
type Reader struct {
	src   Source
	f     *framer
	codec Codec
}

var _ Sequence = (*Reader)(nil)

// NewReader returns a Reader decoding frames read from src.
func NewReader(src Source, opt ...Option) *Reader {
	opts := buildOptions(opt)
	return &Reader{
		src:   src,
		f:     newFramer(&opts),
		codec: opts.codec,
	}
}

// Next reads until a complete frame is buffered and returns it decoded.
//
// If ctx is canceled while waiting for bytes, Next returns ctx.Err() and
// the Reader stays usable: bytes already delivered are kept and no frame
// is consumed.
func (r *Reader) Next(ctx context.Context) (Message, error) {
	for {
		action, err := r.f.step()
		if err != nil {
			return nil, err
		}

		switch action {
		case ActionFrame:
			return r.f.decode(r.codec)
		case ActionClosed:
			return nil, io.EOF
		}

		if err := r.f.read(ctx, r.src); err != nil {
			return nil, err
		}
	}
}
