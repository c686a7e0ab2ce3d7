package linestream

import (
	"context"
	"io"
	"iter"
)

// Messages returns a single-use sequence of the messages framed from src.
//
// The sequence yields each message as soon as its frame is complete and
// ends after the last one. A fatal error is yielded once as (nil, err) and
// ends the sequence. Reading is bound to ctx.
func Messages(ctx context.Context, src Source, opt ...Option) iter.Seq2[Message, error] {
	opts := buildOptions(opt)

	return func(yield func(Message, error) bool) {
		f := newFramer(&opts)
		for {
			action, err := f.step()
			if err != nil {
				yield(nil, err)
				return
			}

			switch action {
			case ActionClosed:
				return
			case ActionFrame:
				msg, err := f.decode(opts.codec)
				if !yield(msg, err) || err != nil {
					return
				}
				continue
			}

			if err := f.read(ctx, src); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Pull converts a push sequence into a Sequence. The stop function must be
// called once the Sequence is no longer needed.
//
// The ctx passed to Next is not forwarded; cancellation is governed by
// the context the push sequence was created with.
func Pull(seq iter.Seq2[Message, error]) (Sequence, func()) {
	next, stop := iter.Pull2(seq)
	return &pulled{next: next}, stop
}

type pulled struct {
	next func() (Message, error, bool)
	err  error
}

func (p *pulled) Next(ctx context.Context) (Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err, ok := p.next()
	switch {
	case !ok:
		p.err = io.EOF
	case err != nil:
		p.err = err
	default:
		return msg, nil
	}
	return nil, p.err
}
