package linestream

import (
	"context"
	"io"
)

// Action tells a sequence adapter what the framer needs next.
type Action int

const (
	// ActionRead means no complete frame is buffered; read into readRegion.
	ActionRead Action = iota
	// ActionFrame means a complete frame is buffered; call take.
	ActionFrame
	// ActionClosed means the stream ended. It is terminal.
	ActionClosed
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionFrame:
		return "frame"
	case ActionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// maxConsecutiveEmptyReads bounds reads returning (0, nil), as bufio does.
const maxConsecutiveEmptyReads = 100

// framer is the read-scan-compact state machine shared by every sequence
// adapter. It never performs I/O: adapters ask step what to do, perform the
// read themselves, and report the outcome with fill or closeStream.
type framer struct {
	buf    *frameBuffer
	strict bool

	// skip is the number of leading bytes owned by the last taken frame.
	// They are compacted away by the next step, which keeps a lent view
	// valid until the caller asks for more.
	skip int
	// frameEnd is the delimiter index of the frame ready to be taken, or -1.
	frameEnd int

	empty   int
	eof     bool
	err     error
	logger  Logger
	metrics *Metrics
}

func newFramer(opts *options) *framer {
	return &framer{
		buf:      newFrameBuffer(opts.maxReadLength),
		strict:   opts.strictEOF,
		frameEnd: -1,
		logger:   opts.logger,
		metrics:  opts.metrics,
	}
}

// step decides the next action. Fatal errors are sticky.
func (f *framer) step() (Action, error) {
	if f.err != nil {
		return ActionClosed, f.err
	}

	if f.skip > 0 {
		f.buf.compact(f.skip)
		f.skip = 0
	}

	if f.frameEnd < 0 {
		f.frameEnd = f.buf.scanDelimiter()
	}
	if f.frameEnd >= 0 {
		return ActionFrame, nil
	}

	if f.eof {
		if f.buf.filled > 0 {
			if f.strict {
				return ActionClosed, f.fail(ErrTruncatedFrame)
			}
			f.logger.Debug("discarding unterminated bytes at end of stream", "bytes", f.buf.filled)
			f.buf.compact(f.buf.filled)
		}
		return ActionClosed, nil
	}

	if f.empty >= maxConsecutiveEmptyReads {
		return ActionClosed, f.fail(&TransportError{Op: "read", Err: io.ErrNoProgress})
	}

	if _, err := f.buf.appendRegion(); err != nil {
		return ActionClosed, f.fail(err)
	}
	return ActionRead, nil
}

// readRegion is the free space a read may write into. It is only valid
// after step returned ActionRead.
func (f *framer) readRegion() []byte {
	region, _ := f.buf.appendRegion()
	return region
}

// fill records n bytes written into readRegion by a read.
func (f *framer) fill(n int) {
	if n == 0 {
		f.empty++
		return
	}
	f.empty = 0
	f.buf.recordWrite(n)
	f.metrics.observeRead(n)
}

// closeStream records that the source reached end of stream.
func (f *framer) closeStream() {
	f.eof = true
}

// failRead records a fatal read failure.
func (f *framer) failRead(err error) error {
	return f.fail(&TransportError{Op: "read", Err: err})
}

// take returns the ready frame without its delimiter. The returned slice
// aliases the buffer and stays valid until the next step. Its capacity ends
// at the frame, so appending to it copies instead of overwriting the
// delimiter and the bytes after it.
func (f *framer) take() []byte {
	if f.frameEnd < 0 {
		panic("linestream: take without a ready frame")
	}
	frame := f.buf.buf[:f.frameEnd:f.frameEnd]
	f.skip = f.frameEnd + 1
	f.frameEnd = -1
	f.metrics.observeFrame()
	return frame
}

// decode takes the ready frame and decodes it. A decode failure is fatal.
func (f *framer) decode(codec Codec) (Message, error) {
	frame := f.take()
	msg, err := codec.Decode(frame)
	if err != nil {
		return nil, f.fail(malformed(frame, err))
	}
	return msg, nil
}

// ingest applies the outcome of one read of src into readRegion.
//
// A read interrupted by ctx keeps whatever bytes it delivered and returns
// ctx.Err() without failing the stream, so a later request resumes cleanly.
func (f *framer) ingest(ctx context.Context, n int, err error) error {
	if n > 0 || err == nil {
		f.fill(n)
	}
	switch {
	case err == nil:
		return nil
	case err == io.EOF:
		f.closeStream()
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return f.failRead(err)
	}
}

// read performs one read from src and ingests its outcome.
func (f *framer) read(ctx context.Context, src Source) error {
	n, err := src.Read(ctx, f.readRegion())
	return f.ingest(ctx, n, err)
}

func (f *framer) fail(err error) error {
	f.err = err
	f.logger.Debug("framing failed", "error", err)
	f.metrics.observeError(err)
	return err
}
