package linestream

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by the framer and its sequence adapters.
//
// A clean end of stream is reported as io.EOF and is not an error to the
// consumer loop. Every other error below is fatal for the stream it came from.
var (
	// ErrFrameTooLarge is returned when the frame buffer fills up without a delimiter.
	ErrFrameTooLarge = errors.New("linestream: frame too large")
	// ErrMalformedFrame is returned when the codec rejects a frame.
	ErrMalformedFrame = errors.New("linestream: malformed frame")
	// ErrTruncatedFrame is returned in strict mode when the stream ends
	// with bytes that were never terminated by a delimiter.
	ErrTruncatedFrame = errors.New("linestream: truncated frame at end of stream")
)

// Errors describing the non-blocking and lending protocols.
var (
	// ErrWouldBlock is returned by Poller.Poll while a read is in flight.
	// The caller retries after the wake function passed to Poll is invoked.
	ErrWouldBlock = errors.New("linestream: would block")
	// ErrLeaseOutstanding is returned when Lender.Next is called while a
	// previously returned lease is still live and was not presented.
	ErrLeaseOutstanding = errors.New("linestream: lease outstanding")
	// ErrStaleLease is returned when a lease presented to Lender.Next is
	// not the lender's current lease.
	ErrStaleLease = errors.New("linestream: stale lease")
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("linestream: invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("linestream: connection closed")
	// ErrInvalidMode is returned by ParseMode for an unknown mode name.
	ErrInvalidMode = errors.New("linestream: invalid mode")
)

// TransportError reports a failure of the underlying byte source or sink.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("linestream: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// malformed wraps a codec failure so that it matches ErrMalformedFrame.
func malformed(frame []byte, cause error) error {
	const maxQuoted = 64
	if len(frame) > maxQuoted {
		frame = frame[:maxQuoted]
	}
	return errors.WithMessagef(ErrMalformedFrame, "%q: %v", frame, cause)
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return "frame_too_large"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated_frame"
	case IsTransport(err):
		return "transport"
	default:
		return "other"
	}
}
