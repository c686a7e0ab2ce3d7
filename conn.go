// Package linestream frames newline-delimited messages out of byte streams.
//
// A single read-scan-compact state machine turns arbitrarily chunked reads
// into discrete frames. It is exposed through interchangeable shapes that
// yield identical messages: a blocking Reader, a generator (Messages), a
// non-blocking Poller and a zero-copy Lender. Conn and Server put the
// framer on TCP connections.
package linestream

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrBufferFull is returned when the send buffer is full and cannot accept more messages.
// This error indicates backpressure - the receiver is not consuming messages fast enough.
var ErrBufferFull = errors.New("linestream: send buffer full")

// Conn runs a framed message stream over a TCP connection.
// Incoming frames are decoded with the configured Mode and handed to the
// OnMessage callback; outgoing messages are encoded and delimited.
type Conn struct {
	rawConn *net.TCPConn
	logger  Logger

	opts options

	sendMsg chan []byte
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewConn creates a new connection wrapper around the given TCP connection.
// Returns an error if the OnMessage callback is missing or the mode is unknown.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkConnOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		rawConn: conn,
		logger:  withArgs(opts.logger, "addr", conn.RemoteAddr()),
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
	}, nil
}

// checkConnOptions validates connection options and sets defaults.
func checkConnOptions(opts *options) error {
	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	checkOptions(opts)

	mode, err := ParseMode(string(opts.mode))
	if err != nil {
		return err
	}
	opts.mode = mode

	return nil
}

// Run starts the connection's read and write loops.
// It blocks until the peer closes the stream, an error occurs, or the
// context is canceled. A clean close by the peer returns nil.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "mode", c.opts.mode)
	c.logger.Debug("connection options",
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"heartbeat", c.opts.heartbeat,
		"strict_eof", c.opts.strictEOF)

	c.opts.metrics.connOpened()
	defer c.opts.metrics.connClosed()

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	if errors.Is(err, io.EOF) {
		err = nil
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.opts.onError(err)
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed")
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a message without blocking (fire-and-forget).
//
// Returns ErrBufferFull when the send buffer is full, ErrConnectionClosed
// when the connection is closed, or the encoding error.
func (c *Conn) Write(message Message) error {
	frame, err := c.encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message, blocking until there is room in the send
// buffer or the context is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, message Message) error {
	frame, err := c.encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a message, waiting at most timeout for room in the
// send buffer. It returns ErrBufferFull when the timeout expires.
func (c *Conn) WriteTimeout(message Message, timeout time.Duration) error {
	frame, err := c.encode(message)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- frame:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// encode turns message into a delimited frame ready for the write loop.
func (c *Conn) encode(message Message) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	frame, err := c.opts.codec.Encode(message)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(frame, Delimiter) >= 0 {
		return nil, errors.New("linestream: encoded frame contains delimiter")
	}
	return append(frame, Delimiter), nil
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop decodes incoming frames with the configured mode and calls the
// message handler for each. It returns io.EOF when the peer closes the
// stream cleanly.
func (c *Conn) readLoop(ctx context.Context) error {
	src := NewSource(c.rawConn, c.opts.heartbeat*2)
	seq, release, err := NewSequence(ctx, c.opts.mode, src, c.sequenceOptions()...)
	if err != nil {
		return err
	}
	defer release()

	if err := Consume(ctx, seq, c.opts.onMessage); err != nil {
		c.logger.Debug("read error", "error", err)
		return err
	}
	return io.EOF
}

func (c *Conn) sequenceOptions() []Option {
	opts := []Option{
		CustomCodecOption(c.opts.codec),
		LoggerOption(c.logger),
		MessageMaxSize(c.opts.maxReadLength),
		MetricsOption(c.opts.metrics),
	}
	if c.opts.strictEOF {
		opts = append(opts, StrictEOFOption())
	}
	return opts
}

// writeLoop continuously sends frames from the send channel to the connection.
// Returns when the context is canceled or a write fails.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

// write sends data to the connection with a deadline.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	if _, err := c.rawConn.Write(data); err != nil {
		c.logger.Debug("write error", "error", err)
		return &TransportError{Op: "write", Err: err}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	_ = c.rawConn.Close()
}
