package linestream

import (
	"time"
)

// options holds the configuration for readers and connections.
type options struct {
	codec   Codec
	logger  Logger
	metrics *Metrics

	onMessage func(message Message) error
	// onError is called once with the error that ended a connection.
	onError func(error)

	mode          Mode
	strictEOF     bool          // unterminated trailing bytes are an error
	bufferSize    int           // size of the send channel
	maxReadLength int           // capacity of the frame buffer
	heartbeat     time.Duration // heartbeat interval for read/write deadlines
}

// Option is a function that configures reader and connection options.
type Option func(*options)

// Default configuration values.
const (
	// DefaultBufferSize is the default frame buffer capacity. A frame must
	// fit in it together with its delimiter.
	DefaultBufferSize = 1024
	// defaultSendBuffer is the default size of the connection send channel.
	defaultSendBuffer = 1
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = 30 * time.Second
)

// CustomCodecOption returns an Option that sets the message codec.
// If not set, JSONCodec is used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more messages to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// This determines the read/write deadline timeout (heartbeat * 2).
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MessageMaxSize returns an Option that sets the frame buffer capacity.
// The largest frame that can be received is size-1 bytes.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// StrictEOFOption makes an unterminated trailing frame at end of stream
// fail with ErrTruncatedFrame instead of being discarded.
func StrictEOFOption() Option {
	return func(o *options) {
		o.strictEOF = true
	}
}

// ModeOption returns an Option that selects the sequence adapter a
// connection reads with. The default is ModeNext.
func ModeOption(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// OnErrorOption returns an Option that sets the error callback.
// It is invoked with the fatal error that ends a connection.
func OnErrorOption(cb func(error)) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required for connections and is invoked for each received message.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records framing metrics into m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// checkOptions sets default values for options.
func checkOptions(opts *options) {
	if opts.codec == nil {
		opts.codec = JSONCodec{}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.mode == "" {
		opts.mode = ModeNext
	}

	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultSendBuffer
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = DefaultBufferSize
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(error) {}
	}
}
