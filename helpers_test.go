package linestream

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// chunk is one canned read result.
type chunk struct {
	data string
	err  error
}

// scriptedSource replays canned reads. A chunk larger than the caller's
// buffer is split across reads. After the script it returns io.EOF.
type scriptedSource struct {
	mu     sync.Mutex
	chunks []chunk
	reads  int
	// afterEOF counts reads made after io.EOF was returned.
	afterEOF int
	eof      bool
}

func newScriptedSource(chunks ...chunk) *scriptedSource {
	return &scriptedSource{chunks: chunks}
}

// splitSource returns a source delivering data in pieces cut at cuts.
func splitSource(data string, cuts ...int) *scriptedSource {
	var chunks []chunk
	prev := 0
	for _, c := range cuts {
		chunks = append(chunks, chunk{data: data[prev:c]})
		prev = c
	}
	chunks = append(chunks, chunk{data: data[prev:]})
	return newScriptedSource(chunks...)
}

func (s *scriptedSource) Read(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.eof {
		s.afterEOF++
	}
	if len(s.chunks) == 0 {
		s.eof = true
		return 0, io.EOF
	}

	c := &s.chunks[0]
	n := copy(p, c.data)
	c.data = c.data[n:]
	if len(c.data) > 0 {
		return n, nil
	}
	err := c.err
	s.chunks = s.chunks[1:]
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

func (s *scriptedSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// blockingSource delivers pushed data and otherwise blocks until ctx is done.
type blockingSource struct {
	data chan string
}

func newBlockingSource() *blockingSource {
	return &blockingSource{data: make(chan string, 16)}
}

func (s *blockingSource) push(data string) { s.data <- data }

func (s *blockingSource) close() { close(s.data) }

func (s *blockingSource) Read(ctx context.Context, p []byte) (int, error) {
	select {
	case d, ok := <-s.data:
		if !ok {
			return 0, io.EOF
		}
		if len(d) > len(p) {
			panic("blockingSource: chunk larger than read buffer")
		}
		return copy(p, d), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// rawCodec decodes every frame into a Hello carrying the frame text.
type rawCodec struct{}

func (rawCodec) Decode(frame []byte) (Message, error) {
	if strings.HasPrefix(string(frame), "!") {
		return nil, errors.New("bang")
	}
	return Hello{Text: string(frame)}, nil
}

func (rawCodec) Encode(msg Message) ([]byte, error) {
	h, ok := msg.(Hello)
	if !ok {
		return nil, errors.New("rawCodec encodes Hello only")
	}
	return []byte(h.Text), nil
}

// mockCodec implements Codec with overridable behavior.
type mockCodec struct {
	decodeFunc func([]byte) (Message, error)
	encodeFunc func(Message) ([]byte, error)
}

func (c *mockCodec) Decode(frame []byte) (Message, error) {
	if c.decodeFunc != nil {
		return c.decodeFunc(frame)
	}
	return JSONCodec{}.Decode(frame)
}

func (c *mockCodec) Encode(msg Message) ([]byte, error) {
	if c.encodeFunc != nil {
		return c.encodeFunc(msg)
	}
	return JSONCodec{}.Encode(msg)
}

// mockLogger records the last call of each level.
type mockLogger struct {
	mu          sync.Mutex
	debugCalled bool
	infoCalled  bool
	warnCalled  bool
	errorCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *mockLogger) record(called *bool, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*called = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record(&l.debugCalled, msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record(&l.infoCalled, msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record(&l.warnCalled, msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record(&l.errorCalled, msg, args) }

// collect drains seq and returns the messages and the terminating error.
func collect(t *testing.T, seq Sequence) ([]Message, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msgs []Message
	for {
		msg, err := seq.Next(ctx)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}

// encodeStream encodes msgs as a delimited JSON stream.
func encodeStream(t *testing.T, msgs ...Message) string {
	t.Helper()

	var b strings.Builder
	for _, m := range msgs {
		frame, err := JSONCodec{}.Encode(m)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", m, err)
		}
		b.Write(frame)
		b.WriteByte(Delimiter)
	}
	return b.String()
}

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}
