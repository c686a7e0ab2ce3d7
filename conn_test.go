package linestream

import (
	"bufio"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestNewConn(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	codec := &mockCodec{}
	onMessage := func(msg Message) error { return nil }

	conn, err := NewConn(serverConn,
		CustomCodecOption(codec),
		OnMessageOption(onMessage),
	)

	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn == nil {
		t.Fatal("NewConn returned nil")
	}

	if conn.rawConn != serverConn {
		t.Error("rawConn not set correctly")
	}

	if conn.opts.mode != ModeNext {
		t.Errorf("mode = %q, want %q", conn.opts.mode, ModeNext)
	}
}

func TestNewConn_MissingOnMessage(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	_, err := NewConn(serverConn, CustomCodecOption(&mockCodec{}))

	if err != ErrInvalidOnMessage {
		t.Errorf("expected ErrInvalidOnMessage, got %v", err)
	}
}

func TestNewConn_InvalidMode(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	_, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		ModeOption("sideways"),
	)

	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestNewConn_ModeAlias(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		ModeOption("Async-Gen"),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.opts.mode != ModeGenerator {
		t.Errorf("mode = %q, want %q", conn.opts.mode, ModeGenerator)
	}
}

func TestNewConn_WithAllOptions(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		CustomCodecOption(&mockCodec{}),
		OnMessageOption(func(Message) error { return nil }),
		OnErrorOption(func(error) {}),
		BufferSizeOption(10),
		HeartbeatOption(time.Minute),
		MessageMaxSize(2048),
		ModeOption(ModeLend),
		StrictEOFOption(),
	)

	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.opts.bufferSize != 10 {
		t.Errorf("bufferSize = %d, want 10", conn.opts.bufferSize)
	}
	if cap(conn.sendMsg) != 10 {
		t.Errorf("cap(sendMsg) = %d, want 10", cap(conn.sendMsg))
	}

	if conn.opts.heartbeat != time.Minute {
		t.Errorf("heartbeat = %v, want %v", conn.opts.heartbeat, time.Minute)
	}

	if conn.opts.maxReadLength != 2048 {
		t.Errorf("maxReadLength = %d, want 2048", conn.opts.maxReadLength)
	}

	if conn.opts.mode != ModeLend || !conn.opts.strictEOF {
		t.Errorf("mode = %q strictEOF = %v", conn.opts.mode, conn.opts.strictEOF)
	}
}

func TestConn_Addr(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnMessageOption(func(Message) error { return nil }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.Addr().String() != clientConn.LocalAddr().String() {
		t.Errorf("Addr = %v, want %v", conn.Addr(), clientConn.LocalAddr())
	}
}

func TestConn_Write(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnMessageOption(func(Message) error { return nil }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Hello{Text: "hi", Count: 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	select {
	case frame := <-conn.sendMsg:
		if string(frame) != "{\"Hello\":[\"hi\",1]}\n" {
			t.Errorf("frame = %q", frame)
		}
	default:
		t.Error("frame not queued")
	}
}

func TestConn_Write_ChannelBlocked(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Ping{}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	// Second write should fail because the buffer is full
	if err := conn.Write(Ping{}); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestConn_Write_EncodeError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	encodeErr := errors.New("encode error")
	codec := &mockCodec{
		encodeFunc: func(Message) ([]byte, error) { return nil, encodeErr },
	}

	conn, err := NewConn(serverConn,
		CustomCodecOption(codec),
		OnMessageOption(func(Message) error { return nil }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Ping{}); err != encodeErr {
		t.Errorf("expected encodeErr, got %v", err)
	}
}

func TestConn_Write_FrameWithDelimiter(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		CustomCodecOption(rawCodec{}),
		OnMessageOption(func(Message) error { return nil }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Hello{Text: "two\nlines"}); err == nil {
		t.Error("expected an error for a frame containing the delimiter")
	}
	if len(conn.sendMsg) != 0 {
		t.Error("invalid frame was queued")
	}
}

func TestConn_Write_Closed(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnMessageOption(func(Message) error { return nil }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	conn.Close()

	if err := conn.Write(Ping{}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConn_WriteBlocking(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.WriteBlocking(context.Background(), Ping{}); err != nil {
		t.Fatalf("WriteBlocking failed: %v", err)
	}

	// Buffer is full, so WriteBlocking should wait for the context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := conn.WriteBlocking(ctx, Ping{}); err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestConn_WriteTimeout(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		BufferSizeOption(1),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.WriteTimeout(Ping{}, time.Second); err != nil {
		t.Fatalf("WriteTimeout failed: %v", err)
	}

	// WriteTimeout should fail after timeout
	if err := conn.WriteTimeout(Ping{}, time.Millisecond*10); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestConn_Run_ContextCanceled(t *testing.T) {
	for _, mode := range Modes {
		t.Run(string(mode), func(t *testing.T) {
			serverConn, clientConn := createTestTCPPair(t)
			defer serverConn.Close()
			defer clientConn.Close()

			conn, err := NewConn(serverConn,
				OnMessageOption(func(Message) error { return nil }),
				ModeOption(mode),
			)
			if err != nil {
				t.Fatalf("NewConn failed: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())

			done := make(chan error, 1)
			go func() {
				done <- conn.Run(ctx)
			}()

			time.Sleep(20 * time.Millisecond)
			cancel()

			select {
			case err := <-done:
				if !errors.Is(err, context.Canceled) {
					t.Errorf("expected context.Canceled, got %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("timeout waiting for Run to complete")
			}

			if !conn.IsClosed() {
				t.Error("connection not closed after Run")
			}
		})
	}
}

func TestConn_Run_ReadMessages(t *testing.T) {
	want := []Message{Ping{}, Hello{Text: "Hello", Count: 12}, Hello{Text: "", Count: 0}, Ping{}}

	for _, mode := range Modes {
		t.Run(string(mode), func(t *testing.T) {
			serverConn, clientConn := createTestTCPPair(t)

			var (
				mu  sync.Mutex
				got []Message
			)
			conn, err := NewConn(serverConn,
				OnMessageOption(func(msg Message) error {
					mu.Lock()
					got = append(got, msg)
					mu.Unlock()
					return nil
				}),
				ModeOption(mode),
				HeartbeatOption(time.Second*5),
			)
			if err != nil {
				t.Fatalf("NewConn failed: %v", err)
			}

			done := make(chan error, 1)
			go func() {
				done <- conn.Run(context.Background())
			}()

			// Split the stream so frames straddle writes.
			stream := encodeStream(t, want...)
			for _, part := range []string{stream[:3], stream[3:17], stream[17:]} {
				if _, err := clientConn.Write([]byte(part)); err != nil {
					t.Fatalf("client write failed: %v", err)
				}
				time.Sleep(5 * time.Millisecond)
			}
			clientConn.Close()

			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run returned %v, want nil on clean close", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("timeout waiting for Run to complete")
			}

			mu.Lock()
			defer mu.Unlock()
			if len(got) != len(want) {
				t.Fatalf("got %d messages, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("message %d = %#v, want %#v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestConn_Run_DecodeError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	onErrorCalled := make(chan error, 1)
	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		OnErrorOption(func(err error) { onErrorCalled <- err }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	if _, err := clientConn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}

	select {
	case err := <-onErrorCalled:
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("onError received %v", err)
		}
	default:
		t.Error("onError was not called")
	}
}

func TestConn_Run_FrameTooLarge(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		MessageMaxSize(8),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	if _, err := clientConn.Write([]byte("0123456789")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("expected ErrFrameTooLarge, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_StrictEOF(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		StrictEOFOption(),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	if _, err := clientConn.Write([]byte("\"Ping\"\n\"Pi")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	clientConn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTruncatedFrame) {
			t.Errorf("expected ErrTruncatedFrame, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_OnMessageError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	handlerErr := errors.New("handler error")
	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return handlerErr }),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	if _, err := clientConn.Write([]byte("\"Ping\"\n")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		if err != handlerErr {
			t.Errorf("expected handlerErr, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_WriteLoop(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnMessageOption(func(Message) error { return nil }),
		BufferSizeOption(4),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	if err := conn.Write(Hello{Text: "hi", Count: 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.Write(Ping{}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(clientConn)
	for _, want := range []string{"{\"Hello\":[\"hi\",3]}\n", "\"Ping\"\n"} {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("client read failed: %v", err)
		}
		if line != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_ReadsOwnWrites(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	received := make(chan Message, 1)
	server, err := NewConn(serverConn, OnMessageOption(func(msg Message) error {
		received <- msg
		return nil
	}))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	client, err := NewConn(clientConn, OnMessageOption(func(Message) error { return nil }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	if err := client.WriteBlocking(ctx, Hello{Text: "peer", Count: 7}); err != nil {
		t.Fatalf("WriteBlocking failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg != (Hello{Text: "peer", Count: 7}) {
			t.Errorf("received %#v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestConn_close(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnMessageOption(func(Message) error { return nil }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.IsClosed() {
		t.Error("new connection reports closed")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !conn.IsClosed() {
		t.Error("connection not marked closed")
	}

	// Closing again is a no-op
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// The peer observes the close
	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := clientConn.Read(buf); err != io.EOF {
		t.Errorf("peer read = %v, want io.EOF", err)
	}
}
