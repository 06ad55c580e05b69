package engine

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/groove-net/ignis/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelErr)
}

// TestWorker_EchoRoundTrip exercises the full park/resume path: a task
// blocked on RecvAsync must be woken by the poller once the peer writes,
// and SendAsync must deliver the echoed bytes back out.
func TestWorker_EchoRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecvTimeout = 2 * time.Second

	w, err := NewWorker(0, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-accepted

	echoed := make(chan struct{})
	err = w.AcceptConn(server, func(ctx context.Context, c *Conn) {
		defer close(echoed)
		buf := make([]byte, 64)
		n, err := c.RecvAsync(ctx, buf)
		if err != nil {
			t.Errorf("RecvAsync: %v", err)
			return
		}
		if _, err := c.SendAsync(ctx, buf[:n]); err != nil {
			t.Errorf("SendAsync: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("AcceptConn: %v", err)
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-echoed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo handler to complete")
	}

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("expected echoed %q, got %q", "ping", string(buf[:n]))
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

// TestWorker_RecvTimeout confirms a stalled peer is reported as
// ErrTimeout rather than blocking the task's goroutine forever.
func TestWorker_RecvTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecvTimeout = 150 * time.Millisecond

	w, err := NewWorker(0, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-accepted

	resultErr := make(chan error, 1)
	err = w.AcceptConn(server, func(ctx context.Context, c *Conn) {
		buf := make([]byte, 64)
		_, err := c.RecvAsync(ctx, buf)
		resultErr <- err
	})
	if err != nil {
		t.Fatalf("AcceptConn: %v", err)
	}

	select {
	case err := <-resultErr:
		if err != ErrTimeout {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for RecvAsync to time out")
	}
}
