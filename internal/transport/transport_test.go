package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestTCPDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello")) //nolint:errcheck
	}()

	d := &TCPDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 16)
	n, _ := conn.Read(buf)
	if got := string(buf[:n]); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Dial(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestTCPDialer_Close(t *testing.T) {
	if err := (&TCPDialer{}).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// fakeTunnel hands out one end of a loopback TCP connection and counts
// how often the dialer asked it to connect.
type fakeTunnel struct {
	addr     string
	connects int
	done     chan struct{}
	closed   bool
}

func newFakeTunnel(addr string) *fakeTunnel {
	done := make(chan struct{})
	close(done)
	return &fakeTunnel{addr: addr, done: done}
}

func (f *fakeTunnel) Connect(context.Context) error {
	f.connects++
	f.done = make(chan struct{})
	return nil
}

func (f *fakeTunnel) Dial(ctx context.Context, network, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, f.addr)
}

func (f *fakeTunnel) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTunnel) Done() <-chan struct{} { return f.done }

func TestSSHDialer_ConnectsLazilyOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	tun := newFakeTunnel(ln.Addr().String())
	d := NewTunnelDialer(tun, nil)

	for i := 0; i < 2; i++ {
		conn, err := d.Dial(context.Background(), "tcp", "bridge.internal:8787")
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conn.Close()
	}
	if tun.connects != 1 {
		t.Errorf("connects = %d, want 1", tun.connects)
	}

	// Gateway dropped: the next dial reconnects.
	close(tun.done)
	conn, err := d.Dial(context.Background(), "tcp", "bridge.internal:8787")
	if err != nil {
		t.Fatalf("dial after drop: %v", err)
	}
	conn.Close()
	if tun.connects != 2 {
		t.Errorf("connects = %d, want 2", tun.connects)
	}

	if err := d.Close(); err != nil || !tun.closed {
		t.Errorf("Close: err=%v closed=%v", err, tun.closed)
	}
}

type failingTunnel struct{ fakeTunnel }

func (f *failingTunnel) Connect(context.Context) error { return errors.New("auth failed") }

func TestSSHDialer_ConnectError(t *testing.T) {
	tun := &failingTunnel{*newFakeTunnel("127.0.0.1:1")}
	d := NewTunnelDialer(tun, nil)
	if _, err := d.Dial(context.Background(), "tcp", "x:1"); err == nil {
		t.Fatal("expected tunnel connect error")
	}
}
