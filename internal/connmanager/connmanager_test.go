package connmanager

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/teenxsky/roar/internal/wire"
)

type recordingSinks struct {
	mu   sync.Mutex
	text []string
}

func (r *recordingSinks) OnAudio(peerAddress string, payload []byte) {}

func (r *recordingSinks) OnText(peerAddress string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = append(r.text, string(payload))
}

func (r *recordingSinks) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.text))
	copy(out, r.text)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestConnectAndReceiveText(t *testing.T) {
	serverSinks := &recordingSinks{}
	server := New("", serverSinks, testLogger())
	if err := server.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Stop()

	serverAddr := server.listener.Addr().String()

	clientSinks := &recordingSinks{}
	client := New("", clientSinks, testLogger())
	if err := client.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Stop()

	if err := client.ConnectToPeer(context.Background(), serverAddr); err != nil {
		t.Fatalf("ConnectToPeer: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(client.ConnectedPeers()) == 1 })

	client.Broadcast(wire.TypeText, []byte("hello from client"))

	waitFor(t, time.Second, func() bool { return len(serverSinks.snapshot()) == 1 })
	if got := serverSinks.snapshot()[0]; got != "hello from client" {
		t.Fatalf("unexpected text payload: %q", got)
	}
}

func TestConnectToPeerIsIdempotent(t *testing.T) {
	server := New("", &recordingSinks{}, testLogger())
	if err := server.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Stop()
	serverAddr := server.listener.Addr().String()

	client := New("", &recordingSinks{}, testLogger())
	if err := client.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Stop()

	if err := client.ConnectToPeer(context.Background(), serverAddr); err != nil {
		t.Fatalf("first ConnectToPeer: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(client.ConnectedPeers()) == 1 })

	if err := client.ConnectToPeer(context.Background(), serverAddr); err != nil {
		t.Fatalf("second ConnectToPeer: %v", err)
	}
	if n := len(client.ConnectedPeers()); n != 1 {
		t.Fatalf("expected exactly 1 connection after duplicate dial, got %d", n)
	}
}

func TestBroadcastDropsPeerOnWriteFailure(t *testing.T) {
	server := New("", &recordingSinks{}, testLogger())
	if err := server.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Stop()
	serverAddr := server.listener.Addr().String()

	client := New("", &recordingSinks{}, testLogger())
	if err := client.Start(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("client Start: %v", err)
	}

	if err := client.ConnectToPeer(context.Background(), serverAddr); err != nil {
		t.Fatalf("ConnectToPeer: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(client.ConnectedPeers()) == 1 })

	client.Stop() // closes the underlying conn without a graceful peer notification

	server.Broadcast(wire.TypeText, []byte("after client gone"))
	waitFor(t, time.Second, func() bool { return len(server.ConnectedPeers()) == 0 })
}
