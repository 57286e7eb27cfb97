package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/peertable"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLANStrategyDiscoversAnnouncedPeer(t *testing.T) {
	cfg := &config.Config{
		BroadcastPort:     19877,
		BroadcastInterval: 20 * time.Millisecond,
		CleanupInterval:   50 * time.Millisecond,
		PeerTimeout:       time.Hour,
	}
	table := peertable.New()
	strategy := newLANStrategy(cfg, table, "alice", 9000, testLogger())
	strategy.localIP = "10.0.0.1" // pin so the fake peer below isn't self-filtered

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	strategy.Start(ctx)
	defer strategy.Stop()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer conn.Close()

	msg, _ := json.Marshal(announceMessage{Username: "bob", IP: "10.0.0.2", TCPPort: 9001})
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.BroadcastPort}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.WriteTo(msg, dst)
		if _, ok := table.Lookup("10.0.0.2"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("peer never appeared in table")
}

func TestLANStrategyCleanupLoopAgesPeers(t *testing.T) {
	cfg := &config.Config{
		CleanupInterval: 10 * time.Millisecond,
		PeerTimeout:     20 * time.Millisecond,
	}
	table := peertable.New()
	table.Upsert("10.0.0.5", "stale", 9000, time.Now().Add(-time.Hour))

	strategy := newLANStrategy(cfg, table, "alice", 9000, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	strategy.wg.Add(1)
	go strategy.cleanupLoop(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if table.Len() == 0 {
			cancel()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatalf("stale peer was never aged out")
}
