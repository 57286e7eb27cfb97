package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/peertable"
)

const fakeStatusJSON = `{
	"Peer": {
		"node1": {"HostName": "carol", "Online": true, "TailscaleIPs": ["100.64.0.2"]},
		"node2": {"HostName": "dave", "Online": false, "TailscaleIPs": ["100.64.0.3"]},
		"node3": {"HostName": "eve", "Online": true, "TailscaleIPs": ["192.168.1.5"]}
	}
}`

func TestRunOverlayStatusParsesPeerMap(t *testing.T) {
	status, err := runOverlayStatus(context.Background(), []string{"echo", fakeStatusJSON})
	if err != nil {
		t.Fatalf("runOverlayStatus: %v", err)
	}
	if len(status.Peer) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(status.Peer))
	}
	if !status.Peer["node1"].Online {
		t.Errorf("node1 should be online")
	}
}

func TestRunOverlayStatusErrorsOnEmptyCommand(t *testing.T) {
	if _, err := runOverlayStatus(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestOverlayIPFiltersByPrefix(t *testing.T) {
	ip, ok := overlayIP(overlayPeer{TailscaleIPs: []string{"192.168.1.5", "100.64.0.2"}})
	if !ok || ip != "100.64.0.2" {
		t.Fatalf("expected 100.64.0.2, got %q ok=%v", ip, ok)
	}

	if _, ok := overlayIP(overlayPeer{TailscaleIPs: []string{"192.168.1.5"}}); ok {
		t.Fatalf("expected no match for non-overlay address")
	}
}

func TestOverlayStrategyReconcileAddsAndRemovesPeers(t *testing.T) {
	cfg := &config.Config{
		OverlayStatusCommand: []string{"echo", fakeStatusJSON},
		OverlayStreamPort:    9876,
		CleanupInterval:      10 * time.Millisecond,
	}
	table := peertable.New()
	strategy := newOverlayStrategy(cfg, table, testLogger())

	strategy.reconcile(context.Background())

	if _, ok := table.Lookup("100.64.0.2"); !ok {
		t.Fatalf("expected online overlay peer to be added")
	}
	if table.Len() != 1 {
		t.Fatalf("expected exactly 1 peer (offline/non-overlay excluded), got %d", table.Len())
	}

	// Next reconcile with a status that drops the peer should remove it.
	cfg.OverlayStatusCommand = []string{"echo", `{"Peer": {}}`}
	strategy.reconcile(context.Background())
	if table.Len() != 0 {
		t.Fatalf("expected peer to be removed once overlay stops reporting it")
	}
}
