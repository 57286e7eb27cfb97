package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/peertable"
)

// overlayPeer mirrors the subset of a Tailscale-like agent's `status --json`
// peer entry that spec.md §6 depends on. Unknown fields are ignored by
// encoding/json.
type overlayPeer struct {
	HostName     string   `json:"HostName"`
	Online       bool     `json:"Online"`
	TailscaleIPs []string `json:"TailscaleIPs"`
}

type overlayStatus struct {
	Peer map[string]overlayPeer `json:"Peer"`
}

// overlayIPPrefix is the address family this strategy accepts, per spec.md
// §4.2 Strategy B.
const overlayIPPrefix = "100."

// runOverlayStatus invokes the configured overlay status command and parses
// its JSON output. Used both as a one-shot reachability probe at startup and
// as the enumeration strategy's periodic poll.
func runOverlayStatus(ctx context.Context, command []string) (overlayStatus, error) {
	if len(command) == 0 {
		return overlayStatus{}, fmt.Errorf("discovery: no overlay status command configured")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return overlayStatus{}, fmt.Errorf("discovery: running overlay status command: %w", err)
	}

	var status overlayStatus
	if err := json.Unmarshal(stdout.Bytes(), &status); err != nil {
		return overlayStatus{}, fmt.Errorf("discovery: parsing overlay status output: %w", err)
	}
	return status, nil
}

// overlayIP picks the first TailscaleIPs entry in the overlay's address
// family, since that is the only one this node can dial (spec.md §4.2).
func overlayIP(peer overlayPeer) (string, bool) {
	for _, ip := range peer.TailscaleIPs {
		if strings.HasPrefix(ip, overlayIPPrefix) {
			return ip, true
		}
	}
	return "", false
}

// overlayStrategy implements spec.md §4.2 Strategy B: the peer table mirrors
// the overlay agent's own peer list exactly, polled on an interval. There is
// no independent timeout-based aging; a peer that the overlay no longer
// reports, or reports offline, is removed immediately.
type overlayStrategy struct {
	cfg        *config.Config
	table      *peertable.Table
	streamPort int
	logger     *slog.Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newOverlayStrategy(cfg *config.Config, table *peertable.Table, logger *slog.Logger) *overlayStrategy {
	return &overlayStrategy{
		cfg:        cfg,
		table:      table,
		streamPort: cfg.OverlayStreamPort,
		logger:     logger.With("strategy", "overlay"),
	}
}

func (s *overlayStrategy) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(ctx)
}

func (s *overlayStrategy) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *overlayStrategy) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		s.reconcile(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *overlayStrategy) reconcile(ctx context.Context) {
	status, err := runOverlayStatus(ctx, s.cfg.OverlayStatusCommand)
	if err != nil {
		s.logger.Warn("overlay status poll failed", "err", err)
		return
	}

	seen := make(map[string]struct{}, len(status.Peer))
	now := time.Now()

	for _, peer := range status.Peer {
		if !peer.Online {
			continue
		}
		ip, ok := overlayIP(peer)
		if !ok {
			continue
		}

		seen[ip] = struct{}{}
		if created := s.table.Upsert(ip, peer.HostName, s.streamPort, now); created {
			s.logger.Info("discovered new overlay peer",
				"address", net.JoinHostPort(ip, itoa(s.streamPort)),
				"hostname", peer.HostName)
		}
	}

	for _, rec := range s.table.Snapshot() {
		if _, ok := seen[rec.IP]; !ok {
			s.table.Remove(rec.IP)
			s.logger.Info("overlay peer no longer reported", "ip", rec.IP, "username", rec.Username)
		}
	}
}
