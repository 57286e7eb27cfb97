// Package discovery populates and ages the peer table (spec.md §4.2). Two
// interchangeable strategies are offered: Strategy A broadcasts and listens
// on the LAN, Strategy B enumerates an overlay network's peer list. Strategy
// selection happens once at startup and is permanent for the node's
// lifetime, per spec.md §4.2.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/peertable"
)

// Engine is a running discovery strategy. Start spawns its background
// loops; Stop is cooperative and idempotent (spec.md §5).
type Engine interface {
	Start(ctx context.Context)
	Stop()
}

// New selects and constructs the discovery strategy for this node. If the
// overlay agent responds to a one-shot status probe, Strategy B is chosen;
// otherwise Strategy A (spec.md §4.2 "Strategy selection").
func New(cfg *config.Config, table *peertable.Table, username string, streamPort int) Engine {
	logger := slog.Default().With("component", "discovery")

	if probeOverlay(cfg.OverlayStatusCommand) {
		logger.Info("overlay agent reachable, selecting overlay enumeration strategy")
		return newOverlayStrategy(cfg, table, logger)
	}

	logger.Info("overlay agent unreachable, selecting LAN broadcast strategy")
	return newLANStrategy(cfg, table, username, streamPort, logger)
}

// probeOverlay reports whether the configured overlay status command runs
// successfully. A single attempt at startup decides the strategy for the
// node's entire lifetime (spec.md §4.2).
func probeOverlay(command []string) bool {
	if len(command) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := runOverlayStatus(ctx, command)
	return err == nil
}
