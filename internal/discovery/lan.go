package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/peertable"
)

// announceMessage is the UTF-8 JSON datagram of spec.md §6. Field names are
// fixed by the wire contract, not by Go naming convention.
type announceMessage struct {
	Username string `json:"username"`
	IP       string `json:"ip"`
	TCPPort  int    `json:"tcp_port"`
}

// maxDatagramSize bounds a single discovery datagram (spec.md §6).
const maxDatagramSize = 1024

// lanStrategy implements spec.md §4.2 Strategy A: periodic broadcast
// announcement plus a listener that upserts the peer table, plus a
// timeout-based aging loop. Grounded on src/core/peer_discovery.py's
// announce/listen/cleanup thread trio, translated to goroutines cancelled
// via context.
type lanStrategy struct {
	cfg        *config.Config
	table      *peertable.Table
	username   string
	streamPort int
	localIP    string
	logger     *slog.Logger

	wg         sync.WaitGroup
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

func newLANStrategy(cfg *config.Config, table *peertable.Table, username string, streamPort int, logger *slog.Logger) *lanStrategy {
	return &lanStrategy{
		cfg:        cfg,
		table:      table,
		username:   username,
		streamPort: streamPort,
		localIP:    localAddress(),
		logger:     logger.With("strategy", "lan"),
	}
}

func (s *lanStrategy) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	go s.announceLoop(ctx)
	go s.listenLoop(ctx)
	go s.cleanupLoop(ctx)
}

func (s *lanStrategy) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *lanStrategy) announceLoop(ctx context.Context) {
	defer s.wg.Done()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		s.logger.Error("failed to open announce socket", "err", err)
		return
	}
	defer conn.Close()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: s.cfg.BroadcastPort}

	msg, err := json.Marshal(announceMessage{
		Username: s.username,
		IP:       s.localIP,
		TCPPort:  s.streamPort,
	})
	if err != nil {
		s.logger.Error("failed to marshal announce message", "err", err)
		return
	}

	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		if _, err := conn.WriteTo(msg, broadcastAddr); err != nil {
			s.logger.Warn("failed to send announce datagram", "err", err)
		} else {
			s.logger.Debug("sent announce datagram", "username", s.username)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *lanStrategy) listenLoop(ctx context.Context) {
	defer s.wg.Done()

	conn, err := net.ListenPacket("udp4", net.JoinHostPort("", itoa(s.cfg.BroadcastPort)))
	if err != nil {
		s.logger.Error("failed to bind discovery listen socket", "err", err)
		return
	}
	defer conn.Close()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		setDeadline(conn, time.Second)
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("error receiving discovery datagram", "err", err)
			continue
		}

		var announce announceMessage
		if err := json.Unmarshal(buf[:n], &announce); err != nil {
			s.logger.Debug("dropping malformed discovery datagram", "err", err)
			continue
		}
		if announce.IP == "" || announce.Username == "" || announce.TCPPort <= 0 {
			s.logger.Debug("dropping discovery datagram with missing fields", "datagram", announce)
			continue
		}
		if announce.IP == s.localIP {
			continue
		}

		if created := s.table.Upsert(announce.IP, announce.Username, announce.TCPPort, time.Now()); created {
			s.logger.Info("discovered new peer",
				"address", net.JoinHostPort(announce.IP, itoa(announce.TCPPort)),
				"username", announce.Username)
		}
	}
}

func (s *lanStrategy) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			aged := s.table.Age(time.Now(), s.cfg.PeerTimeout)
			for _, rec := range aged {
				s.logger.Info("peer timed out", "ip", rec.IP, "username", rec.Username)
			}
		}
	}
}
