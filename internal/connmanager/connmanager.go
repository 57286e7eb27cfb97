// Package connmanager implements the mesh connection layer of spec.md §4.3:
// one TCP stream per peer, accepted or dialed, framed with internal/wire,
// broadcast to all connected peers, and torn down in isolation on failure.
package connmanager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teenxsky/roar/internal/wire"
)

const (
	acceptPollInterval = time.Second
	dialTimeout        = 5 * time.Second
)

// Sinks receives frames dispatched off a peer connection's receive loop.
// peerIP identifies the sender and matches internal/peertable's keying, so
// the caller can resolve it to a display name directly. Constructor-injected
// rather than set after the fact, per spec.md §9's design note preferring
// explicit wiring over mutable callback slots.
type Sinks interface {
	OnAudio(peerIP string, payload []byte)
	OnText(peerIP string, payload []byte)
}

// Manager owns the set of live peer connections. At most one connection is
// kept per peer IP (spec.md §4.3 invariant); a second attempt toward an
// already-connected peer is a no-op. Connections are keyed by IP alone, not
// by the full dial address, because an inbound accepted connection's remote
// address carries the peer's ephemeral source port, not the stream port it
// was dialed on — keying by the full address would let the same peer hold
// one inbound and one outbound connection at once.
type Manager struct {
	logger *slog.Logger
	sinks  Sinks

	localAddress string

	mu    sync.Mutex
	conns map[string]*peerConn

	listener net.Listener
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// peerConn is one established stream connection to a peer, keyed by the
// peer's IP.
type peerConn struct {
	ip     string
	conn   net.Conn
	id     uuid.UUID
	cancel context.CancelFunc
}

// hostOf extracts the IP from a host:port address, falling back to the
// address unchanged if it carries no port.
func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// New constructs a Manager. localAddress identifies this node's own dial
// address, so a connection attempt that loops back to ourselves (e.g. via
// stale discovery data) can be rejected.
func New(localAddress string, sinks Sinks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:       logger.With("component", "connmanager"),
		sinks:        sinks,
		localAddress: localAddress,
		conns:        make(map[string]*peerConn),
	}
}

// Start binds a TCP listener on bindAddress and begins accepting inbound
// peer connections. Accepts poll with a 1s deadline so Stop can interrupt
// the loop without relying on Close racing Accept (spec.md §4.3, §5).
func (m *Manager) Start(ctx context.Context, bindAddress string) error {
	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return fmt.Errorf("connmanager: listening on %s: %w", bindAddress, err)
	}
	m.listener = listener
	if m.localAddress == "" {
		m.localAddress = listener.Addr().String()
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.acceptLoop(ctx)

	m.logger.Info("listening for peer connections", "address", bindAddress)
	return nil
}

// Addr returns the listener's bound address, including the OS-assigned
// port when Start was called with port 0. Only valid after Start succeeds.
func (m *Manager) Addr() string {
	return m.listener.Addr().String()
}

// Stop closes the listener and every active connection, and waits for all
// receive loops to exit. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.listener != nil {
			m.listener.Close()
		}

		m.mu.Lock()
		conns := make([]*peerConn, 0, len(m.conns))
		for _, pc := range m.conns {
			conns = append(conns, pc)
		}
		m.mu.Unlock()

		for _, pc := range conns {
			pc.cancel()
			pc.conn.Close()
		}

		m.wg.Wait()
	})
}

func (m *Manager) acceptLoop(ctx context.Context) {
	defer m.wg.Done()

	listener, ok := m.listener.(*net.TCPListener)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ok {
			listener.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := m.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("accept failed", "err", err)
			continue
		}

		address := conn.RemoteAddr().String()
		m.logger.Info("accepted inbound connection", "address", address)
		m.adopt(ctx, hostOf(address), conn)
	}
}

// ConnectToPeer dials a peer at address (host:port) if not already
// connected. Idempotent: a duplicate dial toward a connected peer is a
// no-op, not an error (spec.md §4.3).
func (m *Manager) ConnectToPeer(ctx context.Context, address string) error {
	ip := hostOf(address)
	if address == m.localAddress {
		return nil
	}

	m.mu.Lock()
	_, exists := m.conns[ip]
	m.mu.Unlock()
	if exists {
		return nil
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connmanager: dialing %s: %w", address, err)
	}

	m.logger.Info("dialed peer", "address", address)
	m.adopt(ctx, ip, conn)
	return nil
}

// adopt registers conn under ip and starts its receive loop. If ip is
// already connected (a race between a concurrent dial and accept), the new
// connection is closed and discarded rather than replacing the existing one
// (spec.md §4.3: at most one connection per peer).
func (m *Manager) adopt(ctx context.Context, ip string, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)

	pc := &peerConn{
		ip:     ip,
		conn:   conn,
		id:     uuid.New(),
		cancel: cancel,
	}

	m.mu.Lock()
	if _, exists := m.conns[ip]; exists {
		m.mu.Unlock()
		cancel()
		conn.Close()
		return
	}
	m.conns[ip] = pc
	m.mu.Unlock()

	m.wg.Add(1)
	go m.receiveLoop(connCtx, pc)
}

func (m *Manager) receiveLoop(ctx context.Context, pc *peerConn) {
	defer m.wg.Done()
	defer m.drop(pc)

	logger := m.logger.With("peer", pc.ip, "conn_id", pc.id)

	for {
		frame, err := wire.ReadFrame(pc.conn)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("peer connection closed", "err", err)
			}
			return
		}

		switch frame.Type {
		case wire.TypeAudio:
			m.sinks.OnAudio(pc.ip, frame.Payload)
		case wire.TypeText:
			m.sinks.OnText(pc.ip, frame.Payload)
		default:
			logger.Warn("dropping frame of unknown type", "type", frame.Type)
		}
	}
}

func (m *Manager) drop(pc *peerConn) {
	pc.cancel()
	pc.conn.Close()

	m.mu.Lock()
	if current, ok := m.conns[pc.ip]; ok && current.id == pc.id {
		delete(m.conns, pc.ip)
	}
	m.mu.Unlock()
}

// Broadcast writes payload, framed as t, to every currently connected peer.
// Connection handles are copied under the lock and written outside it, so a
// slow or blocked peer write cannot stall table access for the others
// (spec.md §9 design note).
func (m *Manager) Broadcast(t wire.Type, payload []byte) {
	m.mu.Lock()
	conns := make([]*peerConn, 0, len(m.conns))
	for _, pc := range m.conns {
		conns = append(conns, pc)
	}
	m.mu.Unlock()

	for _, pc := range conns {
		if err := wire.WriteFrame(pc.conn, t, payload); err != nil {
			m.logger.Warn("broadcast write failed, dropping peer", "peer", pc.ip, "err", err)
			m.drop(pc)
		}
	}
}

// SendTo writes payload, framed as t, to a single connected peer identified
// by IP. Returns false if the peer is not currently connected.
func (m *Manager) SendTo(ip string, t wire.Type, payload []byte) bool {
	m.mu.Lock()
	pc, ok := m.conns[ip]
	m.mu.Unlock()
	if !ok {
		return false
	}

	if err := wire.WriteFrame(pc.conn, t, payload); err != nil {
		m.logger.Warn("send failed, dropping peer", "peer", ip, "err", err)
		m.drop(pc)
		return false
	}
	return true
}

// ConnectedPeers returns the IPs of all currently connected peers.
func (m *Manager) ConnectedPeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ips := make([]string, 0, len(m.conns))
	for ip := range m.conns {
		ips = append(ips, ip)
	}
	return ips
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
