// Package session implements the Session Coordinator of spec.md §4.5: the
// component that owns every other component, reconciles discovered peers
// into live connections, runs the capture and playback loops, and routes
// text messages.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teenxsky/roar/internal/audio/codec"
	"github.com/teenxsky/roar/internal/audio/device"
	"github.com/teenxsky/roar/internal/audio/pipeline"
	"github.com/teenxsky/roar/internal/config"
	"github.com/teenxsky/roar/internal/connmanager"
	"github.com/teenxsky/roar/internal/discovery"
	"github.com/teenxsky/roar/internal/peertable"
	"github.com/teenxsky/roar/internal/wire"
)

// TextMessage is one chat line delivered to the UI boundary, resolved to a
// display name where the sender is a known peer (spec.md §4.5 text path).
type TextMessage struct {
	SenderAddress string
	SenderName    string
	Body          string
	ReceivedAt    time.Time
}

// TextSink receives incoming text messages for display. It is installed
// after New through SetTextSink, a lock-guarded slot; it is not passed to
// the constructor, and text that arrives while no sink is set is dropped.
type TextSink interface {
	DeliverText(TextMessage)
}

// PeerView is a read-only snapshot of one peer for the UI boundary.
type PeerView struct {
	Address   string
	Username  string
	Connected bool
}

// Session is the node's coordinator: it owns the peer table, discovery
// engine, connection manager, and audio pipeline, and exposes the UI
// boundary operations of spec.md §4.5.
type Session struct {
	id       uuid.UUID
	cfg      *config.Config
	logger   *slog.Logger
	username string

	table     *peertable.Table
	discovery discovery.Engine
	conns     *connmanager.Manager
	capture   *pipeline.Capture
	playback  *pipeline.Playback

	textSink   TextSink
	textSinkMu sync.RWMutex

	running  bool
	runMu    sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New constructs every component from cfg (peer table, discovery engine,
// connection manager, audio devices, codec, capture and playback) and wires
// them into a Session. Called once at startup from cmd/roar.
func New(cfg *config.Config, logger *slog.Logger, localAddress string) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("component", "session", "session_id", id)

	table := peertable.New()

	s := &Session{
		id:       id,
		cfg:      cfg,
		logger:   logger,
		username: cfg.Username,
		table:    table,
	}

	s.conns = connmanager.New(localAddress, s, logger)
	s.discovery = discovery.New(cfg, table, cfg.Username, cfg.TCPPort)

	captureDev, err := device.NewCapture(cfg.AudioDevice, cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("session: opening capture device: %w", err)
	}
	playbackDev, err := device.NewPlayback(cfg.AudioDevice, cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("session: opening playback device: %w", err)
	}

	sendCodec, err := codec.New()
	if err != nil {
		logger.Warn("opus init failed, falling back to silent codec", "err", err)
		sendCodec = codec.NullEncoderDecoder{}
	}

	s.capture = pipeline.NewCapture(captureDev, sendCodec, s, logger)
	s.playback = pipeline.NewPlayback(playbackDev, newPeerDecoder, cfg.AudioSendInterval, cfg.TargetJitter, cfg.MinJitter, cfg.MaxJitter, logger)

	return s, nil
}

// newPeerDecoder gives each peer its own Opus decoder instance; decoders
// carry per-stream concealment history and must not be shared.
func newPeerDecoder() codec.EncoderDecoder {
	c, err := codec.New()
	if err != nil {
		return codec.NullEncoderDecoder{}
	}
	return c
}

// SetTextSink installs the UI's text delivery sink. Must be called before
// Start for messages received during startup reconciliation not to be
// dropped.
func (s *Session) SetTextSink(sink TextSink) {
	s.textSinkMu.Lock()
	defer s.textSinkMu.Unlock()
	s.textSink = sink
}

// Start begins discovery, the connection manager's accept loop, the
// reconciliation loop, and the audio capture/playback loops.
func (s *Session) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	bindAddress := fmt.Sprintf("%s:%d", s.cfg.TCPHost, s.cfg.TCPPort)
	if err := s.conns.Start(ctx, bindAddress); err != nil {
		cancel()
		return err
	}

	s.discovery.Start(ctx)

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.reconcileLoop(ctx) }()
	go func() { defer s.wg.Done(); s.capture.Run(ctx) }()
	go func() { defer s.wg.Done(); s.playback.Run(ctx) }()

	s.running = true
	s.logger.Info("session started", "username", s.username, "address", bindAddress)
	return nil
}

// Stop tears down every component. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.discovery.Stop()
		s.conns.Stop()
		s.wg.Wait()
	})
}

// reconcileLoop dials any discovered-but-not-connected peer on a fixed
// interval (spec.md §4.5 reconciliation).
func (s *Session) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ConnectionCheckInterval)
	defer ticker.Stop()

	for {
		s.reconcileOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) reconcileOnce(ctx context.Context) {
	connected := make(map[string]struct{})
	for _, ip := range s.conns.ConnectedPeers() {
		connected[ip] = struct{}{}
	}

	for ip, rec := range s.table.Snapshot() {
		if _, ok := connected[ip]; ok {
			continue
		}
		if err := s.conns.ConnectToPeer(ctx, rec.DialAddress()); err != nil {
			s.logger.Debug("reconciliation dial failed", "peer", ip, "err", err)
		}
	}
}

// SendAudio implements pipeline.Sender: broadcasts one encoded capture
// frame to every connected peer.
func (s *Session) SendAudio(packet []byte) {
	s.conns.Broadcast(wire.TypeAudio, packet)
}

// SendMessage broadcasts a text message to every connected peer (spec.md
// §4.5 UI boundary).
func (s *Session) SendMessage(body string) {
	s.conns.Broadcast(wire.TypeText, []byte(body))
}

// OnAudio implements connmanager.Sinks: routes a received audio packet into
// the sending peer's jitter queue.
func (s *Session) OnAudio(peerIP string, payload []byte) {
	s.playback.Push(peerIP, payload)
}

// OnText implements connmanager.Sinks: resolves the sender's display name
// and forwards the message to the installed TextSink, if any.
func (s *Session) OnText(peerIP string, payload []byte) {
	name := peerIP
	if rec, ok := s.table.Lookup(peerIP); ok {
		name = rec.Username
	}

	s.textSinkMu.RLock()
	sink := s.textSink
	s.textSinkMu.RUnlock()
	if sink == nil {
		return
	}

	sink.DeliverText(TextMessage{
		SenderAddress: peerIP,
		SenderName:    name,
		Body:          string(payload),
		ReceivedAt:    time.Now(),
	})
}

// SnapshotPeers returns every known peer (discovered or connected) for the
// UI boundary.
func (s *Session) SnapshotPeers() []PeerView {
	connected := make(map[string]struct{})
	for _, ip := range s.conns.ConnectedPeers() {
		connected[ip] = struct{}{}
	}

	snapshot := s.table.Snapshot()
	views := make([]PeerView, 0, len(snapshot))
	for ip, rec := range snapshot {
		_, isConnected := connected[ip]
		views = append(views, PeerView{
			Address:   rec.DialAddress(),
			Username:  rec.Username,
			Connected: isConnected,
		})
	}
	return views
}

// ConnectedPeers returns the IPs of every currently connected peer.
func (s *Session) ConnectedPeers() []string {
	return s.conns.ConnectedPeers()
}

// Addr returns this node's bound stream address, including the OS-assigned
// port when the configured TCPPort was 0. Only valid after Start succeeds.
func (s *Session) Addr() string {
	return s.conns.Addr()
}
