package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/metrics"
	"github.com/shimaore/unicast/internal/session"
)

// HeaderSize is the length of the tap datagram header: the 16 raw bytes
// of the session UUID
const HeaderSize = 16

// TapServer receives tap datagrams and dispatches the contained frames to
// their sessions
type TapServer struct {
	conn    *net.UDPConn
	config  *config.IngestConfig
	audio   *config.AudioConfig
	logger  *slog.Logger
	manager *session.Manager
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetsReceived uint64
	framesDelivered uint64
	parseErrors     uint64
	unknownSessions uint64
	mu              sync.RWMutex
}

// Statistics is a snapshot of tap ingest counters
type Statistics struct {
	PacketsReceived uint64 `json:"packets_received"`
	FramesDelivered uint64 `json:"frames_delivered"`
	ParseErrors     uint64 `json:"parse_errors"`
	UnknownSessions uint64 `json:"unknown_sessions"`
}

// NewTapServer creates a tap ingest server
func NewTapServer(cfg *config.IngestConfig, audio *config.AudioConfig,
	logger *slog.Logger, manager *session.Manager, m *metrics.Metrics) *TapServer {

	ctx, cancel := context.WithCancel(context.Background())

	return &TapServer{
		config:  cfg,
		audio:   audio,
		logger:  logger,
		manager: manager,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening for tap datagrams
func (s *TapServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve ingest address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on ingest UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set ingest read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Tap ingest server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// One reader only: frames must reach a session in arrival order, and
	// the buncher relies on the single-threaded push model.
	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the ingest server
func (s *TapServer) Stop() error {
	s.logger.Info("Stopping tap ingest server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing ingest connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	stats := s.Statistics()
	s.logger.Info("Tap ingest server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("frames_delivered", stats.FramesDelivered),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("unknown_sessions", stats.UnknownSessions),
	)

	return nil
}

// receiveLoop is the single reader pushing frames into sessions
func (s *TapServer) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, HeaderSize+2*s.audio.MaxFrameBytes)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline so context cancellation is noticed promptly
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read tap datagram", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordIngestPacket()

		s.handleDatagram(buffer[:n], remoteAddr)
	}
}

// handleDatagram parses one tap datagram and pushes the frame into its
// session. All failure modes are benign drops: the tap never stalls.
func (s *TapServer) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	sessionID, frame, err := ParseDatagram(data, s.audio.MaxFrameBytes)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordIngestParseError()

		s.logger.Debug("Dropping malformed tap datagram",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	sess, exists := s.manager.Get(sessionID)
	if !exists {
		// Mid-teardown race or a source that outlived its stop command
		s.mu.Lock()
		s.unknownSessions++
		s.mu.Unlock()
		s.metrics.RecordIngestUnknownSession()

		s.logger.Debug("Dropping frame for unknown session",
			slog.String("session_id", sessionID),
			slog.Int("frame_size", len(frame)),
		)
		return
	}

	sess.OnFrame(frame)

	s.mu.Lock()
	s.framesDelivered++
	s.mu.Unlock()
}

// ParseDatagram splits a tap datagram into session UUID and audio frame.
// The frame must be non-empty and no larger than one maximum frame.
func ParseDatagram(data []byte, maxFrameBytes int) (string, []byte, error) {
	if len(data) <= HeaderSize {
		return "", nil, fmt.Errorf("datagram too short: expected more than %d bytes, got %d",
			HeaderSize, len(data))
	}

	id, err := uuid.FromBytes(data[:HeaderSize])
	if err != nil {
		return "", nil, fmt.Errorf("invalid session identifier: %w", err)
	}

	frame := data[HeaderSize:]
	if len(frame) > maxFrameBytes {
		return "", nil, fmt.Errorf("frame too large: %d bytes exceeds maximum %d",
			len(frame), maxFrameBytes)
	}

	return id.String(), frame, nil
}

// Statistics returns current ingest counters
func (s *TapServer) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		PacketsReceived: s.packetsReceived,
		FramesDelivered: s.framesDelivered,
		ParseErrors:     s.parseErrors,
		UnknownSessions: s.unknownSessions,
	}
}
