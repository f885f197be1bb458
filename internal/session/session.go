package session

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shimaore/unicast/internal/buncher"
	"github.com/shimaore/unicast/internal/framing"
	"github.com/shimaore/unicast/internal/metrics"
	"github.com/shimaore/unicast/internal/transmit"
)

// Config describes one unicast transmission session
type Config struct {
	// ID is the canonical session UUID
	ID string

	LocalIP    string
	LocalPort  int
	RemoteIP   string
	RemotePort int

	// FramesPerPacket is the frame-count flush threshold (1..=10)
	FramesPerPacket int

	// MaxFrameBytes is the largest single frame the tap may deliver; it is
	// also the byte low-water mark of the buncher
	MaxFrameBytes int

	// Mode selects plain or RTP-L16 framing. SSRC is only meaningful for
	// ModeRTPL16.
	Mode framing.Mode
	SSRC uint32
}

// Session is the per-tap transmission state: accumulation buffer, framing
// counters and the connected socket. The tap drives OnInit, OnFrame and
// OnClose synchronously on its own thread; the atomic counters exist only
// so the monitoring API can read statistics from other goroutines.
type Session struct {
	cfg       Config
	buncher   *buncher.Buncher
	tx        *transmit.Transmitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	startTime time.Time

	framesAccepted atomic.Uint64
	flushes        atomic.Uint64
	bytesBunched   atomic.Uint64
	closed         atomic.Bool
}

// SessionInfo is a monitoring snapshot of one session
type SessionInfo struct {
	ID              string    `json:"id"`
	LocalAddr       string    `json:"local_addr"`
	RemoteAddr      string    `json:"remote_addr"`
	Mode            string    `json:"mode"`
	SSRC            uint32    `json:"ssrc,omitempty"`
	FramesPerPacket int       `json:"frames_per_packet"`
	StartTime       time.Time `json:"start_time"`
	FramesAccepted  uint64    `json:"frames_accepted"`
	Flushes         uint64    `json:"flushes"`
	BytesBunched    uint64    `json:"bytes_bunched"`
	SendsAbsorbed   uint64    `json:"sends_absorbed"`
}

// New creates a session: it binds and connects the UDP socket, selects the
// framer for the configured mode and sizes the accumulation buffer. Every
// setup failure is surfaced to the caller; the audio path is untouched.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	sender, err := transmit.Dial(cfg.LocalIP, cfg.LocalPort, cfg.RemoteIP, cfg.RemotePort)
	if err != nil {
		return nil, err
	}

	var framer framing.Framer
	switch cfg.Mode {
	case framing.ModePlain:
		framer = framing.NewPlainFramer()
	case framing.ModeRTPL16:
		framer = framing.NewRTPFramer(cfg.SSRC)
	default:
		sender.Close()
		return nil, fmt.Errorf("unknown framing mode %d", cfg.Mode)
	}

	tx := transmit.NewTransmitter(framer, sender, m)

	s := &Session{
		cfg:       cfg,
		tx:        tx,
		logger:    logger.With(slog.String("session_id", cfg.ID)),
		metrics:   m,
		startTime: time.Now(),
	}

	s.buncher, err = buncher.New(s, cfg.MaxFrameBytes, cfg.FramesPerPacket)
	if err != nil {
		sender.Close()
		return nil, err
	}

	return s, nil
}

// Flush implements buncher.Flusher: it records flush statistics and hands
// the bunch to the transmitter
func (s *Session) Flush(bunch []byte) {
	s.flushes.Add(1)
	s.bytesBunched.Add(uint64(len(bunch)))
	s.metrics.RecordFlush(len(bunch), s.buncher.FrameCount())
	s.tx.Flush(bunch)
}

// Close implements buncher.Flusher: it releases the socket
func (s *Session) Close() error {
	return s.tx.Close()
}

// OnInit is invoked once when the tap attaches
func (s *Session) OnInit() {
	s.buncher.Init()
	s.logger.Info("tap attached",
		slog.String("local_addr", s.tx.Sender().LocalAddr().String()),
		slog.String("remote_addr", s.tx.Sender().RemoteAddr().String()),
		slog.String("mode", s.cfg.Mode.String()),
	)
}

// OnFrame is invoked once per arriving audio frame, on the tap's thread.
// After the session has closed this is a benign no-op: the frame is
// dropped and processing continues.
func (s *Session) OnFrame(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.framesAccepted.Add(1)
	s.metrics.RecordFrameAccepted()
	s.buncher.AcceptFrame(frame)
}

// OnClose is invoked when the tap detaches. Any partial bunch is flushed
// exactly once and the socket is released. Subsequent calls are no-ops.
func (s *Session) OnClose() {
	if s.closed.Swap(true) {
		return
	}
	if err := s.buncher.Close(); err != nil {
		s.logger.Warn("error closing transmit socket", slog.String("error", err.Error()))
	}
	s.logger.Info("tap detached",
		slog.Uint64("frames_accepted", s.framesAccepted.Load()),
		slog.Uint64("flushes", s.flushes.Load()),
		slog.Uint64("bytes_bunched", s.bytesBunched.Load()),
		slog.Duration("duration", time.Since(s.startTime)),
	)
}

// ID returns the canonical session UUID
func (s *Session) ID() string {
	return s.cfg.ID
}

// StartTime returns when the session was activated
func (s *Session) StartTime() time.Time {
	return s.startTime
}

// Info returns a monitoring snapshot of the session
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:              s.cfg.ID,
		LocalAddr:       s.tx.Sender().LocalAddr().String(),
		RemoteAddr:      s.tx.Sender().RemoteAddr().String(),
		Mode:            s.cfg.Mode.String(),
		SSRC:            s.cfg.SSRC,
		FramesPerPacket: s.cfg.FramesPerPacket,
		StartTime:       s.startTime,
		FramesAccepted:  s.framesAccepted.Load(),
		Flushes:         s.flushes.Load(),
		BytesBunched:    s.bytesBunched.Load(),
		SendsAbsorbed:   s.tx.Sender().Dropped(),
	}
}
