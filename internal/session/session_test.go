package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/shimaore/unicast/internal/framing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReceiver(t *testing.T) *net.UDPConn {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to create receiver: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()

	buf := make([]byte, 65536)
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Failed to read datagram: %v", err)
	}
	return buf[:n]
}

func expectNoDatagram(t *testing.T, conn *net.UDPConn) {
	t.Helper()

	buf := make([]byte, 65536)
	if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if n, _, err := conn.ReadFromUDP(buf); err == nil {
		t.Fatalf("Expected no datagram, received %d bytes", n)
	}
}

func plainConfig(id string, remotePort int) Config {
	return Config{
		ID:              id,
		LocalIP:         "127.0.0.1",
		LocalPort:       0,
		RemoteIP:        "127.0.0.1",
		RemotePort:      remotePort,
		FramesPerPacket: 3,
		MaxFrameBytes:   8192,
		Mode:            framing.ModePlain,
	}
}

const (
	testUUID      = "4f1c2a6e-9d3b-4c7a-8e5f-012345678901"
	otherTestUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
)

func TestManagerStartRejectsInvalidUUID(t *testing.T) {
	m := NewManager(testLogger(), nil)

	tests := []string{
		"",
		"not-a-uuid",
		"4f1c2a6e-9d3b-4c7a-8e5f",
		"4f1c2a6e-9d3b-4c7a-8e5f-01234567890z",
	}

	for _, id := range tests {
		if _, err := m.Start(plainConfig(id, 9)); err == nil {
			t.Errorf("Start with identifier %q succeeded, expected error", id)
		}
	}

	if m.Count() != 0 {
		t.Errorf("Expected 0 sessions after rejected starts, got %d", m.Count())
	}
}

func TestManagerDuplicateStart(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)
	defer m.StopAll()

	if _, err := m.Start(plainConfig(testUUID, remotePort)); err != nil {
		t.Fatalf("First start failed: %v", err)
	}

	_, err := m.Start(plainConfig(testUUID, remotePort))
	if !errors.Is(err, ErrAlreadyActivated) {
		t.Errorf("Expected ErrAlreadyActivated, got %v", err)
	}

	// Case variants of the same UUID name the same session
	upper := "4F1C2A6E-9D3B-4C7A-8E5F-012345678901"
	_, err = m.Start(plainConfig(upper, remotePort))
	if !errors.Is(err, ErrAlreadyActivated) {
		t.Errorf("Expected ErrAlreadyActivated for uppercase identifier, got %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", m.Count())
	}
}

func TestManagerStopIdempotent(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)

	if _, err := m.Start(plainConfig(testUUID, remotePort)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	active, err := m.Stop(testUUID)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !active {
		t.Error("First stop reported no active transmission")
	}

	// Stopping again, or stopping a session that never started, succeeds
	// and reports inactive.
	active, err = m.Stop(testUUID)
	if err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
	if active {
		t.Error("Second stop reported an active transmission")
	}

	active, err = m.Stop(otherTestUUID)
	if err != nil {
		t.Fatalf("Stop of unknown session failed: %v", err)
	}
	if active {
		t.Error("Stop of unknown session reported an active transmission")
	}

	if _, err := m.Stop("garbage"); err == nil {
		t.Error("Stop with malformed identifier succeeded, expected error")
	}
}

func TestSessionPlainEndToEnd(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)
	defer m.StopAll()

	sess, err := m.Start(plainConfig(testUUID, remotePort))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Three frames with frames_per_packet=3 arrive as one concatenated
	// datagram.
	frames := [][]byte{
		bytes.Repeat([]byte{0x01}, 320),
		bytes.Repeat([]byte{0x02}, 320),
		bytes.Repeat([]byte{0x03}, 320),
	}
	for _, frame := range frames {
		sess.OnFrame(frame)
	}

	got := readDatagram(t, receiver)
	if len(got) != 960 {
		t.Fatalf("Expected 960-byte datagram, got %d", len(got))
	}
	expected := append(append(append([]byte{}, frames[0]...), frames[1]...), frames[2]...)
	if !bytes.Equal(got, expected) {
		t.Error("Datagram content does not match accumulated frames")
	}

	info := sess.Info()
	if info.FramesAccepted != 3 {
		t.Errorf("Expected 3 frames accepted, got %d", info.FramesAccepted)
	}
	if info.Flushes != 1 {
		t.Errorf("Expected 1 flush, got %d", info.Flushes)
	}
	if info.BytesBunched != 960 {
		t.Errorf("Expected 960 bytes bunched, got %d", info.BytesBunched)
	}
}

func TestSessionRTPEndToEnd(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)
	defer m.StopAll()

	cfg := plainConfig(testUUID, remotePort)
	cfg.Mode = framing.ModeRTPL16
	cfg.SSRC = 0xCAFEBABE

	sess, err := m.Start(cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		sess.OnFrame(make([]byte, 320))
	}

	got := readDatagram(t, receiver)
	if len(got) != 12+960 {
		t.Fatalf("Expected %d-byte datagram, got %d", 12+960, len(got))
	}

	var packet rtp.Packet
	if err := packet.Unmarshal(got); err != nil {
		t.Fatalf("Failed to unmarshal datagram: %v", err)
	}
	if packet.SSRC != 0xCAFEBABE {
		t.Errorf("Expected SSRC 0xCAFEBABE, got 0x%X", packet.SSRC)
	}
	if packet.PayloadType != framing.PayloadTypeL16 {
		t.Errorf("Expected payload type %d, got %d", framing.PayloadTypeL16, packet.PayloadType)
	}
	if len(packet.Payload) != 960 {
		t.Errorf("Expected 960-byte payload, got %d", len(packet.Payload))
	}
}

func TestStopFlushesPartialBunchOnce(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)

	sess, err := m.Start(plainConfig(testUUID, remotePort))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// One frame stays below both thresholds: nothing on the wire yet
	sess.OnFrame(bytes.Repeat([]byte{0x5A}, 320))
	expectNoDatagram(t, receiver)

	if _, err := m.Stop(testUUID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	got := readDatagram(t, receiver)
	if len(got) != 320 {
		t.Fatalf("Expected 320-byte partial bunch, got %d", len(got))
	}

	// A second OnClose on the detached session does not re-flush
	sess.OnClose()
	expectNoDatagram(t, receiver)
}

func TestOnFrameAfterCloseIsNoOp(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)

	sess, err := m.Start(plainConfig(testUUID, remotePort))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := m.Stop(testUUID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	before := sess.Info().FramesAccepted
	sess.OnFrame(make([]byte, 320))
	sess.OnFrame(make([]byte, 320))
	sess.OnFrame(make([]byte, 320))

	if got := sess.Info().FramesAccepted; got != before {
		t.Errorf("Frames accepted after close: %d -> %d", before, got)
	}
	expectNoDatagram(t, receiver)
}

func TestNewRejectsUnknownMode(t *testing.T) {
	cfg := plainConfig(testUUID, 9)
	cfg.Mode = framing.Mode(42)

	if _, err := New(cfg, testLogger(), nil); err == nil {
		t.Error("Expected error for unknown framing mode")
	}
}

func TestManagerGetAndAll(t *testing.T) {
	receiver := newReceiver(t)
	remotePort := receiver.LocalAddr().(*net.UDPAddr).Port

	m := NewManager(testLogger(), nil)
	defer m.StopAll()

	if _, ok := m.Get(testUUID); ok {
		t.Error("Get reported a session before any start")
	}

	if _, err := m.Start(plainConfig(testUUID, remotePort)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Start(plainConfig(otherTestUUID, remotePort)); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	sess, ok := m.Get(testUUID)
	if !ok {
		t.Fatal("Get did not find an active session")
	}
	if sess.ID() != testUUID {
		t.Errorf("Expected session ID %s, got %s", testUUID, sess.ID())
	}

	if _, ok := m.Get("not-a-uuid"); ok {
		t.Error("Get with malformed identifier reported a session")
	}

	if got := len(m.All()); got != 2 {
		t.Errorf("Expected 2 sessions in snapshot, got %d", got)
	}

	m.StopAll()
	if m.Count() != 0 {
		t.Errorf("Expected 0 sessions after StopAll, got %d", m.Count())
	}
}
