package control

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/session"
)

func newTestRunner(t *testing.T) (*Runner, *session.Manager, int) {
	t.Helper()

	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to create receiver: %v", err)
	}
	t.Cleanup(func() { receiver.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(logger, nil)
	t.Cleanup(manager.StopAll)

	defaults := config.DefaultsConfig{
		LocalIP:         "127.0.0.1",
		LocalPort:       0,
		FramesPerPacket: 10,
	}
	audio := config.AudioConfig{MaxFrameBytes: 8192}

	return NewRunner(manager, defaults, audio), manager, receiver.LocalAddr().(*net.UDPAddr).Port
}

func TestRunnerStartStop(t *testing.T) {
	runner, manager, port := newTestRunner(t)

	result := runner.Run(testUUID + " start remote_port=" + strconv.Itoa(port))
	if result.Text != "+OK Success\n" {
		t.Errorf("Expected +OK Success, got %q", result.Text)
	}
	if result.Status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", result.Status)
	}
	if manager.Count() != 1 {
		t.Errorf("Expected 1 active session, got %d", manager.Count())
	}

	result = runner.Run(testUUID + " stop")
	if result.Text != "+OK Success\n" {
		t.Errorf("Expected +OK Success on stop, got %q", result.Text)
	}
	if manager.Count() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", manager.Count())
	}
}

func TestRunnerDuplicateStart(t *testing.T) {
	runner, _, port := newTestRunner(t)

	line := testUUID + " start remote_port=" + strconv.Itoa(port)
	if result := runner.Run(line); result.Text != "+OK Success\n" {
		t.Fatalf("First start failed: %q", result.Text)
	}

	result := runner.Run(line)
	if result.Text != "-ERR Unicast already activated\n" {
		t.Errorf("Expected already-activated error, got %q", result.Text)
	}
	if result.Status != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", result.Status)
	}
}

func TestRunnerStopInactive(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	result := runner.Run(testUUID + " stop")
	if result.Text != "+OK Not activated\n" {
		t.Errorf("Expected +OK Not activated, got %q", result.Text)
	}
	if result.Status != http.StatusOK {
		t.Errorf("Expected status 200, got %d", result.Status)
	}
}

func TestRunnerUsage(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	tests := []string{
		"",
		testUUID,
		testUUID + " restart",
		testUUID + " start",
		testUUID + " start remote_port=notaport",
	}

	for _, line := range tests {
		result := runner.Run(line)
		if !strings.HasPrefix(result.Text, "-USAGE: ") {
			t.Errorf("Run(%q): expected -USAGE response, got %q", line, result.Text)
		}
		if !strings.Contains(result.Text, Syntax) {
			t.Errorf("Run(%q): usage response does not carry the syntax string", line)
		}
		if result.Status != http.StatusBadRequest {
			t.Errorf("Run(%q): expected status 400, got %d", line, result.Status)
		}
	}
}

func TestRunnerStartSetupFailure(t *testing.T) {
	runner, manager, _ := newTestRunner(t)

	// A malformed session identifier passes parsing but fails activation
	result := runner.Run("not-a-uuid start remote_port=7878")
	if !strings.HasPrefix(result.Text, "-ERR ") {
		t.Errorf("Expected -ERR response, got %q", result.Text)
	}
	if result.Status != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", result.Status)
	}
	if manager.Count() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", manager.Count())
	}
}

func TestRunnerStopMalformedIdentifier(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	result := runner.Run("not-a-uuid stop")
	if !strings.HasPrefix(result.Text, "-ERR ") {
		t.Errorf("Expected -ERR response, got %q", result.Text)
	}
	if result.Status != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", result.Status)
	}
}
