package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/ingest"
	"github.com/shimaore/unicast/internal/session"
)

func newTestHTTPServer(t *testing.T) (*HTTPServer, int) {
	t.Helper()

	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("Failed to create receiver: %v", err)
	}
	t.Cleanup(func() { receiver.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()

	manager := session.NewManager(logger, nil)
	t.Cleanup(manager.StopAll)

	tap := ingest.NewTapServer(&cfg.Ingest, &cfg.Audio, logger, manager, nil)

	defaults := config.DefaultsConfig{
		LocalIP:         "127.0.0.1",
		LocalPort:       0,
		FramesPerPacket: 10,
	}
	runner := NewRunner(manager, defaults, cfg.Audio)

	return NewHTTPServer(cfg, logger, runner, manager, tap, nil),
		receiver.LocalAddr().(*net.UDPAddr).Port
}

func TestHandleUnicast(t *testing.T) {
	server, port := newTestHTTPServer(t)

	line := testUUID + " start remote_port=" + strconv.Itoa(port)
	req := httptest.NewRequest(http.MethodPost, "/unicast", strings.NewReader(line))
	rec := httptest.NewRecorder()
	server.handleUnicast(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "+OK Success\n" {
		t.Errorf("Expected +OK Success, got %q", rec.Body.String())
	}

	// Duplicate start through the HTTP surface
	req = httptest.NewRequest(http.MethodPost, "/unicast", strings.NewReader(line))
	rec = httptest.NewRecorder()
	server.handleUnicast(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
	if rec.Body.String() != "-ERR Unicast already activated\n" {
		t.Errorf("Expected already-activated error, got %q", rec.Body.String())
	}

	// GET is rejected
	req = httptest.NewRequest(http.MethodGet, "/unicast", nil)
	rec = httptest.NewRecorder()
	server.handleUnicast(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	server, port := newTestHTTPServer(t)

	line := testUUID + " start remote_port=" + strconv.Itoa(port)
	req := httptest.NewRequest(http.MethodPost, "/unicast", strings.NewReader(line))
	server.handleUnicast(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	server.handleSessions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response struct {
		TotalSessions int                   `json:"total_sessions"`
		Sessions      []session.SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.TotalSessions != 1 || len(response.Sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", response.TotalSessions)
	}
	if response.Sessions[0].ID != testUUID {
		t.Errorf("Expected session ID %s, got %s", testUUID, response.Sessions[0].ID)
	}
	if response.Sessions[0].Mode != "plain" {
		t.Errorf("Expected plain mode, got %s", response.Sessions[0].Mode)
	}
}

func TestHandleSessionDetail(t *testing.T) {
	server, port := newTestHTTPServer(t)

	line := testUUID + " start remote_port=" + strconv.Itoa(port)
	req := httptest.NewRequest(http.MethodPost, "/unicast", strings.NewReader(line))
	server.handleUnicast(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+testUUID, nil)
	rec := httptest.NewRecorder()
	server.handleSessionDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var info session.SessionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if info.ID != testUUID {
		t.Errorf("Expected session ID %s, got %s", testUUID, info.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", nil)
	rec = httptest.NewRecorder()
	server.handleSessionDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown session, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
}
