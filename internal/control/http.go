package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/ingest"
	"github.com/shimaore/unicast/internal/metrics"
	"github.com/shimaore/unicast/internal/session"
)

// maxCommandBytes bounds the size of a command request body
const maxCommandBytes = 4096

// HTTPServer exposes the control command endpoint and the monitoring and
// management endpoints of the service
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	runner  *Runner
	manager *session.Manager
	tap     *ingest.TapServer
	metrics *metrics.Metrics

	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates the control API server
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger,
	runner *Runner, manager *session.Manager, tap *ingest.TapServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		runner:    runner,
		manager:   manager,
		tap:       tap,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", appConfig.Control.Address, appConfig.Control.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Command endpoint: the body is one command line
	mux.HandleFunc("/unicast", h.withMetrics("/unicast", h.handleUnicast))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Health, statistics and configuration
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting control API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Control API server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping control API server...")

	return h.server.Shutdown(ctx)
}

// handleUnicast implements the POST /unicast command endpoint. The request
// body carries one command line; the response body is the console-style
// +OK / -ERR / -USAGE text.
func (h *HTTPServer) handleUnicast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "Failed to read command", http.StatusBadRequest)
		return
	}

	line := string(body)
	result := h.runner.Run(line)

	h.logger.Info("Control command executed",
		slog.String("command", line),
		slog.Int("status", result.Status),
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(result.Status)
	fmt.Fprint(w, result.Text)
}

// handleSessions implements the GET /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.manager.All()
	infos := make([]session.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the GET /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Path[len("/sessions/"):]
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sess, exists := h.manager.Get(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Info())
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	tapStats := h.tap.Statistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "unicastd",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"tap_ingest": map[string]interface{}{
				"status":           "running",
				"packets_received": tapStats.PacketsReceived,
				"frames_delivered": tapStats.FramesDelivered,
				"parse_errors":     tapStats.ParseErrors,
				"unknown_sessions": tapStats.UnknownSessions,
			},
			"session_manager": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.manager.Count(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"uptime":          time.Since(h.startTime).String(),
		"tap_ingest":      h.tap.Statistics(),
		"active_sessions": h.manager.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"control": map[string]interface{}{
			"address": h.config.Control.Address,
			"port":    h.config.Control.Port,
		},
		"ingest": map[string]interface{}{
			"bind_address": h.config.Ingest.BindAddress,
			"port":         h.config.Ingest.Port,
			"buffer_size":  h.config.Ingest.BufferSize,
		},
		"audio": map[string]interface{}{
			"max_frame_bytes": h.config.Audio.MaxFrameBytes,
		},
		"defaults": map[string]interface{}{
			"local_ip":          h.config.Defaults.LocalIP,
			"local_port":        h.config.Defaults.LocalPort,
			"frames_per_packet": h.config.Defaults.FramesPerPacket,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRoot implements the root endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	docs := map[string]interface{}{
		"service": "unicastd",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /unicast":      "Execute a control command: " + Syntax,
			"GET /sessions":      "List active unicast sessions",
			"GET /sessions/{id}": "Session detail",
			"GET /health":        "Health check",
			"GET /stats":         "Service statistics",
			"GET /config":        "Effective configuration",
			"GET /metrics":       "Prometheus metrics",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}
