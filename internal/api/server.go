// Package api serves the bridge's HTTP surface: stored readings, live
// status, LED control, alarm management and the WebSocket consumer endpoint.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/bridge"
	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/hub"
	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	DefaultQueryHours = 24
	DefaultQueryLimit = 2000
)

type Server struct {
	bridge      *bridge.Bridge
	db          *db.DB
	broadcaster *hub.Broadcaster
	timer       *ledtimer.Runner
	listPorts   func() ([]string, error)
}

// Option configures optional Server parts.
type Option func(*Server)

// WithLEDTimer exposes the timer profile under /api/led/timer.
func WithLEDTimer(r *ledtimer.Runner) Option {
	return func(s *Server) { s.timer = r }
}

// WithPortLister replaces serial port enumeration.
func WithPortLister(f func() ([]string, error)) Option {
	return func(s *Server) { s.listPorts = f }
}

func NewServer(b *bridge.Bridge, database *db.DB, broadcaster *hub.Broadcaster, opts ...Option) *Server {
	s := &Server{
		bridge:      b,
		db:          database,
		broadcaster: broadcaster,
		listPorts:   systemPorts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// hijacked connections outlive the request; log the upgrade only
			monitoring.Logf("%s %s%s%s upgrade from %s", r.Method, colorCyan, r.RequestURI, colorReset, r.RemoteAddr)
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sensors", s.listReadings)
	mux.HandleFunc("/api/sensors/summary", s.showSummary)
	mux.HandleFunc("/api/sensors/export.xlsx", s.exportReadings)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/led", s.setLED)
	mux.HandleFunc("/api/led/timer", s.handleLEDTimer)
	mux.HandleFunc("/api/alarms", s.listAlarms)
	mux.HandleFunc("/api/alarms/reset", s.resetAlarms)
	mux.HandleFunc("/api/alarms/thresholds", s.handleThresholds)
	mux.HandleFunc("/api/serial/devices", s.listSerialDevices)
	mux.Handle("/ws", hub.NewWebSocketHandler(s.broadcaster, s.bridge.HandleConsumerMessage))
	return mux
}
